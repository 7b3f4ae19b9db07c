package consensus

import (
	"fmt"
)

// Resolution is the terminal output of resolving one conflict; its
// prediction feeds back into the final aggregation.
type Resolution struct {
	Resolved             Prediction
	Method               string
	ConfidenceAdjustment float64
	Rationale            string
}

// Resolver turns one conflict into a single replacement prediction.
// Resolvers are scanned in order; the first whose CanHandle matches wins.
type Resolver interface {
	Name() string
	CanHandle(t ConflictType) bool
	Resolve(c Conflict, tctx TaskContext) (Resolution, error)
}

// WeightedVotingResolver groups the conflicting predictions by value, sums
// agent_weight x confidence per group, and emits a synthetic consensus
// prediction for the winning group. The winner's confidence is capped at
// 0.9x the group's mean confidence: a resolved conflict is never as certain
// as an uncontested vote.
type WeightedVotingResolver struct {
	Weights map[string]float64 // agent -> weight, missing entries weigh 1
}

const weightedVotingAgentID = "consensus_weighted_voting"

func (WeightedVotingResolver) Name() string { return "weighted_voting" }

func (WeightedVotingResolver) CanHandle(t ConflictType) bool {
	switch t {
	case ValueDisagreement, ConfidenceMismatch, OutlierDetection, SystematicBias:
		return true
	default:
		return false
	}
}

func (r WeightedVotingResolver) Resolve(c Conflict, tctx TaskContext) (Resolution, error) {
	if len(c.Predictions) == 0 {
		return Resolution{}, fmt.Errorf("weighted voting: conflict carries no predictions")
	}
	type group struct {
		value   Value
		score   float64
		confSum float64
		count   int
		order   int
	}
	groups := map[string]*group{}
	orderCounter := 0
	for _, p := range c.Predictions {
		key := p.Value.Key()
		g := groups[key]
		if g == nil {
			g = &group{value: p.Value, order: orderCounter}
			orderCounter++
			groups[key] = g
		}
		g.score += r.weight(p.AgentID) * p.Confidence
		g.confSum += p.Confidence
		g.count++
	}
	var best *group
	for _, g := range groups {
		if best == nil || g.score > best.score || (g.score == best.score && g.order < best.order) {
			best = g
		}
	}
	meanConf := best.confSum / float64(best.count)
	resolvedConf := clampConfidence(0.9 * meanConf)
	return Resolution{
		Resolved: Prediction{
			AgentID:    weightedVotingAgentID,
			Value:      best.value,
			Confidence: resolvedConf,
		},
		Method:               "weighted_voting",
		ConfidenceAdjustment: resolvedConf - meanConf,
		Rationale: fmt.Sprintf("value %s won weighted vote with score %.3f across %d group(s)",
			best.value.String(), best.score, len(groups)),
	}, nil
}

func (r WeightedVotingResolver) weight(agentID string) float64 {
	if r.Weights == nil {
		return 1
	}
	if w, ok := r.Weights[agentID]; ok && w > 0 {
		return w
	}
	return 1
}

// ExpertiseBasedResolver defers to the single highest-scoring domain expert
// among the conflicting agents, falling back to the highest raw confidence
// when no expertise data exists.
type ExpertiseBasedResolver struct{}

func (ExpertiseBasedResolver) Name() string { return "expertise_based" }

func (ExpertiseBasedResolver) CanHandle(t ConflictType) bool {
	return t == ExpertiseConflict
}

func (ExpertiseBasedResolver) Resolve(c Conflict, tctx TaskContext) (Resolution, error) {
	if len(c.Predictions) == 0 {
		return Resolution{}, fmt.Errorf("expertise resolver: conflict carries no predictions")
	}
	best := c.Predictions[0]
	bestScore := tctx.expertiseScore(best.AgentID)
	hasExpertise := bestScore > 0
	for _, p := range c.Predictions[1:] {
		score := tctx.expertiseScore(p.AgentID)
		if score > 0 {
			hasExpertise = true
		}
		if score > bestScore {
			best, bestScore = p, score
		}
	}
	if !hasExpertise {
		best = c.Predictions[0]
		for _, p := range c.Predictions[1:] {
			if p.Confidence > best.Confidence {
				best = p
			}
		}
		return Resolution{
			Resolved:  best,
			Method:    "expertise_deference",
			Rationale: fmt.Sprintf("no expertise data for domain %q; deferred to most confident agent %s", tctx.Domain, best.AgentID),
		}, nil
	}
	return Resolution{
		Resolved: best,
		Method:   "expertise_deference",
		Rationale: fmt.Sprintf("deferred to %s (expertise %.2f in %q)",
			best.AgentID, bestScore, tctx.Domain),
	}, nil
}

// HybridResolver delegates to the first inner resolver whose CanHandle
// matches, annotating which one was used; unmatched conflicts fall back to
// weighted voting.
type HybridResolver struct {
	Resolvers []Resolver
	Fallback  WeightedVotingResolver
}

func (HybridResolver) Name() string { return "hybrid" }

func (HybridResolver) CanHandle(ConflictType) bool { return true }

func (h HybridResolver) Resolve(c Conflict, tctx TaskContext) (Resolution, error) {
	for _, r := range h.Resolvers {
		if r == nil || !r.CanHandle(c.Type) {
			continue
		}
		res, err := r.Resolve(c, tctx)
		if err != nil {
			return Resolution{}, err
		}
		res.Method = "hybrid:" + res.Method
		return res, nil
	}
	res, err := h.Fallback.Resolve(c, tctx)
	if err != nil {
		return Resolution{}, err
	}
	res.Method = "hybrid:" + res.Method
	return res, nil
}
