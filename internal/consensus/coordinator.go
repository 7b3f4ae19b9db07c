package consensus

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"notary/internal/logger"

	"golang.org/x/sync/errgroup"
)

// TaskContext carries the per-run facts shared by coordinator, detectors
// and resolvers. Never mutated after construction.
type TaskContext struct {
	TaskID            string
	Task              string
	Domain            string
	ExpertiseRequired float64
	Expertise         map[string]map[string]float64 // agent -> domain -> score
}

func (t TaskContext) expertiseScore(agentID string) float64 {
	if t.Domain == "" || t.Expertise == nil {
		return 0
	}
	return t.Expertise[agentID][t.Domain]
}

// Coordinator fans one task out to the agents under an interaction pattern.
// Every stage carries a hard wall-clock timeout; agents exceeding it are
// excluded from the stage result and never retried mid-round.
type Coordinator struct {
	RoundTimeout time.Duration
}

// RoundResult pairs the normalized predictions with the raw decisions they
// came from, both in stable registration order.
type RoundResult struct {
	Predictions []Prediction
	Decisions   []AgentDecision
}

func (c *Coordinator) Run(ctx context.Context, pattern InteractionPattern, profiles []Profile, tctx TaskContext) RoundResult {
	switch pattern {
	case PatternHierarchical:
		return c.runHierarchical(ctx, profiles, tctx)
	case PatternPeerReview:
		return c.runStagedRevision(ctx, profiles, tctx, "peer review")
	case PatternConsensusRounds:
		return c.runStagedRevision(ctx, profiles, tctx, "consensus round")
	case PatternExpertConsultation:
		return c.runStage(ctx, selectExperts(profiles, tctx), tctx.Task)
	case PatternCompetitive:
		return topHalf(c.runStage(ctx, profiles, tctx.Task))
	default:
		return c.runStage(ctx, profiles, tctx.Task)
	}
}

// runStage invokes every profile concurrently against the given task text.
// Results land in fixed slots so output order matches registration order.
func (c *Coordinator) runStage(ctx context.Context, profiles []Profile, task string) RoundResult {
	if len(profiles) == 0 {
		return RoundResult{}
	}
	stageCtx := ctx
	cancel := context.CancelFunc(func() {})
	if c.RoundTimeout > 0 {
		stageCtx, cancel = context.WithTimeout(ctx, c.RoundTimeout)
	}
	defer cancel()

	type slot struct {
		dec AgentDecision
		ok  bool
	}
	slots := make([]slot, len(profiles))
	eg, egCtx := errgroup.WithContext(stageCtx)
	for i, p := range profiles {
		i, p := i, p
		eg.Go(func() error {
			dec, err := p.Agent.Run(egCtx, tasktext(task))
			if err != nil {
				logger.Warnf("agent %s excluded from round: %v", p.Agent.ID(), err)
				return nil // one broken agent must not sink the round
			}
			dec.AgentID = p.Agent.ID()
			slots[i] = slot{dec: dec, ok: true}
			return nil
		})
	}
	_ = eg.Wait()

	out := RoundResult{}
	for i, s := range slots {
		if !s.ok {
			continue
		}
		out.Decisions = append(out.Decisions, s.dec)
		out.Predictions = append(out.Predictions, PredictionFrom(profiles[i].Agent.ID(), s.dec))
	}
	return out
}

// runHierarchical lets the first registered agent lead; its decision is
// shared with the rest, which then answer concurrently. Later stages are
// strictly sequenced after earlier ones complete.
func (c *Coordinator) runHierarchical(ctx context.Context, profiles []Profile, tctx TaskContext) RoundResult {
	if len(profiles) == 0 {
		return RoundResult{}
	}
	lead := c.runStage(ctx, profiles[:1], tctx.Task)
	if len(lead.Predictions) == 0 {
		// leader non-responsive: degrade to a plain broadcast of the rest
		return c.runStage(ctx, profiles[1:], tctx.Task)
	}
	guided := fmt.Sprintf("%s\n\nLead assessment (%s): %s (confidence %.2f)",
		tctx.Task, lead.Decisions[0].AgentID, lead.Decisions[0].Decision, lead.Decisions[0].Confidence)
	rest := c.runStage(ctx, profiles[1:], guided)
	return RoundResult{
		Predictions: append(lead.Predictions, rest.Predictions...),
		Decisions:   append(lead.Decisions, rest.Decisions...),
	}
}

// runStagedRevision runs an initial round, summarizes its vote distribution,
// and runs one revision round seeded with that summary. Two rounds, fixed,
// so behavior stays deterministic and auditable.
func (c *Coordinator) runStagedRevision(ctx context.Context, profiles []Profile, tctx TaskContext, label string) RoundResult {
	first := c.runStage(ctx, profiles, tctx.Task)
	if len(first.Predictions) < 2 {
		return first
	}
	revised := c.runStage(ctx, profiles, tctx.Task+"\n\n"+summarizeRound(label, first))
	if len(revised.Predictions) == 0 {
		return first
	}
	return revised
}

func summarizeRound(label string, round RoundResult) string {
	counts := map[string]int{}
	order := []string{}
	for _, p := range round.Predictions {
		display := p.Value.String()
		if _, seen := counts[display]; !seen {
			order = append(order, display)
		}
		counts[display]++
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Prior %s distribution across %d agents:\n", label, len(round.Predictions))
	for _, v := range order {
		fmt.Fprintf(&b, "- %q: %d vote(s)\n", v, counts[v])
	}
	b.WriteString("Reconsider your answer given the distribution above.")
	return b.String()
}

// selectExperts keeps only agents qualified in the task's domain. When the
// domain is unknown or nobody qualifies, everyone is consulted.
func selectExperts(profiles []Profile, tctx TaskContext) []Profile {
	if tctx.Domain == "" {
		return profiles
	}
	var experts []Profile
	for _, p := range profiles {
		if tctx.expertiseScore(p.Agent.ID()) >= tctx.ExpertiseRequired {
			experts = append(experts, p)
		}
	}
	if len(experts) == 0 {
		return profiles
	}
	return experts
}

// topHalf keeps the more confident half of a competitive round, earlier
// registration winning ties.
func topHalf(round RoundResult) RoundResult {
	n := len(round.Predictions)
	if n <= 1 {
		return round
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return round.Predictions[idx[a]].Confidence > round.Predictions[idx[b]].Confidence
	})
	keep := (n + 1) / 2
	chosen := map[int]bool{}
	for _, i := range idx[:keep] {
		chosen[i] = true
	}
	out := RoundResult{}
	for i := 0; i < n; i++ {
		if chosen[i] {
			out.Predictions = append(out.Predictions, round.Predictions[i])
			out.Decisions = append(out.Decisions, round.Decisions[i])
		}
	}
	return out
}

func tasktext(task string) string {
	return strings.TrimSpace(task)
}
