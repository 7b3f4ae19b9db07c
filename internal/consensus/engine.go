package consensus

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"notary/internal/compliance"
	"notary/internal/config"
	"notary/internal/logger"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// Engine composes coordinator, detectors, resolvers, aggregation and the
// compliance gate into one run path. All strategy lists are ordered and
// scanned first-match-wins so behavior stays auditable.
type Engine struct {
	profiles    []Profile
	strategy    Strategy
	detectors   []Detector
	resolvers   []Resolver
	fallback    WeightedVotingResolver
	coordinator *Coordinator
	policy      *compliance.Policy

	modelCID          string
	expertiseRequired float64
	expertise         map[string]map[string]float64
}

// NewEngine builds an engine or refuses to. Zero agents is a configuration
// error; a non-computable model CID is an integrity error. Both are fatal:
// the engine must not start with an unverifiable identity.
func NewEngine(cfg *config.Config, profiles []Profile) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("consensus: nil config")
	}
	if len(profiles) == 0 {
		return nil, ErrNoAgents
	}
	for _, p := range profiles {
		if p.Agent == nil || strings.TrimSpace(p.Agent.ID()) == "" {
			return nil, fmt.Errorf("%w: profile without agent identity", ErrNoAgents)
		}
	}
	cid, err := ComputeModelCID(cfg.Consensus.BuildVersion, profiles)
	if err != nil {
		return nil, err
	}
	strategy, err := NewStrategy(strings.TrimSpace(cfg.Consensus.Aggregation))
	if err != nil {
		return nil, err
	}
	weights := make(map[string]float64, len(profiles))
	expertise := make(map[string]map[string]float64, len(profiles))
	for _, p := range profiles {
		weights[p.Agent.ID()] = p.weight()
		if len(p.Expertise) > 0 {
			expertise[p.Agent.ID()] = p.Expertise
		}
	}
	voting := WeightedVotingResolver{Weights: weights}
	e := &Engine{
		profiles: profiles,
		strategy: strategy,
		detectors: []Detector{
			StatisticalDetector{
				DisagreementThreshold: cfg.Consensus.DisagreementThreshold,
				ConfidenceThreshold:   cfg.Consensus.ConfidenceThreshold,
				OutlierThreshold:      cfg.Consensus.OutlierThreshold,
			},
			DomainDetector{ScoreRequired: cfg.Consensus.ExpertiseScoreRequired},
		},
		resolvers: []Resolver{
			ExpertiseBasedResolver{},
			voting,
		},
		fallback: voting,
		coordinator: &Coordinator{
			RoundTimeout: time.Duration(cfg.Consensus.RoundTimeoutSeconds) * time.Second,
		},
		policy:            compliance.NewPolicy(cfg.Compliance.MinConfidence, cfg.Compliance.ProhibitedPhrases),
		modelCID:          cid,
		expertiseRequired: cfg.Consensus.ExpertiseScoreRequired,
		expertise:         expertise,
	}
	return e, nil
}

// ModelCID returns the content identity frozen at construction.
func (e *Engine) ModelCID() string { return e.modelCID }

// ComputeModelCID derives the frozen code/agent-set identity: keccak over
// the build version and the sorted agent manifest. Missing inputs fail
// closed rather than producing a guessable identity.
func ComputeModelCID(buildVersion string, profiles []Profile) (string, error) {
	buildVersion = strings.TrimSpace(buildVersion)
	if buildVersion == "" {
		return "", ErrIntegrity
	}
	if len(profiles) == 0 {
		return "", fmt.Errorf("%w: empty agent manifest", ErrIntegrity)
	}
	manifest := make([]string, 0, len(profiles))
	for _, p := range profiles {
		if p.Agent == nil {
			return "", fmt.Errorf("%w: nil agent in manifest", ErrIntegrity)
		}
		manifest = append(manifest, fmt.Sprintf("%s:%g", p.Agent.ID(), p.weight()))
	}
	sort.Strings(manifest)
	preimage := buildVersion + "|" + strings.Join(manifest, ",")
	return "0x" + fmt.Sprintf("%x", crypto.Keccak256([]byte(preimage))), nil
}

// Run executes one consensus round for the task.
func (e *Engine) Run(ctx context.Context, task string) (ConsensusResult, error) {
	task = strings.TrimSpace(task)
	if task == "" {
		return ConsensusResult{}, fmt.Errorf("consensus: empty task")
	}
	tctx := TaskContext{
		TaskID:            uuid.NewString(),
		Task:              task,
		Domain:            DetectDomain(task),
		ExpertiseRequired: e.expertiseRequired,
		Expertise:         e.expertise,
	}
	pattern := SelectPattern(task, len(e.profiles))
	logger.Debugf("consensus task=%s pattern=%s domain=%q agents=%d", tctx.TaskID, pattern, tctx.Domain, len(e.profiles))

	round := e.coordinator.Run(ctx, pattern, e.profiles, tctx)
	if len(round.Predictions) == 0 {
		return ConsensusResult{}, ErrNoPredictions
	}

	conflicts := e.detect(round.Predictions, tctx)
	contributing, resolutions, err := e.resolve(round.Predictions, conflicts, tctx)
	if err != nil {
		return ConsensusResult{}, err
	}

	value, err := e.strategy.Aggregate(contributing)
	if err != nil {
		return ConsensusResult{}, err
	}
	overall := meanConfidence(contributing)
	result := ConsensusResult{
		FinalDecision:       value.String(),
		IndividualDecisions: round.Decisions,
		Method:              e.strategy.Name(),
		ModelCID:            e.modelCID,
		ComplianceStatus:    CompliancePass,
		OverallConfidence:   overall,
		Trace:               buildTrace(pattern, tctx, conflicts, resolutions),
	}

	if ok, reason := e.policy.Check(task, result.FinalDecision, overall); !ok {
		logger.Warnf("compliance veto task=%s reason=%s decision=%q confidence=%.2f", tctx.TaskID, reason, result.FinalDecision, overall)
		result.FinalDecision = "reject"
		result.Method = "policy_override: " + reason
		result.ComplianceStatus = ComplianceFail
	}
	return result, nil
}

func (e *Engine) detect(preds []Prediction, tctx TaskContext) []Conflict {
	var merged []Conflict
	for _, d := range e.detectors {
		found := d.Detect(preds, tctx)
		for _, c := range found {
			logger.Debugf("detector %s flagged %s", d.Name(), c.describe())
		}
		merged = append(merged, found...)
	}
	return merged
}

// resolve routes each conflict to the first resolver that can handle it
// (weighted voting as fallback) and rebuilds the contributing set: resolved
// synthetic predictions plus every prediction untouched by any conflict.
func (e *Engine) resolve(preds []Prediction, conflicts []Conflict, tctx TaskContext) ([]Prediction, []Resolution, error) {
	if len(conflicts) == 0 {
		return preds, nil, nil
	}
	conflicted := map[string]struct{}{}
	resolutions := make([]Resolution, 0, len(conflicts))
	for _, c := range conflicts {
		res, err := e.resolveOne(c, tctx)
		if err != nil {
			return nil, nil, err
		}
		resolutions = append(resolutions, res)
		for _, p := range c.Predictions {
			conflicted[p.AgentID] = struct{}{}
		}
	}
	var contributing []Prediction
	for _, res := range resolutions {
		contributing = append(contributing, res.Resolved)
	}
	for _, p := range preds {
		if _, ok := conflicted[p.AgentID]; !ok {
			contributing = append(contributing, p)
		}
	}
	return contributing, resolutions, nil
}

func (e *Engine) resolveOne(c Conflict, tctx TaskContext) (Resolution, error) {
	for _, r := range e.resolvers {
		if r.CanHandle(c.Type) {
			return r.Resolve(c, tctx)
		}
	}
	return e.fallback.Resolve(c, tctx)
}

func buildTrace(pattern InteractionPattern, tctx TaskContext, conflicts []Conflict, resolutions []Resolution) Trace {
	trace := Trace{
		"task_id":   TraceStr(tctx.TaskID),
		"pattern":   TraceStr(string(pattern)),
		"conflicts": TraceNum(float64(len(conflicts))),
	}
	if tctx.Domain != "" {
		trace["domain"] = TraceStr(tctx.Domain)
	}
	for i, res := range resolutions {
		trace[fmt.Sprintf("resolution_%d", i)] = TraceSub(Trace{
			"method":                TraceStr(res.Method),
			"resolved_value":        TraceStr(res.Resolved.Value.String()),
			"confidence_adjustment": TraceNum(res.ConfidenceAdjustment),
			"rationale":             TraceStr(res.Rationale),
		})
	}
	return trace
}
