package consensus

import (
	"context"
	"strings"

	"notary/internal/pkg/jsonutil"
	textutil "notary/internal/pkg/text"

	"github.com/tidwall/gjson"
)

// Agent is the opaque reasoning boundary: one LLM-backed proposer. The
// engine tolerates it erroring, timing out or returning garbage; a broken
// agent costs the round one vote, never the round itself.
type Agent interface {
	ID() string
	Run(ctx context.Context, task string) (AgentDecision, error)
}

// Profile pairs an agent with its voting weight and domain expertise scores
// (domain -> score in [0,1]). Registration order is preserved; tie-breaks
// throughout the pipeline depend on it.
type Profile struct {
	Agent     Agent
	Weight    float64
	Expertise map[string]float64
}

func (p Profile) weight() float64 {
	if p.Weight <= 0 {
		return 1
	}
	return p.Weight
}

// PredictionFrom normalizes a raw agent decision into a Prediction.
func PredictionFrom(agentID string, dec AgentDecision) Prediction {
	decision := strings.TrimSpace(dec.Decision)
	if decision == "" {
		decision = "abstain"
	}
	return Prediction{
		AgentID:    agentID,
		Value:      ParseValue(decision),
		Confidence: clampConfidence(dec.Confidence),
	}
}

// TextAgent adapts a free-form text generator (the usual LLM shape) to the
// Agent interface. Output is expected to carry a JSON object with decision/
// justification/confidence fields, but anything else degrades to a fallback
// string decision instead of failing the round.
type TextAgent struct {
	AgentID string
	Invoke  func(ctx context.Context, task string) (string, error)
}

func (a *TextAgent) ID() string { return a.AgentID }

func (a *TextAgent) Run(ctx context.Context, task string) (AgentDecision, error) {
	raw, err := a.Invoke(ctx, task)
	if err != nil {
		return AgentDecision{}, err
	}
	return CoerceAgentOutput(a.AgentID, raw), nil
}

const fallbackConfidence = 0.5

// CoerceAgentOutput extracts a structured decision from free-form model
// text. Missing or malformed fields fall back rather than error.
func CoerceAgentOutput(agentID, raw string) AgentDecision {
	dec := AgentDecision{AgentID: agentID, Confidence: fallbackConfidence}
	obj, ok := jsonutil.ExtractJSON(raw)
	if !ok || !gjson.Valid(obj) {
		dec.Decision = textutil.Truncate(textutil.Sanitize(raw), 120)
		return dec
	}
	parsed := gjson.Parse(obj)
	if d := parsed.Get("decision"); d.Exists() {
		dec.Decision = strings.TrimSpace(d.String())
	}
	if dec.Decision == "" {
		if d := parsed.Get("action"); d.Exists() {
			dec.Decision = strings.TrimSpace(d.String())
		}
	}
	if dec.Decision == "" {
		dec.Decision = textutil.Truncate(textutil.Sanitize(raw), 120)
	}
	if j := parsed.Get("justification"); j.Exists() {
		dec.Justification = strings.TrimSpace(j.String())
	} else if j := parsed.Get("reasoning"); j.Exists() {
		dec.Justification = strings.TrimSpace(j.String())
	}
	if c := parsed.Get("confidence"); c.Exists() {
		conf := c.Float()
		if conf > 1 && conf <= 100 {
			conf /= 100 // models sometimes answer in percent
		}
		dec.Confidence = clampConfidence(conf)
	}
	if r := parsed.Get("risk_score"); r.Exists() {
		dec.RiskScore = clampConfidence(r.Float())
	}
	return dec
}
