// Package compliance implements the post-consensus guardrail. It can veto a
// majority decision but never mutates one: callers apply the override.
package compliance

import (
	"strings"
)

// Veto reasons, stable identifiers surfaced in audit trails.
const (
	ReasonProhibited = "PROHIBITED"
	ReasonRejected   = "REJECTED"
)

// Policy is a pure rule set: no state, no side effects.
type Policy struct {
	MinConfidence     float64
	ProhibitedPhrases []string
}

func NewPolicy(minConfidence float64, prohibited []string) *Policy {
	phrases := make([]string, 0, len(prohibited))
	for _, p := range prohibited {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			phrases = append(phrases, p)
		}
	}
	return &Policy{MinConfidence: minConfidence, ProhibitedPhrases: phrases}
}

// Check evaluates rules in fixed order, first match wins:
// prohibited-concentration phrasing in the task text vetoes outright, then
// the confidence floor applies. A non-compliant verdict obliges the caller
// to overwrite the final decision with "reject" and record the override.
func (p *Policy) Check(task, decision string, confidence float64) (bool, string) {
	lower := strings.ToLower(task)
	for _, phrase := range p.ProhibitedPhrases {
		if strings.Contains(lower, phrase) {
			return false, ReasonProhibited
		}
	}
	if confidence < p.MinConfidence {
		return false, ReasonRejected
	}
	return true, ""
}
