package consensus

import "strings"

// InteractionPattern selects how one consensus round is staged.
type InteractionPattern string

const (
	PatternBroadcast          InteractionPattern = "broadcast"
	PatternHierarchical       InteractionPattern = "hierarchical"
	PatternPeerReview         InteractionPattern = "peer_review"
	PatternConsensusRounds    InteractionPattern = "consensus_rounds"
	PatternExpertConsultation InteractionPattern = "expert_consultation"
	PatternCompetitive        InteractionPattern = "competitive"
)

// Pattern selection is a fixed rule table over task features, not a model.
// First matching rule wins so an auditor can replay the selection.
var patternRules = []struct {
	pattern  InteractionPattern
	keywords []string
}{
	{PatternHierarchical, []string{"escalate", "approval chain", "sign-off", "sign off"}},
	{PatternPeerReview, []string{"audit", "review", "verify", "double-check"}},
	{PatternExpertConsultation, []string{"specialist", "expert", "regulatory", "jurisdiction"}},
	{PatternCompetitive, []string{"compete", "best proposal", "alternatives", "counter-proposal"}},
}

var urgencyKeywords = []string{"urgent", "immediately", "asap", "right now", "time-critical"}

// SelectPattern picks the interaction pattern for a task. Urgent tasks
// always broadcast (single concurrent round, lowest latency). Otherwise the
// keyword table applies, then agent count: five or more agents default to
// consensus rounds, fewer to broadcast.
func SelectPattern(task string, agentCount int) InteractionPattern {
	lower := strings.ToLower(task)
	for _, kw := range urgencyKeywords {
		if strings.Contains(lower, kw) {
			return PatternBroadcast
		}
	}
	for _, rule := range patternRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.pattern
			}
		}
	}
	if agentCount >= 5 {
		return PatternConsensusRounds
	}
	return PatternBroadcast
}

// DetectDomain extracts the task's stated domain for expertise scoring.
// Returns "" when no known domain keyword appears.
func DetectDomain(task string) string {
	lower := strings.ToLower(task)
	domains := []string{"compliance", "lending", "trading", "staking", "custody", "tax", "risk"}
	for _, d := range domains {
		if strings.Contains(lower, d) {
			return d
		}
	}
	return ""
}
