package consensus

import "encoding/json"

// Prediction is one agent's answer for one task. Immutable once produced.
type Prediction struct {
	AgentID    string  `json:"agent_id"`
	Value      Value   `json:"value"`
	Confidence float64 `json:"confidence"` // clamped to [0,1]
}

// AgentDecision is the raw shape returned across the agent boundary.
type AgentDecision struct {
	AgentID       string  `json:"agent_id"`
	Decision      string  `json:"decision"`
	Justification string  `json:"justification"`
	Confidence    float64 `json:"confidence"`
	RiskScore     float64 `json:"risk_score"`
}

// ComplianceStatus values on a ConsensusResult.
const (
	CompliancePass = "PASS"
	ComplianceFail = "FAIL"
)

// ConsensusResult is the terminal output of one engine run.
type ConsensusResult struct {
	FinalDecision       string          `json:"final_decision"`
	IndividualDecisions []AgentDecision `json:"individual_decisions"`
	Method              string          `json:"method"`
	ModelCID            string          `json:"model_cid"`
	ComplianceStatus    string          `json:"compliance_status"`
	OverallConfidence   float64         `json:"overall_confidence"`
	Trace               Trace           `json:"xai_trace,omitempty"`
}

// Trace is the explainability payload: string keys over a closed set of
// value variants (string, number, nested map).
type Trace map[string]TraceValue

type TraceValueKind int

const (
	TraceString TraceValueKind = iota
	TraceNumber
	TraceMap
)

type TraceValue struct {
	Kind TraceValueKind
	Str  string
	Num  float64
	Map  Trace
}

func TraceStr(s string) TraceValue  { return TraceValue{Kind: TraceString, Str: s} }
func TraceNum(f float64) TraceValue { return TraceValue{Kind: TraceNumber, Num: f} }
func TraceSub(t Trace) TraceValue   { return TraceValue{Kind: TraceMap, Map: t} }

// MarshalJSON renders the variant directly so traces serialize as plain JSON.
func (tv TraceValue) MarshalJSON() ([]byte, error) {
	switch tv.Kind {
	case TraceNumber:
		return json.Marshal(tv.Num)
	case TraceMap:
		return json.Marshal(tv.Map)
	default:
		return json.Marshal(tv.Str)
	}
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
