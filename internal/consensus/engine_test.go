package consensus

import (
	"context"
	"errors"
	"strings"
	"testing"

	"notary/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAgent struct {
	id  string
	dec AgentDecision
	err error
}

func (s stubAgent) ID() string { return s.id }

func (s stubAgent) Run(context.Context, string) (AgentDecision, error) {
	return s.dec, s.err
}

func testConfig() *config.Config {
	return &config.Config{
		Consensus: config.ConsensusConfig{
			Aggregation:            "majority_vote",
			RoundTimeoutSeconds:    5,
			DisagreementThreshold:  0.3,
			ConfidenceThreshold:    0.8,
			OutlierThreshold:       2.0,
			ExpertiseScoreRequired: 0.7,
			BuildVersion:           "test-1",
		},
		Compliance: config.ComplianceConfig{
			MinConfidence:     0.70,
			ProhibitedPhrases: []string{"all-in", "100%"},
		},
	}
}

func approvers() []Profile {
	return []Profile{
		{Agent: stubAgent{id: "a1", dec: AgentDecision{Decision: "approve", Confidence: 0.95}}},
		{Agent: stubAgent{id: "a2", dec: AgentDecision{Decision: "approve", Confidence: 0.90}}},
		{Agent: stubAgent{id: "a3", dec: AgentDecision{Decision: "approve", Confidence: 0.85}}},
	}
}

func TestNewEngine(t *testing.T) {
	t.Run("zero agents refused", func(t *testing.T) {
		_, err := NewEngine(testConfig(), nil)
		assert.ErrorIs(t, err, ErrNoAgents)
	})

	t.Run("missing build version fails closed", func(t *testing.T) {
		cfg := testConfig()
		cfg.Consensus.BuildVersion = ""
		_, err := NewEngine(cfg, approvers())
		assert.ErrorIs(t, err, ErrIntegrity)
	})

	t.Run("model cid frozen at construction", func(t *testing.T) {
		e1, err := NewEngine(testConfig(), approvers())
		require.NoError(t, err)
		e2, err := NewEngine(testConfig(), approvers())
		require.NoError(t, err)
		assert.Equal(t, e1.ModelCID(), e2.ModelCID())
		assert.True(t, strings.HasPrefix(e1.ModelCID(), "0x"))

		cfg := testConfig()
		cfg.Consensus.BuildVersion = "test-2"
		e3, err := NewEngine(cfg, approvers())
		require.NoError(t, err)
		assert.NotEqual(t, e1.ModelCID(), e3.ModelCID())
	})
}

func TestEngineRun(t *testing.T) {
	t.Run("unanimous approval passes", func(t *testing.T) {
		e, err := NewEngine(testConfig(), approvers())
		require.NoError(t, err)
		result, err := e.Run(context.Background(), "Rebalance the treasury into stable assets")
		require.NoError(t, err)
		assert.Equal(t, "approve", result.FinalDecision)
		assert.Equal(t, "majority_vote", result.Method)
		assert.Equal(t, CompliancePass, result.ComplianceStatus)
		assert.Len(t, result.IndividualDecisions, 3)
		assert.InDelta(t, 0.90, result.OverallConfidence, 1e-9)
	})

	t.Run("prohibited phrasing forces reject", func(t *testing.T) {
		e, err := NewEngine(testConfig(), approvers())
		require.NoError(t, err)
		result, err := e.Run(context.Background(), "Go All-In on high risk assets")
		require.NoError(t, err)
		assert.Equal(t, "reject", result.FinalDecision)
		assert.Equal(t, ComplianceFail, result.ComplianceStatus)
		assert.True(t, strings.HasPrefix(result.Method, "policy_override:"), "method was %q", result.Method)
	})

	t.Run("low confidence forces reject", func(t *testing.T) {
		profiles := []Profile{
			{Agent: stubAgent{id: "a1", dec: AgentDecision{Decision: "approve", Confidence: 0.5}}},
			{Agent: stubAgent{id: "a2", dec: AgentDecision{Decision: "approve", Confidence: 0.6}}},
		}
		e, err := NewEngine(testConfig(), profiles)
		require.NoError(t, err)
		result, err := e.Run(context.Background(), "Shift idle funds to the savings vault")
		require.NoError(t, err)
		assert.Equal(t, "reject", result.FinalDecision)
		assert.Equal(t, "policy_override: REJECTED", result.Method)
	})

	t.Run("failed agents are excluded not fatal", func(t *testing.T) {
		profiles := append(approvers(),
			Profile{Agent: stubAgent{id: "broken", err: errors.New("model unavailable")}})
		e, err := NewEngine(testConfig(), profiles)
		require.NoError(t, err)
		result, err := e.Run(context.Background(), "Rebalance the treasury into stable assets")
		require.NoError(t, err)
		assert.Equal(t, "approve", result.FinalDecision)
		assert.Len(t, result.IndividualDecisions, 3)
	})

	t.Run("all agents failing yields no predictions", func(t *testing.T) {
		profiles := []Profile{
			{Agent: stubAgent{id: "b1", err: errors.New("down")}},
			{Agent: stubAgent{id: "b2", err: errors.New("down")}},
		}
		e, err := NewEngine(testConfig(), profiles)
		require.NoError(t, err)
		_, err = e.Run(context.Background(), "Rebalance the treasury")
		assert.ErrorIs(t, err, ErrNoPredictions)
	})

	t.Run("conflicting experts resolve by deference", func(t *testing.T) {
		profiles := []Profile{
			{
				Agent:     stubAgent{id: "senior", dec: AgentDecision{Decision: "reject", Confidence: 0.75}},
				Expertise: map[string]float64{"lending": 0.95},
			},
			{
				Agent:     stubAgent{id: "junior", dec: AgentDecision{Decision: "approve", Confidence: 0.78}},
				Expertise: map[string]float64{"lending": 0.8},
			},
		}
		e, err := NewEngine(testConfig(), profiles)
		require.NoError(t, err)
		result, err := e.Run(context.Background(), "Open a new lending position on the money market")
		require.NoError(t, err)
		assert.Equal(t, "reject", result.FinalDecision, "senior expert's call wins the conflict")
	})
}

func TestSelectPattern(t *testing.T) {
	assert.Equal(t, PatternBroadcast, SelectPattern("urgent: review this trade", 3), "urgency beats keyword rules")
	assert.Equal(t, PatternPeerReview, SelectPattern("please review the proposal", 3))
	assert.Equal(t, PatternConsensusRounds, SelectPattern("rebalance holdings", 5))
	assert.Equal(t, PatternBroadcast, SelectPattern("rebalance holdings", 4))
}
