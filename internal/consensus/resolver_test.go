package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeightedVotingResolver(t *testing.T) {
	tctx := TaskContext{TaskID: "t1"}

	t.Run("highest weighted score wins", func(t *testing.T) {
		r := WeightedVotingResolver{Weights: map[string]float64{"a": 3}}
		c := Conflict{Type: ValueDisagreement, Predictions: []Prediction{
			{AgentID: "a", Value: StringValue("yes"), Confidence: 0.5},
			{AgentID: "b", Value: StringValue("no"), Confidence: 0.9},
			{AgentID: "c", Value: StringValue("no"), Confidence: 0.4},
		}}
		res, err := r.Resolve(c, tctx)
		require.NoError(t, err)
		assert.Equal(t, "yes", res.Resolved.Value.String(), "weight 3 x 0.5 beats 0.9 + 0.4")
		assert.Equal(t, "consensus_weighted_voting", res.Resolved.AgentID)
		assert.Equal(t, "weighted_voting", res.Method)
	})

	t.Run("confidence capped at 0.9 of group mean", func(t *testing.T) {
		r := WeightedVotingResolver{}
		c := Conflict{Type: ValueDisagreement, Predictions: []Prediction{
			{AgentID: "a", Value: StringValue("yes"), Confidence: 0.8},
			{AgentID: "b", Value: StringValue("no"), Confidence: 0.1},
		}}
		res, err := r.Resolve(c, tctx)
		require.NoError(t, err)
		assert.InDelta(t, 0.72, res.Resolved.Confidence, 1e-9)
		assert.InDelta(t, -0.08, res.ConfidenceAdjustment, 1e-9)
	})

	t.Run("score ties break by insertion order", func(t *testing.T) {
		r := WeightedVotingResolver{Weights: map[string]float64{"a": 2}}
		c := Conflict{Type: ValueDisagreement, Predictions: []Prediction{
			{AgentID: "a", Value: StringValue("yes"), Confidence: 0.8},
			{AgentID: "b", Value: StringValue("no"), Confidence: 0.9},
			{AgentID: "c", Value: StringValue("no"), Confidence: 0.7},
		}}
		res, err := r.Resolve(c, tctx)
		require.NoError(t, err)
		assert.Equal(t, "yes", res.Resolved.Value.String())
	})

	t.Run("empty conflict errors", func(t *testing.T) {
		_, err := WeightedVotingResolver{}.Resolve(Conflict{}, tctx)
		assert.Error(t, err)
	})
}

func TestExpertiseBasedResolver(t *testing.T) {
	preds := []Prediction{
		{AgentID: "novice", Value: StringValue("buy"), Confidence: 0.95},
		{AgentID: "expert", Value: StringValue("hold"), Confidence: 0.6},
	}

	t.Run("defers to the strongest domain expert", func(t *testing.T) {
		tctx := TaskContext{
			TaskID: "t1",
			Domain: "trading",
			Expertise: map[string]map[string]float64{
				"novice": {"trading": 0.2},
				"expert": {"trading": 0.95},
			},
		}
		res, err := ExpertiseBasedResolver{}.Resolve(Conflict{Type: ExpertiseConflict, Predictions: preds}, tctx)
		require.NoError(t, err)
		assert.Equal(t, "hold", res.Resolved.Value.String())
		assert.Equal(t, "expertise_deference", res.Method)
	})

	t.Run("falls back to highest confidence without expertise data", func(t *testing.T) {
		tctx := TaskContext{TaskID: "t1", Domain: "trading"}
		res, err := ExpertiseBasedResolver{}.Resolve(Conflict{Type: ExpertiseConflict, Predictions: preds}, tctx)
		require.NoError(t, err)
		assert.Equal(t, "buy", res.Resolved.Value.String())
	})
}

func TestHybridResolver(t *testing.T) {
	tctx := TaskContext{TaskID: "t1"}
	c := Conflict{Type: ValueDisagreement, Predictions: []Prediction{
		{AgentID: "a", Value: StringValue("yes"), Confidence: 0.8},
		{AgentID: "b", Value: StringValue("no"), Confidence: 0.3},
	}}

	t.Run("annotates the delegated resolver", func(t *testing.T) {
		h := HybridResolver{
			Resolvers: []Resolver{WeightedVotingResolver{}},
			Fallback:  WeightedVotingResolver{},
		}
		res, err := h.Resolve(c, tctx)
		require.NoError(t, err)
		assert.Equal(t, "hybrid:weighted_voting", res.Method)
	})

	t.Run("falls back when nothing can handle", func(t *testing.T) {
		h := HybridResolver{
			Resolvers: []Resolver{ExpertiseBasedResolver{}},
			Fallback:  WeightedVotingResolver{},
		}
		res, err := h.Resolve(c, tctx)
		require.NoError(t, err)
		assert.Equal(t, "hybrid:weighted_voting", res.Method)
	})
}
