package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultDetector() StatisticalDetector {
	return StatisticalDetector{
		DisagreementThreshold: 0.3,
		ConfidenceThreshold:   0.8,
		OutlierThreshold:      2.0,
	}
}

func numPreds(vals ...float64) []Prediction {
	out := make([]Prediction, 0, len(vals))
	for i, v := range vals {
		out = append(out, Prediction{
			AgentID:    string(rune('a' + i)),
			Value:      NumberValue(v),
			Confidence: 0.5,
		})
	}
	return out
}

func TestStatisticalDetectorValueDisagreement(t *testing.T) {
	tctx := TaskContext{TaskID: "t1"}

	t.Run("low variation stays quiet", func(t *testing.T) {
		conflicts := defaultDetector().Detect(numPreds(100, 150), tctx)
		for _, c := range conflicts {
			assert.NotEqual(t, ValueDisagreement, c.Type)
		}
	})

	t.Run("medium severity above threshold", func(t *testing.T) {
		conflicts := defaultDetector().Detect(numPreds(100, 200), tctx)
		require.Len(t, conflicts, 1)
		assert.Equal(t, ValueDisagreement, conflicts[0].Type)
		assert.Equal(t, SeverityMedium, conflicts[0].Severity)
	})

	t.Run("critical severity for extreme spread", func(t *testing.T) {
		conflicts := defaultDetector().Detect(numPreds(10, 200), tctx)
		require.Len(t, conflicts, 1)
		assert.Equal(t, SeverityCritical, conflicts[0].Severity)
	})

	t.Run("single prediction never conflicts", func(t *testing.T) {
		assert.Empty(t, defaultDetector().Detect(numPreds(100), tctx))
	})
}

func TestStatisticalDetectorConfidenceMismatch(t *testing.T) {
	tctx := TaskContext{TaskID: "t1"}
	preds := []Prediction{
		{AgentID: "a", Value: StringValue("yes"), Confidence: 0.9},
		{AgentID: "b", Value: StringValue("no"), Confidence: 0.85},
	}
	conflicts := defaultDetector().Detect(preds, tctx)
	require.Len(t, conflicts, 1)
	assert.Equal(t, ConfidenceMismatch, conflicts[0].Type)
	assert.Equal(t, SeverityHigh, conflicts[0].Severity)

	t.Run("agreeing confident agents stay quiet", func(t *testing.T) {
		agree := []Prediction{
			{AgentID: "a", Value: StringValue("yes"), Confidence: 0.95},
			{AgentID: "b", Value: StringValue("yes"), Confidence: 0.9},
		}
		assert.Empty(t, defaultDetector().Detect(agree, tctx))
	})
}

func TestStatisticalDetectorOutliers(t *testing.T) {
	tctx := TaskContext{TaskID: "t1"}

	t.Run("needs at least three numeric predictions", func(t *testing.T) {
		conflicts := defaultDetector().Detect(numPreds(0, 1000), tctx)
		for _, c := range conflicts {
			assert.NotEqual(t, OutlierDetection, c.Type)
		}
	})

	t.Run("flags the outlier", func(t *testing.T) {
		conflicts := defaultDetector().Detect(numPreds(10, 10, 10, 10, 10, 300), tctx)
		var outliers []Conflict
		for _, c := range conflicts {
			if c.Type == OutlierDetection {
				outliers = append(outliers, c)
			}
		}
		require.Len(t, outliers, 1)
		require.Len(t, outliers[0].Predictions, 1)
		assert.Equal(t, 300.0, outliers[0].Predictions[0].Value.Num)
	})

	t.Run("zero stdev suppresses detection", func(t *testing.T) {
		assert.Empty(t, defaultDetector().Detect(numPreds(5, 5, 5), tctx))
	})
}

func TestDomainDetector(t *testing.T) {
	tctx := TaskContext{
		TaskID: "t1",
		Domain: "lending",
		Expertise: map[string]map[string]float64{
			"a": {"lending": 0.9},
			"b": {"lending": 0.85},
			"c": {"lending": 0.2},
		},
	}
	det := DomainDetector{ScoreRequired: 0.7}

	t.Run("experts disagreeing", func(t *testing.T) {
		preds := []Prediction{
			{AgentID: "a", Value: StringValue("approve"), Confidence: 0.6},
			{AgentID: "b", Value: StringValue("reject"), Confidence: 0.6},
			{AgentID: "c", Value: StringValue("approve"), Confidence: 0.6},
		}
		conflicts := det.Detect(preds, tctx)
		require.Len(t, conflicts, 1)
		assert.Equal(t, ExpertiseConflict, conflicts[0].Type)
		assert.Len(t, conflicts[0].Predictions, 2, "only qualified experts participate")
	})

	t.Run("one expert is never a conflict", func(t *testing.T) {
		preds := []Prediction{
			{AgentID: "a", Value: StringValue("approve"), Confidence: 0.6},
			{AgentID: "c", Value: StringValue("reject"), Confidence: 0.6},
		}
		assert.Empty(t, det.Detect(preds, tctx))
	})

	t.Run("no domain means no conflict", func(t *testing.T) {
		preds := []Prediction{
			{AgentID: "a", Value: StringValue("approve"), Confidence: 0.6},
			{AgentID: "b", Value: StringValue("reject"), Confidence: 0.6},
		}
		assert.Empty(t, det.Detect(preds, TaskContext{TaskID: "t1"}))
	})
}
