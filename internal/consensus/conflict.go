package consensus

import (
	"fmt"
	"math"
)

type ConflictType string

const (
	ValueDisagreement     ConflictType = "value_disagreement"
	ConfidenceMismatch    ConflictType = "confidence_mismatch"
	OutlierDetection      ConflictType = "outlier"
	ExpertiseConflict     ConflictType = "expertise_conflict"
	TemporalInconsistency ConflictType = "temporal_inconsistency"
	SystematicBias        ConflictType = "systematic_bias"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Conflict describes one detected disagreement. Created by a detector,
// consumed by exactly one resolver, never mutated after creation.
type Conflict struct {
	TaskID      string
	Type        ConflictType
	Severity    Severity
	Predictions []Prediction
	Metadata    Trace
}

// Detector analyzes a prediction set for one class of disagreement.
// Detectors run as an ordered list and their conflicts are merged.
type Detector interface {
	Name() string
	Detect(preds []Prediction, tctx TaskContext) []Conflict
}

// StatisticalDetector flags value disagreement (coefficient of variation),
// confident-but-contradictory pairs, and numeric outliers.
type StatisticalDetector struct {
	DisagreementThreshold float64 // default 0.3
	ConfidenceThreshold   float64 // default 0.8
	OutlierThreshold      float64 // default 2.0 (z-score)
}

func (StatisticalDetector) Name() string { return "statistical" }

func (d StatisticalDetector) Detect(preds []Prediction, tctx TaskContext) []Conflict {
	if len(preds) < 2 {
		return nil
	}
	var out []Conflict
	numeric := numericPredictions(preds)
	if c, ok := d.detectValueDisagreement(numeric, tctx); ok {
		out = append(out, c)
	}
	if c, ok := d.detectConfidenceMismatch(preds, tctx); ok {
		out = append(out, c)
	}
	out = append(out, d.detectOutliers(numeric, tctx)...)
	return out
}

func (d StatisticalDetector) detectValueDisagreement(numeric []Prediction, tctx TaskContext) (Conflict, bool) {
	if len(numeric) < 2 || distinctValues(numeric) < 2 {
		return Conflict{}, false
	}
	mean, sample := sampleStats(numeric)
	cv := sample / math.Max(math.Abs(mean), 1)
	if cv <= d.DisagreementThreshold {
		return Conflict{}, false
	}
	return Conflict{
		TaskID:      tctx.TaskID,
		Type:        ValueDisagreement,
		Severity:    disagreementSeverity(cv),
		Predictions: append([]Prediction(nil), numeric...),
		Metadata: Trace{
			"coefficient_of_variation": TraceNum(cv),
			"mean":                     TraceNum(mean),
			"stdev":                    TraceNum(sample),
		},
	}, true
}

func (d StatisticalDetector) detectConfidenceMismatch(preds []Prediction, tctx TaskContext) (Conflict, bool) {
	var confident []Prediction
	for _, p := range preds {
		if p.Confidence > d.ConfidenceThreshold {
			confident = append(confident, p)
		}
	}
	if len(confident) < 2 || distinctValues(confident) < 2 {
		return Conflict{}, false
	}
	return Conflict{
		TaskID:      tctx.TaskID,
		Type:        ConfidenceMismatch,
		Severity:    SeverityHigh,
		Predictions: confident,
		Metadata: Trace{
			"confidence_threshold": TraceNum(d.ConfidenceThreshold),
		},
	}, true
}

// detectOutliers needs at least three numeric predictions for population
// statistics; a zero standard deviation leaves z-scores undefined and
// suppresses detection entirely.
func (d StatisticalDetector) detectOutliers(numeric []Prediction, tctx TaskContext) []Conflict {
	if len(numeric) < 3 {
		return nil
	}
	mean, stdev := populationStats(numeric)
	if stdev == 0 {
		return nil
	}
	var out []Conflict
	for _, p := range numeric {
		z := math.Abs(p.Value.Num-mean) / stdev
		if z <= d.OutlierThreshold {
			continue
		}
		out = append(out, Conflict{
			TaskID:      tctx.TaskID,
			Type:        OutlierDetection,
			Severity:    SeverityMedium,
			Predictions: []Prediction{p},
			Metadata: Trace{
				"z_score": TraceNum(z),
				"agent":   TraceStr(p.AgentID),
			},
		})
	}
	return out
}

func disagreementSeverity(cv float64) Severity {
	switch {
	case cv > 0.8:
		return SeverityCritical
	case cv > 0.5:
		return SeverityHigh
	case cv > 0.3:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// DomainDetector flags disagreement between agents both qualified in the
// task's stated domain. Two experts who disagree is a different problem
// than one expert versus noise.
type DomainDetector struct {
	ScoreRequired float64 // default 0.7
}

func (DomainDetector) Name() string { return "domain" }

func (d DomainDetector) Detect(preds []Prediction, tctx TaskContext) []Conflict {
	if len(preds) < 2 || tctx.Domain == "" {
		return nil
	}
	var experts []Prediction
	for _, p := range preds {
		if tctx.expertiseScore(p.AgentID) > d.ScoreRequired {
			experts = append(experts, p)
		}
	}
	if len(experts) < 2 || distinctValues(experts) < 2 {
		return nil
	}
	return []Conflict{{
		TaskID:      tctx.TaskID,
		Type:        ExpertiseConflict,
		Severity:    SeverityHigh,
		Predictions: experts,
		Metadata: Trace{
			"domain":         TraceStr(tctx.Domain),
			"score_required": TraceNum(d.ScoreRequired),
		},
	}}
}

func numericPredictions(preds []Prediction) []Prediction {
	var out []Prediction
	for _, p := range preds {
		if p.Value.IsNumber() {
			out = append(out, p)
		}
	}
	return out
}

func distinctValues(preds []Prediction) int {
	seen := map[string]struct{}{}
	for _, p := range preds {
		seen[p.Value.Key()] = struct{}{}
	}
	return len(seen)
}

// sampleStats returns mean and sample standard deviation (n-1 denominator).
func sampleStats(preds []Prediction) (mean, stdev float64) {
	n := float64(len(preds))
	for _, p := range preds {
		mean += p.Value.Num
	}
	mean /= n
	if len(preds) < 2 {
		return mean, 0
	}
	var ss float64
	for _, p := range preds {
		d := p.Value.Num - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / (n - 1))
}

// populationStats returns mean and population standard deviation.
func populationStats(preds []Prediction) (mean, stdev float64) {
	n := float64(len(preds))
	for _, p := range preds {
		mean += p.Value.Num
	}
	mean /= n
	var ss float64
	for _, p := range preds {
		d := p.Value.Num - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / n)
}

func (c Conflict) describe() string {
	return fmt.Sprintf("%s/%s over %d prediction(s)", c.Type, c.Severity, len(c.Predictions))
}
