package consensus

import "fmt"

// Strategy combines a set of predictions into one value. Pure functions;
// callers own confidence bookkeeping.
type Strategy interface {
	Name() string
	Aggregate(preds []Prediction) (Value, error)
}

// NewStrategy resolves a configured strategy name.
func NewStrategy(name string) (Strategy, error) {
	switch name {
	case "majority_vote", "":
		return MajorityVote{}, nil
	case "top_confidence":
		return TopConfidence{}, nil
	case "weighted_average":
		return WeightedAverage{}, nil
	default:
		return nil, fmt.Errorf("unknown aggregation strategy: %s", name)
	}
}

// MajorityVote picks the most voted value. Ties break by first-seen
// insertion order among the tied values, keeping output deterministic for
// identical inputs.
type MajorityVote struct{}

func (MajorityVote) Name() string { return "majority_vote" }

func (MajorityVote) Aggregate(preds []Prediction) (Value, error) {
	if len(preds) == 0 {
		return Value{}, ErrNoPredictions
	}
	counts := map[string]int{}
	firstSeen := map[string]int{}
	values := map[string]Value{}
	for i, p := range preds {
		key := p.Value.Key()
		if _, ok := firstSeen[key]; !ok {
			firstSeen[key] = i
			values[key] = p.Value
		}
		counts[key]++
	}
	bestKey := ""
	for key, n := range counts {
		if bestKey == "" {
			bestKey = key
			continue
		}
		if n > counts[bestKey] || (n == counts[bestKey] && firstSeen[key] < firstSeen[bestKey]) {
			bestKey = key
		}
	}
	return values[bestKey], nil
}

// TopConfidence returns the single most confident prediction's value,
// earlier predictions winning confidence ties.
type TopConfidence struct{}

func (TopConfidence) Name() string { return "top_confidence" }

func (TopConfidence) Aggregate(preds []Prediction) (Value, error) {
	if len(preds) == 0 {
		return Value{}, ErrNoPredictions
	}
	best := preds[0]
	for _, p := range preds[1:] {
		if p.Confidence > best.Confidence {
			best = p
		}
	}
	return best.Value, nil
}

// WeightedAverage averages numeric predictions weighted by confidence.
// A set whose confidences sum to zero falls back to the unweighted mean
// instead of dividing by zero. Non-numeric sets fall back to majority vote.
type WeightedAverage struct{}

func (WeightedAverage) Name() string { return "weighted_average" }

func (WeightedAverage) Aggregate(preds []Prediction) (Value, error) {
	if len(preds) == 0 {
		return Value{}, ErrNoPredictions
	}
	var sum, weightSum float64
	var numeric []Prediction
	for _, p := range preds {
		if !p.Value.IsNumber() {
			continue
		}
		numeric = append(numeric, p)
		sum += p.Value.Num * p.Confidence
		weightSum += p.Confidence
	}
	if len(numeric) == 0 {
		return MajorityVote{}.Aggregate(preds)
	}
	if weightSum == 0 {
		plain := 0.0
		for _, p := range numeric {
			plain += p.Value.Num
		}
		return NumberValue(plain / float64(len(numeric))), nil
	}
	return NumberValue(sum / weightSum), nil
}

func meanConfidence(preds []Prediction) float64 {
	if len(preds) == 0 {
		return 0
	}
	total := 0.0
	for _, p := range preds {
		total += p.Confidence
	}
	return total / float64(len(preds))
}
