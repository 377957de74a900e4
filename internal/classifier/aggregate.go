package classifier

import (
	"fmt"
	"math"
	"sort"
)

// Prediction is one category probability reported by a model.
type Prediction struct {
	Class       string  `json:"className"`
	Probability float64 `json:"probability"`
}

// CategoryWeights maps model categories to their contribution to the
// weighted score. Unlisted categories weigh UnknownWeight.
var CategoryWeights = map[string]float64{
	"Porn":    1.0,
	"Hentai":  0.9,
	"Sexy":    0.6,
	"Drawing": 0.3,
	"Neutral": 0.0,
}

const (
	UnknownWeight = 0.5
	// reasonFloor is the probability above which a category is reported.
	reasonFloor = 0.1
)

// WeightedScore sums probability*weight over preds, capped at 1.
func WeightedScore(preds []Prediction) float64 {
	total := 0.0
	for _, p := range preds {
		w, ok := CategoryWeights[p.Class]
		if !ok {
			w = UnknownWeight
		}
		total += p.Probability * w
	}
	return math.Max(0, math.Min(1, total))
}

// ScoreToSeverity converts a 0-1 weighted score to the 0-10 scale.
func ScoreToSeverity(score float64) float64 {
	return math.Round(score * 10)
}

// TopConfidence is the highest category probability.
func TopConfidence(preds []Prediction) float64 {
	top := 0.0
	for _, p := range preds {
		top = math.Max(top, p.Probability)
	}
	return math.Min(1, top)
}

// PredictionReasons lists significant categories, most probable first,
// formatted like "Porn: 20.0%".
func PredictionReasons(preds []Prediction) []string {
	sig := make([]Prediction, 0, len(preds))
	for _, p := range preds {
		if p.Probability > reasonFloor {
			sig = append(sig, p)
		}
	}
	sort.SliceStable(sig, func(i, j int) bool { return sig[i].Probability > sig[j].Probability })
	out := make([]string, 0, len(sig))
	for _, p := range sig {
		out = append(out, fmt.Sprintf("%s: %.1f%%", p.Class, p.Probability*100))
	}
	return out
}
