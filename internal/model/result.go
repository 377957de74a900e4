package model

import "math"

// SeverityMax is the top of the canonical 0-10 severity scale.
const SeverityMax = 10.0

// StrictPenalty is added to measured severity when strict mode is on.
const StrictPenalty = 2.0

// Result is the output of one classification. Severity is on the 0-10 scale.
type Result struct {
	Severity      float64  `json:"severity"`
	IsProblematic bool     `json:"isProblematic"`
	Confidence    float64  `json:"confidence"`
	Reasons       []string `json:"reasons"`
	Classifier    string   `json:"classifier,omitempty"`
}

// EffectiveSeverity applies the strict-mode penalty and clamps to the scale.
func EffectiveSeverity(severity float64, strict bool) float64 {
	if strict {
		severity += StrictPenalty
	}
	return ClampSeverity(severity)
}

func ClampSeverity(s float64) float64 {
	return math.Max(0, math.Min(SeverityMax, s))
}

// Verdict reports whether severity crosses threshold once strict mode is applied.
func Verdict(severity, threshold float64, strict bool) (effective float64, problematic bool) {
	effective = EffectiveSeverity(severity, strict)
	return effective, effective > threshold
}
