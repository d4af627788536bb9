// Package eval scores produced redesign artifacts against a fixed rubric
// and watches for quality regressions against rolling score history.
package eval

// Criterion is one weighted rubric dimension. Weights sum to 100.
type Criterion struct {
	Name   string
	Weight int
}

// Rubric is the fixed nine-criterion scoring rubric.
var Rubric = []Criterion{
	{Name: "brief_fidelity", Weight: 15},
	{Name: "style_coherence", Weight: 15},
	{Name: "spatial_feasibility", Weight: 12},
	{Name: "functionality", Weight: 12},
	{Name: "budget_alignment", Weight: 12},
	{Name: "palette_harmony", Weight: 10},
	{Name: "lighting", Weight: 10},
	{Name: "shoppability", Weight: 8},
	{Name: "presentation", Weight: 6},
}

// Tag buckets a total score. Thresholds are inclusive lower bounds.
type Tag string

const (
	TagPassExcellent Tag = "PASS:EXCELLENT"
	TagPass          Tag = "PASS"
	TagFailWeak      Tag = "FAIL:WEAK"
	TagFailPoor      Tag = "FAIL:POOR"
)

// ClassifyTotal maps a total (out of 100) to its tag.
func ClassifyTotal(total float64) Tag {
	switch {
	case total >= 85:
		return TagPassExcellent
	case total >= 70:
		return TagPass
	case total >= 50:
		return TagFailWeak
	default:
		return TagFailPoor
	}
}
