package triage

import (
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// WeightController governs how much of the blended score the adaptive
// classifier owns. The weight only moves when a labeled evaluation set shows
// the adaptive model beating or losing to the static blend, and it moves
// asymmetrically: slow to trust, quick to regain caution.
type WeightController struct {
	Weight   float64
	Floor    float64
	Cap      float64
	StepUp   float64
	StepDown float64
	MinEval  int
}

// NewWeightController returns a controller starting at the given weight.
func NewWeightController(initial, floor, cap, stepUp, stepDown float64, minEval int) *WeightController {
	return &WeightController{
		Weight:   initial,
		Floor:    floor,
		Cap:      cap,
		StepUp:   stepUp,
		StepDown: stepDown,
		MinEval:  minEval,
	}
}

// Evaluate compares adaptive and static scores against analyst labels and
// nudges the weight accordingly. Sets smaller than MinEval, or with only one
// label class, leave the weight untouched. Returns true when the weight moved.
func (wc *WeightController) Evaluate(adaptiveScores, staticScores []float64, labels []int) bool {
	if len(labels) < wc.MinEval || len(adaptiveScores) != len(labels) || len(staticScores) != len(labels) {
		return false
	}
	if !hasBothClasses(labels) {
		return false
	}

	adaptiveAUC := rocAUC(adaptiveScores, labels)
	staticAUC := rocAUC(staticScores, labels)

	if adaptiveAUC > staticAUC {
		wc.Weight += wc.StepUp
		if wc.Weight > wc.Cap {
			wc.Weight = wc.Cap
		}
	} else {
		wc.Weight -= wc.StepDown
		if wc.Weight < wc.Floor {
			wc.Weight = wc.Floor
		}
	}
	return true
}

// rocAUC computes the area under the ROC curve for scores against binary
// labels. Scores are sorted ascending with their classes kept aligned, as
// stat.ROC requires.
func rocAUC(scores []float64, labels []int) float64 {
	y := make([]float64, len(scores))
	copy(y, scores)
	classes := make([]bool, len(labels))
	for i, l := range labels {
		classes[i] = l == 1
	}
	stat.SortWeightedLabeled(y, classes, nil)

	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr)
}

func hasBothClasses(labels []int) bool {
	pos := false
	neg := false
	for _, l := range labels {
		if l == 1 {
			pos = true
		} else {
			neg = true
		}
	}
	return pos && neg
}
