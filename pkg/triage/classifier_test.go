package triage

import (
	"errors"
	"testing"
)

// separableSet builds n labeled rows where positives live at (1,0) and
// negatives at (0,1), plus small per-row jitter.
func separableSet(n int) ([][]float64, []int) {
	rows := make([][]float64, n)
	labels := make([]int, n)
	for i := 0; i < n; i++ {
		jitter := float64(i%5) * 0.01
		if i%2 == 0 {
			rows[i] = []float64{1 + jitter, jitter}
			labels[i] = 1
		} else {
			rows[i] = []float64{jitter, 1 + jitter}
			labels[i] = 0
		}
	}
	return rows, labels
}

func TestClassifierTrainedTransitionOneWay(t *testing.T) {
	c := NewAdaptiveClassifier()
	if c.Trained() {
		t.Fatal("new classifier must start untrained")
	}

	rows, labels := separableSet(20)
	if err := c.Fit(rows, labels); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if !c.Trained() {
		t.Fatal("classifier must be trained after first Fit")
	}

	// A second Fit refines, it never resets.
	if err := c.Fit(rows, labels); err != nil {
		t.Fatalf("second Fit: %v", err)
	}
	if !c.Trained() {
		t.Fatal("classifier must stay trained")
	}
	if c.Samples() != 40 {
		t.Errorf("samples = %d, want 40", c.Samples())
	}
}

func TestClassifierPartialFitRequiresTraining(t *testing.T) {
	c := NewAdaptiveClassifier()
	rows, labels := separableSet(10)
	if err := c.PartialFit(rows, labels); !errors.Is(err, ErrNotTrained) {
		t.Fatalf("PartialFit before Fit: err = %v, want ErrNotTrained", err)
	}
	if _, err := c.Probability(rows[0]); !errors.Is(err, ErrNotTrained) {
		t.Fatalf("Probability before Fit: err = %v, want ErrNotTrained", err)
	}
}

func TestClassifierSeparatesClasses(t *testing.T) {
	c := NewAdaptiveClassifier()
	rows, labels := separableSet(40)
	if err := c.Fit(rows, labels); err != nil {
		t.Fatalf("Fit: %v", err)
	}

	pPos, err := c.Probability([]float64{1, 0})
	if err != nil {
		t.Fatalf("Probability: %v", err)
	}
	pNeg, err := c.Probability([]float64{0, 1})
	if err != nil {
		t.Fatalf("Probability: %v", err)
	}
	if pPos <= pNeg {
		t.Errorf("positive prototype should score higher: %v <= %v", pPos, pNeg)
	}
}

func TestClassifierPartialFitContinuity(t *testing.T) {
	c := NewAdaptiveClassifier()
	rows, labels := separableSet(20)
	if err := c.Fit(rows, labels); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	before, _ := c.Probability([]float64{1, 0})

	more, moreLabels := separableSet(20)
	if err := c.PartialFit(more, moreLabels); err != nil {
		t.Fatalf("PartialFit: %v", err)
	}
	after, _ := c.Probability([]float64{1, 0})
	negAfter, _ := c.Probability([]float64{0, 1})

	if after <= negAfter {
		t.Errorf("class separation lost after PartialFit: %v <= %v", after, negAfter)
	}
	if after < before-0.05 {
		t.Errorf("consistent data should not weaken the positive prototype: %v -> %v", before, after)
	}
	if c.Samples() != 40 {
		t.Errorf("samples = %d, want 40", c.Samples())
	}
}

func TestClassifierDimensionMismatch(t *testing.T) {
	c := NewAdaptiveClassifier()
	rows, labels := separableSet(10)
	if err := c.Fit(rows, labels); err != nil {
		t.Fatalf("Fit: %v", err)
	}

	if _, err := c.Probability([]float64{1, 2, 3}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("wide vector: err = %v, want ErrDimensionMismatch", err)
	}
	if err := c.PartialFit([][]float64{{1}}, []int{1}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("narrow rows: err = %v, want ErrDimensionMismatch", err)
	}
}

func TestClassifierStateRoundTrip(t *testing.T) {
	c := NewAdaptiveClassifier()
	rows, labels := separableSet(20)
	if err := c.Fit(rows, labels); err != nil {
		t.Fatalf("Fit: %v", err)
	}

	restored := RestoreClassifier(c.State())
	if !restored.Trained() {
		t.Fatal("restored classifier must keep trained flag")
	}
	orig, _ := c.Probability([]float64{1, 0})
	copy, err := restored.Probability([]float64{1, 0})
	if err != nil {
		t.Fatalf("restored Probability: %v", err)
	}
	if !closeTo(orig, copy) {
		t.Errorf("restored prediction %v differs from original %v", copy, orig)
	}
}

func TestClassifierStateCloneIsolated(t *testing.T) {
	c := NewAdaptiveClassifier()
	rows, labels := separableSet(20)
	if err := c.Fit(rows, labels); err != nil {
		t.Fatalf("Fit: %v", err)
	}

	state := c.State()
	clone := RestoreClassifier(state)
	if err := clone.PartialFit(rows, labels); err != nil {
		t.Fatalf("PartialFit on clone: %v", err)
	}

	if clone.Samples() == c.Samples() {
		t.Error("training the clone must not advance the original's sample count")
	}
	a, _ := c.Probability([]float64{1, 0})
	b, _ := RestoreClassifier(c.State()).Probability([]float64{1, 0})
	if !closeTo(a, b) {
		t.Error("original state must be unchanged by clone training")
	}
}
