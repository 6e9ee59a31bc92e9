package triage

import "testing"

func newTestController() *WeightController {
	return NewWeightController(0.1, 0.1, 0.7, 0.05, 0.02, 20)
}

// evalSet builds labels with both classes, adaptive scores that separate
// them perfectly, and static scores that carry no signal.
func evalSet(n int) (adaptive, static []float64, labels []int) {
	adaptive = make([]float64, n)
	static = make([]float64, n)
	labels = make([]int, n)
	for i := 0; i < n; i++ {
		static[i] = 0.5
		if i%2 == 0 {
			labels[i] = 1
			adaptive[i] = 0.9
		} else {
			labels[i] = 0
			adaptive[i] = 0.1
		}
	}
	return adaptive, static, labels
}

func TestWeightSkipsSmallSets(t *testing.T) {
	wc := newTestController()
	adaptive, static, labels := evalSet(19)

	if wc.Evaluate(adaptive, static, labels) {
		t.Error("evaluation below the minimum set size must be skipped")
	}
	if wc.Weight != 0.1 {
		t.Errorf("weight moved on a skipped evaluation: %v", wc.Weight)
	}
}

func TestWeightSkipsSingleClassSets(t *testing.T) {
	wc := newTestController()
	n := 30
	adaptive := make([]float64, n)
	static := make([]float64, n)
	labels := make([]int, n) // all cleared
	for i := range adaptive {
		adaptive[i] = 0.9
		static[i] = 0.1
	}
	if wc.Evaluate(adaptive, static, labels) {
		t.Error("single-class evaluation must be skipped")
	}
}

func TestWeightRewardCappedOverManyWins(t *testing.T) {
	wc := newTestController()
	adaptive, static, labels := evalSet(40)

	for i := 0; i < 100; i++ {
		if !wc.Evaluate(adaptive, static, labels) {
			t.Fatal("evaluation should run")
		}
		if wc.Weight < 0.1 || wc.Weight > 0.7 {
			t.Fatalf("weight %v escaped [0.1, 0.7] at iteration %d", wc.Weight, i)
		}
	}
	if !closeTo(wc.Weight, 0.7) {
		t.Errorf("weight after 100 wins = %v, want cap 0.7", wc.Weight)
	}
}

func TestWeightPenaltyFlooredOverManyLosses(t *testing.T) {
	wc := newTestController()
	wc.Weight = 0.5
	// Swap roles: now the static score separates and the adaptive is flat.
	static, adaptive, labels := evalSet(40)

	for i := 0; i < 100; i++ {
		wc.Evaluate(adaptive, static, labels)
		if wc.Weight < 0.1 || wc.Weight > 0.7 {
			t.Fatalf("weight %v escaped [0.1, 0.7] at iteration %d", wc.Weight, i)
		}
	}
	if !closeTo(wc.Weight, 0.1) {
		t.Errorf("weight after 100 losses = %v, want floor 0.1", wc.Weight)
	}
}

func TestWeightAsymmetricSteps(t *testing.T) {
	wc := newTestController()
	adaptive, static, labels := evalSet(20)

	wc.Evaluate(adaptive, static, labels)
	if !closeTo(wc.Weight, 0.15) {
		t.Errorf("weight after one win = %v, want 0.15", wc.Weight)
	}

	wc.Evaluate(static, adaptive, labels)
	if !closeTo(wc.Weight, 0.13) {
		t.Errorf("weight after one loss = %v, want 0.13", wc.Weight)
	}
}

func TestROCAUCPerfectSeparation(t *testing.T) {
	scores := []float64{0.9, 0.1, 0.8, 0.2, 0.95, 0.05}
	labels := []int{1, 0, 1, 0, 1, 0}
	if got := rocAUC(scores, labels); !closeTo(got, 1.0) {
		t.Errorf("perfectly separated AUC = %v, want 1.0", got)
	}

	inverted := []float64{0.1, 0.9, 0.2, 0.8, 0.05, 0.95}
	if got := rocAUC(inverted, labels); got >= 0.5 {
		t.Errorf("anti-correlated AUC = %v, want < 0.5", got)
	}
}
