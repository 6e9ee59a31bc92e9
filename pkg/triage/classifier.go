package triage

import (
	"errors"
	"math"
	"math/rand"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	learningRate = 0.01
	fitEpochs    = 5
)

// ErrDimensionMismatch is returned when a feature vector does not match the
// width the classifier was trained on.
var ErrDimensionMismatch = errors.New("triage: feature dimension mismatch")

// ErrNotTrained is returned when predictions are requested before the first
// successful fit.
var ErrNotTrained = errors.New("triage: classifier not trained")

// ClassifierState is the serializable core of an adaptive classifier:
// everything needed to restore predictions and continue incremental training.
type ClassifierState struct {
	Weights       []float64
	Bias          float64
	Trained       bool
	Samples       int
	SchemaVersion int
}

// Clone deep-copies the state so incremental training never mutates a
// published model.
func (s *ClassifierState) Clone() *ClassifierState {
	cp := *s
	cp.Weights = make([]float64, len(s.Weights))
	copy(cp.Weights, s.Weights)
	return &cp
}

// AdaptiveClassifier is a logistic model trained by stochastic gradient
// descent on log loss. The first batch of analyst decisions fits it from
// scratch; every later batch refines the existing weights, so the model
// never forgets earlier sessions.
type AdaptiveClassifier struct {
	mu    sync.RWMutex
	state *ClassifierState
}

// NewAdaptiveClassifier returns an untrained classifier for the current
// feature schema.
func NewAdaptiveClassifier() *AdaptiveClassifier {
	return &AdaptiveClassifier{
		state: &ClassifierState{SchemaVersion: FeatureSchemaVersion},
	}
}

// RestoreClassifier rebuilds a classifier from persisted state.
func RestoreClassifier(state *ClassifierState) *AdaptiveClassifier {
	return &AdaptiveClassifier{state: state.Clone()}
}

// Trained reports whether the classifier has been fit at least once.
func (c *AdaptiveClassifier) Trained() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Trained
}

// Samples returns the cumulative number of labeled rows seen.
func (c *AdaptiveClassifier) Samples() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Samples
}

// State returns a deep copy of the current state for persistence.
func (c *AdaptiveClassifier) State() *ClassifierState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Clone()
}

// Fit performs the initial training pass. Calling it on an already-trained
// classifier is equivalent to PartialFit: the transition from untrained to
// trained happens exactly once.
func (c *AdaptiveClassifier) Fit(rows [][]float64, labels []int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Trained {
		return c.sgd(rows, labels, 1)
	}
	if len(rows) == 0 {
		return errors.New("triage: fit requires at least one row")
	}
	c.state.Weights = make([]float64, len(rows[0]))
	c.state.Bias = 0
	if err := c.sgd(rows, labels, fitEpochs); err != nil {
		return err
	}
	c.state.Trained = true
	return nil
}

// PartialFit refines an already-trained classifier with one pass over the
// new rows.
func (c *AdaptiveClassifier) PartialFit(rows [][]float64, labels []int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.Trained {
		return ErrNotTrained
	}
	return c.sgd(rows, labels, 1)
}

// sgd runs epochs of per-row gradient steps. Caller holds the lock.
func (c *AdaptiveClassifier) sgd(rows [][]float64, labels []int, epochs int) error {
	if len(rows) != len(labels) {
		return errors.New("triage: rows and labels length mismatch")
	}
	for _, row := range rows {
		if len(row) != len(c.state.Weights) {
			return ErrDimensionMismatch
		}
	}

	w := mat.NewVecDense(len(c.state.Weights), c.state.Weights)
	order := make([]int, len(rows))
	for i := range order {
		order[i] = i
	}
	rng := rand.New(rand.NewSource(int64(c.state.Samples) + 1))

	for e := 0; e < epochs; e++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		for _, i := range order {
			x := mat.NewVecDense(len(rows[i]), rows[i])
			p := sigmoid(mat.Dot(w, x) + c.state.Bias)
			grad := p - float64(labels[i])
			floats.AddScaled(c.state.Weights, -learningRate*grad, rows[i])
			c.state.Bias -= learningRate * grad
		}
	}
	c.state.Samples += len(rows)
	return nil
}

// Probability returns P(escalate) for one feature vector.
func (c *AdaptiveClassifier) Probability(row []float64) (float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.state.Trained {
		return 0, ErrNotTrained
	}
	if len(row) != len(c.state.Weights) {
		return 0, ErrDimensionMismatch
	}
	w := mat.NewVecDense(len(c.state.Weights), c.state.Weights)
	x := mat.NewVecDense(len(row), row)
	return sigmoid(mat.Dot(w, x) + c.state.Bias), nil
}

// Probabilities scores a whole matrix.
func (c *AdaptiveClassifier) Probabilities(rows [][]float64) ([]float64, error) {
	out := make([]float64, len(rows))
	for i, row := range rows {
		p, err := c.Probability(row)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

func sigmoid(z float64) float64 {
	// Clamp to keep exp well-behaved on extreme logits.
	if z > 35 {
		return 1
	}
	if z < -35 {
		return 0
	}
	return 1 / (1 + math.Exp(-z))
}
