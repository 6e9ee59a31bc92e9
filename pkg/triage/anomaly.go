package triage

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	defaultSubsample = 256
	anomalySeed      = 42
)

// StandardScaler centers and scales feature columns to zero mean and unit
// variance. Constant columns pass through unscaled.
type StandardScaler struct {
	Mean []float64
	Std  []float64
}

// FitScaler computes column statistics over the given rows.
func FitScaler(rows [][]float64) *StandardScaler {
	if len(rows) == 0 {
		return &StandardScaler{}
	}
	dims := len(rows[0])
	s := &StandardScaler{
		Mean: make([]float64, dims),
		Std:  make([]float64, dims),
	}
	col := make([]float64, len(rows))
	for j := 0; j < dims; j++ {
		for i := range rows {
			col[i] = rows[i][j]
		}
		mean, std := stat.MeanStdDev(col, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		s.Mean[j] = mean
		s.Std[j] = std
	}
	return s
}

// Transform returns scaled copies of the rows.
func (s *StandardScaler) Transform(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		out[i] = s.TransformRow(row)
	}
	return out
}

// TransformRow scales a single row. Rows of unexpected width pass through.
func (s *StandardScaler) TransformRow(row []float64) []float64 {
	cp := make([]float64, len(row))
	copy(cp, row)
	if len(row) != len(s.Mean) {
		return cp
	}
	for j := range cp {
		cp[j] = (cp[j] - s.Mean[j]) / s.Std[j]
	}
	return cp
}

// isoNode is one node of an isolation tree. Leaves carry the sample count
// that reached them so path depth can be extended by c(size).
type isoNode struct {
	splitDim   int
	splitValue float64
	left       *isoNode
	right      *isoNode
	size       int
}

type isoTree struct {
	root *isoNode
}

// AnomalyDetector is a per-batch isolation forest. It is fit fresh on every
// scoring run: anomalies are defined relative to the batch, not to history,
// so nothing about it is persisted.
type AnomalyDetector struct {
	Contamination float64
	Estimators    int
	MinRows       int

	trees     []isoTree
	subsample int
}

// NewAnomalyDetector returns an unfit detector with the given parameters.
func NewAnomalyDetector(contamination float64, estimators, minRows int) *AnomalyDetector {
	return &AnomalyDetector{
		Contamination: contamination,
		Estimators:    estimators,
		MinRows:       minRows,
	}
}

// FitScore fits the forest on the rows and returns one anomaly score per row,
// min-max normalized into [0,1] with 1 meaning most anomalous. Batches below
// MinRows return all zeros: too little data to define "normal".
func (d *AnomalyDetector) FitScore(rows [][]float64) []float64 {
	scores := make([]float64, len(rows))
	if len(rows) < d.MinRows {
		return scores
	}

	d.fit(rows)
	for i, row := range rows {
		scores[i] = d.decision(row)
	}

	// Lower decision values are more anomalous. Invert after min-max so high
	// output means high anomaly.
	lo := floats.Min(scores)
	hi := floats.Max(scores)
	if hi == lo {
		for i := range scores {
			scores[i] = 0
		}
		return scores
	}
	for i := range scores {
		scores[i] = 1 - (scores[i]-lo)/(hi-lo)
	}
	return scores
}

func (d *AnomalyDetector) fit(rows [][]float64) {
	rng := rand.New(rand.NewSource(anomalySeed))

	d.subsample = defaultSubsample
	if len(rows) < d.subsample {
		d.subsample = len(rows)
	}
	heightLimit := int(math.Ceil(math.Log2(float64(d.subsample))))

	d.trees = make([]isoTree, d.Estimators)
	idx := make([]int, len(rows))
	for i := range idx {
		idx[i] = i
	}
	for t := 0; t < d.Estimators; t++ {
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		sample := make([][]float64, d.subsample)
		for i := 0; i < d.subsample; i++ {
			sample[i] = rows[idx[i]]
		}
		d.trees[t] = isoTree{root: buildIsoTree(sample, 0, heightLimit, rng)}
	}
}

// decision mirrors the sklearn convention: higher means more normal.
func (d *AnomalyDetector) decision(row []float64) float64 {
	avg := 0.0
	for _, t := range d.trees {
		avg += pathLength(t.root, row, 0)
	}
	avg /= float64(len(d.trees))
	score := math.Pow(2, -avg/avgPathLength(float64(d.subsample)))
	return -score
}

func buildIsoTree(rows [][]float64, depth, limit int, rng *rand.Rand) *isoNode {
	if depth >= limit || len(rows) <= 1 {
		return &isoNode{size: len(rows)}
	}
	dims := len(rows[0])
	dim := rng.Intn(dims)

	lo, hi := rows[0][dim], rows[0][dim]
	for _, r := range rows[1:] {
		if r[dim] < lo {
			lo = r[dim]
		}
		if r[dim] > hi {
			hi = r[dim]
		}
	}
	if lo == hi {
		return &isoNode{size: len(rows)}
	}
	split := lo + rng.Float64()*(hi-lo)

	var left, right [][]float64
	for _, r := range rows {
		if r[dim] < split {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}
	return &isoNode{
		splitDim:   dim,
		splitValue: split,
		left:       buildIsoTree(left, depth+1, limit, rng),
		right:      buildIsoTree(right, depth+1, limit, rng),
		size:       len(rows),
	}
}

func pathLength(n *isoNode, row []float64, depth int) float64 {
	if n.left == nil {
		return float64(depth) + avgPathLength(float64(n.size))
	}
	if row[n.splitDim] < n.splitValue {
		return pathLength(n.left, row, depth+1)
	}
	return pathLength(n.right, row, depth+1)
}

// avgPathLength is c(n), the average path length of an unsuccessful BST
// search over n points.
func avgPathLength(n float64) float64 {
	if n <= 1 {
		return 0
	}
	const euler = 0.5772156649
	h := math.Log(n-1) + euler
	return 2*h - 2*(n-1)/n
}
