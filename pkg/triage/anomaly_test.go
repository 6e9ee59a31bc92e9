package triage

import "testing"

func uniformRows(n, dims int) [][]float64 {
	rows := make([][]float64, n)
	for i := range rows {
		row := make([]float64, dims)
		for j := range row {
			row[j] = float64(j%3) + float64(i%2)*0.1
		}
		rows[i] = row
	}
	return rows
}

func TestAnomalySmallBatchReturnsZeros(t *testing.T) {
	d := NewAnomalyDetector(0.1, 50, 10)

	scores := d.FitScore(uniformRows(9, 5))
	if len(scores) != 9 {
		t.Fatalf("score vector length = %d, want 9", len(scores))
	}
	for i, s := range scores {
		if s != 0 {
			t.Errorf("score[%d] = %v, want 0 for undersized batch", i, s)
		}
	}
}

func TestAnomalyOutlierScoresHighest(t *testing.T) {
	rows := uniformRows(30, 5)
	outlier := []float64{50, -40, 90, 80, -60}
	rows = append(rows, outlier)

	d := NewAnomalyDetector(0.1, 50, 10)
	scores := d.FitScore(rows)

	maxIdx := 0
	for i, s := range scores {
		if s > scores[maxIdx] {
			maxIdx = i
		}
		if s < 0 || s > 1 {
			t.Errorf("score[%d] = %v outside [0,1]", i, s)
		}
	}
	if maxIdx != len(rows)-1 {
		t.Errorf("outlier at index %d did not score highest (max at %d, score %v)",
			len(rows)-1, maxIdx, scores[maxIdx])
	}
	if scores[maxIdx] != 1 {
		t.Errorf("most anomalous score = %v, want 1 after min-max", scores[maxIdx])
	}
}

func TestAnomalyDeterministic(t *testing.T) {
	rows := uniformRows(25, 5)
	rows = append(rows, []float64{9, 9, 9, 9, 9})

	a := NewAnomalyDetector(0.1, 50, 10).FitScore(rows)
	b := NewAnomalyDetector(0.1, 50, 10).FitScore(rows)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("scores diverge at %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestAnomalyIdenticalRowsAllZero(t *testing.T) {
	rows := make([][]float64, 15)
	for i := range rows {
		rows[i] = []float64{1, 2, 3}
	}
	scores := NewAnomalyDetector(0.1, 50, 10).FitScore(rows)
	for i, s := range scores {
		if s != 0 {
			t.Errorf("identical rows should all score 0, got score[%d] = %v", i, s)
		}
	}
}

func TestScaler(t *testing.T) {
	rows := [][]float64{
		{1, 10, 5},
		{3, 10, 7},
		{5, 10, 9},
	}
	s := FitScaler(rows)
	scaled := s.Transform(rows)

	// Column 0 has mean 3: scaled values must be symmetric around 0.
	if !closeTo(scaled[1][0], 0) {
		t.Errorf("middle value should scale to 0, got %v", scaled[1][0])
	}
	if !closeTo(scaled[0][0]+scaled[2][0], 0) {
		t.Errorf("extremes should be symmetric, got %v and %v", scaled[0][0], scaled[2][0])
	}

	// Constant column passes through unscaled.
	for i := range scaled {
		if !closeTo(scaled[i][1], 0) {
			t.Errorf("constant column should center to 0, got %v", scaled[i][1])
		}
	}
}

func TestScalerRowWidthMismatch(t *testing.T) {
	s := FitScaler([][]float64{{1, 2}, {3, 4}})
	odd := []float64{7, 8, 9}
	got := s.TransformRow(odd)
	for i := range odd {
		if got[i] != odd[i] {
			t.Fatalf("mismatched row should pass through unchanged, got %v", got)
		}
	}
}
