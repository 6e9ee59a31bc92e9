// Package telemetry tracks process-local counters for scoring and learning
// activity. Counters are cheap atomics; exporting them is the server's
// concern, not this package's.
package telemetry

import "sync/atomic"

// Metrics aggregates counters for one engine instance.
type Metrics struct {
	RecordsScored    atomic.Int64
	FullModelScores  atomic.Int64
	AnomalyFallbacks atomic.Int64
	BasicFallbacks   atomic.Int64
	FastPathScores   atomic.Int64
	LearningRuns     atomic.Int64
	FeedbackConsumed atomic.Int64
	ScoringErrors    atomic.Int64
}

// New returns zeroed metrics.
func New() *Metrics {
	return &Metrics{}
}

// Snapshot is a point-in-time copy safe to serialize.
type Snapshot struct {
	RecordsScored    int64 `json:"records_scored"`
	FullModelScores  int64 `json:"full_model_scores"`
	AnomalyFallbacks int64 `json:"anomaly_fallbacks"`
	BasicFallbacks   int64 `json:"basic_fallbacks"`
	FastPathScores   int64 `json:"fast_path_scores"`
	LearningRuns     int64 `json:"learning_runs"`
	FeedbackConsumed int64 `json:"feedback_consumed"`
	ScoringErrors    int64 `json:"scoring_errors"`
}

// Snapshot copies the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		RecordsScored:    m.RecordsScored.Load(),
		FullModelScores:  m.FullModelScores.Load(),
		AnomalyFallbacks: m.AnomalyFallbacks.Load(),
		BasicFallbacks:   m.BasicFallbacks.Load(),
		FastPathScores:   m.FastPathScores.Load(),
		LearningRuns:     m.LearningRuns.Load(),
		FeedbackConsumed: m.FeedbackConsumed.Load(),
		ScoringErrors:    m.ScoringErrors.Load(),
	}
}
