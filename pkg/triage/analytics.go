package triage

import (
	"fmt"
	"time"
)

// Model maturity labels, by cumulative feedback volume.
const (
	MaturityInitial  = "Initial"
	MaturityLearning = "Learning"
	MaturityTrained  = "Trained"
)

// MaturityLabel maps cumulative feedback volume to a maturity stage.
func MaturityLabel(feedback int) string {
	switch {
	case feedback < 20:
		return MaturityInitial
	case feedback < 100:
		return MaturityLearning
	default:
		return MaturityTrained
	}
}

// DerivedWeight estimates the adaptive weight from feedback volume alone.
// It tracks the controller's trajectory closely enough for dashboards
// without touching the model.
func DerivedWeight(feedback int) float64 {
	w := 0.1 + 0.006*float64(feedback)
	if w > 0.7 {
		w = 0.7
	}
	return w
}

// FastAnalytics is the cheap dashboard payload computed from feedback counts
// only. It needs no model access and is safe to cache.
type FastAnalytics struct {
	FeedbackCount   int       `json:"feedback_count"`
	Escalated       int       `json:"escalated"`
	Cleared         int       `json:"cleared"`
	EscalationRate  float64   `json:"escalation_rate"`
	DerivedWeight   float64   `json:"derived_weight"`
	Maturity        string    `json:"maturity"`
	Recommendations []string  `json:"recommendations"`
	GeneratedAt     time.Time `json:"generated_at"`
}

// BuildFastAnalytics derives the dashboard payload from raw decision counts.
func BuildFastAnalytics(escalated, cleared int) *FastAnalytics {
	total := escalated + cleared
	fa := &FastAnalytics{
		FeedbackCount: total,
		Escalated:     escalated,
		Cleared:       cleared,
		DerivedWeight: DerivedWeight(total),
		Maturity:      MaturityLabel(total),
		GeneratedAt:   time.Now().UTC(),
	}
	if total > 0 {
		fa.EscalationRate = float64(escalated) / float64(total)
	}

	switch fa.Maturity {
	case MaturityInitial:
		fa.Recommendations = append(fa.Recommendations,
			fmt.Sprintf("Model needs %d more analyst decisions before it meaningfully adapts", 20-total))
	case MaturityLearning:
		fa.Recommendations = append(fa.Recommendations,
			"Model is learning; keep resolving cases to improve accuracy")
	default:
		fa.Recommendations = append(fa.Recommendations,
			"Model is trained on substantial feedback")
	}
	if total > 0 && fa.EscalationRate > 0.5 {
		fa.Recommendations = append(fa.Recommendations,
			"Over half of decided cases escalate; consider stricter upstream filtering")
	}
	return fa
}

// TrendPoint is one learning run in a trend window.
type TrendPoint struct {
	Day            string  `json:"day"`
	AdaptiveWeight float64 `json:"adaptive_weight"`
	FeedbackCount  int     `json:"feedback_count"`
}

// LearningTrend summarizes learning activity over a lookback window.
type LearningTrend struct {
	Points        []TrendPoint `json:"points"`
	TotalFeedback int          `json:"total_feedback"`
	CurrentWeight float64      `json:"current_weight"`
	Maturity      string       `json:"maturity"`
	LookbackDays  int          `json:"lookback_days"`
}

// BuildTrend folds learning-metrics rows (expected oldest first) into a
// weight-over-time trend.
func BuildTrend(rows []*LearningMetrics, lookbackDays int) *LearningTrend {
	t := &LearningTrend{LookbackDays: lookbackDays}
	for _, row := range rows {
		t.Points = append(t.Points, TrendPoint{
			Day:            row.CreatedAt.Format("2006-01-02"),
			AdaptiveWeight: row.AdaptiveWeight,
			FeedbackCount:  row.FeedbackCount,
		})
		t.TotalFeedback += row.FeedbackCount
		t.CurrentWeight = row.AdaptiveWeight
	}
	t.Maturity = MaturityLabel(t.TotalFeedback)
	return t
}
