package triage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stratowall/mailtriage/pkg/config"
	"github.com/stratowall/mailtriage/pkg/keywords"
)

// LabeledRecord pairs a terminally-decided record with the analyst decision
// that labels it. The decision carries the score the record had when the
// analyst decided: that score is the static side of the weight evaluation,
// since re-scoring would contaminate the comparison with the very model
// under test.
type LabeledRecord struct {
	Record   *EmailRecord
	Feedback FeedbackRecord
}

// FeedbackSource supplies analyst decisions for the learning loop.
type FeedbackSource interface {
	// SessionFeedback returns all terminally-decided records for the session.
	SessionFeedback(ctx context.Context, sessionID string) ([]LabeledRecord, error)
	// RecentFeedbackCount counts terminal decisions made since the cutoff.
	RecentFeedbackCount(ctx context.Context, sessionID string, since time.Time) (int, error)
}

// ErrNoModel reports that no model state has ever been persisted. It marks
// a normal cold start, not a failure.
var ErrNoModel = errors.New("triage: no persisted model")

// ModelPersister stores and restores learned model state. LoadLatest returns
// ErrNoModel when nothing has been persisted yet.
type ModelPersister interface {
	Save(ctx context.Context, state *ModelState) error
	LoadLatest(ctx context.Context) (*ModelState, error)
}

// LearningMetrics is one learning run's analytics row.
type LearningMetrics struct {
	RunID          string    `json:"run_id"`
	SessionID      string    `json:"session_id"`
	FeedbackCount  int       `json:"feedback_count"`
	Escalated      int       `json:"escalated"`
	Cleared        int       `json:"cleared"`
	AdaptiveWeight float64   `json:"adaptive_weight"`
	Patterns       []byte    `json:"patterns"`
	CreatedAt      time.Time `json:"created_at"`
}

// LearningSink receives per-run analytics. Day is a YYYY-MM-DD key; a rerun
// on the same day overwrites that day's pattern snapshot.
type LearningSink interface {
	UpsertDailyPattern(ctx context.Context, day, sessionID string, patterns []byte) error
	InsertLearningMetrics(ctx context.Context, m *LearningMetrics) error
}

// LearnReport summarizes one learning run.
type LearnReport struct {
	RunID           string  `json:"run_id"`
	SessionID       string  `json:"session_id"`
	Learned         bool    `json:"learned"`
	Reason          string  `json:"reason,omitempty"`
	FeedbackCount   int     `json:"feedback_count"`
	Escalated       int     `json:"escalated"`
	Cleared         int     `json:"cleared"`
	Trained         bool    `json:"trained"`
	WeightBefore    float64 `json:"weight_before"`
	WeightAfter     float64 `json:"weight_after"`
	WeightEvaluated bool    `json:"weight_evaluated"`
}

// classProfile summarizes the compact feature profile of one label class,
// stored in the daily pattern snapshot for analyst review.
type classProfile struct {
	Count    int       `json:"count"`
	MeanBase []float64 `json:"mean_base"`
}

// Orchestrator drives the adaptive learning loop: gather analyst decisions,
// refit the classifier, re-tune the blend weight, persist and publish.
// Callers must serialize learning runs per session; scoring may continue
// concurrently against the previously published state.
type Orchestrator struct {
	engine   *Engine
	cfg      *config.Config
	log      *zap.Logger
	feedback FeedbackSource
	models   ModelPersister
	sink     LearningSink
}

// NewOrchestrator wires the learning loop. models and sink may be nil: the
// loop still learns in memory, it just cannot persist or report.
func NewOrchestrator(engine *Engine, cfg *config.Config, feedback FeedbackSource, models ModelPersister, sink LearningSink, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		engine:   engine,
		cfg:      cfg,
		log:      log.Named("learning"),
		feedback: feedback,
		models:   models,
		sink:     sink,
	}
}

// Restore loads the latest persisted model state into the engine. A missing
// model is a normal cold start, not an error.
func (o *Orchestrator) Restore(ctx context.Context) error {
	if o.models == nil {
		return nil
	}
	state, err := o.models.LoadLatest(ctx)
	if errors.Is(err, ErrNoModel) {
		o.log.Info("no persisted model, starting cold")
		return nil
	}
	if err != nil {
		return err
	}
	o.engine.SetModel(state)
	o.log.Info("model restored",
		zap.Float64("adaptive_weight", o.engine.Model().AdaptiveWeight),
		zap.Bool("trained", o.engine.Model().Trained),
		zap.Time("saved_at", state.SavedAt))
	return nil
}

// LearnFromFeedback runs one learning pass over the session's terminal
// decisions. Too little feedback is reported, not an error: the caller polls
// again once analysts have decided more cases.
func (o *Orchestrator) LearnFromFeedback(ctx context.Context, sessionID string) (*LearnReport, error) {
	report := &LearnReport{
		RunID:     uuid.NewString(),
		SessionID: sessionID,
	}

	labeled, err := o.feedback.SessionFeedback(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	report.FeedbackCount = len(labeled)
	for _, l := range labeled {
		if l.Feedback.Decision == CaseEscalated {
			report.Escalated++
		} else {
			report.Cleared++
		}
	}

	old := o.engine.Model()
	report.WeightBefore = old.AdaptiveWeight
	report.WeightAfter = old.AdaptiveWeight
	report.Trained = old.Trained

	if len(labeled) < o.cfg.MinFeedback {
		report.Reason = "insufficient feedback"
		o.log.Info("skipping learning run",
			zap.String("session_id", sessionID),
			zap.Int("feedback", len(labeled)),
			zap.Int("required", o.cfg.MinFeedback))
		return report, nil
	}

	snap := o.engine.Snapshot()
	records := make([]*EmailRecord, len(labeled))
	labels := make([]int, len(labeled))
	staticScores := make([]float64, len(labeled))
	for i, l := range labeled {
		records[i] = l.Record
		labels[i] = int(l.Feedback.Label())
		staticScores[i] = l.Feedback.OriginalMLScore
	}
	matrix := o.engine.Extractor().AdaptiveMatrix(records, snap)

	clf := RestoreClassifier(old.Classifier)
	if clf.Trained() {
		err = clf.PartialFit(matrix, labels)
	} else {
		err = clf.Fit(matrix, labels)
	}
	if err != nil {
		return nil, err
	}
	report.Trained = clf.Trained()

	controller := NewWeightController(old.AdaptiveWeight, o.cfg.WeightFloor, o.cfg.WeightCap,
		o.cfg.WeightStepUp, o.cfg.WeightStepDown, o.cfg.MinWeightEval)
	if adaptiveScores, perr := clf.Probabilities(matrix); perr == nil {
		report.WeightEvaluated = controller.Evaluate(adaptiveScores, staticScores, labels)
	}
	report.WeightAfter = controller.Weight

	state := &ModelState{
		Classifier:     clf.State(),
		AdaptiveWeight: controller.Weight,
		Trained:        clf.Trained(),
		SchemaVersion:  FeatureSchemaVersion,
		SavedAt:        time.Now().UTC(),
	}

	if o.models != nil {
		// Persistence failure keeps the run: the in-memory state stays
		// authoritative and the next successful save catches up.
		if serr := o.models.Save(ctx, state); serr != nil {
			o.log.Error("model persistence failed, continuing in memory", zap.Error(serr))
		}
	}

	patterns := o.patternSnapshot(labeled, snap, state)
	if o.sink != nil {
		day := state.SavedAt.Format("2006-01-02")
		if serr := o.sink.UpsertDailyPattern(ctx, day, sessionID, patterns); serr != nil {
			o.log.Warn("pattern snapshot write failed", zap.Error(serr))
		}
		metrics := &LearningMetrics{
			RunID:          report.RunID,
			SessionID:      sessionID,
			FeedbackCount:  report.FeedbackCount,
			Escalated:      report.Escalated,
			Cleared:        report.Cleared,
			AdaptiveWeight: controller.Weight,
			Patterns:       patterns,
			CreatedAt:      state.SavedAt,
		}
		if serr := o.sink.InsertLearningMetrics(ctx, metrics); serr != nil {
			o.log.Warn("learning metrics write failed", zap.Error(serr))
		}
	}

	o.engine.SetModel(state)
	o.engine.Metrics().LearningRuns.Add(1)
	o.engine.Metrics().FeedbackConsumed.Add(int64(len(labeled)))
	report.Learned = true

	o.log.Info("learning run complete",
		zap.String("run_id", report.RunID),
		zap.String("session_id", sessionID),
		zap.Int("feedback", report.FeedbackCount),
		zap.Float64("weight", controller.Weight),
		zap.Bool("weight_evaluated", report.WeightEvaluated))
	return report, nil
}

// MaybeLearn runs a learning pass only when the session has fresh terminal
// decisions. Called opportunistically after scoring runs.
func (o *Orchestrator) MaybeLearn(ctx context.Context, sessionID string) (*LearnReport, error) {
	cutoff := time.Now().Add(-o.cfg.RecentFeedbackAge)
	n, err := o.feedback.RecentFeedbackCount(ctx, sessionID, cutoff)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	o.log.Info("recent feedback found, learning opportunistically",
		zap.String("session_id", sessionID), zap.Int("recent", n))
	return o.LearnFromFeedback(ctx, sessionID)
}

// patternSnapshot builds the day's learned-pattern JSON: label counts, the
// escalation rate and a compact per-class feature profile built from the
// base feature vectors.
func (o *Orchestrator) patternSnapshot(labeled []LabeledRecord, snap *keywords.Snapshot, state *ModelState) []byte {
	profiles := map[string]*classProfile{
		"escalated": {MeanBase: make([]float64, BaseDims)},
		"cleared":   {MeanBase: make([]float64, BaseDims)},
	}
	for _, l := range labeled {
		key := "cleared"
		if l.Feedback.Decision == CaseEscalated {
			key = "escalated"
		}
		p := profiles[key]
		p.Count++
		base := o.engine.Extractor().Base(l.Record, snap)
		for j, v := range base {
			p.MeanBase[j] += v
		}
	}
	for _, p := range profiles {
		if p.Count == 0 {
			continue
		}
		for j := range p.MeanBase {
			p.MeanBase[j] /= float64(p.Count)
		}
	}

	escalationRate := 0.0
	if len(labeled) > 0 {
		escalationRate = float64(profiles["escalated"].Count) / float64(len(labeled))
	}

	out, err := json.Marshal(map[string]any{
		"feedback_count":  len(labeled),
		"escalation_rate": escalationRate,
		"adaptive_weight": state.AdaptiveWeight,
		"trained":         state.Trained,
		"profiles":        profiles,
	})
	if err != nil {
		o.log.Warn("pattern snapshot marshal failed", zap.Error(err))
		return []byte("{}")
	}
	return out
}
