package triage

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stratowall/mailtriage/pkg/config"
	"github.com/stratowall/mailtriage/pkg/keywords"
	"github.com/stratowall/mailtriage/pkg/telemetry"
)

// Outcome records which rung of the scoring ladder produced a record's
// score. The rung is chosen by precondition checks before scoring, never by
// recovering from a failure after the fact.
type Outcome string

const (
	// OutcomeFullModel: anomaly detector + rules, with the adaptive
	// classifier mixed in when trained.
	OutcomeFullModel Outcome = "full_model"
	// OutcomeAnomalyFallback: detector preconditions failed, rule-derived
	// anomaly proxy used instead.
	OutcomeAnomalyFallback Outcome = "anomaly_fallback"
	// OutcomeBasicFallback: minimal deterministic formula, used when even
	// feature extraction is unusable for the record.
	OutcomeBasicFallback Outcome = "basic_fallback"
	// OutcomeFastPath: heuristics-only triage mode.
	OutcomeFastPath Outcome = "fast_path"
)

// ModelState is the complete learned state of the engine at one point in
// time. Instances are immutable once published; learning builds a new state
// and swaps it in atomically.
type ModelState struct {
	Classifier     *ClassifierState
	AdaptiveWeight float64
	Trained        bool
	SchemaVersion  int
	SavedAt        time.Time
}

// ColdStart returns the state used when nothing has been learned or loaded.
func ColdStart(initialWeight float64) *ModelState {
	return &ModelState{
		Classifier:     NewAdaptiveClassifier().State(),
		AdaptiveWeight: initialWeight,
		SchemaVersion:  FeatureSchemaVersion,
	}
}

// SemanticSignaler is the optional embedding-similarity layer. A nil
// signaler disables the signal; everything else is unaffected.
type SemanticSignaler interface {
	Signal(ctx context.Context, text string) (similarity float64, matched string, ok bool)
}

// Result is one record's scoring outcome.
type Result struct {
	RecordID     string             `json:"record_id"`
	Score        float64            `json:"score"`
	AnomalyScore float64            `json:"anomaly_score"`
	Level        RiskLevel          `json:"risk_level"`
	Outcome      Outcome            `json:"outcome"`
	Explanation  string             `json:"explanation"`
	Factors      []RuleContribution `json:"-"`
}

// ScoreReport summarizes one scoring run.
type ScoreReport struct {
	RunID     string             `json:"run_id"`
	SessionID string             `json:"session_id"`
	Mode      config.ScoringMode `json:"mode"`
	Results   []Result           `json:"results"`
	Levels    map[RiskLevel]int  `json:"levels"`
	StartedAt time.Time          `json:"started_at"`
	Elapsed   time.Duration      `json:"elapsed"`
}

// Engine runs the scoring pipeline. It is safe for concurrent scoring; the
// published ModelState is read through an atomic pointer and learning swaps
// in a fresh state without touching in-flight batches.
type Engine struct {
	cfg         *config.Config
	log         *zap.Logger
	extractor   *FeatureExtractor
	attachments *AttachmentRiskScorer
	rules       *RuleModel
	registry    *keywords.Registry
	semantic    SemanticSignaler
	metrics     *telemetry.Metrics
	thresholds  Thresholds

	model atomic.Pointer[ModelState]
}

// NewEngine builds an engine from configuration. The model starts cold;
// call SetModel with a loaded state to resume a persisted one.
func NewEngine(cfg *config.Config, registry *keywords.Registry, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	att := NewAttachmentRiskScorer()
	e := &Engine{
		cfg:         cfg,
		log:         log.Named("engine"),
		extractor:   NewFeatureExtractor(),
		attachments: att,
		rules:       NewRuleModel(att),
		registry:    registry,
		metrics:     telemetry.New(),
		thresholds: Thresholds{
			Critical: cfg.CriticalThreshold,
			High:     cfg.HighThreshold,
			Medium:   cfg.MediumThreshold,
		},
	}
	e.model.Store(ColdStart(cfg.InitialWeight))
	return e
}

// SetSemantic attaches the optional semantic signal layer.
func (e *Engine) SetSemantic(s SemanticSignaler) { e.semantic = s }

// Metrics exposes the engine's counters.
func (e *Engine) Metrics() *telemetry.Metrics { return e.metrics }

// Model returns the currently published model state.
func (e *Engine) Model() *ModelState { return e.model.Load() }

// SetModel publishes a model state. States with a stale feature schema are
// refused and replaced with a cold start: predictions across schema versions
// are meaningless.
func (e *Engine) SetModel(state *ModelState) {
	if state == nil {
		return
	}
	if state.SchemaVersion != FeatureSchemaVersion {
		e.log.Warn("discarding model with stale feature schema",
			zap.Int("model_schema", state.SchemaVersion),
			zap.Int("current_schema", FeatureSchemaVersion))
		e.model.Store(ColdStart(e.cfg.InitialWeight))
		return
	}
	e.model.Store(state)
}

// Rules exposes the rule model for analytics and fallback scoring.
func (e *Engine) Rules() *RuleModel { return e.rules }

// Extractor exposes the feature extractor for the learning loop.
func (e *Engine) Extractor() *FeatureExtractor { return e.extractor }

// Snapshot takes a keyword snapshot for one session.
func (e *Engine) Snapshot() *keywords.Snapshot {
	if e.registry == nil {
		return keywords.EmptySnapshot()
	}
	return e.registry.Snapshot()
}

// ScoreBatch scores records in place: every record receives a risk score,
// anomaly score, level and explanation. Batches above the configured cap,
// and engines in fast mode, take the heuristics-only path.
func (e *Engine) ScoreBatch(ctx context.Context, sessionID string, records []*EmailRecord) (*ScoreReport, error) {
	started := time.Now()
	report := &ScoreReport{
		RunID:     uuid.NewString(),
		SessionID: sessionID,
		Mode:      e.cfg.Mode,
		Levels:    make(map[RiskLevel]int),
		StartedAt: started,
	}
	if len(records) == 0 {
		return report, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snap := e.Snapshot()

	if e.cfg.Mode == config.ModeFast || len(records) > e.cfg.MaxBatchRecords {
		if len(records) > e.cfg.MaxBatchRecords {
			e.log.Warn("batch exceeds cap, taking fast path",
				zap.Int("records", len(records)),
				zap.Int("cap", e.cfg.MaxBatchRecords))
		}
		report.Mode = config.ModeFast
		e.scoreFast(records, report)
		report.Elapsed = time.Since(started)
		return report, nil
	}

	e.scoreFull(ctx, records, snap, report)
	report.Elapsed = time.Since(started)

	e.log.Info("batch scored",
		zap.String("run_id", report.RunID),
		zap.String("session_id", sessionID),
		zap.Int("records", len(records)),
		zap.Duration("elapsed", report.Elapsed))
	return report, nil
}

func (e *Engine) scoreFast(records []*EmailRecord, report *ScoreReport) {
	for _, r := range records {
		risk := e.rules.FastScore(r)
		anomaly := 0.8 * risk
		level := FastThresholds().LevelFor(risk)

		res := Result{
			RecordID:     r.ID,
			Score:        risk,
			AnomalyScore: anomaly,
			Level:        level,
			Outcome:      OutcomeFastPath,
			Explanation:  fastExplanation(r),
		}
		applyResult(r, &res)
		report.Results = append(report.Results, res)
		report.Levels[level]++

		e.metrics.FastPathScores.Add(1)
		e.metrics.RecordsScored.Add(1)
	}
}

func (e *Engine) scoreFull(ctx context.Context, records []*EmailRecord, snap *keywords.Snapshot, report *ScoreReport) {
	e.scoreMatrix(ctx, records, e.extractor.AdaptiveMatrix(records, snap), snap, report)
}

func (e *Engine) scoreMatrix(ctx context.Context, records []*EmailRecord, matrix [][]float64, snap *keywords.Snapshot, report *ScoreReport) {
	anomalyScores, detectorUsed := e.anomalyScores(records, matrix, snap)

	model := e.model.Load()
	var adaptiveProbs []float64
	if model.Trained && model.SchemaVersion == FeatureSchemaVersion {
		clf := RestoreClassifier(model.Classifier)
		probs, err := clf.Probabilities(matrix)
		if err != nil {
			e.log.Warn("adaptive prediction unavailable, scoring statically", zap.Error(err))
			e.metrics.ScoringErrors.Add(1)
		} else {
			adaptiveProbs = probs
		}
	}

	for i, r := range records {
		var res Result
		switch {
		case !rowHealthy(matrix[i]):
			res = e.scoreBasic(r, snap)
		default:
			res = e.scoreBlend(ctx, r, snap, anomalyScores[i], adaptiveProbs, i, model.AdaptiveWeight, detectorUsed)
		}
		res.RecordID = r.ID
		applyResult(r, &res)
		report.Results = append(report.Results, res)
		report.Levels[res.Level]++
		e.metrics.RecordsScored.Add(1)
	}
}

// anomalyScores fits the per-batch detector on the standardized feature
// matrix. Rows with malformed feature vectors are dropped from the fit and
// score zero; they are scored by the basic formula instead. A batch with no
// usable rows at all switches to the rule-derived proxy.
func (e *Engine) anomalyScores(records []*EmailRecord, matrix [][]float64, snap *keywords.Snapshot) ([]float64, bool) {
	healthy := make([]int, 0, len(matrix))
	for i, row := range matrix {
		if rowHealthy(row) {
			healthy = append(healthy, i)
		}
	}

	if len(healthy) == 0 {
		e.log.Warn("degenerate feature matrix, using anomaly proxy", zap.Int("records", len(records)))
		scores := make([]float64, len(records))
		for i, r := range records {
			scores[i] = e.rules.AnomalyProxy(r, snap)
		}
		return scores, false
	}

	fit := matrix
	if len(healthy) != len(matrix) {
		e.log.Warn("dropping malformed feature rows from anomaly fit",
			zap.Int("dropped", len(matrix)-len(healthy)))
		fit = make([][]float64, len(healthy))
		for j, i := range healthy {
			fit[j] = matrix[i]
		}
	}

	scaled := FitScaler(fit).Transform(fit)
	det := NewAnomalyDetector(e.cfg.Contamination, e.cfg.Estimators, e.cfg.MinAnomalyRows)
	fitScores := det.FitScore(scaled)

	if len(healthy) == len(matrix) {
		return fitScores, true
	}
	scores := make([]float64, len(matrix))
	for j, i := range healthy {
		scores[i] = fitScores[j]
	}
	return scores, true
}

func (e *Engine) scoreBlend(ctx context.Context, r *EmailRecord, snap *keywords.Snapshot, anomaly float64, adaptiveProbs []float64, i int, weight float64, detectorUsed bool) Result {
	ruleRisk, factors := e.rules.Risk(r, snap)

	score := clamp01(anomaly*0.4 + ruleRisk*0.6)

	adaptive := -1.0
	if adaptiveProbs != nil {
		adaptive = adaptiveProbs[i]
		score = clamp01((1-weight)*score + weight*adaptive)
	}

	var semanticNote string
	if e.semantic != nil {
		if sim, matched, ok := e.semantic.Signal(ctx, r.Subject+" "+r.Justification); ok {
			score = clamp01(score + math.Min(0.1, sim*0.1))
			semanticNote = matched
			factors = append(factors, RuleContribution{Factor: "semantic", Value: sim})
		}
	}

	outcome := OutcomeFullModel
	if !detectorUsed {
		outcome = OutcomeAnomalyFallback
		e.metrics.AnomalyFallbacks.Add(1)
	} else {
		e.metrics.FullModelScores.Add(1)
	}

	return Result{
		Score:        score,
		AnomalyScore: anomaly,
		Level:        e.thresholds.LevelFor(score),
		Outcome:      outcome,
		Explanation:  buildExplanation(factors, anomaly, adaptive, semanticNote),
		Factors:      factors,
	}
}

func (e *Engine) scoreBasic(r *EmailRecord, snap *keywords.Snapshot) Result {
	e.metrics.BasicFallbacks.Add(1)
	risk := e.rules.BasicScore(r, snap)
	return Result{
		Score:        risk,
		AnomalyScore: 0,
		Level:        e.thresholds.LevelFor(risk),
		Outcome:      OutcomeBasicFallback,
		Explanation:  "Basic risk assessment only",
	}
}

func applyResult(r *EmailRecord, res *Result) {
	r.MLRiskScore = res.Score
	anomaly := res.AnomalyScore
	r.MLAnomalyScore = &anomaly
	r.RiskLevel = res.Level
	r.MLExplanation = res.Explanation
}

// rowHealthy reports whether a feature row can feed the detector and the
// classifier: full width, finite values throughout.
func rowHealthy(row []float64) bool {
	if len(row) != AdaptiveDims {
		return false
	}
	for _, v := range row {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func buildExplanation(factors []RuleContribution, anomaly, adaptive float64, semanticNote string) string {
	var parts []string
	for _, f := range factors {
		switch f.Factor {
		case "leaver":
			parts = append(parts, "departing employee")
		case "external_domain":
			parts = append(parts, "external recipient domain")
		case "attachments":
			parts = append(parts, fmt.Sprintf("attachment risk %.2f", f.Value))
		case "wordlist":
			parts = append(parts, "sensitive keyword match")
		case "weekend_send":
			parts = append(parts, "weekend activity")
		case "justification":
			parts = append(parts, "suspicious justification")
		case "semantic":
			parts = append(parts, fmt.Sprintf("semantic similarity %.2f (%s)", f.Value, semanticNote))
		}
	}
	if anomaly >= 0.7 {
		parts = append(parts, fmt.Sprintf("high anomaly %.2f", anomaly))
	}
	if adaptive >= 0 {
		parts = append(parts, fmt.Sprintf("adaptive model %.2f", adaptive))
	}
	if len(parts) == 0 {
		return "No significant risk factors"
	}
	return "Risk factors: " + strings.Join(parts, "; ")
}

func fastExplanation(r *EmailRecord) string {
	var parts []string
	if r.IsLeaver() {
		parts = append(parts, "departing employee")
	}
	if isPublicDomain(r.RecipientDomain) {
		parts = append(parts, "external recipient domain")
	}
	if r.HasAttachments() {
		parts = append(parts, "attachments present")
	}
	if len(parts) == 0 {
		return "Fast triage: no elevated signals"
	}
	return "Fast triage: " + strings.Join(parts, "; ")
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
