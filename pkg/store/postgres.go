package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/stratowall/mailtriage/pkg/triage"
)

// DB wraps the shared Postgres connection pool.
type DB struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

// Connect opens a pool against the DSN and verifies the connection.
func Connect(ctx context.Context, dsn string, log *zap.Logger) (*DB, error) {
	if log == nil {
		log = zap.NewNop()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &DB{pool: pool, log: log.Named("postgres")}, nil
}

// Close releases the pool.
func (db *DB) Close() {
	db.pool.Close()
}

const recordColumns = `
	id, session_id,
	COALESCE(sender, ''), COALESCE(subject, ''), COALESCE(attachments, ''),
	COALESCE(recipients, ''), COALESCE(recipient_domain, ''),
	COALESCE(justification, ''), COALESCE(time_sent, ''), COALESCE(leaver, ''),
	COALESCE(department, ''), COALESCE(business_unit, ''), COALESCE(account_type, ''),
	COALESCE(wordlist_subject, ''), COALESCE(wordlist_attachment, ''),
	COALESCE(case_status, 'Active'), resolved_at,
	COALESCE(ml_risk_score, 0), ml_anomaly_score,
	COALESCE(risk_level, ''), COALESCE(ml_explanation, '')`

func scanRecord(row pgx.Row) (*triage.EmailRecord, error) {
	r := &triage.EmailRecord{}
	err := row.Scan(
		&r.ID, &r.SessionID,
		&r.Sender, &r.Subject, &r.Attachments,
		&r.Recipients, &r.RecipientDomain,
		&r.Justification, &r.Time, &r.Leaver,
		&r.Department, &r.BusinessUnit, &r.AccountType,
		&r.WordlistSubject, &r.WordlistAttachment,
		&r.CaseStatus, &r.ResolvedAt,
		&r.MLRiskScore, &r.MLAnomalyScore,
		&r.RiskLevel, &r.MLExplanation,
	)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// RecordStore reads gateway export rows and writes scoring results back.
type RecordStore struct {
	db        *DB
	batchSize int
}

// NewRecordStore wires the store. batchSize bounds a single write-back
// round trip.
func NewRecordStore(db *DB, batchSize int) *RecordStore {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &RecordStore{db: db, batchSize: batchSize}
}

// SessionRecords loads up to limit records for a session, oldest first.
func (s *RecordStore) SessionRecords(ctx context.Context, sessionID string, limit int) ([]*triage.EmailRecord, error) {
	rows, err := s.db.pool.Query(ctx,
		`SELECT `+recordColumns+`
		 FROM email_records
		 WHERE session_id = $1
		 ORDER BY id
		 LIMIT $2`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query session records: %w", err)
	}
	defer rows.Close()

	var records []*triage.EmailRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// WriteScores writes scoring output back in bounded batches. A crash mid-run
// loses at most one batch of updates, never the whole run.
func (s *RecordStore) WriteScores(ctx context.Context, records []*triage.EmailRecord) error {
	for start := 0; start < len(records); start += s.batchSize {
		end := start + s.batchSize
		if end > len(records) {
			end = len(records)
		}

		batch := &pgx.Batch{}
		for _, r := range records[start:end] {
			batch.Queue(
				`UPDATE email_records
				 SET ml_risk_score = $1, ml_anomaly_score = $2,
				     risk_level = $3, ml_explanation = $4
				 WHERE id = $5`,
				r.MLRiskScore, r.MLAnomalyScore, r.RiskLevel, r.MLExplanation, r.ID)
		}

		br := s.db.pool.SendBatch(ctx, batch)
		var batchErr error
		for range records[start:end] {
			if _, err := br.Exec(); err != nil && batchErr == nil {
				batchErr = err
			}
		}
		if err := br.Close(); err != nil && batchErr == nil {
			batchErr = err
		}
		if batchErr != nil {
			return fmt.Errorf("write scores batch at %d: %w", start, batchErr)
		}
		s.db.log.Debug("score batch written",
			zap.Int("from", start), zap.Int("to", end))
	}
	return nil
}

// FeedbackStore surfaces analyst decisions to the learning loop.
type FeedbackStore struct {
	db *DB
}

// NewFeedbackStore wires the store.
func NewFeedbackStore(db *DB) *FeedbackStore {
	return &FeedbackStore{db: db}
}

// SessionFeedback returns every terminally-decided record of the session
// together with its decision, oldest decision first.
func (s *FeedbackStore) SessionFeedback(ctx context.Context, sessionID string) ([]triage.LabeledRecord, error) {
	rows, err := s.db.pool.Query(ctx,
		`SELECT `+recordColumns+`
		 FROM email_records
		 WHERE session_id = $1
		   AND case_status IN ('Cleared', 'Escalated')
		 ORDER BY resolved_at NULLS LAST, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query session feedback: %w", err)
	}
	defer rows.Close()

	var labeled []triage.LabeledRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan feedback record: %w", err)
		}
		fb := triage.FeedbackRecord{
			RecordID:        r.ID,
			SessionID:       r.SessionID,
			Decision:        r.CaseStatus,
			OriginalMLScore: r.MLRiskScore,
		}
		if r.ResolvedAt != nil {
			fb.DecidedAt = *r.ResolvedAt
		}
		labeled = append(labeled, triage.LabeledRecord{Record: r, Feedback: fb})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feedback: %w", err)
	}
	return labeled, nil
}

// RecentFeedbackCount counts terminal decisions made since the cutoff.
func (s *FeedbackStore) RecentFeedbackCount(ctx context.Context, sessionID string, since time.Time) (int, error) {
	var n int
	err := s.db.pool.QueryRow(ctx,
		`SELECT COUNT(*)
		 FROM email_records
		 WHERE session_id = $1
		   AND case_status IN ('Cleared', 'Escalated')
		   AND resolved_at >= $2`, sessionID, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count recent feedback: %w", err)
	}
	return n, nil
}

// FeedbackTotals returns the session's escalated/cleared decision counts for
// the fast analytics payload.
func (s *FeedbackStore) FeedbackTotals(ctx context.Context, sessionID string) (escalated, cleared int, err error) {
	err = s.db.pool.QueryRow(ctx,
		`SELECT
		   COUNT(*) FILTER (WHERE case_status = 'Escalated'),
		   COUNT(*) FILTER (WHERE case_status = 'Cleared')
		 FROM email_records
		 WHERE session_id = $1`, sessionID).Scan(&escalated, &cleared)
	if err != nil {
		return 0, 0, fmt.Errorf("count feedback totals: %w", err)
	}
	return escalated, cleared, nil
}

// AnalyticsStore persists learning-run analytics.
type AnalyticsStore struct {
	db *DB
}

// NewAnalyticsStore wires the store.
func NewAnalyticsStore(db *DB) *AnalyticsStore {
	return &AnalyticsStore{db: db}
}

// UpsertDailyPattern stores the day's learned-pattern snapshot. A rerun on
// the same day overwrites, so there is exactly one snapshot per day per
// session.
func (s *AnalyticsStore) UpsertDailyPattern(ctx context.Context, day, sessionID string, patterns []byte) error {
	_, err := s.db.pool.Exec(ctx,
		`INSERT INTO learning_patterns (day, session_id, patterns, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (day, session_id)
		 DO UPDATE SET patterns = EXCLUDED.patterns, updated_at = now()`,
		day, sessionID, patterns)
	if err != nil {
		return fmt.Errorf("upsert daily pattern: %w", err)
	}
	return nil
}

// InsertLearningMetrics appends one learning run's metrics row.
func (s *AnalyticsStore) InsertLearningMetrics(ctx context.Context, m *triage.LearningMetrics) error {
	_, err := s.db.pool.Exec(ctx,
		`INSERT INTO learning_metrics
		   (run_id, session_id, feedback_count, escalated, cleared,
		    adaptive_weight, patterns, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.RunID, m.SessionID, m.FeedbackCount, m.Escalated, m.Cleared,
		m.AdaptiveWeight, m.Patterns, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert learning metrics: %w", err)
	}
	return nil
}

// TrendRows returns learning runs inside the lookback window, oldest first.
func (s *AnalyticsStore) TrendRows(ctx context.Context, lookbackDays int) ([]*triage.LearningMetrics, error) {
	rows, err := s.db.pool.Query(ctx,
		`SELECT run_id, session_id, feedback_count, escalated, cleared,
		        adaptive_weight, patterns, created_at
		 FROM learning_metrics
		 WHERE created_at >= now() - ($1 * interval '1 day')
		 ORDER BY created_at`, lookbackDays)
	if err != nil {
		return nil, fmt.Errorf("query trend rows: %w", err)
	}
	defer rows.Close()

	var out []*triage.LearningMetrics
	for rows.Next() {
		m := &triage.LearningMetrics{}
		if err := rows.Scan(&m.RunID, &m.SessionID, &m.FeedbackCount, &m.Escalated,
			&m.Cleared, &m.AdaptiveWeight, &m.Patterns, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan trend row: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trend rows: %w", err)
	}
	return out, nil
}
