// Package store persists the triage core's state: model artifacts on the
// filesystem, email records and learning analytics in Postgres, and the fast
// dashboard payload in Redis.
package store

import (
	"context"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/stratowall/mailtriage/pkg/triage"
)

const (
	sidecarPrefix = "model_"
	sidecarSuffix = ".json"
	blobSuffix    = ".gob"

	// Fixed-width nanosecond stamp: rapid consecutive saves never collide
	// and names still sort chronologically.
	stampLayout = "20060102T150405.000000000"

	artifactPerm  = 0o644
	modelsDirPerm = 0o755
)

// sidecar is the small JSON descriptor written alongside each classifier
// blob. It is written last: a crash between blob and sidecar leaves no
// sidecar, so LoadLatest never points at a half-written artifact.
type sidecar struct {
	AdaptiveWeight    float64   `json:"adaptive_weight"`
	IsAdaptiveTrained bool      `json:"is_adaptive_trained"`
	FeatureSchema     int       `json:"feature_schema"`
	Timestamp         time.Time `json:"timestamp"`
	ClassifierBlob    string    `json:"classifier_blob"`
	AnomalyBlob       string    `json:"anomaly_blob,omitempty"`
}

// ModelStore keeps timestamped, immutable model artifacts in one directory.
// The newest sidecar names the current model.
type ModelStore struct {
	dir string
	log *zap.Logger
}

// NewModelStore opens (creating if needed) the artifact directory.
func NewModelStore(dir string, log *zap.Logger) (*ModelStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(dir, modelsDirPerm); err != nil {
		return nil, fmt.Errorf("create models dir: %w", err)
	}
	return &ModelStore{dir: dir, log: log.Named("modelstore")}, nil
}

// Save writes a new artifact pair. The classifier blob lands first, the
// sidecar last via rename, so a crash at any point leaves the previous model
// current.
func (s *ModelStore) Save(ctx context.Context, state *triage.ModelState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stamp := state.SavedAt
	if stamp.IsZero() {
		stamp = time.Now().UTC()
	}
	name := stamp.Format(stampLayout)

	blobName := "classifier_" + name + blobSuffix
	blobPath := filepath.Join(s.dir, blobName)
	f, err := os.OpenFile(blobPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, artifactPerm)
	if err != nil {
		return fmt.Errorf("create classifier blob: %w", err)
	}
	if err := gob.NewEncoder(f).Encode(state.Classifier); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode classifier: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync classifier blob: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close classifier blob: %w", err)
	}

	sc := sidecar{
		AdaptiveWeight:    state.AdaptiveWeight,
		IsAdaptiveTrained: state.Trained,
		FeatureSchema:     state.SchemaVersion,
		Timestamp:         stamp,
		ClassifierBlob:    blobName,
	}
	payload, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sidecar: %w", err)
	}

	sidecarPath := filepath.Join(s.dir, sidecarPrefix+name+sidecarSuffix)
	tmp := sidecarPath + ".tmp"
	tf, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, artifactPerm)
	if err != nil {
		return fmt.Errorf("create sidecar: %w", err)
	}
	if _, err := tf.Write(payload); err != nil {
		_ = tf.Close()
		return fmt.Errorf("write sidecar: %w", err)
	}
	if err := tf.Sync(); err != nil {
		_ = tf.Close()
		return fmt.Errorf("sync sidecar: %w", err)
	}
	if err := tf.Close(); err != nil {
		return fmt.Errorf("close sidecar: %w", err)
	}
	if err := os.Rename(tmp, sidecarPath); err != nil {
		return fmt.Errorf("publish sidecar: %w", err)
	}

	s.log.Info("model persisted",
		zap.String("sidecar", filepath.Base(sidecarPath)),
		zap.Float64("adaptive_weight", state.AdaptiveWeight),
		zap.Bool("trained", state.Trained))
	return nil
}

// LoadLatest restores the newest persisted model. No sidecar at all returns
// ErrNoModel (a normal cold start). A sidecar with a stale feature schema is
// discarded the same way: a model trained on different features must not
// score.
func (s *ModelStore) LoadLatest(ctx context.Context) (*triage.ModelState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("scan models dir: %w", err)
	}

	var sidecars []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, sidecarPrefix) && strings.HasSuffix(name, sidecarSuffix) {
			sidecars = append(sidecars, name)
		}
	}
	if len(sidecars) == 0 {
		return nil, triage.ErrNoModel
	}

	// Timestamped names sort chronologically.
	sort.Strings(sidecars)
	latest := sidecars[len(sidecars)-1]

	payload, err := os.ReadFile(filepath.Join(s.dir, latest))
	if err != nil {
		return nil, fmt.Errorf("read sidecar %s: %w", latest, err)
	}
	var sc sidecar
	if err := json.Unmarshal(payload, &sc); err != nil {
		return nil, fmt.Errorf("decode sidecar %s: %w", latest, err)
	}

	if sc.FeatureSchema != triage.FeatureSchemaVersion {
		s.log.Warn("persisted model has stale feature schema, cold starting",
			zap.String("sidecar", latest),
			zap.Int("model_schema", sc.FeatureSchema),
			zap.Int("current_schema", triage.FeatureSchemaVersion))
		return nil, triage.ErrNoModel
	}

	bf, err := os.Open(filepath.Join(s.dir, sc.ClassifierBlob))
	if err != nil {
		return nil, fmt.Errorf("open classifier blob %s: %w", sc.ClassifierBlob, err)
	}
	defer func() { _ = bf.Close() }()

	var clf triage.ClassifierState
	if err := gob.NewDecoder(bf).Decode(&clf); err != nil {
		return nil, fmt.Errorf("decode classifier blob %s: %w", sc.ClassifierBlob, err)
	}

	return &triage.ModelState{
		Classifier:     &clf,
		AdaptiveWeight: sc.AdaptiveWeight,
		Trained:        sc.IsAdaptiveTrained,
		SchemaVersion:  sc.FeatureSchema,
		SavedAt:        sc.Timestamp,
	}, nil
}
