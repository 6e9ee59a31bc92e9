package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stratowall/mailtriage/pkg/triage"
)

func trainedState(t *testing.T, savedAt time.Time, weight float64) *triage.ModelState {
	t.Helper()
	clf := triage.NewAdaptiveClassifier()
	matrix := [][]float64{
		{1, 0}, {1, 0.1}, {0.9, 0},
		{0, 1}, {0.1, 1}, {0, 0.9},
	}
	labels := []int{1, 1, 1, 0, 0, 0}
	if err := clf.Fit(matrix, labels); err != nil {
		t.Fatalf("fit: %v", err)
	}
	return &triage.ModelState{
		Classifier:     clf.State(),
		AdaptiveWeight: weight,
		Trained:        true,
		SchemaVersion:  triage.FeatureSchemaVersion,
		SavedAt:        savedAt,
	}
}

func TestModelStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewModelStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewModelStore: %v", err)
	}

	saved := trainedState(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), 0.25)
	if err := store.Save(ctx, saved); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.LoadLatest(ctx)
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if loaded.AdaptiveWeight != 0.25 {
		t.Errorf("AdaptiveWeight = %v, want 0.25", loaded.AdaptiveWeight)
	}
	if !loaded.Trained {
		t.Error("Trained flag lost across persistence")
	}
	if loaded.SchemaVersion != triage.FeatureSchemaVersion {
		t.Errorf("SchemaVersion = %d", loaded.SchemaVersion)
	}
	if !loaded.SavedAt.Equal(saved.SavedAt) {
		t.Errorf("SavedAt = %v, want %v", loaded.SavedAt, saved.SavedAt)
	}

	// The restored classifier must score the same way.
	before := triage.RestoreClassifier(saved.Classifier)
	after := triage.RestoreClassifier(loaded.Classifier)
	probe := []float64{1, 0}
	pb, err := before.Probability(probe)
	if err != nil {
		t.Fatalf("probability before: %v", err)
	}
	pa, err := after.Probability(probe)
	if err != nil {
		t.Fatalf("probability after: %v", err)
	}
	if pb != pa {
		t.Errorf("restored classifier diverges: %v vs %v", pb, pa)
	}
}

func TestModelStoreEmptyDir(t *testing.T) {
	store, err := NewModelStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewModelStore: %v", err)
	}
	if _, err := store.LoadLatest(context.Background()); !errors.Is(err, triage.ErrNoModel) {
		t.Errorf("empty dir error = %v, want ErrNoModel", err)
	}
}

func TestModelStoreLatestWins(t *testing.T) {
	ctx := context.Background()
	store, err := NewModelStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewModelStore: %v", err)
	}

	older := trainedState(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), 0.15)
	newer := trainedState(t, time.Date(2024, 3, 2, 9, 30, 0, 0, time.UTC), 0.20)
	if err := store.Save(ctx, older); err != nil {
		t.Fatalf("save older: %v", err)
	}
	if err := store.Save(ctx, newer); err != nil {
		t.Fatalf("save newer: %v", err)
	}

	loaded, err := store.LoadLatest(ctx)
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if loaded.AdaptiveWeight != 0.20 {
		t.Errorf("loaded weight = %v, want newest save's 0.20", loaded.AdaptiveWeight)
	}
}

func TestModelStoreSameSecondSavesKept(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewModelStore(dir, nil)
	if err != nil {
		t.Fatalf("NewModelStore: %v", err)
	}

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	first := trainedState(t, base, 0.15)
	second := trainedState(t, base.Add(time.Millisecond), 0.20)
	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := store.Save(ctx, second); err != nil {
		t.Fatalf("second save: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("artifact files = %d, want both blob+sidecar pairs", len(entries))
	}

	loaded, err := store.LoadLatest(ctx)
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if loaded.AdaptiveWeight != 0.20 {
		t.Errorf("loaded weight = %v, want second save's 0.20", loaded.AdaptiveWeight)
	}
}

func TestModelStoreStaleSchema(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewModelStore(dir, nil)
	if err != nil {
		t.Fatalf("NewModelStore: %v", err)
	}

	sidecar := `{
  "adaptive_weight": 0.3,
  "is_adaptive_trained": true,
  "feature_schema": 999,
  "timestamp": "2024-03-01T12:00:00Z",
  "classifier_blob": "classifier_20240301T120000.gob"
}`
	path := filepath.Join(dir, "model_20240301T120000.json")
	if err := os.WriteFile(path, []byte(sidecar), 0o644); err != nil {
		t.Fatalf("write sidecar: %v", err)
	}

	if _, err := store.LoadLatest(ctx); !errors.Is(err, triage.ErrNoModel) {
		t.Errorf("stale schema error = %v, want ErrNoModel", err)
	}
}

func TestModelStoreNoTempLeftovers(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewModelStore(dir, nil)
	if err != nil {
		t.Fatalf("NewModelStore: %v", err)
	}
	if err := store.Save(ctx, trainedState(t, time.Now().UTC(), 0.1)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
	if len(entries) != 2 {
		t.Errorf("artifact count = %d, want blob + sidecar", len(entries))
	}
}
