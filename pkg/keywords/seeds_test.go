package keywords

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSeedFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keywords.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write seed file: %v", err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeSeedFile(t, `keywords:
  - keyword: payroll export
    category: Suspicious
    weight: 8
    type: risk
    scope: both
    active: true
  - keyword: team lunch
    category: Business
    weight: 1
    type: exclusion
    scope: subject
    active: true
`)

	reg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if reg.Len() != 2 {
		t.Fatalf("expected 2 keywords, got %d", reg.Len())
	}
	if !reg.Snapshot().Matches("monthly payroll export", "") {
		t.Error("loaded keyword should match")
	}
}

func TestLoadFileAppliesDefaults(t *testing.T) {
	path := writeSeedFile(t, `keywords:
  - keyword: customer database
    category: Suspicious
    weight: 99
    active: true
`)

	reg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	kws := reg.Snapshot().Risk()
	if len(kws) != 1 {
		t.Fatalf("expected 1 risk keyword, got %d", len(kws))
	}
	k := kws[0]
	if k.Kind != KindRisk {
		t.Errorf("missing type should default to risk, got %s", k.Kind)
	}
	if k.Scope != ScopeBoth {
		t.Errorf("missing scope should default to both, got %s", k.Scope)
	}
	if k.Weight != 10 {
		t.Errorf("weight should clamp to 10, got %v", k.Weight)
	}
}

func TestLoadFileErrors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file should error")
	}

	empty := writeSeedFile(t, "keywords: []\n")
	if _, err := LoadFile(empty); err == nil {
		t.Error("empty keyword list should error")
	}

	bad := writeSeedFile(t, "keywords: {not valid\n")
	if _, err := LoadFile(bad); err == nil {
		t.Error("malformed YAML should error")
	}
}

func TestDefaultRegistry(t *testing.T) {
	reg := DefaultRegistry()
	if reg.Len() == 0 {
		t.Fatal("default registry must not be empty")
	}
	snap := reg.Snapshot()
	if !snap.Matches("confidential roadmap", "") {
		t.Error("default set should flag confidential subjects")
	}
	if snap.Matches("weekly newsletter", "") {
		t.Error("exclusion keywords must not appear as risk matches")
	}
}
