package config

import "testing"

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Mode != ModeFull {
		t.Errorf("default mode should be full, got %s", cfg.Mode)
	}
	if cfg.CriticalThreshold != 0.8 || cfg.HighThreshold != 0.6 || cfg.MediumThreshold != 0.4 {
		t.Errorf("unexpected default thresholds: %v/%v/%v",
			cfg.CriticalThreshold, cfg.HighThreshold, cfg.MediumThreshold)
	}
}

func TestProfileConfigs(t *testing.T) {
	fast := NewFastConfig()
	if err := fast.Validate(); err != nil {
		t.Fatalf("fast config should validate: %v", err)
	}
	if fast.Mode != ModeFast {
		t.Errorf("fast profile should select fast mode, got %s", fast.Mode)
	}
	if fast.EnableSemantic {
		t.Error("fast profile should disable the semantic layer")
	}

	strict := NewStrictConfig()
	if err := strict.Validate(); err != nil {
		t.Fatalf("strict config should validate: %v", err)
	}
	if strict.CriticalThreshold >= NewDefaultConfig().CriticalThreshold {
		t.Error("strict profile should lower the critical threshold")
	}
}

func TestValidateRejectsBadSettings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unordered thresholds", func(c *Config) { c.MediumThreshold = 0.9 }},
		{"unknown mode", func(c *Config) { c.Mode = "turbo" }},
		{"floor above cap", func(c *Config) { c.WeightFloor = 0.8 }},
		{"initial weight outside bounds", func(c *Config) { c.InitialWeight = 0.9 }},
		{"contamination out of range", func(c *Config) { c.Contamination = 0.7 }},
		{"empty models dir", func(c *Config) { c.ModelsDir = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MAILTRIAGE_MODE", "fast")
	t.Setenv("MAILTRIAGE_MAX_BATCH_RECORDS", "2500")
	t.Setenv("MAILTRIAGE_WEIGHT_CAP", "0.5")
	t.Setenv("MAILTRIAGE_ENABLE_SEMANTIC", "false")

	cfg := NewDefaultConfig()
	if cfg.Mode != ModeFast {
		t.Errorf("MAILTRIAGE_MODE not applied, got %s", cfg.Mode)
	}
	if cfg.MaxBatchRecords != 2500 {
		t.Errorf("MAILTRIAGE_MAX_BATCH_RECORDS not applied, got %d", cfg.MaxBatchRecords)
	}
	if cfg.WeightCap != 0.5 {
		t.Errorf("MAILTRIAGE_WEIGHT_CAP not applied, got %v", cfg.WeightCap)
	}
	if cfg.EnableSemantic {
		t.Error("MAILTRIAGE_ENABLE_SEMANTIC not applied")
	}
}

func TestEnvHelpersIgnoreGarbage(t *testing.T) {
	t.Setenv("MAILTRIAGE_ESTIMATORS", "many")
	t.Setenv("MAILTRIAGE_CONTAMINATION", "a lot")

	cfg := NewDefaultConfig()
	if cfg.Estimators != 50 {
		t.Errorf("unparseable int should fall back to default, got %d", cfg.Estimators)
	}
	if cfg.Contamination != 0.1 {
		t.Errorf("unparseable float should fall back to default, got %v", cfg.Contamination)
	}
}

func TestCommitBatchSizeClamped(t *testing.T) {
	t.Setenv("MAILTRIAGE_COMMIT_BATCH_SIZE", "0")
	if got := NewDefaultConfig().CommitBatchSize; got != 1 {
		t.Errorf("commit batch size should clamp to 1, got %d", got)
	}
}
