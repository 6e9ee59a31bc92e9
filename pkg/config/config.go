package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ScoringMode selects how much of the pipeline a scoring run uses
type ScoringMode string

const (
	// ModeFull runs feature extraction, anomaly detection, rule scoring and
	// the adaptive blend. Default.
	ModeFull ScoringMode = "full"
	// ModeFast runs the heuristics-only fast path (no model fitting).
	// Used for oversized batches and latency-sensitive deployments.
	ModeFast ScoringMode = "fast"
)

// Config holds global settings for the mailtriage core.
// All settings can be configured via environment variables or programmatically.
type Config struct {
	// === Risk thresholds (0.0 - 1.0) ===
	// Fixed score-to-level mapping used everywhere in the system.
	CriticalThreshold float64 // score >= this -> Critical (default: 0.8)
	HighThreshold     float64 // score >= this -> High (default: 0.6)
	MediumThreshold   float64 // score >= this -> Medium (default: 0.4)

	// === Scoring pipeline ===
	Mode            ScoringMode // "full" or "fast" (default: full)
	MaxBatchRecords int         // Cap on records scored per run (default: 10000)
	CommitBatchSize int         // Record write-back chunk size (default: 500)

	// === Anomaly detector ===
	Contamination  float64 // Fixed contamination rate (default: 0.1)
	Estimators     int     // Isolation forest tree count cap (default: 50)
	MinAnomalyRows int     // Below this, anomaly scores are all zero (default: 10)

	// === Adaptive learning ===
	MinFeedback       int           // Labeled decisions needed before first fit (default: 10)
	MinWeightEval     int           // Labeled decisions needed for AUC weight tuning (default: 20)
	InitialWeight     float64       // Cold-start adaptive weight (default: 0.1)
	WeightFloor       float64       // Lower bound for adaptive weight (default: 0.1)
	WeightCap         float64       // Upper bound for adaptive weight (default: 0.7)
	WeightStepUp      float64       // Reward step when the adaptive model wins (default: 0.05)
	WeightStepDown    float64       // Penalty step when it loses (default: 0.02)
	RecentFeedbackAge time.Duration // Decisions newer than this trigger opportunistic learning (default: 24h)

	// === Persistence ===
	ModelsDir    string // Directory for model artifacts (default: "models")
	DatabaseURL  string // Postgres DSN; empty disables the record stores
	KeywordsFile string // YAML keyword seed file; empty uses built-in defaults

	// === Analytics cache ===
	RedisAddr         string        // Redis address; empty disables the cache
	AnalyticsCacheTTL time.Duration // TTL for cached fast-analytics payloads (default: 60s)

	// === Semantic signal (optional layer) ===
	EnableSemantic    bool    // Enable chromem-go similarity signal (default: true)
	OllamaURL         string  // Embedding backend (default: http://localhost:11434)
	EmbeddingModel    string  // Ollama embedding model (default: "embeddinggemma")
	SemanticThreshold float32 // Similarity needed to count as a signal (default: 0.7)

	// === Gateway ===
	ListenAddr string // HTTP listen address for `triaged serve` (default: ":3000")
}

// NewDefaultConfig creates a Config with sensible defaults.
// All settings can be overridden via environment variables.
func NewDefaultConfig() *Config {
	return &Config{
		CriticalThreshold: GetEnvFloat("MAILTRIAGE_CRITICAL_THRESHOLD", 0.8),
		HighThreshold:     GetEnvFloat("MAILTRIAGE_HIGH_THRESHOLD", 0.6),
		MediumThreshold:   GetEnvFloat("MAILTRIAGE_MEDIUM_THRESHOLD", 0.4),

		Mode:            ScoringMode(GetEnv("MAILTRIAGE_MODE", string(ModeFull))),
		MaxBatchRecords: GetEnvInt("MAILTRIAGE_MAX_BATCH_RECORDS", 10000),
		CommitBatchSize: clampInt(GetEnvInt("MAILTRIAGE_COMMIT_BATCH_SIZE", 500), 1, 10000),

		Contamination:  GetEnvFloat("MAILTRIAGE_CONTAMINATION", 0.1),
		Estimators:     clampInt(GetEnvInt("MAILTRIAGE_ESTIMATORS", 50), 1, 500),
		MinAnomalyRows: GetEnvInt("MAILTRIAGE_MIN_ANOMALY_ROWS", 10),

		MinFeedback:       GetEnvInt("MAILTRIAGE_MIN_FEEDBACK", 10),
		MinWeightEval:     GetEnvInt("MAILTRIAGE_MIN_WEIGHT_EVAL", 20),
		InitialWeight:     GetEnvFloat("MAILTRIAGE_INITIAL_WEIGHT", 0.1),
		WeightFloor:       GetEnvFloat("MAILTRIAGE_WEIGHT_FLOOR", 0.1),
		WeightCap:         GetEnvFloat("MAILTRIAGE_WEIGHT_CAP", 0.7),
		WeightStepUp:      GetEnvFloat("MAILTRIAGE_WEIGHT_STEP_UP", 0.05),
		WeightStepDown:    GetEnvFloat("MAILTRIAGE_WEIGHT_STEP_DOWN", 0.02),
		RecentFeedbackAge: time.Duration(GetEnvInt("MAILTRIAGE_RECENT_FEEDBACK_HOURS", 24)) * time.Hour,

		ModelsDir:    GetEnv("MAILTRIAGE_MODELS_DIR", "models"),
		DatabaseURL:  GetEnv("MAILTRIAGE_DATABASE_URL", os.Getenv("DATABASE_URL")),
		KeywordsFile: GetEnv("MAILTRIAGE_KEYWORDS_FILE", ""),

		RedisAddr:         GetEnv("MAILTRIAGE_REDIS_ADDR", ""),
		AnalyticsCacheTTL: time.Duration(GetEnvInt("MAILTRIAGE_ANALYTICS_CACHE_TTL_SECONDS", 60)) * time.Second,

		EnableSemantic:    GetEnvBool("MAILTRIAGE_ENABLE_SEMANTIC", true),
		OllamaURL:         GetEnv("MAILTRIAGE_OLLAMA_URL", "http://localhost:11434"),
		EmbeddingModel:    GetEnv("MAILTRIAGE_EMBEDDING_MODEL", "embeddinggemma"),
		SemanticThreshold: float32(GetEnvFloat("MAILTRIAGE_SEMANTIC_THRESHOLD", 0.7)),

		ListenAddr: GetEnv("MAILTRIAGE_LISTEN_ADDR", ":3000"),
	}
}

// NewFastConfig creates a Config for heuristics-only operation: no anomaly
// model fitting, no semantic layer. Use for very large gateway exports or
// constrained hosts.
func NewFastConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.Mode = ModeFast
	cfg.EnableSemantic = false
	return cfg
}

// NewStrictConfig lowers the risk thresholds so more cases surface for review.
// Expect more Medium/High noise in exchange for fewer missed exfiltration cases.
func NewStrictConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.CriticalThreshold = 0.7
	cfg.HighThreshold = 0.5
	cfg.MediumThreshold = 0.3
	return cfg
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	var problems []string

	if !(c.MediumThreshold < c.HighThreshold && c.HighThreshold < c.CriticalThreshold) {
		problems = append(problems, "risk thresholds must be ordered medium < high < critical")
	}
	if c.Mode != ModeFull && c.Mode != ModeFast {
		problems = append(problems, fmt.Sprintf("unknown scoring mode %q", c.Mode))
	}
	if c.WeightFloor > c.WeightCap {
		problems = append(problems, "weight floor exceeds weight cap")
	}
	if c.InitialWeight < c.WeightFloor || c.InitialWeight > c.WeightCap {
		problems = append(problems, "initial adaptive weight outside [floor, cap]")
	}
	if c.Contamination <= 0 || c.Contamination >= 0.5 {
		problems = append(problems, "contamination must be in (0, 0.5)")
	}
	if c.ModelsDir == "" {
		problems = append(problems, "models directory must not be empty")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// clampInt ensures a value is within bounds
func clampInt(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

// Helper functions for environment variable parsing.
// Exported for use by other packages.

// GetEnv returns the value of an environment variable or a default value.
func GetEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// GetEnvBool returns the boolean value of an environment variable or a default value.
func GetEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

// GetEnvFloat returns the float64 value of an environment variable or a default value.
func GetEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}

// GetEnvInt returns the integer value of an environment variable or a default value.
func GetEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

// GetEnvSlice returns a comma-separated list from an environment variable or a default value.
func GetEnvSlice(key string, defaultValue []string) []string {
	if v := os.Getenv(key); v != "" {
		var parts []string
		for _, p := range strings.Split(v, ",") {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
		if len(parts) > 0 {
			return parts
		}
	}
	return defaultValue
}
