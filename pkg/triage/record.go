// Package triage implements the risk-scoring and adaptive-learning core of
// the email DLP pipeline: feature engineering, per-batch anomaly detection,
// rule-based scoring, the anomaly/rule/adaptive blend, and the feedback loop
// that retrains the adaptive classifier from analyst decisions.
package triage

import (
	"strings"
	"time"
)

func lower(s string) string { return strings.ToLower(s) }

// CaseStatus is the analyst decision state on a record.
type CaseStatus string

const (
	CaseActive    CaseStatus = "Active"
	CaseCleared   CaseStatus = "Cleared"
	CaseEscalated CaseStatus = "Escalated"
)

// Terminal reports whether the case has received an analyst decision.
func (s CaseStatus) Terminal() bool {
	return s == CaseCleared || s == CaseEscalated
}

// RiskLevel is the categorical form of a risk score.
type RiskLevel string

const (
	RiskCritical RiskLevel = "Critical"
	RiskHigh     RiskLevel = "High"
	RiskMedium   RiskLevel = "Medium"
	RiskLow      RiskLevel = "Low"
)

// Thresholds maps a numeric risk score to a RiskLevel. The same table is
// used everywhere in the system.
type Thresholds struct {
	Critical float64
	High     float64
	Medium   float64
}

// DefaultThresholds is the fixed production mapping.
func DefaultThresholds() Thresholds {
	return Thresholds{Critical: 0.8, High: 0.6, Medium: 0.4}
}

// FastThresholds is the mapping used by the heuristics-only fast path.
func FastThresholds() Thresholds {
	return Thresholds{Critical: 0.7, High: 0.5, Medium: 0.3}
}

// LevelFor converts a score into its categorical level.
func (t Thresholds) LevelFor(score float64) RiskLevel {
	switch {
	case score >= t.Critical:
		return RiskCritical
	case score >= t.High:
		return RiskHigh
	case score >= t.Medium:
		return RiskMedium
	default:
		return RiskLow
	}
}

// EmailRecord is one gateway export row as handed to the core by the ingest
// layer. All fields are plain values with empty-string/zero defaults baked in
// at the ingestion boundary; the core never needs attribute-or-default access.
//
// Input fields come from the export; the ML* fields and RiskLevel are owned
// by the core and written back after scoring. CaseStatus is written by
// analysts and read back as the training label.
type EmailRecord struct {
	ID        string
	SessionID string

	Sender          string
	Subject         string
	Attachments     string // comma-separated free text, as exported
	Recipients      string
	RecipientDomain string
	Justification   string
	Time            string // raw export timestamp text, matched by token
	Leaver          string // "yes"/"true"/"1" variants, case-insensitive
	Department      string
	BusinessUnit    string
	AccountType     string

	// Pre-computed wordlist hits from the ingest filter, carried through for
	// the fallback scoring paths.
	WordlistSubject    string
	WordlistAttachment string

	CaseStatus CaseStatus
	ResolvedAt *time.Time

	// Core-owned outputs.
	MLRiskScore    float64
	MLAnomalyScore *float64
	RiskLevel      RiskLevel
	MLExplanation  string
}

// IsLeaver reports whether the record's sender is flagged as a leaver.
func (r *EmailRecord) IsLeaver() bool {
	switch lower(r.Leaver) {
	case "yes", "true", "1":
		return true
	}
	return false
}

// HasAttachments reports whether the export row carries attachment text.
// Gateway exports use a handful of placeholder spellings for "none".
func (r *EmailRecord) HasAttachments() bool {
	switch lower(r.Attachments) {
	case "", "none", "null", "nan":
		return false
	}
	return true
}

// HasWordlistHit reports whether the ingest filter matched a wordlist entry.
func (r *EmailRecord) HasWordlistHit() bool {
	return r.WordlistAttachment != "" || r.WordlistSubject != ""
}

// FeedbackRecord is one analyst decision used as a training example.
type FeedbackRecord struct {
	RecordID        string
	SessionID       string
	Decision        CaseStatus // Escalated or Cleared
	OriginalMLScore float64
	DecidedAt       time.Time
}

// Label converts the decision into a training label: 1 for Escalated, 0 for
// Cleared.
func (f *FeedbackRecord) Label() float64 {
	if f.Decision == CaseEscalated {
		return 1
	}
	return 0
}
