package triage

import (
	"testing"

	"github.com/stratowall/mailtriage/pkg/keywords"
)

func TestAttachmentRiskScore(t *testing.T) {
	s := NewAttachmentRiskScorer()
	snap := keywords.EmptySnapshot()

	tests := []struct {
		name        string
		attachments string
		want        float64
	}{
		{"empty", "", 0},
		{"none placeholder", "none", 0},
		{"null placeholder", "null", 0},
		{"benign document", "meeting_notes.pdf", 0.3},
		{"executable", "tool.exe", 0.8},
		{"executable with lure name", "invoice.exe", 1.0}, // 0.8 + 0.2 clamps at 1
		{"archive with hidden marker", "hidden_files.zip", 0.5},
		{"archive with neutral name", "backup.zip", 0.3},
		{"two medium extensions", "report.pdf, data.rar", 0.6},
		{"two high-risk extensions", "payload.exe, macro.vbs", 1.0}, // 0.8 each, clamped
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Score(tt.attachments, snap)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("Score(%q) = %v, want %v", tt.attachments, got, tt.want)
			}
		})
	}
}

func TestAttachmentRiskMonotonicUnderSignals(t *testing.T) {
	s := NewAttachmentRiskScorer()
	snap := keywords.EmptySnapshot()

	plain := s.Score("notes.txt", snap)
	document := s.Score("notes.pdf", snap)
	executable := s.Score("notes.exe", snap)

	if !(plain <= document && document <= executable) {
		t.Errorf("risk should not decrease as signals strengthen: %v, %v, %v",
			plain, document, executable)
	}
}

func TestAttachmentRiskKeywordContribution(t *testing.T) {
	s := NewAttachmentRiskScorer()
	reg := keywords.NewRegistry([]keywords.Keyword{
		{Text: "payroll", Category: keywords.CategorySuspicious, Weight: 4,
			Kind: keywords.KindRisk, Scope: keywords.ScopeAttachment, Active: true},
		{Text: "passport", Category: keywords.CategoryPersonal, Weight: 4,
			Kind: keywords.KindRisk, Scope: keywords.ScopeAttachment, Active: true},
	})
	snap := reg.Snapshot()

	// Suspicious contributes weight*0.1, Personal weight*0.05.
	suspicious := s.Score("payroll.txt", snap)
	personal := s.Score("passport.txt", snap)
	if suspicious <= personal {
		t.Errorf("suspicious keyword should outweigh personal: %v <= %v", suspicious, personal)
	}
	if want := 0.4; !closeTo(suspicious, want) {
		t.Errorf("suspicious contribution = %v, want %v", suspicious, want)
	}
	if want := 0.2; !closeTo(personal, want) {
		t.Errorf("personal contribution = %v, want %v", personal, want)
	}
}

func TestAttachmentRiskClamped(t *testing.T) {
	s := NewAttachmentRiskScorer()
	reg := keywords.NewRegistry([]keywords.Keyword{
		{Text: "backup", Category: keywords.CategorySuspicious, Weight: 10,
			Kind: keywords.KindRisk, Scope: keywords.ScopeAttachment, Active: true},
	})
	got := s.Score("urgent_backup_invoice.exe.zip", reg.Snapshot())
	if got != 1 {
		t.Errorf("stacked signals must clamp at 1, got %v", got)
	}
}

func closeTo(got, want float64) bool {
	diff := got - want
	return diff < 1e-9 && diff > -1e-9
}
