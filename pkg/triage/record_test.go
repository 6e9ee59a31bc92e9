package triage

import "testing"

func TestThresholdBoundaries(t *testing.T) {
	th := DefaultThresholds()

	tests := []struct {
		score float64
		want  RiskLevel
	}{
		{0.95, RiskCritical},
		{0.8, RiskCritical}, // boundary is inclusive
		{0.79, RiskHigh},
		{0.6, RiskHigh},
		{0.59, RiskMedium},
		{0.4, RiskMedium},
		{0.39, RiskLow},
		{0.0, RiskLow},
	}
	for _, tt := range tests {
		if got := th.LevelFor(tt.score); got != tt.want {
			t.Errorf("LevelFor(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestFastThresholds(t *testing.T) {
	th := FastThresholds()
	if got := th.LevelFor(0.7); got != RiskCritical {
		t.Errorf("fast LevelFor(0.7) = %s, want Critical", got)
	}
	if got := th.LevelFor(0.5); got != RiskHigh {
		t.Errorf("fast LevelFor(0.5) = %s, want High", got)
	}
	if got := th.LevelFor(0.3); got != RiskMedium {
		t.Errorf("fast LevelFor(0.3) = %s, want Medium", got)
	}
}

func TestIsLeaver(t *testing.T) {
	tests := []struct {
		leaver string
		want   bool
	}{
		{"yes", true},
		{"YES", true},
		{"true", true},
		{"1", true},
		{"no", false},
		{"", false},
		{"maybe", false},
	}
	for _, tt := range tests {
		r := EmailRecord{Leaver: tt.leaver}
		if got := r.IsLeaver(); got != tt.want {
			t.Errorf("IsLeaver(%q) = %v, want %v", tt.leaver, got, tt.want)
		}
	}
}

func TestHasAttachments(t *testing.T) {
	tests := []struct {
		attachments string
		want        bool
	}{
		{"", false},
		{"none", false},
		{"None", false},
		{"null", false},
		{"nan", false},
		{"report.pdf", true},
	}
	for _, tt := range tests {
		r := EmailRecord{Attachments: tt.attachments}
		if got := r.HasAttachments(); got != tt.want {
			t.Errorf("HasAttachments(%q) = %v, want %v", tt.attachments, got, tt.want)
		}
	}
}

func TestCaseStatusTerminal(t *testing.T) {
	if CaseActive.Terminal() {
		t.Error("Active must not be terminal")
	}
	if !CaseCleared.Terminal() || !CaseEscalated.Terminal() {
		t.Error("Cleared and Escalated must be terminal")
	}
}

func TestFeedbackLabel(t *testing.T) {
	esc := FeedbackRecord{Decision: CaseEscalated}
	clr := FeedbackRecord{Decision: CaseCleared}
	if esc.Label() != 1 {
		t.Errorf("escalated label = %v, want 1", esc.Label())
	}
	if clr.Label() != 0 {
		t.Errorf("cleared label = %v, want 0", clr.Label())
	}
}
