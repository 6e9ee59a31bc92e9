package triage

import (
	"strings"

	"github.com/stratowall/mailtriage/pkg/keywords"
)

var suspiciousNamePatterns = []string{"double extension", "hidden", "confidential", "urgent", "invoice"}

// AttachmentRiskScorer condenses attachment risk into a single [0,1] score:
// extension classes, suspicious naming and keyword hits, clamped at 1.
type AttachmentRiskScorer struct{}

// NewAttachmentRiskScorer returns a ready scorer.
func NewAttachmentRiskScorer() *AttachmentRiskScorer {
	return &AttachmentRiskScorer{}
}

// Score returns the attachment risk for a raw attachment string. An empty or
// placeholder string scores 0.
func (s *AttachmentRiskScorer) Score(attachments string, snap *keywords.Snapshot) float64 {
	if attachments == "" {
		return 0
	}
	al := lower(attachments)
	switch al {
	case "none", "null", "nan":
		return 0
	}
	if snap == nil {
		snap = keywords.EmptySnapshot()
	}

	// Each distinct extension and pattern match accumulates; only the final
	// value is clamped.
	risk := 0.0
	for _, ext := range highRiskExts {
		if strings.Contains(al, ext) {
			risk += 0.8
		}
	}
	for _, ext := range mediumRiskExts {
		if strings.Contains(al, ext) {
			risk += 0.3
		}
	}
	for _, pat := range suspiciousNamePatterns {
		if strings.Contains(al, pat) {
			risk += 0.2
		}
	}

	snap.EachAttachmentMatch(al, func(kw *keywords.Keyword) {
		switch kw.Category {
		case keywords.CategorySuspicious:
			risk += kw.Weight * 0.1
		case keywords.CategoryPersonal:
			risk += kw.Weight * 0.05
		}
	})

	if risk > 1 {
		risk = 1
	}
	return risk
}
