package triage

import (
	"strings"

	"github.com/stratowall/mailtriage/pkg/keywords"
)

var suspiciousJustificationTerms = []string{"urgent", "confidential", "personal", "mistake", "wrong"}

// RuleContribution is one named factor that fed a rule-based score, kept for
// explanations and session insights.
type RuleContribution struct {
	Factor string
	Value  float64
}

// RuleModel produces the deterministic, keyword-driven half of the blended
// risk score. It needs no training data and is the scoring floor when every
// learned layer is unavailable.
type RuleModel struct {
	attachments *AttachmentRiskScorer
}

// NewRuleModel returns a rule model backed by the given attachment scorer.
func NewRuleModel(att *AttachmentRiskScorer) *RuleModel {
	return &RuleModel{attachments: att}
}

// Risk computes the rule-based risk score for one record, along with the
// contributing factors. The sum is deliberately not clamped here: the blend
// clamps the final score, so a record firing every factor keeps its full
// weight against the anomaly side.
func (m *RuleModel) Risk(r *EmailRecord, snap *keywords.Snapshot) (float64, []RuleContribution) {
	if snap == nil {
		snap = keywords.EmptySnapshot()
	}
	risk := 0.0
	var factors []RuleContribution
	add := func(name string, v float64) {
		if v <= 0 {
			return
		}
		risk += v
		factors = append(factors, RuleContribution{Factor: name, Value: v})
	}

	if r.IsLeaver() {
		add("leaver", 0.3)
	}
	if isPublicDomain(r.RecipientDomain) {
		add("external_domain", 0.2)
	}
	if r.HasAttachments() {
		add("attachments", m.attachments.Score(r.Attachments, snap)*0.3)
	}
	add("wordlist", m.WordlistRisk(r, snap))
	if containsAny(lower(r.Time), weekendTokens) {
		add("weekend_send", 0.1)
	}
	if containsAny(lower(r.Justification), suspiciousJustificationTerms) {
		add("justification", 0.1)
	}
	return risk, factors
}

// WordlistRisk sums category-weighted keyword hits over subject and
// attachments, capped at 0.3 so keywords season the score rather than
// dominate it.
func (m *RuleModel) WordlistRisk(r *EmailRecord, snap *keywords.Snapshot) float64 {
	subject := lower(r.Subject)
	attachments := lower(r.Attachments)

	risk := 0.0
	snap.EachMatch(subject, attachments, func(kw *keywords.Keyword) {
		switch kw.Category {
		case keywords.CategorySuspicious:
			risk += kw.Weight * 0.05
		case keywords.CategoryPersonal:
			risk += kw.Weight * 0.03
		case keywords.CategoryBusiness:
			risk += kw.Weight * 0.01
		}
	})

	if risk > 0.3 {
		risk = 0.3
	}
	return risk
}

// AnomalyProxy stands in for the detector when it could not fit: fixed
// increments for the strongest outlier signals, capped at 1.
func (m *RuleModel) AnomalyProxy(r *EmailRecord, snap *keywords.Snapshot) float64 {
	if snap == nil {
		snap = keywords.EmptySnapshot()
	}
	proxy := 0.0
	if r.IsLeaver() {
		proxy += 0.4
	}
	if isPublicDomain(r.RecipientDomain) {
		proxy += 0.3
	}
	if m.attachments.Score(r.Attachments, snap) > 0.5 {
		proxy += 0.3
	}
	if r.HasWordlistHit() || snap.Matches(lower(r.Subject), lower(r.Attachments)) {
		proxy += 0.2
	}
	if containsAny(r.Time, afterHoursTokens) {
		proxy += 0.1
	}
	if proxy > 1 {
		proxy = 1
	}
	return proxy
}

// BasicScore is the last-resort formula: every record gets some score even
// when the whole pipeline is unusable.
func (m *RuleModel) BasicScore(r *EmailRecord, snap *keywords.Snapshot) float64 {
	if snap == nil {
		snap = keywords.EmptySnapshot()
	}
	risk := 0.0
	if r.IsLeaver() {
		risk += 0.3
	}
	if isPublicDomain(r.RecipientDomain) {
		risk += 0.2
	}
	risk += m.attachments.Score(r.Attachments, snap) * 0.25
	if r.HasWordlistHit() || snap.Matches(lower(r.Subject), lower(r.Attachments)) {
		risk += 0.15
	}
	if n := len(r.Subject); n < 5 || n > 100 {
		risk += 0.1
	}
	if risk > 1 {
		risk = 1
	}
	return risk
}

// FastScore is the additive triage-mode score with its own thresholds. It
// trades the learned layers for constant-time scoring on bulk exports.
func (m *RuleModel) FastScore(r *EmailRecord) float64 {
	risk := 0.1
	if isPublicDomain(r.RecipientDomain) {
		risk += 0.3
	}
	if r.HasAttachments() {
		risk += 0.2
	}
	if r.IsLeaver() {
		risk += 0.4
	}
	if risk > 1 {
		risk = 1
	}
	return risk
}

func isPublicDomain(domain string) bool {
	d := lower(strings.TrimSpace(domain))
	if d == "" {
		return false
	}
	for _, pub := range publicDomains {
		if strings.Contains(d, pub) {
			return true
		}
	}
	return false
}
