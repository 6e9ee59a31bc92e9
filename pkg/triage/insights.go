package triage

import "fmt"

// FactorIncidence is one risk factor's share of the session's high-risk cases.
type FactorIncidence struct {
	Factor string  `json:"factor"`
	Rate   float64 `json:"rate"`
}

// SessionInsights aggregates a scored session for the analyst dashboard.
type SessionInsights struct {
	TotalRecords    int               `json:"total_records"`
	AnalyzedRecords int               `json:"analyzed_records"`
	AverageRisk     float64           `json:"average_risk"`
	Levels          map[RiskLevel]int `json:"risk_distribution"`
	TopFactors      []FactorIncidence `json:"top_risk_factors"`
	Recommendations []string          `json:"recommendations"`
}

// factors count as "top" above this share of high-risk cases
const factorIncidenceFloor = 0.3

// BuildInsights summarizes scored records. Records without a score yet count
// toward the total but not the analysis.
func BuildInsights(records []*EmailRecord) *SessionInsights {
	ins := &SessionInsights{
		TotalRecords: len(records),
		Levels:       make(map[RiskLevel]int),
	}

	var (
		riskSum     float64
		highRisk    int
		leavers     int
		external    int
		attachments int
	)
	for _, r := range records {
		if r.RiskLevel == "" {
			continue
		}
		ins.AnalyzedRecords++
		ins.Levels[r.RiskLevel]++
		riskSum += r.MLRiskScore

		if r.RiskLevel == RiskCritical || r.RiskLevel == RiskHigh {
			highRisk++
			if r.IsLeaver() {
				leavers++
			}
			if isPublicDomain(r.RecipientDomain) {
				external++
			}
			if r.HasAttachments() {
				attachments++
			}
		}
	}
	if ins.AnalyzedRecords > 0 {
		ins.AverageRisk = riskSum / float64(ins.AnalyzedRecords)
	}

	if highRisk > 0 {
		addFactor := func(name string, count int) {
			rate := float64(count) / float64(highRisk)
			if rate > factorIncidenceFloor {
				ins.TopFactors = append(ins.TopFactors, FactorIncidence{Factor: name, Rate: rate})
			}
		}
		addFactor("departing employees", leavers)
		addFactor("external recipient domains", external)
		addFactor("attachments", attachments)
	}

	ins.Recommendations = buildRecommendations(ins, highRisk, external)
	return ins
}

func buildRecommendations(ins *SessionInsights, highRisk, external int) []string {
	var recs []string
	if n := ins.Levels[RiskCritical]; n > 0 {
		recs = append(recs, fmt.Sprintf("Review %d critical-risk cases immediately", n))
	}
	if highRisk > 0 {
		recs = append(recs, fmt.Sprintf("%d high-risk cases need analyst triage", highRisk))
	}
	if ins.AnalyzedRecords > 0 && float64(external) > 0.5*float64(highRisk) && highRisk >= 3 {
		recs = append(recs, "External personal-email volume is elevated; consider tightening the egress policy")
	}
	if len(recs) == 0 {
		recs = append(recs, "No immediate action required")
	}
	return recs
}
