package regression

// Report is a read-only projection of one selection outcome.
type Report struct {
	Project             string         `json:"project"`
	TotalCandidates     int            `json:"total_candidates"`
	Selected            int            `json:"selected"`
	DroppedLowScore     int            `json:"dropped_low_score"`
	DroppedByBudget     int            `json:"dropped_by_budget"`
	AverageScore        float64        `json:"average_score"`
	EstimatedDurationMS float64        `json:"estimated_duration_ms"`
	RiskDistribution    map[string]int `json:"risk_distribution"`
	Tests               []ScoredTest   `json:"tests"`
	CodeChanges         []CodeChange   `json:"code_changes"`
}

// GenerateSelectionReport summarizes a selection. Pure projection, no
// store access and no side effects.
func GenerateSelectionReport(project string, req Request, sel *Selection) *Report {
	rep := &Report{
		Project:             project,
		TotalCandidates:     sel.TotalCandidates,
		Selected:            len(sel.Tests),
		DroppedLowScore:     sel.DroppedLowScore,
		DroppedByBudget:     sel.DroppedByBudget,
		EstimatedDurationMS: sel.EstimatedDurationMS,
		RiskDistribution:    make(map[string]int),
		Tests:               sel.Tests,
		CodeChanges:         req.CodeChanges,
	}
	var sum float64
	for _, t := range sel.Tests {
		rep.RiskDistribution[t.RiskLevel]++
		sum += t.Score
	}
	if len(sel.Tests) > 0 {
		rep.AverageScore = sum / float64(len(sel.Tests))
	}
	return rep
}
