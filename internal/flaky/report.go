package flaky

import (
	"context"
	"fmt"
	"strings"
)

// Top-N cutoff for the report's test list.
const reportTopN = 20

// Narrator produces free-text summaries. Optional; failures fall back to
// the templated summary and never surface as errors.
type Narrator interface {
	Summarize(ctx context.Context, prompt string) (string, error)
}

// Report is the combined detection and healing payload for one project.
type Report struct {
	Project      string        `json:"project"`
	WindowDays   int           `json:"window_days"`
	TotalFlagged int           `json:"total_flagged"`
	ByLevel      map[Level]int `json:"by_level"`
	Tests        []*Record     `json:"tests"`
	HealingStats *HealingStats `json:"healing_stats"`
	Summary      string        `json:"summary"`
}

// GenerateFlakinessReport orchestrates detection and healing aggregation
// into one payload, listing the top flaky tests by failure rate. When a
// narrator is set its failure is logged and the templated summary used
// instead.
func (r *Registry) GenerateFlakinessReport(ctx context.Context, project string, days, minExecutions int, threshold float64, narrator Narrator) (*Report, error) {
	ctx, span := r.obs.StartSpan(ctx, "flaky.GenerateFlakinessReport")
	defer span.End()

	flagged, err := r.DetectFlakyTests(ctx, project, days, minExecutions, threshold)
	if err != nil {
		return nil, err
	}
	healing, err := r.GetHealingSuccessRate(ctx, project, "", "", days)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Project:      project,
		WindowDays:   days,
		TotalFlagged: len(flagged),
		ByLevel:      make(map[Level]int),
		Tests:        flagged,
		HealingStats: healing,
	}
	for _, rec := range flagged {
		report.ByLevel[rec.Level]++
	}
	if len(report.Tests) > reportTopN {
		report.Tests = report.Tests[:reportTopN]
	}

	report.Summary = templatedSummary(report)
	if narrator != nil {
		if text, err := narrator.Summarize(ctx, report.Summary); err != nil {
			r.obs.Log().Warn().Err(err).Msg("narrative summary failed, using template")
		} else if text != "" {
			report.Summary = text
		}
	}
	return report, nil
}

// templatedSummary is the deterministic fallback narrative.
func templatedSummary(rep *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d flaky tests in project %s over the last %d days",
		rep.TotalFlagged, rep.Project, rep.WindowDays)
	for _, lvl := range []Level{LevelSevere, LevelHigh, LevelModerate, LevelIntermittent} {
		if n := rep.ByLevel[lvl]; n > 0 {
			fmt.Fprintf(&b, "; %d %s", n, lvl)
		}
	}
	b.WriteString(".")
	if rep.HealingStats != nil && rep.HealingStats.TotalAttempts > 0 {
		fmt.Fprintf(&b, " Healing: %d attempts, %.0f%% successful.",
			rep.HealingStats.TotalAttempts, rep.HealingStats.SuccessRate*100)
	}
	if len(rep.Tests) > 0 {
		worst := rep.Tests[0]
		fmt.Fprintf(&b, " Worst offender: %s at %.0f%% failure rate.",
			worst.TestID, worst.FailureRate()*100)
	}
	return b.String()
}
