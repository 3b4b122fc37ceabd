package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/qaforge/recall/internal/regression"
)

var (
	regFiles      []string
	regDesc       string
	regTests      []string
	regMaxTests   int
	regTimeBudget int
	regBranch     string
	regReport     bool
)

var regressionCmd = &cobra.Command{
	Use:   "regression",
	Short: "Select regression tests for a change set",
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(cmd.Context())
		defer a.close()

		if len(regFiles) == 0 || len(regTests) == 0 {
			fail(fmt.Errorf("--file and --test are required"))
		}
		req := regression.Request{
			Project: a.cfg.Project,
			Branch:  regBranch,
			CodeChanges: []regression.CodeChange{{
				ID:          "cli-change",
				Files:       regFiles,
				Description: regDesc,
				Timestamp:   time.Now(),
			}},
			AvailableTests:    regTests,
			MaxTests:          regMaxTests,
			TimeBudgetMinutes: regTimeBudget,
		}

		sel, err := a.selector.SelectTests(cmd.Context(), req)
		if err != nil {
			fail(err)
		}

		if regReport {
			rep := regression.GenerateSelectionReport(a.cfg.Project, req, sel)
			fmt.Printf("Selected %d of %d candidates (avg score %.2f, est. %.1fs)\n",
				rep.Selected, rep.TotalCandidates, rep.AverageScore, rep.EstimatedDurationMS/1000)
			for level, n := range rep.RiskDistribution {
				fmt.Printf("  %-8s %d\n", level, n)
			}
			fmt.Println()
		}

		for _, t := range sel.Tests {
			fmt.Printf("%-8s %.3f  %s  (sem %.2f, corr %.2f, crit %.2f, flaky %.2f, eff %.2f)\n",
				t.RiskLevel, t.Score, t.TestID,
				t.Semantic, t.FailureCorrelation, t.Criticality, t.Flakiness, t.Efficiency)
		}
		if sel.DroppedLowScore > 0 || sel.DroppedByBudget > 0 {
			fmt.Printf("Dropped: %d below threshold, %d over time budget\n",
				sel.DroppedLowScore, sel.DroppedByBudget)
		}
	},
}

func init() {
	RootCmd.AddCommand(regressionCmd)

	regressionCmd.Flags().StringSliceVarP(&regFiles, "file", "f", nil, "Changed file or glob (repeatable)")
	regressionCmd.Flags().StringVarP(&regDesc, "description", "d", "", "Change description")
	regressionCmd.Flags().StringSliceVarP(&regTests, "test", "t", nil, "Candidate test id (repeatable)")
	regressionCmd.Flags().IntVar(&regMaxTests, "max-tests", 0, "Cap on selected tests")
	regressionCmd.Flags().IntVar(&regTimeBudget, "time-budget", 0, "Time budget in minutes")
	regressionCmd.Flags().StringVarP(&regBranch, "branch", "b", "", "Branch scope")
	regressionCmd.Flags().BoolVar(&regReport, "report", false, "Print the full selection report")
}
