package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/qaforge/recall/internal/flaky"
)

var (
	flakyDays      int
	flakyMinRuns   int
	flakyThreshold float64
	healStrategy   string
	healSuccess    bool
	healDetail     string
	snapMessage    string
	snapAuthor     string
)

var flakyCmd = &cobra.Command{
	Use:   "flaky",
	Short: "Detect and triage flaky tests",
}

var flakyDetectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Scan recent executions for flaky tests",
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(cmd.Context())
		defer a.close()

		flagged, err := a.registry.DetectFlakyTests(cmd.Context(), a.cfg.Project,
			flakyDays, flakyMinRuns, flakyThreshold)
		if err != nil {
			fail(err)
		}
		if len(flagged) == 0 {
			fmt.Println("No flaky tests detected")
			return
		}
		for _, rec := range flagged {
			fmt.Printf("%-12s %5.1f%%  %-18s %s (%d/%d runs failed)\n",
				rec.Level, rec.FailureRate()*100, rec.Status, rec.TestID,
				rec.FailureCount, rec.FailureCount+rec.SuccessCount)
		}
	},
}

var flakyManifestCmd = &cobra.Command{
	Use:   "manifest [test-id]",
	Short: "Break a test's failures down by error signature",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(cmd.Context())
		defer a.close()

		rep, err := a.registry.AnalyzeManifestations(cmd.Context(), args[0], a.cfg.Project, flakyDays)
		if err != nil {
			fail(err)
		}
		fmt.Printf("%s: %d failures, %d manifestations\n", rep.TestID, rep.TotalFailures, len(rep.Manifestations))
		for _, m := range rep.Manifestations {
			fmt.Printf("  %3dx (%5.1f%%)  %s: %s  (last %s)\n",
				m.Count, m.Percent, m.ErrorType, m.MessagePrefix, m.LastSeen.Format("2006-01-02"))
		}
	},
}

var flakyHealCmd = &cobra.Command{
	Use:   "heal [test-id]",
	Short: "Record a healing attempt",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(cmd.Context())
		defer a.close()

		ev, err := a.registry.RecordHealingAttempt(cmd.Context(), flaky.HealingRequest{
			TestID:   args[0],
			Project:  a.cfg.Project,
			Strategy: healStrategy,
			Success:  healSuccess,
			Detail:   healDetail,
			Source:   "cli",
		})
		if err != nil {
			fail(err)
		}
		fmt.Printf("Recorded healing attempt %s (strategy %s)\n", ev.ID, healStrategy)
	},
}

var flakyStatusCmd = &cobra.Command{
	Use:   "status [test-id] [status]",
	Short: "Move a flaky record through its lifecycle",
	Long:  "Valid statuses: investigating, healing_attempted, healed, quarantined, false_positive.",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(cmd.Context())
		defer a.close()

		// The cache is rebuilt from history so the record exists to move.
		if _, err := a.registry.DetectFlakyTests(cmd.Context(), a.cfg.Project,
			flakyDays, flakyMinRuns, flakyThreshold); err != nil {
			fail(err)
		}
		if err := a.registry.SetStatus(args[0], flaky.Status(args[1])); err != nil {
			fail(err)
		}
		fmt.Printf("%s is now %s\n", args[0], args[1])
	},
}

var flakyReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate the combined flakiness report",
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(cmd.Context())
		defer a.close()

		rep, err := a.registry.GenerateFlakinessReport(cmd.Context(), a.cfg.Project,
			flakyDays, flakyMinRuns, flakyThreshold, a.narrator)
		if err != nil {
			fail(err)
		}
		fmt.Println(rep.Summary)
		fmt.Println()
		for _, rec := range rep.Tests {
			fmt.Printf("%-12s %5.1f%%  %s\n", rec.Level, rec.FailureRate()*100, rec.TestID)
		}
		if rep.HealingStats.TotalAttempts > 0 {
			fmt.Printf("\nHealing: %d attempts, %.0f%% success\n",
				rep.HealingStats.TotalAttempts, rep.HealingStats.SuccessRate*100)
			for strategy, per := range rep.HealingStats.PerStrategy {
				fmt.Printf("  %-20s %d attempts, %.0f%% success\n",
					strategy, per.Attempts, per.SuccessRate*100)
			}
		}
	},
}

var flakySnapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Commit the current registry state into history",
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(cmd.Context())
		defer a.close()

		if _, err := a.registry.DetectFlakyTests(cmd.Context(), a.cfg.Project,
			flakyDays, flakyMinRuns, flakyThreshold); err != nil {
			fail(err)
		}
		c, err := a.registry.CommitRegistrySnapshot(cmd.Context(), a.cfg.Project, snapMessage, snapAuthor)
		if err != nil {
			fail(err)
		}
		fmt.Printf("Snapshot committed as %s on %s\n", c.ID, c.Branch)
	},
}

func init() {
	RootCmd.AddCommand(flakyCmd)
	flakyCmd.AddCommand(flakyDetectCmd, flakyManifestCmd, flakyHealCmd, flakyStatusCmd,
		flakyReportCmd, flakySnapshotCmd)

	flakyCmd.PersistentFlags().IntVar(&flakyDays, "days", 30, "Lookback window in days")
	flakyCmd.PersistentFlags().IntVar(&flakyMinRuns, "min-executions", 5, "Minimum runs to classify")
	flakyCmd.PersistentFlags().Float64Var(&flakyThreshold, "threshold", 0.1, "Minimum failure rate")
	flakyHealCmd.Flags().StringVarP(&healStrategy, "strategy", "s", "", "Healing strategy name")
	flakyHealCmd.Flags().BoolVar(&healSuccess, "success", false, "Whether the attempt succeeded")
	flakyHealCmd.Flags().StringVar(&healDetail, "detail", "", "Free-form attempt detail")
	flakySnapshotCmd.Flags().StringVarP(&snapMessage, "message", "m", "flaky registry snapshot", "Commit message")
	flakySnapshotCmd.Flags().StringVarP(&snapAuthor, "author", "a", "recall", "Commit author")
}
