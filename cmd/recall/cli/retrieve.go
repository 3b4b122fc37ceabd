package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/qaforge/recall/internal/policy"
)

var (
	retrieveTask   string
	retrievePolicy string
	retrieveBranch string
	retrieveBudget int
	retrieveTestID string
	retrieveError  string
	retrieveFile   string
	retrieveSync   bool
)

var retrieveCmd = &cobra.Command{
	Use:   "retrieve [query]",
	Short: "Retrieve a token-budgeted context pack",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(cmd.Context())
		defer a.close()

		if retrieveSync {
			if err := a.retr.SyncProject(cmd.Context(), a.cfg.Project, 2000); err != nil {
				fail(err)
			}
		}

		inputs := map[string]string{}
		if len(args) > 0 {
			inputs["query"] = args[0]
		}
		if retrieveTestID != "" {
			inputs["test_id"] = retrieveTestID
		}
		if retrieveError != "" {
			inputs["error"] = retrieveError
		}
		if retrieveFile != "" {
			inputs["file_path"] = retrieveFile
		}

		pack, err := a.engine.RetrieveContext(cmd.Context(), policy.Request{
			Task:        retrieveTask,
			Project:     a.cfg.Project,
			Branch:      retrieveBranch,
			Inputs:      inputs,
			PolicyID:    retrievePolicy,
			TokenBudget: retrieveBudget,
		})
		if err != nil {
			fail(err)
		}

		fmt.Printf("Pack %s (policy %s): %s\n", pack.PackID, pack.PolicyID, pack.Summary)
		fmt.Printf("Tokens: %d/%d (%.0f%% utilization)\n\n",
			pack.TotalTokens, pack.BudgetTokens, pack.Utilization*100)
		for _, item := range pack.Items {
			fmt.Printf("[%.3f] %s", item.Score, item.Content)
		}
	},
}

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect retrieval policies",
}

var policyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List loaded policies",
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(cmd.Context())
		defer a.close()

		for id, p := range a.engine.Policies() {
			fmt.Printf("%-28s task=%-22s budget=%-6d max_events=%d\n",
				id, p.Task, p.BudgetTokens, p.MaxEvents)
		}
	},
}

func init() {
	RootCmd.AddCommand(retrieveCmd, policyCmd)
	policyCmd.AddCommand(policyListCmd)

	retrieveCmd.Flags().StringVarP(&retrieveTask, "task", "t", "code_review", "Task routing key")
	retrieveCmd.Flags().StringVar(&retrievePolicy, "policy", "", "Explicit policy id")
	retrieveCmd.Flags().StringVarP(&retrieveBranch, "branch", "b", "", "Branch filter")
	retrieveCmd.Flags().IntVar(&retrieveBudget, "budget", 0, "Token budget override")
	retrieveCmd.Flags().StringVar(&retrieveTestID, "test-id", "", "Test id input")
	retrieveCmd.Flags().StringVar(&retrieveError, "error", "", "Error text input")
	retrieveCmd.Flags().StringVar(&retrieveFile, "file", "", "File path input")
	retrieveCmd.Flags().BoolVar(&retrieveSync, "sync", true, "Index unseen events before retrieving")
}
