package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/qaforge/recall/internal/event"
)

var (
	branchFrom   string
	branchDesc   string
	branchForce  bool
	commitBranch string
	commitAuthor string
	commitTags   []string
	tagMessage   string
	logLimit     int
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Branch, commit, and tag event history",
}

var branchCmd = &cobra.Command{
	Use:   "branch",
	Short: "Manage branches",
}

var branchCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a branch from an existing one",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(cmd.Context())
		defer a.close()

		b, err := a.journal.CreateBranch(cmd.Context(), args[0], branchFrom, branchDesc)
		if err != nil {
			fail(err)
		}
		fmt.Printf("Created branch %s (head %s)\n", b.Name, headOrNone(b.HeadCommit))
	},
}

var branchDeleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Delete a branch (must be merged unless --force)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(cmd.Context())
		defer a.close()

		if err := a.journal.DeleteBranch(cmd.Context(), args[0], branchForce); err != nil {
			fail(err)
		}
		fmt.Printf("Deleted branch %s\n", args[0])
	},
}

var branchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List branches",
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(cmd.Context())
		defer a.close()

		branches, err := a.journal.Branches(cmd.Context())
		if err != nil {
			fail(err)
		}
		for _, b := range branches {
			fmt.Printf("%-24s %s\n", b.Name, headOrNone(b.HeadCommit))
		}
	},
}

var commitCmd = &cobra.Command{
	Use:   "commit [message] [event-id...]",
	Short: "Commit a set of events onto a branch",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(cmd.Context())
		defer a.close()

		c, err := a.journal.Commit(cmd.Context(), commitBranch, args[1:], args[0], commitAuthor, commitTags)
		if err != nil {
			fail(err)
		}
		fmt.Printf("Committed %s on %s (%d events)\n", c.ID, c.Branch, len(c.EventIDs))
	},
}

var logCmd = &cobra.Command{
	Use:   "log [branch]",
	Short: "Show commit history for a branch",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(cmd.Context())
		defer a.close()

		commits, err := a.journal.History(cmd.Context(), args[0], logLimit)
		if err != nil {
			fail(err)
		}
		for _, c := range commits {
			line := fmt.Sprintf("%s  %s  %s  %q", c.ID, c.Timestamp.Format("2006-01-02 15:04"), c.Author, c.Message)
			if len(c.Tags) > 0 {
				line += "  [" + strings.Join(c.Tags, ", ") + "]"
			}
			fmt.Println(line)
		}
	},
}

var showCmd = &cobra.Command{
	Use:   "show [commit-or-tag]",
	Short: "Show the events recorded at a commit or tag",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(cmd.Context())
		defer a.close()

		events, err := a.journal.EventsAtCommit(cmd.Context(), args[0])
		if err != nil {
			events, err = a.journal.EventsAtTag(cmd.Context(), args[0])
		}
		if err != nil {
			fail(err)
		}
		for _, ev := range events {
			fmt.Print(event.Render(ev))
		}
	},
}

var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Manage tags",
}

var tagCreateCmd = &cobra.Command{
	Use:   "create [name] [commit-id]",
	Short: "Tag a commit",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(cmd.Context())
		defer a.close()

		tg, err := a.journal.CreateTag(cmd.Context(), args[0], args[1], tagMessage)
		if err != nil {
			fail(err)
		}
		fmt.Printf("Tagged %s as %s\n", tg.CommitID, tg.Name)
	},
}

var tagDeleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Delete a tag",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(cmd.Context())
		defer a.close()

		if err := a.journal.DeleteTag(cmd.Context(), args[0]); err != nil {
			fail(err)
		}
		fmt.Printf("Deleted tag %s\n", args[0])
	},
}

var diffCmd = &cobra.Command{
	Use:   "diff [commit-a] [commit-b]",
	Short: "Compare the event sets of two commits",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(cmd.Context())
		defer a.close()

		d, err := a.journal.Diff(cmd.Context(), args[0], args[1])
		if err != nil {
			fail(err)
		}
		for _, id := range d.Added {
			fmt.Printf("+ %s\n", id)
		}
		for _, id := range d.Removed {
			fmt.Printf("- %s\n", id)
		}
		fmt.Printf("%d added, %d removed, %d common\n", len(d.Added), len(d.Removed), len(d.Common))
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show journal statistics",
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(cmd.Context())
		defer a.close()

		s, err := a.journal.Stats(cmd.Context())
		if err != nil {
			fail(err)
		}
		fmt.Printf("Branches: %d  Commits: %d  Tags: %d  Commits (7d): %d\n",
			s.Branches, s.Commits, s.Tags, s.CommitsLast7Days)
		for branch, n := range s.PerBranch {
			fmt.Printf("  %-24s %d commits\n", branch, n)
		}
	},
}

func headOrNone(head string) string {
	if head == "" {
		return "(no commits)"
	}
	return head
}

func init() {
	RootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(branchCmd, commitCmd, logCmd, showCmd, tagCmd, diffCmd, statsCmd)
	branchCmd.AddCommand(branchCreateCmd, branchDeleteCmd, branchListCmd)
	tagCmd.AddCommand(tagCreateCmd, tagDeleteCmd)

	branchCreateCmd.Flags().StringVar(&branchFrom, "from", "main", "Source branch")
	branchCreateCmd.Flags().StringVarP(&branchDesc, "description", "d", "", "Branch description")
	branchDeleteCmd.Flags().BoolVarP(&branchForce, "force", "f", false, "Delete even if unmerged")
	commitCmd.Flags().StringVarP(&commitBranch, "branch", "b", "main", "Target branch")
	commitCmd.Flags().StringVarP(&commitAuthor, "author", "a", "", "Commit author")
	commitCmd.Flags().StringSliceVarP(&commitTags, "tag", "t", nil, "Commit tags")
	logCmd.Flags().IntVarP(&logLimit, "limit", "n", 20, "Max commits to show")
	tagCreateCmd.Flags().StringVarP(&tagMessage, "message", "m", "", "Tag message")
}
