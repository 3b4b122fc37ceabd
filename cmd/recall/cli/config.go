package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(cmd.Context())
		defer a.close()

		shown := *a.cfg
		if shown.Summarizer.APIKey != "" {
			shown.Summarizer.APIKey = "(set)"
		}
		out, err := yaml.Marshal(&shown)
		if err != nil {
			fail(err)
		}
		fmt.Print(string(out))
	},
}

func init() {
	RootCmd.AddCommand(configCmd)
}
