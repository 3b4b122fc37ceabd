package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/qaforge/recall/internal/event"
)

var (
	ingestType       string
	ingestSource     string
	ingestBranch     string
	ingestImportance float64
	ingestTags       []string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [payload-file]",
	Short: "Append an event from a JSON payload file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(cmd.Context())
		defer a.close()

		raw, err := os.ReadFile(args[0]) // #nosec G304
		if err != nil {
			fail(fmt.Errorf("failed to read payload file: %w", err))
		}

		typ := event.Type(ingestType)
		if !typ.Valid() {
			fail(fmt.Errorf("unknown event type %q", ingestType))
		}
		envelope, err := json.Marshal(map[string]any{"kind": typ, "data": json.RawMessage(raw)})
		if err != nil {
			fail(err)
		}
		payload, err := event.UnmarshalPayload(envelope)
		if err != nil {
			fail(err)
		}

		ev := &event.Event{
			ID:         "ev-" + uuid.NewString(),
			Type:       typ,
			Project:    a.cfg.Project,
			Branch:     ingestBranch,
			Source:     ingestSource,
			Timestamp:  time.Now().UTC(),
			Importance: ingestImportance,
			Tags:       ingestTags,
			Data:       payload,
		}
		if err := a.store.Ingest(cmd.Context(), ev); err != nil {
			fail(err)
		}
		fmt.Printf("Ingested %s (%s)\n", ev.ID, ev.Type)
	},
}

func init() {
	RootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringVarP(&ingestType, "type", "t", string(event.TypeTestExecution), "Event type")
	ingestCmd.Flags().StringVarP(&ingestSource, "source", "s", "cli", "Event source")
	ingestCmd.Flags().StringVarP(&ingestBranch, "branch", "b", "main", "Branch")
	ingestCmd.Flags().Float64VarP(&ingestImportance, "importance", "i", 2.0, "Importance (0-5)")
	ingestCmd.Flags().StringSliceVar(&ingestTags, "tag", nil, "Event tags (repeatable)")
}
