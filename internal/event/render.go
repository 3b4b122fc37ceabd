package event

import (
	"fmt"
	"strings"
)

// Render produces the deterministic one-block text form of an event, used
// both for context packing and for semantic indexing. Same event, same text.
func Render(ev *Event) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s %s", ev.Type, ev.Timestamp.UTC().Format("2006-01-02 15:04:05"), ev.Source)
	if len(ev.Tags) > 0 {
		fmt.Fprintf(&sb, " (%s)", strings.Join(ev.Tags, ","))
	}
	sb.WriteString("\n")

	switch p := ev.Data.(type) {
	case ExecutionPayload:
		fmt.Fprintf(&sb, "test %s %s in %.0fms", p.TestID, p.Status, p.DurationMS)
		if p.Suite != "" {
			fmt.Fprintf(&sb, " (suite %s)", p.Suite)
		}
	case FailurePayload:
		fmt.Fprintf(&sb, "test %s failed: %s: %s", p.TestID, p.ErrorType, p.ErrorMessage)
		if p.File != "" {
			fmt.Fprintf(&sb, " [%s]", p.File)
		}
	case ChangePayload:
		fmt.Fprintf(&sb, "change by %s touching %s", p.Author, strings.Join(p.Files, ", "))
		if p.Description != "" {
			fmt.Fprintf(&sb, ": %s", p.Description)
		}
	case ActionPayload:
		fmt.Fprintf(&sb, "agent %s", p.Action)
		if p.TestID != "" {
			fmt.Fprintf(&sb, " on %s", p.TestID)
		}
		if p.Strategy != "" {
			fmt.Fprintf(&sb, " strategy=%s success=%t", p.Strategy, p.Success)
		}
		if p.Detail != "" {
			fmt.Fprintf(&sb, ": %s", p.Detail)
		}
	case DeploymentPayload:
		fmt.Fprintf(&sb, "deployed %s to %s (%s)", p.Version, p.Environment, p.Status)
	case SystemPayload:
		fmt.Fprintf(&sb, "%s", p.Kind)
		if p.Body != "" {
			fmt.Fprintf(&sb, ": %s", p.Body)
		}
	case Generic:
		fmt.Fprintf(&sb, "%v", map[string]any(p))
	}
	return sb.String()
}
