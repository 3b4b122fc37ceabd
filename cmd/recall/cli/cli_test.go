package cli

import (
	"context"
	"path/filepath"
	"testing"
)

func TestCLI_Root(t *testing.T) {
	names := make(map[string]bool)
	for _, cmd := range RootCmd.Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{"journal", "retrieve", "regression", "flaky", "policy", "ingest", "config"} {
		if !names[want] {
			t.Errorf("%s command not registered", want)
		}
	}
}

func TestCLI_Journal(t *testing.T) {
	for _, cmd := range RootCmd.Commands() {
		if cmd.Name() != "journal" {
			continue
		}
		sub := make(map[string]bool)
		for _, c := range cmd.Commands() {
			sub[c.Name()] = true
		}
		for _, want := range []string{"branch", "commit", "log", "show", "tag", "diff", "stats"} {
			if !sub[want] {
				t.Errorf("journal %s subcommand not registered", want)
			}
		}
		return
	}
	t.Fatal("journal command not found")
}

func TestCLI_Flaky(t *testing.T) {
	for _, cmd := range RootCmd.Commands() {
		if cmd.Name() != "flaky" {
			continue
		}
		sub := make(map[string]bool)
		for _, c := range cmd.Commands() {
			sub[c.Name()] = true
		}
		for _, want := range []string{"detect", "manifest", "heal", "status", "report", "snapshot"} {
			if !sub[want] {
				t.Errorf("flaky %s subcommand not registered", want)
			}
		}
		return
	}
	t.Fatal("flaky command not found")
}

func TestNewApp(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("RECALL_DB_PATH", filepath.Join(dir, "recall.db"))
	t.Setenv("RECALL_POLICY_DIR", filepath.Join(dir, "policies"))
	t.Setenv("RECALL_PROJECT", "billing")

	a, err := newApp(context.Background())
	if err != nil {
		t.Fatalf("newApp failed: %v", err)
	}
	defer a.close()

	if a.cfg.Project != "billing" {
		t.Errorf("Project override lost: %s", a.cfg.Project)
	}
	if a.journal == nil || a.engine == nil || a.selector == nil || a.registry == nil {
		t.Error("Engine not fully wired")
	}
	if len(a.engine.Policies()) == 0 {
		t.Error("Expected at least the synthesized default policy")
	}
}
