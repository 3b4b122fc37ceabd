package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Project != "default" || cfg.Summarizer.Backend != "stub" {
			t.Errorf("Unexpected defaults: %+v", cfg)
		}
		if cfg.DBPath == "" || cfg.PolicyDir == "" {
			t.Error("Expected default paths")
		}
	})

	t.Run("YAMLFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "recall.yaml")
		body := `db_path: /var/lib/recall/recall.db
project: billing
summarizer:
  backend: ollama
  model: llama3.2
verbose: true
`
		os.WriteFile(path, []byte(body), 0600)

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.DBPath != "/var/lib/recall/recall.db" || cfg.Project != "billing" {
			t.Errorf("File values not applied: %+v", cfg)
		}
		if cfg.Summarizer.Backend != "ollama" || cfg.Summarizer.Model != "llama3.2" {
			t.Errorf("Summarizer config wrong: %+v", cfg.Summarizer)
		}
		if !cfg.Verbose {
			t.Error("Verbose flag lost")
		}
	})

	t.Run("JSONFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "recall.json")
		os.WriteFile(path, []byte(`{"project": "checkout"}`), 0600)

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Project != "checkout" {
			t.Errorf("Expected checkout, got %s", cfg.Project)
		}
	})

	t.Run("MissingFileUsesDefaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Project != "default" {
			t.Errorf("Expected defaults, got %+v", cfg)
		}
	})

	t.Run("UnsupportedExtension", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "recall.toml")
		os.WriteFile(path, []byte("project = 'x'"), 0600)
		if _, err := Load(path); err == nil {
			t.Error("Expected error for unsupported format")
		}
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		t.Setenv("RECALL_PROJECT", "payments")
		t.Setenv("RECALL_SUMMARIZER", "openai")
		t.Setenv("RECALL_API_KEY", "sk-test")

		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Project != "payments" {
			t.Errorf("Env override lost: %s", cfg.Project)
		}
		if cfg.Summarizer.Backend != "openai" || cfg.Summarizer.APIKey != "sk-test" {
			t.Errorf("Summarizer overrides lost: %+v", cfg.Summarizer)
		}
	})
}
