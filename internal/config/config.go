// Package config loads the engine configuration from a JSON or YAML file,
// with environment overrides for deployment-specific values.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the full engine configuration. Zero values fall back to the
// defaults below.
type Config struct {
	// DBPath is the SQLite database location. Empty selects the
	// in-memory store.
	DBPath    string `json:"db_path" yaml:"db_path"`
	PolicyDir string `json:"policy_dir" yaml:"policy_dir"`
	Project   string `json:"project" yaml:"project"`

	Summarizer SummarizerConfig `json:"summarizer" yaml:"summarizer"`

	// Verbose enables debug-level logging.
	Verbose bool `json:"verbose" yaml:"verbose"`
	// LogJSON switches console logging to JSON lines.
	LogJSON bool `json:"log_json" yaml:"log_json"`
}

// SummarizerConfig selects the narrative backend.
type SummarizerConfig struct {
	Backend string `json:"backend" yaml:"backend"` // stub, openai, ollama, gemini
	Model   string `json:"model" yaml:"model"`
	APIKey  string `json:"api_key" yaml:"api_key"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".recall")
	return &Config{
		DBPath:     filepath.Join(base, "recall.db"),
		PolicyDir:  filepath.Join(base, "policies"),
		Project:    "default",
		Summarizer: SummarizerConfig{Backend: "stub"},
	}
}

// Load reads the file at path, or the defaults when path is empty or the
// file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else {
			ext := strings.ToLower(filepath.Ext(path))
			switch ext {
			case ".json":
				if err := json.Unmarshal(data, cfg); err != nil {
					return nil, fmt.Errorf("failed to unmarshal JSON config: %w", err)
				}
			case ".yaml", ".yml":
				if err := yaml.Unmarshal(data, cfg); err != nil {
					return nil, fmt.Errorf("failed to unmarshal YAML config: %w", err)
				}
			default:
				return nil, fmt.Errorf("unsupported config format: %s (use .json or .yaml)", ext)
			}
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

// Environment variables override file values so deployments can inject
// secrets without writing them to disk.
func applyEnv(cfg *Config) {
	if v := os.Getenv("RECALL_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("RECALL_POLICY_DIR"); v != "" {
		cfg.PolicyDir = v
	}
	if v := os.Getenv("RECALL_PROJECT"); v != "" {
		cfg.Project = v
	}
	if v := os.Getenv("RECALL_SUMMARIZER"); v != "" {
		cfg.Summarizer.Backend = v
	}
	if v := os.Getenv("RECALL_SUMMARIZER_MODEL"); v != "" {
		cfg.Summarizer.Model = v
	}
	if v := os.Getenv("RECALL_API_KEY"); v != "" {
		cfg.Summarizer.APIKey = v
	}
}
