package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/qaforge/recall/internal/config"
	"github.com/qaforge/recall/internal/flaky"
	"github.com/qaforge/recall/internal/journal"
	"github.com/qaforge/recall/internal/observe"
	"github.com/qaforge/recall/internal/policy"
	"github.com/qaforge/recall/internal/regression"
	"github.com/qaforge/recall/internal/retriever"
	"github.com/qaforge/recall/internal/store"
	"github.com/qaforge/recall/internal/summarize"
)

var (
	configPath string
	project    string
	verbose    bool
	jsonLogs   bool
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "recall",
	Short: "QA memory and retrieval engine",
	Long: `Recall stores test-execution history as versioned events and serves it
back as policy-budgeted context: regression selection, flaky-test triage,
and git-style branching over the event history.`,
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default ~/.recall/config.yaml)")
	RootCmd.PersistentFlags().StringVarP(&project, "project", "P", "", "Project scope (overrides config)")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	RootCmd.PersistentFlags().BoolVar(&jsonLogs, "json", false, "JSON log output")
}

// app is the wired engine behind every subcommand.
type app struct {
	cfg      *config.Config
	obs      *observe.Observer
	store    store.EventStore
	journal  *journal.Journal
	retr     *retriever.Hybrid
	engine   *policy.Engine
	selector *regression.Selector
	registry *flaky.Registry
	narrator summarize.Summarizer
}

func newApp(ctx context.Context) (*app, error) {
	path := configPath
	if path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, ".recall", "config.yaml")
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if project != "" {
		cfg.Project = project
	}

	var obs *observe.Observer
	if jsonLogs || cfg.LogJSON {
		obs = observe.NewJSON(os.Stdout, verbose || cfg.Verbose)
	} else {
		obs = observe.New(os.Stdout, verbose || cfg.Verbose)
	}

	var st store.EventStore
	if cfg.DBPath == "" || cfg.DBPath == ":memory:" {
		st = store.NewMemoryStore()
	} else {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0750); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		st, err = store.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			return nil, err
		}
	}

	j, err := journal.New(ctx, st, obs)
	if err != nil {
		st.Close()
		return nil, err
	}
	retr, err := retriever.NewHybrid(st, retriever.NewHashEmbedder())
	if err != nil {
		st.Close()
		return nil, err
	}
	engine, err := policy.NewEngineFromDir(cfg.PolicyDir, retr, nil, obs)
	if err != nil {
		st.Close()
		return nil, err
	}
	narrator, err := summarize.New(cfg.Summarizer.Backend, cfg.Summarizer.Model, cfg.Summarizer.APIKey)
	if err != nil {
		st.Close()
		return nil, err
	}

	return &app{
		cfg:      cfg,
		obs:      obs,
		store:    st,
		journal:  j,
		retr:     retr,
		engine:   engine,
		selector: regression.NewSelector(st, engine, obs),
		registry: flaky.NewRegistry(st, j, flaky.NewCache(), obs),
		narrator: narrator,
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.obs.Log().Warn().Err(err).Msg("store close failed")
	}
	a.obs.Close()
}

// fail prints the error and exits. Used from command bodies after setup
// succeeded.
func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// mustApp wires the engine or exits.
func mustApp(ctx context.Context) *app {
	a, err := newApp(ctx)
	if err != nil {
		fail(err)
	}
	return a
}
