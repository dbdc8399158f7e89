package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/speccyhq/speccy/internal/gateway"
	"github.com/speccyhq/speccy/internal/handoff"
	"github.com/speccyhq/speccy/internal/notify"
	"github.com/speccyhq/speccy/internal/orchestrator"
	"github.com/speccyhq/speccy/internal/output"
	"github.com/speccyhq/speccy/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store

	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "speccy",
	Short: "Speccy - conversational spec interviews for project teams",
	Long: `speccy drives structured, multi-phase spec interviews with an LLM.
It tracks interview sessions, turn budgets, deliverables (client briefs and
team specs), handoffs, and the cards generated from a finished spec.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/speccy/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "speccy")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("SPECCY")
	viper.AutomaticEnv()

	// Defaults via viper.SetDefault()
	home, _ := os.UserHomeDir()
	defaultConfigDir := filepath.Join(home, ".config", "speccy")

	viper.SetDefault("db_path", filepath.Join(defaultConfigDir, "speccy.db"))
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	viper.SetDefault("turn_budget", 20)
	viper.SetDefault("handoff_ttl", "168h")

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose

	// Initialize store lazily, only when commands actually need it.
	// This allows config/version commands to run without a db.
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(rootCmd.Context()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// handoffTTL parses the configured invite TTL, falling back to the default.
func handoffTTL() time.Duration {
	ttl, err := time.ParseDuration(viper.GetString("handoff_ttl"))
	if err != nil || ttl <= 0 {
		return handoff.DefaultTTL
	}
	return ttl
}

// buildOrchestrator wires the orchestrator with its collaborators.
func buildOrchestrator(s store.Store) *orchestrator.Orchestrator {
	gw := gateway.NewClient(viper.GetString("anthropic.api_key"))
	hs := handoff.NewService(s, handoffTTL())
	notifier := notify.NewOutboxNotifier(s)
	return orchestrator.New(s, gw, hs, notifier, viper.GetString("anthropic.model"), nil)
}
