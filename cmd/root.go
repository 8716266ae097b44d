package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/agentmc/amc/internal/output"
	"github.com/agentmc/amc/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore *store.Store

	verbose bool

	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "amc",
	Short: "Agent Mission Control - track coding agents, sessions, and alerts",
	Long: `amc tracks a fleet of AI coding agents: who is running, how long
each work session has lasted, what it is worth, and which agents need
attention. Alerts fire for idle agents, marathon sessions, and agents
waiting on input.`,
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

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return statusOverviewRun()
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/amc/config.yaml)")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("amc %s (commit %s, built %s)\n", buildVersion, buildCommit, buildDate)
	},
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

		configDir := filepath.Join(home, ".config", "amc")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("AMC")
	viper.AutomaticEnv()

	// Defaults via viper.SetDefault()
	home, _ := os.UserHomeDir()
	defaultConfigDir := filepath.Join(home, ".config", "amc")

	viper.SetDefault("state_dir", defaultConfigDir)
	viper.SetDefault("store.driver", "file")
	viper.SetDefault("store.file_path", filepath.Join(defaultConfigDir, "state.json"))
	viper.SetDefault("store.db_path", filepath.Join(defaultConfigDir, "amc.db"))
	viper.SetDefault("watch.interval", "30s")
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose

	// Store is opened lazily so config/version commands run without
	// touching the state file.
}

// getStore returns the shared store, initializing it on first call.
func getStore() (*store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	p, err := newPersister()
	if err != nil {
		return nil, err
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	dataStore = store.New(p, logger)
	return dataStore, nil
}

// newPersister builds the snapshot backend selected by store.driver.
func newPersister() (store.Persister, error) {
	switch driver := viper.GetString("store.driver"); driver {
	case "file":
		p, err := store.NewFilePersister(viper.GetString("store.file_path"))
		if err != nil {
			return nil, fmt.Errorf("open state file: %w", err)
		}
		return p, nil
	case "sqlite":
		p, err := store.NewSQLitePersister(viper.GetString("store.db_path"))
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown store.driver %q (want file or sqlite)", driver)
	}
}

// shortID returns a truncated ULID for display (first 12 chars).
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
