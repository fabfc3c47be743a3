// Package cli provides the command-line interface for matechat.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mlundqvist/matechat-go/internal/aiclient"
	"github.com/mlundqvist/matechat-go/internal/config"
	"github.com/mlundqvist/matechat-go/internal/metrics"
	"github.com/mlundqvist/matechat-go/internal/store"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool

	// Shared state opened by the root command
	cfg      config.Config
	st       *store.Store
	aiClient aiclient.Client
	stats    *metrics.Collector
	logClose func() error
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "matechat",
	Short: "Language practice with AI conversation partners",
	Long: `Matechat pairs you with two AI personas for language practice:
Chat Mate holds a casual conversation purely in your target language,
while Editor Mate comments on what you and Chat Mate write, explaining
grammar, idiom and phrasing in English.

Conversations are stored locally and can be listed, forked, edited,
exported and imported.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip store setup for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.Load()
		logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
		logClose = closeLog

		stats = metrics.NewCollector()
		var err error
		st, err = store.Open(store.Options{
			Path:    cfg.DataFile,
			Logger:  logger,
			Metrics: stats,
		})
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}

		aiClient, err = aiclient.New(cfg, logger)
		if err != nil {
			return fmt.Errorf("init AI client: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if st != nil {
			if err := st.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close store: %v\n", err)
			}
		}
		if logClose != nil {
			_ = logClose()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Add subcommands
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(forkCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(wipeCmd)
}

// exitWithError prints an error message and exits with code 1.
func exitWithError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
