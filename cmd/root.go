package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/precise-time-tracker/internal/config"
	"github.com/Tiliavir/precise-time-tracker/internal/logging"
)

var (
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "ptt",
	Short: "Precise Time Tracker – drift-corrected task timing with idle detection",
	Long: `ptt times tasks with a self-correcting timer, pauses them when you go idle
or the machine sleeps, and offers to resume when you come back.
All data is stored as human-readable JSON files in ~/.ptt/.`,
	SilenceUsage: true,
}

// Execute is the entry point called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default from config)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text, json (default from config)")

	rootCmd.AddCommand(trackCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(completeCmd)
	rootCmd.AddCommand(durationCmd)
	rootCmd.AddCommand(signalCmd)
}

// loadConfig loads the user config. A broken file is reported and the
// defaults are used.
func loadConfig() config.Config {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Warning:", err)
	}
	return cfg
}

// newLogger builds the stderr logger; flags override the config.
func newLogger(cfg config.Config) (*slog.Logger, error) {
	level, format := cfg.Log.Level, cfg.Log.Format
	if logLevel != "" {
		level = logLevel
	}
	if logFormat != "" {
		format = logFormat
	}
	return logging.New(os.Stderr, level, format)
}
