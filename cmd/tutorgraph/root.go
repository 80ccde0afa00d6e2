package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/tutorgraph/internal/config"
	"github.com/aretw0/tutorgraph/internal/logging"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tutorgraph",
	Short: "tutorgraph routes tutoring conversations between subject supervisors and agents",
	Long: `tutorgraph runs a fixed graph of tutoring agents: a top-level supervisor picks
Math or English, the subject supervisor hands turns to a lesson or assessment agent,
and control returns to the subject until someone chooses FINISH.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "tutorgraph.yaml", "Path to the YAML or JSON config file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "Log format (text, json)")
}

// loadConfig reads the config file and applies the logging flags over it.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	if format, _ := cmd.Flags().GetString("log-format"); format != "" {
		cfg.Log.Format = format
	}
	return cfg, nil
}

func newLogger(cfg config.Config) *slog.Logger {
	return logging.New(logging.ParseLevel(cfg.Log.Level), cfg.Log.Format)
}
