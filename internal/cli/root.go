// Package cli implements the feedline command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/feedline/feedline/internal/config"
	"github.com/feedline/feedline/internal/logging"
)

var (
	cfgFile  string
	logLevel string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "feedline",
	Short: "Feedline is a local-first conversation feed",
	Long: `Feedline keeps a conversation feed synchronized across pagination,
live events, and your own in-flight sends, backed by a local SQLite store.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loader := config.NewLoader()
		if cfgFile != "" {
			loader.SetConfigFile(cfgFile)
		}
		loaded, err := loader.Load()
		if err != nil {
			return err
		}
		if logLevel != "" {
			loaded.Logging.Level = logLevel
		}
		cfg = loaded

		var output *os.File
		if cfg.Logging.File != "" {
			output, err = os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				return fmt.Errorf("failed to open log file: %w", err)
			}
		}
		logCfg := logging.Config{
			Level:        cfg.Logging.Level,
			Format:       cfg.Logging.Format,
			EnableCaller: cfg.Logging.EnableCaller,
		}
		if output != nil {
			logCfg.Output = output
		}
		logging.Init(logCfg)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/feedline/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")
}

// Execute runs the command tree.
func Execute(version string) error {
	rootCmd.Version = version
	return rootCmd.Execute()
}
