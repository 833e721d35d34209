// Package cmd defines the listingradar command line interface.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wasatchdata/listingradar/internal/config"
	"github.com/wasatchdata/listingradar/internal/logging"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "listingradar",
	Short: "Track real-estate listings and evaluate saved search alerts",
	Long: `listingradar ingests listing pages into an append-only event store,
flags seller motivation, and serves saved-search alert lookups.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file")
}

// setup loads configuration and builds the logger shared by subcommands.
func setup() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return cfg, logger, nil
}
