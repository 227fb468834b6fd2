// Package main provides mutationd, the personnel mutation workflow service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/mutation-workflow/internal/config"
	"github.com/garyjia/mutation-workflow/pkg/utils"
)

var (
	version = "dev"

	// Global flags
	configPath string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mutationd",
		Short:         "Personnel mutation request workflow service",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "path to the YAML configuration file")

	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newExportCmd(),
		newEffectsCmd(),
		newTokenCmd(),
	)
	return root
}

// loadConfig reads the configuration and builds the logger described in it
func loadConfig() (*config.Config, *zap.Logger, error) {
	path := configPath
	if !config.FileExists(path) {
		return nil, nil, fmt.Errorf("configuration file %s not found", path)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
		Service:    "mutationd",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger, nil
}
