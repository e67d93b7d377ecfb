package app

import (
	"context"
	"log/slog"
	"runtime"

	"github.com/spf13/cobra"
)

// Set by the linker at build time.
var (
	version = "dev"
	commit  = "none"
)

// NewRootCommand builds the command tree. Commands log through logger and
// apply the configured level to level.
func NewRootCommand(ctx context.Context, logger *slog.Logger, level *slog.LevelVar) *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	loadConfig := func() (*Config, error) {
		config := NewConfig()
		if configPath != "" {
			var err error
			if config, err = LoadConfig(configPath); err != nil {
				return nil, err
			}
		}

		level.Set(config.Settings.LogLevel.Level())
		if logLevel != "" {
			var l slog.Level
			if err := l.UnmarshalText([]byte(logLevel)); err != nil {
				return nil, err
			}
			level.Set(l)
		}
		return config, nil
	}

	rootCmd := &cobra.Command{
		Use:           "ifuextract",
		Short:         "Extract point-source spectra from dithered IFU fiber observations.",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")

	var (
		catalogPath string
		outputDir   string
		workers     int
	)
	extractCmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract every target of a catalog and write the products.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			config, err := loadConfig()
			if err != nil {
				return err
			}
			if catalogPath != "" {
				config.Catalog.Path = catalogPath
			}
			if outputDir != "" {
				config.Output.Directory = outputDir
			}
			if workers > 0 {
				config.Settings.Workers = workers
			}
			if err = config.Validate(); err != nil {
				return err
			}
			return Run(ctx, config, cmd.OutOrStdout(), logger)
		},
	}
	extractCmd.Flags().StringVar(&catalogPath, "catalog", "", "Catalog database, overrides catalog.path")
	extractCmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output directory, overrides output.directory")
	extractCmd.Flags().IntVarP(&workers, "workers", "w", 0, "Concurrent extractions, overrides settings.workers")

	var (
		simCatalogPath string
		seed           uint64
		overwrite      bool
	)
	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Write a synthetic dithered observation to a catalog.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			config, err := loadConfig()
			if err != nil {
				return err
			}
			if simCatalogPath != "" {
				config.Catalog.Path = simCatalogPath
			}
			if cmd.Flags().Changed("seed") {
				config.Simulation.Seed = seed
			}
			if err = config.Validate(); err != nil {
				return err
			}
			return Simulate(ctx, config, overwrite, logger)
		},
	}
	simulateCmd.Flags().StringVar(&simCatalogPath, "catalog", "", "Catalog database, overrides catalog.path")
	simulateCmd.Flags().Uint64Var(&seed, "seed", 0, "Random seed, overrides simulation.seed")
	simulateCmd.Flags().BoolVarP(&overwrite, "force", "f", false, "Replace an existing catalog")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information.",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("ifuextract\n")
			cmd.Printf("  Version: %s\n", version)
			cmd.Printf("  Commit:  %s\n", commit)
			cmd.Printf("  Runtime: %s\n", runtime.Version())
		},
	}

	rootCmd.AddCommand(extractCmd, simulateCmd, versionCmd)
	return rootCmd
}
