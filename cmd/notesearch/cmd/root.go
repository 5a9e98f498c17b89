// Package cmd provides the CLI commands for notesearch.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/notesearch/internal/config"
	"github.com/Aman-CERP/notesearch/internal/errors"
	"github.com/Aman-CERP/notesearch/internal/logging"
	"github.com/Aman-CERP/notesearch/pkg/version"
)

// skipConfig marks commands that run without loading configuration.
const skipConfig = "skip-config"

// app is the state shared by the commands of one root command.
type app struct {
	configDir string
	debug     bool

	cfg            *config.Config
	logger         *slog.Logger
	loggingCleanup func()
}

// NewRootCmd creates the root command for the notesearch CLI.
func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "notesearch",
		Short: "Full-text index for a directory of notes",
		Long: `notesearch keeps a full-text index of a notes directory up to date.

All writes go through a single guarded index writer: up to N operations run
at once, and shutdown waits for them before committing and closing the index.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("notesearch version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "Enable debug logging to ~/.notesearch/logs/")
	cmd.PersistentFlags().StringVar(&a.configDir, "config-dir", ".", "Directory containing .notesearch.yaml")

	cmd.PersistentPreRunE = a.setup
	cmd.PersistentPostRunE = a.teardown

	cmd.AddCommand(newIndexCmd(a))
	cmd.AddCommand(newWatchCmd(a))
	cmd.AddCommand(newDeleteCmd(a))
	cmd.AddCommand(newClearCmd(a))
	cmd.AddCommand(newOptimizeCmd(a))
	cmd.AddCommand(newStatsCmd(a))
	cmd.AddCommand(newConfigCmd(a))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setup loads configuration and installs the logger.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if cmd.Annotations[skipConfig] == "true" {
		return nil
	}

	cfg, err := config.Load(a.configDir)
	if err != nil {
		return errors.ConfigError("failed to load configuration", err).
			WithSuggestion("check .notesearch.yaml and NOTESEARCH_* environment variables")
	}
	a.cfg = cfg

	logCfg := logging.Config{Level: cfg.Log.Level, Stderr: cmd.ErrOrStderr()}
	if a.debug {
		logCfg = logging.DebugConfig()
		logCfg.Stderr = cmd.ErrOrStderr()
	}

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	a.logger = logger
	a.loggingCleanup = cleanup
	slog.SetDefault(logger)

	if a.debug {
		logger.Debug("debug_logging_enabled",
			slog.String("log_file", logCfg.FilePath),
			slog.String("version", version.Short()))
	}
	return nil
}

func (a *app) teardown(_ *cobra.Command, _ []string) error {
	if a.loggingCleanup != nil {
		a.loggingCleanup()
		a.loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
