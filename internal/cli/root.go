package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/almanac/internal/config"
	"github.com/roach88/almanac/internal/ir"
	"github.com/roach88/almanac/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose      bool
	Format       string // "json" | "text"
	ConfigPath   string
	SnapshotPath string

	// Env replaces environment lookups during config loading (for testing).
	Env map[string]string

	cfg       *config.Config
	logger    *slog.Logger
	logCloser io.Closer
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the almanac CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "almanac",
		Short: "almanac - embedded log store",
		Long: `Append-only log of module queries and results, held by a background
worker in an in-memory SQLite database and persisted as snapshots.`,
		Version:       ir.EngineVersion,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return opts.Close()
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (.yaml, .yml or .toml)")
	cmd.PersistentFlags().StringVar(&opts.SnapshotPath, "snapshot", "", "snapshot file (overrides config)")

	cmd.AddCommand(NewLogCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// Config loads the effective configuration once.
func (o *RootOptions) Config() (config.Config, error) {
	if o.cfg != nil {
		return *o.cfg, nil
	}

	var flags config.FlagOverrides
	if o.SnapshotPath != "" {
		flags.SnapshotPath = &o.SnapshotPath
	}
	if o.Verbose {
		debug := "debug"
		flags.LogLevel = &debug
	}

	cfg, err := config.Load(config.LoadOptions{
		ConfigPath: o.ConfigPath,
		Env:        o.Env,
		Flags:      flags,
	})
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	o.cfg = &cfg
	return cfg, nil
}

// Logger builds the process logger from the configuration once.
func (o *RootOptions) Logger() (*slog.Logger, error) {
	if o.logger != nil {
		return o.logger, nil
	}
	cfg, err := o.Config()
	if err != nil {
		return nil, err
	}

	logger, closer, err := logging.New(cfg.Logging, ir.EngineVersion)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open log output", err)
	}
	o.logger, o.logCloser = logger, closer
	return logger, nil
}

// Close releases the log output.
func (o *RootOptions) Close() error {
	if o.logCloser == nil {
		return nil
	}
	err := o.logCloser.Close()
	o.logCloser = nil
	return err
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
