package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/almanac/internal/snapshot"
	"github.com/roach88/almanac/internal/store"
)

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Copy the current snapshot to a file",
		Long: `Copy the current snapshot to a file.

The output is a SQLite database image that import (or INIT) accepts.

Examples:
  almanac export ./backup.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(rootOpts, cmd, args[0])
		},
	}
}

func runExport(opts *RootOptions, cmd *cobra.Command, target string) error {
	cfg, err := opts.Config()
	if err != nil {
		return err
	}
	logger, err := opts.Logger()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	data, err := snapshot.NewFileStore(cfg.Snapshot.Path).Load(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read snapshot", err)
	}
	if len(data) == 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("no snapshot at %s", cfg.Snapshot.Path))
	}

	if err := snapshot.NewFileStore(target).Save(ctx, data); err != nil {
		return WrapExitError(ExitCommandError, "failed to write export", err)
	}
	logger.Info("snapshot exported", "from", cfg.Snapshot.Path, "to", target, "bytes", len(data))

	f := opts.formatter(cmd)
	if opts.Format == "json" {
		return f.Success(map[string]any{"file": target, "bytes": len(data)})
	}
	return f.Success(fmt.Sprintf("exported %d bytes to %s", len(data), target))
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Validate a snapshot and install it",
		Long: `Validate a snapshot file and install it as the current snapshot.

The file must be a database image with a compatible logs table. The
existing snapshot is replaced.

Exit codes:
  0 - Snapshot installed
  2 - File unreadable or not a valid log database

Examples:
  almanac import ./backup.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(rootOpts, cmd, args[0])
		},
	}
}

func runImport(opts *RootOptions, cmd *cobra.Command, source string) error {
	cfg, err := opts.Config()
	if err != nil {
		return err
	}
	logger, err := opts.Logger()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read import file", err)
	}
	if len(data) == 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("import file is empty: %s", source))
	}

	ctx := cmd.Context()
	st, err := store.Open(ctx, data, store.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitCommandError, "not a valid log database: "+source, err)
	}
	count, err := st.Count(ctx, "")
	st.Close()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to count entries", err)
	}

	if err := snapshot.NewFileStore(cfg.Snapshot.Path).Save(ctx, data); err != nil {
		return WrapExitError(ExitCommandError, "failed to install snapshot", err)
	}
	logger.Info("snapshot imported", "from", source, "to", cfg.Snapshot.Path, "entries", count)

	f := opts.formatter(cmd)
	if opts.Format == "json" {
		return f.Success(map[string]any{"file": cfg.Snapshot.Path, "entries": count})
	}
	return f.Success(fmt.Sprintf("imported %d entries into %s", count, cfg.Snapshot.Path))
}
