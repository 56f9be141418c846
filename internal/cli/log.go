package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/almanac/internal/client"
)

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "log <module> <query> <result>",
		Short: "Append an entry to the log",
		Long: `Append one entry to the log and save the resulting snapshot.

The worker is restored from the configured snapshot file, the entry is
written, and the PERSIST snapshot replaces the file before the command
returns.

Examples:
  almanac log sabian "Aries 1" "A woman rises out of water"
  almanac log oracle "What now?" "Wait" --snapshot ./readings.db`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(rootOpts, cmd, args[0], args[1], args[2])
		},
	}
}

func runLog(opts *RootOptions, cmd *cobra.Command, module, query, result string) error {
	cfg, err := opts.Config()
	if err != nil {
		return err
	}
	logger, err := opts.Logger()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	s, err := openSession(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.client.Log(ctx, module, query, result); err != nil {
		return requestError("log", err)
	}

	f := opts.formatter(cmd)
	f.VerboseLog("snapshot saved to %s", s.store.Path())
	if opts.Format == "json" {
		return f.SuccessFrom(s.worker.ID(), map[string]any{
			"module":         module,
			"snapshot":       s.store.Path(),
			"snapshot_bytes": len(s.client.LatestSnapshot()),
		})
	}
	return f.Success(fmt.Sprintf("logged %s entry", module))
}

// requestError maps a client failure to an exit code. Worker ERROR
// responses are request failures; everything else is a command error.
func requestError(op string, err error) error {
	if client.KindOf(err) != "" {
		return WrapExitError(ExitFailure, op+" failed", err)
	}
	return WrapExitError(ExitCommandError, op+" failed", err)
}
