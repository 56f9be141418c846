package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/almanac/internal/ir"
)

// GetOptions holds flags for the get command.
type GetOptions struct {
	*RootOptions
	Module string
	Limit  int
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Print log entries, newest first",
		Long: `Print log entries from the snapshot, newest first.

Examples:
  almanac get
  almanac get --module sabian --limit 5
  almanac get --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Module, "module", "", "only entries for this module")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of entries (0 = all)")

	return cmd
}

func runGet(opts *GetOptions, cmd *cobra.Command) error {
	if opts.Limit < 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid limit %d: must be >= 0", opts.Limit))
	}

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

	entries, err := s.client.Get(ctx, opts.Module, opts.Limit)
	if err != nil {
		return requestError("get", err)
	}

	f := opts.formatter(cmd)
	if opts.Format == "json" {
		return f.SuccessFrom(s.worker.ID(), entries)
	}
	writeEntries(cmd, entries)
	return nil
}

func writeEntries(cmd *cobra.Command, entries []ir.LogEntry) {
	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "no entries")
		return
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIMESTAMP\tMODULE\tQUERY\tRESULT")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			e.ID,
			e.Timestamp.UTC().Format(time.RFC3339),
			e.Module,
			oneLine(e.Query),
			oneLine(e.Result),
		)
	}
	tw.Flush()
}

// oneLine keeps multi-line text from breaking table rows.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
