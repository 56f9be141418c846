package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/almanac/internal/engine"
	"github.com/roach88/almanac/internal/ir"
	"github.com/roach88/almanac/internal/snapshot"
)

// maxLineSize bounds one envelope on stdin. INIT lines carry a whole
// base64 snapshot.
const maxLineSize = 64 << 20

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Persist bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the worker over stdin/stdout",
		Long: `Run the worker over stdin/stdout, one JSON envelope per line.

Requests (INIT, LOG, GET) are read from stdin in order. Responses
(SUCCESS, ERROR) and PERSIST notifications are written to stdout in the
order the worker emits them. The host must send INIT first; the snapshot
file is not loaded automatically.

With --persist, every PERSIST snapshot is also saved to the configured
snapshot file.

The command exits when stdin is closed and every accepted request has
been answered.

Example:
  printf '%s\n' '{"id":1,"type":"INIT"}' \
    '{"id":2,"type":"LOG","payload":{"module":"m","query":"q","result":"r"}}' \
    | almanac serve`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Persist, "persist", false, "save PERSIST snapshots to the snapshot file")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := opts.Config()
	if err != nil {
		return err
	}
	logger, err := opts.Logger()
	if err != nil {
		return err
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	var sink snapshot.Store
	if opts.Persist {
		sink = snapshot.NewFileStore(cfg.Snapshot.Path)
	}

	// Unbuffered outputs: each emission is a rendezvous with the pump, so
	// stdout receives frames in exactly the worker's emission order.
	w := engine.New(
		engine.WithLogger(logger),
		engine.WithOutboxSize(0),
	)
	out := &envelopeWriter{enc: json.NewEncoder(cmd.OutOrStdout())}

	runErr := make(chan error, 1)
	go func() { runErr <- w.Run(ctx) }()

	written := make(chan struct{})
	go func() {
		defer close(written)
		pump(ctx, w, out, sink, logger)
	}()

	logger.Info("worker serving stdio",
		"worker_id", w.ID(),
		"wire_version", ir.WireVersion,
		"persist", opts.Persist,
	)

	readErr := readRequests(ctx, cmd.InOrStdin(), w, logger)

	// Stop lets the queue drain, so every accepted request is answered.
	w.Stop()
	err = <-runErr
	<-written

	if readErr != nil {
		return WrapExitError(ExitCommandError, "failed to read requests", readErr)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "worker error", err)
	}
	logger.Info("worker stopped")
	return nil
}

// envelopeWriter encodes messages as JSON lines. Only the pump writes.
type envelopeWriter struct {
	enc *json.Encoder
}

func (e *envelopeWriter) write(m ir.Message) error {
	env, err := ir.EncodeMessage(m)
	if err != nil {
		return err
	}
	return e.enc.Encode(env)
}

// readRequests submits one request per stdin line until EOF or ctx is done.
// Lines that do not decode are queued as MalformedRequest, so their ERROR
// follows the responses to every earlier line.
func readRequests(ctx context.Context, r io.Reader, w *engine.Worker, logger *slog.Logger) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return <-scanErr
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			req := decodeLine(line)
			if m, ok := req.(ir.MalformedRequest); ok {
				logger.Debug("malformed request line", "id", m.ID, "reason", m.Reason)
			}
			if !w.Submit(req) {
				return nil
			}
		}
	}
}

// decodeLine parses one stdin line. A line that does not decode becomes a
// MalformedRequest carrying the request id when one could be read.
func decodeLine(line string) ir.Request {
	var env ir.Envelope
	if err := json.Unmarshal([]byte(line), &env); err != nil {
		var partial struct {
			ID   int64  `json:"id"`
			Type string `json:"type"`
		}
		_ = json.Unmarshal([]byte(line), &partial)
		return ir.MalformedRequest{
			ID:      partial.ID,
			RawType: partial.Type,
			Reason:  fmt.Sprintf("%v: %v", ir.ErrMalformedEnvelope, err),
		}
	}

	req, err := ir.DecodeRequest(env)
	if err != nil {
		var id int64
		if env.ID != nil {
			id = *env.ID
		}
		return ir.MalformedRequest{ID: id, RawType: string(env.Type), Reason: err.Error()}
	}
	return req
}

// pump copies worker output to stdout until both streams close. The worker's
// outputs are unbuffered, so the receive order here is its emission order.
func pump(ctx context.Context, w *engine.Worker, out *envelopeWriter, sink snapshot.Store, logger *slog.Logger) {
	responses := w.Responses()
	notifications := w.Notifications()

	for responses != nil || notifications != nil {
		select {
		case n, ok := <-notifications:
			if !ok {
				notifications = nil
				continue
			}
			if err := out.write(n); err != nil {
				logger.Error("failed to write PERSIST", "error", err)
			}
			if sink == nil {
				continue
			}
			if err := sink.Save(context.WithoutCancel(ctx), n.Snapshot); err != nil {
				logger.Error("failed to save snapshot", "error", err)
			}
		case resp, ok := <-responses:
			if !ok {
				responses = nil
				continue
			}
			if err := out.write(resp); err != nil {
				logger.Error("failed to write response", "id", resp.ResponseID(), "error", err)
			}
		}
	}
}
