package cli

import (
	"context"
	"errors"
	"io"

	"github.com/roach88/almanac/internal/client"
	"github.com/roach88/almanac/internal/config"
	"github.com/roach88/almanac/internal/store"
)

// Run executes the CLI with args and returns the process exit code.
// Command failures are reported through the OutputFormatter: as a JSON
// error response on stdout with --format json, as text on stderr otherwise.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts := &RootOptions{}
	cmd := newRootCommand(opts)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	_ = opts.Close()
	if err == nil {
		return ExitSuccess
	}

	reportError(opts, stdout, stderr, err)
	return GetExitCode(err)
}

func reportError(opts *RootOptions, stdout, stderr io.Writer, err error) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Reported && opts.Format == "json" {
		return
	}

	f := &OutputFormatter{Format: opts.Format, Writer: stderr, Verbose: opts.Verbose}
	if opts.Format == "json" {
		f.Writer = stdout
	}
	_ = f.Error(errorCode(err), err.Error(), errorDetails(err))
}

// errorCode classifies a command failure for machine-readable output.
func errorCode(err error) string {
	switch {
	case client.IsNotInitialized(err):
		return "E_NOT_INITIALIZED"
	case client.IsInitializationError(err), store.IsInitializationError(err):
		return "E_INITIALIZATION"
	case client.KindOf(err) != "":
		return "E_ENGINE"
	case errors.Is(err, client.ErrTimeout):
		return "E_TIMEOUT"
	case errors.Is(err, client.ErrWorkerStopped), errors.Is(err, client.ErrClosed):
		return "E_WORKER_STOPPED"
	case errors.Is(err, config.ErrInvalidConfig):
		return "E_CONFIG"
	case GetExitCode(err) == ExitFailure:
		return "E_FAILED"
	default:
		return "E_COMMAND"
	}
}

// errorDetails carries the worker's ERROR fields when there are any.
func errorDetails(err error) any {
	var remote *client.RemoteError
	if !errors.As(err, &remote) {
		return nil
	}
	return map[string]any{
		"request_id": remote.ID,
		"kind":       remote.Kind,
		"message":    remote.Message,
	}
}
