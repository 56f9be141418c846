package cli

import (
	"context"
	"errors"
	"log/slog"

	"github.com/roach88/almanac/internal/client"
	"github.com/roach88/almanac/internal/config"
	"github.com/roach88/almanac/internal/engine"
	"github.com/roach88/almanac/internal/snapshot"
)

// session is a worker restored from the snapshot file, driven by a client
// that saves every PERSIST back to the same file.
type session struct {
	worker *engine.Worker
	client *client.Client
	store  *snapshot.FileStore
	logger *slog.Logger
	done   chan error
}

func openSession(ctx context.Context, cfg config.Config, logger *slog.Logger) (*session, error) {
	st := snapshot.NewFileStore(cfg.Snapshot.Path)
	data, err := st.Load(ctx)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load snapshot", err)
	}

	w := engine.New(
		engine.WithLogger(logger),
		engine.WithOutboxSize(cfg.Worker.OutboxSize),
	)
	s := &session{
		worker: w,
		store:  st,
		logger: logger,
		done:   make(chan error, 1),
	}
	go func() { s.done <- w.Run(ctx) }()

	s.client = client.New(w,
		client.WithLogger(logger),
		client.WithTimeout(cfg.Worker.RequestTimeout),
		client.WithSnapshotSink(st),
	)

	logger.Debug("restoring snapshot", "path", st.Path(), "bytes", len(data))
	if err := s.client.Init(ctx, data); err != nil {
		s.Close()
		if client.IsInitializationError(err) {
			return nil, WrapExitError(ExitCommandError, "snapshot is not a valid log database: "+st.Path(), err)
		}
		return nil, WrapExitError(ExitFailure, "failed to initialize worker", err)
	}
	return s, nil
}

// Close stops the worker and waits for it to exit. Snapshots emitted before
// Close are already saved.
func (s *session) Close() {
	s.worker.Stop()
	<-s.client.Done()
	if err := <-s.done; err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("worker exited with error", "error", err)
	}
	_ = s.client.Close()
}
