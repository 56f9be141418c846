package engine

import (
	"context"
	"fmt"

	"github.com/roach88/almanac/internal/ir"
	"github.com/roach88/almanac/internal/store"
)

// process routes a request to its handler.
// CRITICAL: Called only from the Run goroutine - single-writer guarantee.
//
// The returned error is non-nil only when an output could not be delivered;
// request failures are reported to the host as ERROR responses.
func (w *Worker) process(ctx context.Context, req ir.Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("request handler panicked",
				"id", req.RequestID(),
				"type", req.Type(),
				"panic", r,
			)
			if w.store == nil {
				w.setState(StateUninitialized)
			}
			err = w.respond(ctx, ir.Failure{
				ID:      req.RequestID(),
				Kind:    ir.KindEngine,
				Message: fmt.Sprintf("internal error handling %s: %v", req.Type(), r),
			})
		}
	}()

	w.logger.Debug("processing request", "id", req.RequestID(), "type", req.Type())

	switch r := req.(type) {
	case ir.InitRequest:
		return w.handleInit(ctx, r)
	case ir.LogRequest:
		return w.handleLog(ctx, r)
	case ir.GetRequest:
		return w.handleGet(ctx, r)
	case ir.UnknownRequest:
		w.logger.Warn("rejecting unrecognized request", "id", r.ID, "type", r.RawType)
		return w.respond(ctx, ir.Failure{
			ID:      r.ID,
			Kind:    ir.KindEngine,
			Message: fmt.Sprintf("unrecognized message type %q", r.RawType),
		})
	case ir.MalformedRequest:
		w.logger.Warn("rejecting malformed request", "id", r.ID, "type", r.RawType, "reason", r.Reason)
		return w.respond(ctx, ir.Failure{ID: r.ID, Kind: ir.KindEngine, Message: r.Reason})
	default:
		return w.respond(ctx, ir.Failure{
			ID:      req.RequestID(),
			Kind:    ir.KindEngine,
			Message: fmt.Sprintf("unsupported request %T", req),
		})
	}
}

// handleInit creates the store, at most once per worker lifetime.
func (w *Worker) handleInit(ctx context.Context, r ir.InitRequest) error {
	if state := w.State(); state != StateUninitialized {
		w.logger.Debug("duplicate INIT acknowledged", "id", r.ID, "state", state)
		return w.respond(ctx, ir.Success{ID: r.ID})
	}

	w.setState(StateInitializing)

	st, err := store.Open(ctx, r.Snapshot,
		store.WithClock(w.clock),
		store.WithLogger(w.logger),
	)
	if err != nil {
		w.setState(StateUninitialized)
		w.logger.Warn("initialization failed", "id", r.ID, "error", err)
		return w.respond(ctx, failure(r.ID, err))
	}

	w.store = st
	w.setState(StateReady)
	w.logger.Info("store initialized", "id", r.ID, "restored", len(r.Snapshot) > 0)

	return w.respond(ctx, ir.Success{ID: r.ID})
}

// handleLog appends an entry, then emits PERSIST before acknowledging.
// Before INIT, the store's own guard reports NOT_INITIALIZED.
func (w *Worker) handleLog(ctx context.Context, r ir.LogRequest) error {
	entry, err := w.store.Insert(ctx, r.Module, r.Query, r.Result)
	if err != nil {
		w.logger.Warn("insert failed", "id", r.ID, "module", r.Module, "error", err)
		return w.respond(ctx, failure(r.ID, err))
	}

	snapshot, err := w.store.Export(ctx)
	if err != nil {
		// The row exists but no durable copy was produced.
		w.logger.Error("export after insert failed", "id", r.ID, "entry_id", entry.ID, "error", err)
		return w.respond(ctx, failure(r.ID, err))
	}

	if err := w.notify(ctx, ir.Persist{Snapshot: snapshot}); err != nil {
		return err
	}

	w.logger.Debug("log entry written",
		"id", r.ID,
		"entry_id", entry.ID,
		"module", entry.Module,
		"snapshot_bytes", len(snapshot),
	)

	return w.respond(ctx, ir.Success{ID: r.ID})
}

// handleGet reads entries newest first.
func (w *Worker) handleGet(ctx context.Context, r ir.GetRequest) error {
	entries, err := w.store.Query(ctx, store.Filter{Module: r.Module, Limit: r.Limit})
	if err != nil {
		w.logger.Warn("query failed", "id", r.ID, "module", r.Module, "error", err)
		return w.respond(ctx, failure(r.ID, err))
	}
	return w.respond(ctx, ir.Success{ID: r.ID, Entries: entries})
}

// failure converts a store error into an ERROR response.
func failure(id int64, err error) ir.Failure {
	return ir.Failure{
		ID:      id,
		Kind:    store.CodeOf(err).Kind(),
		Message: err.Error(),
	}
}
