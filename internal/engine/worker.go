package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/roach88/almanac/internal/ir"
	"github.com/roach88/almanac/internal/store"
)

// DefaultOutboxSize is the default buffer size of each output channel.
const DefaultOutboxSize = 64

// ErrAlreadyRunning is returned by Run when the worker has already been started.
var ErrAlreadyRunning = errors.New("worker already running")

// Worker hosts the log store behind the correlated message protocol.
//
// Thread-safety model:
//   - Submit(), Stop(), State(), ID(): safe from any goroutine
//   - Run(): must be called exactly once, from one goroutine
//   - The store is touched only by the Run goroutine
type Worker struct {
	id     string
	queue  *requestQueue
	clock  ir.Clock
	logger *slog.Logger

	idGen      IDGenerator
	outboxSize int

	responses     chan ir.Response
	notifications chan ir.Persist

	state   atomic.Int32
	started atomic.Bool

	// Owned by the Run goroutine.
	store *store.Store
}

// Option configures a Worker.
type Option func(*Worker)

// WithClock sets the clock the store uses to stamp rows.
func WithClock(c ir.Clock) Option {
	return func(w *Worker) {
		w.clock = c
	}
}

// WithLogger sets the worker logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = l
	}
}

// WithIDGenerator sets the generator for the worker instance id.
func WithIDGenerator(g IDGenerator) Option {
	return func(w *Worker) {
		w.idGen = g
	}
}

// WithOutboxSize sets the buffer size of the response and notification channels.
//
// Default: 64 (DefaultOutboxSize)
func WithOutboxSize(n int) Option {
	return func(w *Worker) {
		if n >= 0 {
			w.outboxSize = n
		}
	}
}

// New creates an uninitialized worker. Call Run to start serving.
func New(opts ...Option) *Worker {
	w := &Worker{
		queue:      newRequestQueue(),
		clock:      ir.SystemClock{},
		logger:     slog.Default(),
		idGen:      UUIDv7Generator{},
		outboxSize: DefaultOutboxSize,
	}
	for _, opt := range opts {
		opt(w)
	}

	w.id = w.idGen.Generate()
	w.logger = w.logger.With("worker_id", w.id)
	w.responses = make(chan ir.Response, w.outboxSize)
	w.notifications = make(chan ir.Persist, w.outboxSize)
	w.state.Store(int32(StateUninitialized))

	return w
}

// ID returns the worker instance id.
func (w *Worker) ID() string {
	return w.id
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
}

// Submit enqueues a request for processing by the Run loop.
// Thread-safe: may be called from any goroutine.
//
// Returns false if the worker has been stopped.
func (w *Worker) Submit(req ir.Request) bool {
	return w.queue.Enqueue(req)
}

// Responses returns the correlated response stream.
// The channel is closed when Run returns.
func (w *Worker) Responses() <-chan ir.Response {
	return w.responses
}

// Notifications returns the PERSIST notification stream.
// The channel is closed when Run returns.
func (w *Worker) Notifications() <-chan ir.Persist {
	return w.notifications
}

// Run starts the single-goroutine request loop.
// Blocks until ctx is cancelled or Stop() is called and the queue is drained.
//
// On return, the store is closed (its rows are gone; only emitted snapshots
// survive) and both output channels are closed.
func (w *Worker) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer w.shutdown()

	w.logger.Info("worker starting")

	for {
		req, ok := w.queue.TryDequeue()
		if ok {
			if err := w.process(ctx, req); err != nil {
				// Only an undeliverable output ends the loop.
				w.logger.Info("worker stopping: output cancelled", "error", err)
				w.queue.Close()
				return err
			}
			continue
		}

		select {
		case <-ctx.Done():
			w.logger.Info("worker stopping: context cancelled", "abandoned", w.queue.Len())
			w.queue.Close()
			return ctx.Err()

		case <-w.queue.Wait():
			if w.queue.Drained() {
				w.logger.Info("worker stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the request queue. Requests already queued are still
// processed before Run returns.
func (w *Worker) Stop() {
	w.queue.Close()
}

func (w *Worker) shutdown() {
	if w.store != nil {
		if err := w.store.Close(); err != nil {
			w.logger.Error("error closing store", "error", err)
		}
		w.store = nil
	}
	w.setState(StateUninitialized)
	close(w.responses)
	close(w.notifications)
}

// respond delivers a correlated response.
func (w *Worker) respond(ctx context.Context, resp ir.Response) error {
	select {
	case w.responses <- resp:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// notify delivers a PERSIST notification.
func (w *Worker) notify(ctx context.Context, n ir.Persist) error {
	select {
	case w.notifications <- n:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
