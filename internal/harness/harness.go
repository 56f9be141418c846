package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/almanac/internal/engine"
	"github.com/roach88/almanac/internal/ir"
	"github.com/roach88/almanac/internal/testutil"
)

// DefaultStepTimeout bounds the wait for any single response.
const DefaultStepTimeout = 5 * time.Second

// queryIDBase is the first id used for harness-internal GETs, far above any
// scenario id.
const queryIDBase int64 = 1 << 40

// invalidSnapshot is sent for snapshot: invalid.
var invalidSnapshot = []byte("this is not a database image")

// Harness drives one scenario against a live worker.
//
// The clock survives restarts so that rows written by a later worker are
// newer than restored ones.
type Harness struct {
	clock   *testutil.DeterministicClock
	idGen   *testutil.FixedIDGenerator
	logger  *slog.Logger
	timeout time.Duration

	worker *engine.Worker
	cancel context.CancelFunc
	done   chan error

	latest  []byte
	pending []pendingStep
	queryID int64
	result  *Result
}

type pendingStep struct {
	index int
	id    int64
	step  Step
}

// Option configures a scenario run.
type Option func(*Harness)

// WithLogger sets the logger passed to the worker. Defaults to discarding.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = l
	}
}

// WithStepTimeout sets how long to wait for each response.
func WithStepTimeout(d time.Duration) Option {
	return func(h *Harness) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// Run executes a scenario and returns the result.
//
// Each scenario gets its own worker (and therefore its own in-memory
// database). A non-nil error means the scenario could not be driven to the
// end, e.g. a response never arrived; expectation failures are reported in
// Result.Errors instead.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	h := &Harness{
		clock:   testutil.NewDeterministicClock(),
		idGen:   testutil.NewFixedIDGenerator("harness-worker"),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		timeout: DefaultStepTimeout,
		queryID: queryIDBase,
		result:  NewResult(),
	}
	for _, opt := range opts {
		opt(h)
	}

	ctx := context.Background()

	h.startWorker()
	defer h.stopWorker()

	if err := h.executeSteps(ctx, scenario.Steps); err != nil {
		return nil, err
	}

	final, err := h.finalEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read final state: %w", err)
	}
	h.result.Final = final

	for _, errMsg := range EvaluateAssertions(h.result, scenario.Assertions) {
		h.result.AddError(errMsg)
	}

	return h.result, nil
}

func (h *Harness) startWorker() {
	// Unbuffered outputs: each emission completes only when received, so the
	// trace records PERSIST and responses in emission order.
	h.worker = engine.New(
		engine.WithClock(h.clock),
		engine.WithIDGenerator(h.idGen),
		engine.WithLogger(h.logger),
		engine.WithOutboxSize(0),
	)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	done := make(chan error, 1)
	h.done = done
	go func(w *engine.Worker) { done <- w.Run(ctx) }(h.worker)
}

// stopWorker stops the current worker, discarding any unread output.
func (h *Harness) stopWorker() {
	if h.worker == nil {
		return
	}
	h.worker.Stop()

	responses, notifications := h.worker.Responses(), h.worker.Notifications()
	for responses != nil || notifications != nil {
		select {
		case _, ok := <-responses:
			if !ok {
				responses = nil
			}
		case _, ok := <-notifications:
			if !ok {
				notifications = nil
			}
		case <-time.After(h.timeout):
			h.cancel()
			responses, notifications = nil, nil
		}
	}
	<-h.done
	h.cancel()
	h.worker = nil
}

func (h *Harness) executeSteps(ctx context.Context, steps []Step) error {
	for i, step := range steps {
		if step.Restart {
			if err := h.awaitPending(ctx); err != nil {
				return err
			}
			h.stopWorker()
			h.result.AddHostTrace(TraceRestart)
			h.startWorker()
		}

		req, source := h.buildRequest(i, step)
		h.result.AddSendTrace(req, source)
		if !h.worker.Submit(req) {
			return fmt.Errorf("step %d: worker rejected %s", i+1, req.Type())
		}
		h.pending = append(h.pending, pendingStep{index: i, id: req.RequestID(), step: step})

		if step.NoWait && i < len(steps)-1 {
			continue
		}
		if err := h.awaitPending(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (h *Harness) buildRequest(index int, step Step) (ir.Request, string) {
	id := step.ID
	if id == 0 {
		id = int64(index + 1)
	}

	switch ir.MessageType(step.Send) {
	case ir.TypeInit:
		switch step.Snapshot {
		case SnapshotLatest:
			return ir.InitRequest{ID: id, Snapshot: h.latest}, SnapshotLatest
		case SnapshotInvalid:
			return ir.InitRequest{ID: id, Snapshot: invalidSnapshot}, SnapshotInvalid
		default:
			return ir.InitRequest{ID: id}, ""
		}
	case ir.TypeLog:
		return ir.LogRequest{ID: id, Module: step.Module, Query: step.Query, Result: step.Result}, ""
	case ir.TypeGet:
		return ir.GetRequest{ID: id, Module: step.Module, Limit: step.Limit}, ""
	default:
		return ir.UnknownRequest{ID: id, RawType: step.Send}, ""
	}
}

// awaitPending collects the responses to every outstanding step, in order,
// recording PERSIST frames as they arrive.
func (h *Harness) awaitPending(ctx context.Context) error {
	for _, p := range h.pending {
		resp, persists, err := h.receive(ctx, p.id, true)
		if err != nil {
			return fmt.Errorf("step %d (%s): %w", p.index+1, p.step.Send, err)
		}
		h.checkExpect(p, resp, persists)
	}
	h.pending = h.pending[:0]
	return nil
}

// receive waits for the response with the given id.
func (h *Harness) receive(ctx context.Context, id int64, trace bool) (ir.Response, int, error) {
	timer := time.NewTimer(h.timeout)
	defer timer.Stop()

	persists := 0
	for {
		select {
		case n, ok := <-h.worker.Notifications():
			if !ok {
				return nil, persists, fmt.Errorf("worker stopped before responding to id %d", id)
			}
			persists++
			h.latest = n.Snapshot
			if trace {
				h.result.AddPersistTrace()
			}

		case resp, ok := <-h.worker.Responses():
			if !ok {
				return nil, persists, fmt.Errorf("worker stopped before responding to id %d", id)
			}
			if trace {
				h.result.AddResponseTrace(resp)
			}
			if resp.ResponseID() != id {
				return nil, persists, fmt.Errorf("response out of order: got id %d, want %d", resp.ResponseID(), id)
			}
			return resp, persists, nil

		case <-timer.C:
			return nil, persists, fmt.Errorf("no response to id %d within %s", id, h.timeout)

		case <-ctx.Done():
			return nil, persists, ctx.Err()
		}
	}
}

func (h *Harness) checkExpect(p pendingStep, resp ir.Response, persists int) {
	e := p.step.Expect
	if e == nil {
		return
	}
	prefix := fmt.Sprintf("step %d (%s)", p.index+1, p.step.Send)

	if string(resp.Type()) != e.Type {
		detail := ""
		if f, ok := resp.(ir.Failure); ok {
			detail = fmt.Sprintf(" [%s: %s]", f.Kind, f.Message)
		}
		h.result.AddError(fmt.Sprintf("%s: expected %s, got %s%s", prefix, e.Type, resp.Type(), detail))
		return
	}

	switch r := resp.(type) {
	case ir.Failure:
		if e.Kind != "" && string(r.Kind) != e.Kind {
			h.result.AddError(fmt.Sprintf("%s: expected kind %s, got %s (%s)", prefix, e.Kind, r.Kind, r.Message))
		}
	case ir.Success:
		if e.Count != nil && len(r.Entries) != *e.Count {
			h.result.AddError(fmt.Sprintf("%s: expected %d entries, got %d", prefix, *e.Count, len(r.Entries)))
		}
		if len(e.Entries) > 0 {
			if msg := matchEntries(r.Entries, e.Entries); msg != "" {
				h.result.AddError(fmt.Sprintf("%s: %s", prefix, msg))
			}
		}
	}

	if e.Persist != nil && persists != *e.Persist {
		h.result.AddError(fmt.Sprintf("%s: expected %d PERSIST frames, got %d", prefix, *e.Persist, persists))
	}
}

// finalEntries reads every entry from the final worker without tracing.
// Returns nil if the worker is not initialized.
func (h *Harness) finalEntries(ctx context.Context) ([]ir.LogEntry, error) {
	if h.worker.State() != engine.StateReady {
		return nil, nil
	}

	h.queryID++
	id := h.queryID
	if !h.worker.Submit(ir.GetRequest{ID: id}) {
		return nil, fmt.Errorf("worker rejected final GET")
	}
	resp, _, err := h.receive(ctx, id, false)
	if err != nil {
		return nil, err
	}

	switch r := resp.(type) {
	case ir.Success:
		return r.Entries, nil
	case ir.Failure:
		return nil, fmt.Errorf("%s: %s", r.Kind, r.Message)
	default:
		return nil, fmt.Errorf("unexpected response %T", resp)
	}
}
