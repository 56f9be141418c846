package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/almanac/internal/ir"
)

// DefaultTimeout bounds every request unless WithTimeout overrides it.
const DefaultTimeout = 10 * time.Second

// Backend is the worker surface a Client drives. *engine.Worker implements it.
type Backend interface {
	Submit(ir.Request) bool
	Responses() <-chan ir.Response
	Notifications() <-chan ir.Persist
}

// SnapshotSink receives every PERSIST snapshot in emission order.
type SnapshotSink interface {
	Save(ctx context.Context, snapshot []byte) error
}

// Client correlates requests and responses over a Backend.
//
// Thread-safety: all methods are safe for concurrent use. Responses are
// matched by id, so concurrent callers may interleave freely.
type Client struct {
	backend Backend
	sink    SnapshotSink
	logger  *slog.Logger
	timeout time.Duration
	ids     *sequence

	mu      sync.Mutex
	pending map[int64]chan ir.Response
	closed  bool
	latest  []byte

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithSnapshotSink sets where PERSIST snapshots are saved.
func WithSnapshotSink(s SnapshotSink) Option {
	return func(c *Client) {
		c.sink = s
	}
}

// New creates a client and starts dispatching the backend's output streams.
// The backend's worker must be running (or about to run) for calls to complete.
func New(backend Backend, opts ...Option) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		backend: backend,
		logger:  slog.Default(),
		timeout: DefaultTimeout,
		ids:     newSequenceAt(0),
		pending: make(map[int64]chan ir.Response),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.dispatch()
	return c
}

// Init sends INIT. An empty snapshot creates a fresh store.
func (c *Client) Init(ctx context.Context, snapshot []byte) error {
	_, err := c.call(ctx, func(id int64) ir.Request {
		return ir.InitRequest{ID: id, Snapshot: snapshot}
	})
	return err
}

// Log sends LOG. When Log returns nil, the snapshot containing the new entry
// has already been handed to the sink.
//
// The module is stored in Unicode NFC form: Get returns "caf\u00e9" for an
// entry logged as "cafe\u0301", and filters match either spelling.
func (c *Client) Log(ctx context.Context, module, query, result string) error {
	_, err := c.call(ctx, func(id int64) ir.Request {
		return ir.LogRequest{ID: id, Module: module, Query: query, Result: result}
	})
	return err
}

// Get sends GET. An empty module selects every entry; limit <= 0 means no limit.
func (c *Client) Get(ctx context.Context, module string, limit int) ([]ir.LogEntry, error) {
	s, err := c.call(ctx, func(id int64) ir.Request {
		return ir.GetRequest{ID: id, Module: module, Limit: limit}
	})
	if err != nil {
		return nil, err
	}
	if s.Entries == nil {
		return []ir.LogEntry{}, nil
	}
	return s.Entries, nil
}

// LatestSnapshot returns the most recent PERSIST snapshot seen, or nil.
func (c *Client) LatestSnapshot() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest
}

// Pending returns the number of requests awaiting a response.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Close stops dispatching and fails every pending call with ErrClosed.
// It does not stop the worker.
func (c *Client) Close() error {
	if n := c.Pending(); n > 0 {
		c.logger.Warn("closing client with pending requests", "pending", n, "last_id", c.ids.Current())
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	<-c.done
	return nil
}

// Done is closed once the client stops dispatching, either because Close was
// called or because the worker closed its output streams.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) call(ctx context.Context, build func(id int64) ir.Request) (ir.Success, error) {
	id := c.ids.Next()
	ch := make(chan ir.Response, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ir.Success{}, ErrClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()

	req := build(id)
	if !c.backend.Submit(req) {
		c.forget(id)
		return ir.Success{}, fmt.Errorf("%s %d: %w", req.Type(), id, ErrWorkerStopped)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			return ir.Success{}, fmt.Errorf("%s %d: %w", req.Type(), id, c.stopReason())
		}
		switch r := resp.(type) {
		case ir.Success:
			return r, nil
		case ir.Failure:
			return ir.Success{}, &RemoteError{ID: r.ID, Kind: r.Kind, Message: r.Message}
		default:
			return ir.Success{}, fmt.Errorf("%s %d: unexpected response %T", req.Type(), id, resp)
		}

	case <-timer.C:
		c.forget(id)
		c.logger.Warn("request timed out", "id", id, "type", req.Type(), "timeout", c.timeout)
		return ir.Success{}, fmt.Errorf("%s %d after %s: %w", req.Type(), id, c.timeout, ErrTimeout)

	case <-ctx.Done():
		c.forget(id)
		return ir.Success{}, ctx.Err()
	}
}

func (c *Client) forget(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) stopReason() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return ErrWorkerStopped
}

// dispatch routes the backend's outputs until both streams close or the
// client is closed.
func (c *Client) dispatch() {
	defer close(c.done)
	defer c.failPending()

	responses := c.backend.Responses()
	notifications := c.backend.Notifications()

	for responses != nil || notifications != nil {
		select {
		case resp, ok := <-responses:
			if !ok {
				responses = nil
				continue
			}
			// A LOG's PERSIST is queued before its SUCCESS; flush it first.
			c.flushNotifications(notifications)
			c.deliver(resp)

		case n, ok := <-notifications:
			if !ok {
				notifications = nil
				continue
			}
			c.persist(n)

		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) flushNotifications(notifications <-chan ir.Persist) {
	if notifications == nil {
		return
	}
	for {
		select {
		case n, ok := <-notifications:
			if !ok {
				return
			}
			c.persist(n)
		default:
			return
		}
	}
}

func (c *Client) deliver(resp ir.Response) {
	id := resp.ResponseID()

	c.mu.Lock()
	ch, ok := c.pending[id]
	delete(c.pending, id)
	c.mu.Unlock()

	if !ok {
		c.logger.Warn("dropping response with no pending request", "id", id, "type", resp.Type())
		return
	}
	ch <- resp
}

func (c *Client) persist(n ir.Persist) {
	c.mu.Lock()
	c.latest = n.Snapshot
	c.mu.Unlock()

	if c.sink == nil {
		return
	}
	if err := c.sink.Save(c.ctx, n.Snapshot); err != nil {
		c.logger.Error("failed to save snapshot", "bytes", len(n.Snapshot), "error", err)
	}
}

func (c *Client) failPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}
