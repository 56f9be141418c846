package client

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/almanac/internal/engine"
	"github.com/roach88/almanac/internal/ir"
	"github.com/roach88/almanac/internal/testutil"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type recordingSink struct {
	mu    sync.Mutex
	saved [][]byte
	err   error
}

func (s *recordingSink) Save(_ context.Context, snapshot []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, snapshot)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

func (s *recordingSink) last() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saved) == 0 {
		return nil
	}
	return s.saved[len(s.saved)-1]
}

// fakeBackend records submissions and only answers when told to.
type fakeBackend struct {
	mu        sync.Mutex
	submitted []ir.Request
	rejecting bool

	responses     chan ir.Response
	notifications chan ir.Persist
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		responses:     make(chan ir.Response, 16),
		notifications: make(chan ir.Persist, 16),
	}
}

func (b *fakeBackend) Submit(req ir.Request) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rejecting {
		return false
	}
	b.submitted = append(b.submitted, req)
	return true
}

func (b *fakeBackend) Responses() <-chan ir.Response    { return b.responses }
func (b *fakeBackend) Notifications() <-chan ir.Persist { return b.notifications }

func (b *fakeBackend) requests() []ir.Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]ir.Request(nil), b.submitted...)
}

func (b *fakeBackend) stop() {
	close(b.responses)
	close(b.notifications)
}

// startWorker runs a real worker for the duration of the test.
func startWorker(t *testing.T) *engine.Worker {
	t.Helper()
	w := engine.New(
		engine.WithLogger(discardLogger),
		engine.WithClock(testutil.NewDeterministicClock()),
		engine.WithIDGenerator(testutil.NewFixedIDGenerator("")),
	)
	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()
	t.Cleanup(func() {
		w.Stop()
		<-done
	})
	return w
}

func newClient(t *testing.T, b Backend, opts ...Option) *Client {
	t.Helper()
	c := New(b, append([]Option{WithLogger(discardLogger)}, opts...)...)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClient_LogAndGet(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	c := newClient(t, startWorker(t), WithSnapshotSink(sink))

	require.NoError(t, c.Init(ctx, nil))
	require.NoError(t, c.Log(ctx, "sabian", "0° Aries", "..."))
	assert.Equal(t, 1, sink.count(), "snapshot must reach the sink before Log returns")

	require.NoError(t, c.Log(ctx, "oracle", "q1", "r1"))
	assert.Equal(t, 2, sink.count())
	assert.Equal(t, sink.last(), c.LatestSnapshot())

	entries, err := c.Get(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "oracle", entries[0].Module)
	assert.Equal(t, "sabian", entries[1].Module)

	entries, err = c.Get(ctx, "transit", 0)
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestClient_SnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	first := newClient(t, startWorker(t))
	require.NoError(t, first.Init(ctx, nil))
	require.NoError(t, first.Log(ctx, "oracle", "q1", "r1"))
	require.NoError(t, first.Log(ctx, "oracle", "q2", "r2"))
	want, err := first.Get(ctx, "", 0)
	require.NoError(t, err)

	second := newClient(t, startWorker(t))
	require.NoError(t, second.Init(ctx, first.LatestSnapshot()))
	got, err := second.Get(ctx, "", 0)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestClient_NotInitialized(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	c := newClient(t, startWorker(t), WithSnapshotSink(sink))

	err := c.Log(ctx, "oracle", "q", "r")
	require.Error(t, err)
	assert.True(t, IsNotInitialized(err))
	assert.Equal(t, 0, sink.count())

	var re *RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ir.KindNotInitialized, re.Kind)
}

func TestClient_InitializationError(t *testing.T) {
	c := newClient(t, startWorker(t))

	err := c.Init(context.Background(), []byte("garbage"))
	require.Error(t, err)
	assert.True(t, IsInitializationError(err))
	assert.False(t, IsNotInitialized(err))
}

func TestClient_SinkErrorDoesNotFailLog(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{err: errors.New("disk full")}
	c := newClient(t, startWorker(t), WithSnapshotSink(sink))

	require.NoError(t, c.Init(ctx, nil))
	require.NoError(t, c.Log(ctx, "oracle", "q", "r"))
	assert.Equal(t, 1, sink.count())
	assert.NotNil(t, c.LatestSnapshot())
}

func TestClient_ConcurrentCallers(t *testing.T) {
	ctx := context.Background()
	c := newClient(t, startWorker(t))
	require.NoError(t, c.Init(ctx, nil))

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- c.Log(ctx, "oracle", "q", "r")
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	entries, err := c.Get(ctx, "oracle", 0)
	require.NoError(t, err)
	assert.Len(t, entries, n)
	assert.Equal(t, 0, c.Pending())
}

func TestClient_AssignsIncreasingIDs(t *testing.T) {
	b := newFakeBackend()
	c := newClient(t, b, WithTimeout(20*time.Millisecond))

	_ = c.Init(context.Background(), nil)
	_, _ = c.Get(context.Background(), "", 0)

	reqs := b.requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, int64(1), reqs[0].RequestID())
	assert.Equal(t, int64(2), reqs[1].RequestID())
}

func TestClient_Timeout(t *testing.T) {
	b := newFakeBackend()
	c := newClient(t, b, WithTimeout(20*time.Millisecond))

	err := c.Init(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 0, c.Pending(), "timed-out request must be forgotten")

	// The late answer is dropped; the next call is unaffected.
	b.responses <- ir.Success{ID: 1}
	go func() {
		for {
			reqs := b.requests()
			if len(reqs) == 2 {
				b.responses <- ir.Success{ID: reqs[1].RequestID()}
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	err = c.Init(context.Background(), nil)
	assert.NoError(t, err)
}

func TestClient_ContextCancel(t *testing.T) {
	b := newFakeBackend()
	c := newClient(t, b)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Init(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, c.Pending())
}

func TestClient_SubmitRejected(t *testing.T) {
	b := newFakeBackend()
	b.rejecting = true
	c := newClient(t, b)

	err := c.Init(context.Background(), nil)
	assert.ErrorIs(t, err, ErrWorkerStopped)
	assert.Equal(t, 0, c.Pending())
}

func TestClient_WorkerStopsWithPendingRequest(t *testing.T) {
	b := newFakeBackend()
	c := newClient(t, b)

	errCh := make(chan error, 1)
	go func() { errCh <- c.Init(context.Background(), nil) }()

	require.Eventually(t, func() bool { return c.Pending() == 1 }, time.Second, time.Millisecond)
	b.stop()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrWorkerStopped)
	case <-time.After(time.Second):
		t.Fatal("pending call did not fail when the worker stopped")
	}
	<-c.Done()
}

func TestClient_Close(t *testing.T) {
	b := newFakeBackend()
	c := New(b, WithLogger(discardLogger))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close(), "Close must be idempotent")

	err := c.Init(context.Background(), nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestClient_CloseWithPendingRequest(t *testing.T) {
	b := newFakeBackend()
	var logs bytes.Buffer
	c := New(b, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	errc := make(chan error, 1)
	go func() { errc <- c.Init(context.Background(), nil) }()
	require.Eventually(t, func() bool { return c.Pending() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, c.Close())
	assert.ErrorIs(t, <-errc, ErrClosed)
	assert.Contains(t, logs.String(), "closing client with pending requests")
	assert.Contains(t, logs.String(), "last_id=1")
}

func TestClient_LogNormalizesModule(t *testing.T) {
	ctx := context.Background()
	c := newClient(t, startWorker(t))
	require.NoError(t, c.Init(ctx, nil))

	decomposed := "caf\u0065\u0301"
	require.NoError(t, c.Log(ctx, decomposed, "q", "r"))

	entries, err := c.Get(ctx, "caf\u00e9", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "caf\u00e9", entries[0].Module, "module is returned in NFC form")
	assert.NotEqual(t, decomposed, entries[0].Module)
}

func TestClient_PersistWithoutPendingRequest(t *testing.T) {
	b := newFakeBackend()
	sink := &recordingSink{}
	c := newClient(t, b, WithSnapshotSink(sink))

	b.notifications <- ir.Persist{Snapshot: []byte("one")}
	b.notifications <- ir.Persist{Snapshot: []byte("two")}

	require.Eventually(t, func() bool { return sink.count() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []byte("two"), c.LatestSnapshot())
}

func TestRemoteError(t *testing.T) {
	err := error(&RemoteError{ID: 3, Kind: ir.KindEngine, Message: "boom"})

	assert.Equal(t, "EngineError: boom", err.Error())
	assert.Equal(t, ir.KindEngine, KindOf(err))
	assert.Equal(t, ir.ErrorKind(""), KindOf(errors.New("plain")))
}
