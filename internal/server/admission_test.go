package server

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"serial-gateway/internal/protocol"
)

type blockingHandler struct {
	release chan struct{}
	current *atomic.Int64
	peak    *atomic.Int64
	started chan string
}

func newBlockingHandler() *blockingHandler {
	return &blockingHandler{
		release: make(chan struct{}),
		current: atomic.NewInt64(0),
		peak:    atomic.NewInt64(0),
		started: make(chan string, 16),
	}
}

func (h *blockingHandler) Serve(ctx context.Context, t protocol.Transport, conn *protocol.Conn) error {
	n := h.current.Inc()
	for {
		p := h.peak.Load()
		if n <= p || h.peak.CompareAndSwap(p, n) {
			break
		}
	}
	h.started <- conn.ID
	defer h.current.Dec()

	select {
	case <-h.release:
	case <-ctx.Done():
	}
	return nil
}

type funcHandler func(ctx context.Context, t protocol.Transport, conn *protocol.Conn) error

func (f funcHandler) Serve(ctx context.Context, t protocol.Transport, conn *protocol.Conn) error {
	return f(ctx, t, conn)
}

type pipeAddr struct{}

func (pipeAddr) Network() string { return "pipe" }
func (pipeAddr) String() string  { return "pipe" }

func startController(t *testing.T, capacity int, h Handler) (*Controller, *ChannelListener, context.CancelFunc, chan error) {
	t.Helper()
	ctrl := NewController("test", capacity, h, zap.NewNop())
	l := NewChannelListener(pipeAddr{})
	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- ctrl.Serve(ctx, l) }()
	t.Cleanup(func() {
		cancel()
		ctrl.CloseConnections()
		ctrl.Wait()
	})
	return ctrl, l, cancel, result
}

func offerPipe(t *testing.T, l *ChannelListener) net.Conn {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { client.Close() })
	if err := l.Offer(server); err != nil {
		t.Fatalf("offer failed: %v", err)
	}
	return client
}

func waitStarted(t *testing.T, h *blockingHandler) {
	t.Helper()
	select {
	case <-h.started:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not start")
	}
}

func TestCapacityLimitsActiveWorkers(t *testing.T) {
	h := newBlockingHandler()
	ctrl, l, _, _ := startController(t, 2, h)

	offerPipe(t, l)
	offerPipe(t, l)
	waitStarted(t, h)
	waitStarted(t, h)

	queued := make(chan struct{})
	go func() {
		server, client := net.Pipe()
		defer client.Close()
		if err := l.Offer(server); err == nil {
			close(queued)
		}
	}()

	select {
	case <-queued:
		t.Fatal("third connection admitted above capacity")
	case <-time.After(100 * time.Millisecond):
	}

	if stats := ctrl.Stats(); stats.Active != 2 || stats.Accepted != 2 {
		t.Errorf("unexpected stats %+v", stats)
	}

	// one worker finishes
	h.release <- struct{}{}

	select {
	case <-queued:
	case <-time.After(2 * time.Second):
		t.Fatal("queued connection was not admitted after a worker finished")
	}
	waitStarted(t, h)

	if peak := h.peak.Load(); peak > 2 {
		t.Errorf("expected at most 2 concurrent workers, saw %d", peak)
	}
	close(h.release)
}

func TestManyConnectionsNeverExceedCapacity(t *testing.T) {
	h := newBlockingHandler()
	_, l, _, _ := startController(t, 3, h)

	const total = 10
	offered := make(chan struct{}, total)
	for i := 0; i < total; i++ {
		go func() {
			server, client := net.Pipe()
			defer client.Close()
			if err := l.Offer(server); err == nil {
				offered <- struct{}{}
			}
		}()
	}

	for i := 0; i < total; i++ {
		waitStarted(t, h)
		h.release <- struct{}{}
	}
	for i := 0; i < total; i++ {
		<-offered
	}

	if peak := h.peak.Load(); peak > 3 {
		t.Errorf("expected at most 3 concurrent workers, saw %d", peak)
	}
}

func TestWorkerClosesTransportOnFailure(t *testing.T) {
	h := funcHandler(func(ctx context.Context, t protocol.Transport, conn *protocol.Conn) error {
		return errors.New("device failure")
	})
	ctrl, l, _, _ := startController(t, 1, h)

	for i := 0; i < 3; i++ {
		client := offerPipe(t, l)
		_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
		if _, err := client.Read(make([]byte, 1)); !errors.Is(err, io.EOF) {
			t.Fatalf("expected transport to be closed, got %v", err)
		}
	}

	if stats := ctrl.Stats(); stats.Accepted != 3 {
		t.Errorf("expected 3 accepted connections, got %+v", stats)
	}
}

func TestPanickingWorkerFreesSlot(t *testing.T) {
	calls := atomic.NewInt64(0)
	h := funcHandler(func(ctx context.Context, t protocol.Transport, conn *protocol.Conn) error {
		calls.Inc()
		panic("boom")
	})
	_, l, _, _ := startController(t, 1, h)

	for i := 0; i < 2; i++ {
		client := offerPipe(t, l)
		_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
		if _, err := client.Read(make([]byte, 1)); !errors.Is(err, io.EOF) {
			t.Fatalf("expected transport to be closed, got %v", err)
		}
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	h := newBlockingHandler()
	ctrl, l, cancel, result := startController(t, 2, h)

	client := offerPipe(t, l)
	waitStarted(t, h)

	cancel()
	select {
	case err := <-result:
		if err != nil {
			t.Errorf("expected nil on cancel, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("controller did not stop")
	}

	ctrl.CloseConnections()
	ctrl.Wait()
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := client.Read(make([]byte, 1)); !errors.Is(err, io.EOF) {
		t.Errorf("expected closed transport, got %v", err)
	}
	if err := l.Offer(nil); !errors.Is(err, net.ErrClosed) {
		t.Errorf("expected closed listener, got %v", err)
	}
}

type failingListener struct {
	err error
}

func (l *failingListener) Accept() (protocol.Transport, error) { return nil, l.err }
func (l *failingListener) Close() error                        { return nil }
func (l *failingListener) Addr() net.Addr                      { return pipeAddr{} }

func TestListenerFailureIsFatal(t *testing.T) {
	boom := errors.New("too many open files")
	ctrl := NewController("test", 1, newBlockingHandler(), zap.NewNop())

	err := ctrl.Serve(context.Background(), &failingListener{err: boom})
	if !errors.Is(err, boom) {
		t.Errorf("expected listener failure, got %v", err)
	}
	if stats := ctrl.Stats(); stats.Active != 0 {
		t.Errorf("reserved slot not released: %+v", stats)
	}
}
