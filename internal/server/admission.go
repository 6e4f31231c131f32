// internal/server/admission.go
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"serial-gateway/internal/protocol"
	"serial-gateway/internal/utils"
)

// DefaultMaxClients is the capacity used when none is configured
const DefaultMaxClients = 10

// Listener yields accepted client connections
type Listener interface {
	Accept() (protocol.Transport, error)
	Close() error
	Addr() net.Addr
}

// Handler serves one accepted connection until it ends
type Handler interface {
	Serve(ctx context.Context, t protocol.Transport, conn *protocol.Conn) error
}

// slot tracks one connection worker. done is closed once the worker has
// returned; conn is set when the worker starts.
type slot struct {
	done chan struct{}
	conn protocol.Transport
}

// Stats is a snapshot of the controller's bookkeeping
type Stats struct {
	Capacity int    `json:"capacity"`
	Active   int    `json:"active"`
	Finished int    `json:"finished"`
	Accepted uint64 `json:"accepted"`
}

// Controller admits at most Capacity concurrent connections. A worker frees
// its slot as soon as it stops doing useful work; the slot is reclaimed on
// the next accept.
type Controller struct {
	name     string
	capacity int
	handler  Handler
	logger   *zap.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	active   map[*slot]struct{}
	finished []*slot
	stopping bool

	accepted *atomic.Uint64
	wg       sync.WaitGroup
}

// NewController creates a controller for the given transport name
func NewController(name string, capacity int, handler Handler, logger *zap.Logger) *Controller {
	if capacity <= 0 {
		capacity = DefaultMaxClients
	}
	c := &Controller{
		name:     name,
		capacity: capacity,
		handler:  handler,
		logger:   logger.With(zap.String("component", "admission"), zap.String("transport", name)),
		active:   make(map[*slot]struct{}),
		accepted: atomic.NewUint64(0),
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Serve runs the accept loop until ctx is cancelled (nil is returned) or the
// listener fails. The listener is closed when Serve returns.
func (c *Controller) Serve(ctx context.Context, l Listener) error {
	stop := context.AfterFunc(ctx, func() {
		c.mu.Lock()
		c.stopping = true
		c.cond.Broadcast()
		c.mu.Unlock()
		l.Close()
	})
	defer stop()
	defer l.Close()

	c.logger.Info("Accepting connections",
		zap.String("address", l.Addr().String()),
		zap.Int("capacity", c.capacity),
	)

	for {
		c.mu.Lock()
		for len(c.active) >= c.capacity && !c.stopping {
			c.cond.Wait()
		}
		if c.stopping {
			c.mu.Unlock()
			return nil
		}
		s := &slot{done: make(chan struct{})}
		c.active[s] = struct{}{}
		c.mu.Unlock()

		t, err := l.Accept()
		if err != nil {
			c.release(s)
			close(s.done)
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("%s listener failed: %w", c.name, err)
		}
		c.accepted.Inc()

		c.reclaim()
		c.start(ctx, s, t)
	}
}

// reclaim waits for every finished worker to return and forgets its slot
func (c *Controller) reclaim() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, s := range c.finished {
		<-s.done
	}
	c.finished = c.finished[:0]
}

func (c *Controller) start(ctx context.Context, s *slot, t protocol.Transport) {
	remote := ""
	if addr := t.RemoteAddr(); addr != nil {
		remote = addr.String()
	}
	conn := &protocol.Conn{
		ID:         uuid.New().String(),
		RemoteAddr: remote,
	}
	conn.Logger = utils.ConnectionLogger(c.logger, conn.ID, remote, c.name)

	c.mu.Lock()
	s.conn = t
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(s.done)
		defer c.finish(s)
		defer func() {
			if err := t.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				conn.Logger.Debug("Failed to close connection", zap.Error(err))
			}
		}()
		defer func() {
			if r := recover(); r != nil {
				conn.Logger.Error("Connection worker panicked", zap.Any("panic", r), zap.Stack("stack"))
			}
		}()

		conn.Logger.Info("Connection accepted")
		err := c.handler.Serve(ctx, t, conn)

		var perr *protocol.ProtocolError
		switch {
		case err == nil:
			conn.Logger.Info("Connection closed")
		case errors.As(err, &perr):
			conn.Logger.Warn("Connection terminated", zap.Error(err))
		default:
			conn.Logger.Error("Connection failed", zap.Error(err))
		}
	}()
}

// finish moves s from active to finished and wakes the accept loop
func (c *Controller) finish(s *slot) {
	c.mu.Lock()
	delete(c.active, s)
	s.conn = nil
	c.finished = append(c.finished, s)
	c.cond.Broadcast()
	c.mu.Unlock()
}

// release drops a reserved slot that never got a worker
func (c *Controller) release(s *slot) {
	c.mu.Lock()
	delete(c.active, s)
	c.cond.Broadcast()
	c.mu.Unlock()
}

// CloseConnections closes the transport of every active worker so that its
// dispatcher loop ends
func (c *Controller) CloseConnections() {
	c.mu.Lock()
	conns := make([]protocol.Transport, 0, len(c.active))
	for s := range c.active {
		if s.conn != nil {
			conns = append(conns, s.conn)
		}
	}
	c.mu.Unlock()

	for _, t := range conns {
		t.Close()
	}
}

// Wait blocks until every worker has returned
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Stats returns a snapshot of the slot bookkeeping
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Capacity: c.capacity,
		Active:   len(c.active),
		Finished: len(c.finished),
		Accepted: c.accepted.Load(),
	}
}

// Name returns the transport name the controller was created with
func (c *Controller) Name() string {
	return c.name
}
