// internal/server/websocket.go
package server

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"serial-gateway/internal/protocol"
)

// ChannelListener hands over transports accepted elsewhere, such as
// upgraded WebSocket connections, to a controller
type ChannelListener struct {
	addr    net.Addr
	conns   chan protocol.Transport
	closed  chan struct{}
	closeMu sync.Once
}

// NewChannelListener creates a listener reporting addr as its address
func NewChannelListener(addr net.Addr) *ChannelListener {
	return &ChannelListener{
		addr:   addr,
		conns:  make(chan protocol.Transport),
		closed: make(chan struct{}),
	}
}

// Offer blocks until the controller accepts t. It fails with net.ErrClosed
// once the listener is closed.
func (l *ChannelListener) Offer(t protocol.Transport) error {
	select {
	case l.conns <- t:
		return nil
	case <-l.closed:
		return net.ErrClosed
	}
}

// Accept returns the next offered transport
func (l *ChannelListener) Accept() (protocol.Transport, error) {
	select {
	case t := <-l.conns:
		return t, nil
	case <-l.closed:
		return nil, net.ErrClosed
	}
}

// Close stops accepting; pending offers fail
func (l *ChannelListener) Close() error {
	l.closeMu.Do(func() { close(l.closed) })
	return nil
}

// Addr returns the address the transports arrive on
func (l *ChannelListener) Addr() net.Addr {
	return l.addr
}

const wsCloseTimeout = time.Second

// WebSocketTransport carries the request stream over a WebSocket. Incoming
// text and binary messages are read as one continuous stream; every Write is
// sent as one text message.
type WebSocketTransport struct {
	conn *websocket.Conn

	reader io.Reader

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewWebSocketTransport wraps an upgraded connection
func NewWebSocketTransport(conn *websocket.Conn) *WebSocketTransport {
	return &WebSocketTransport{conn: conn}
}

// Read implements io.Reader. A close frame from the peer ends the stream.
func (t *WebSocketTransport) Read(p []byte) (int, error) {
	for {
		if t.reader == nil {
			_, r, err := t.conn.NextReader()
			if err != nil {
				var closeErr *websocket.CloseError
				if errors.As(err, &closeErr) || errors.Is(err, net.ErrClosed) {
					return 0, io.EOF
				}
				return 0, err
			}
			t.reader = r
		}

		n, err := t.reader.Read(p)
		if errors.Is(err, io.EOF) {
			t.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

// Write sends p as a single text message
func (t *WebSocketTransport) Write(p []byte) (int, error) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := t.conn.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close sends a normal closure frame and closes the connection
func (t *WebSocketTransport) Close() error {
	t.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsCloseTimeout))
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}

// RemoteAddr returns the peer address
func (t *WebSocketTransport) RemoteAddr() net.Addr {
	return t.conn.RemoteAddr()
}
