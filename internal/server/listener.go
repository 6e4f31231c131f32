// internal/server/listener.go
package server

import (
	"context"
	"fmt"
	"net"

	"serial-gateway/internal/protocol"
)

// TCPListener adapts a net.Listener to the controller
type TCPListener struct {
	net.Listener
}

// Listen binds a TCP listener. Port 0 lets the OS pick one.
func Listen(ctx context.Context, address string) (*TCPListener, error) {
	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	return &TCPListener{Listener: l}, nil
}

// Accept waits for the next TCP client
func (l *TCPListener) Accept() (protocol.Transport, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Port returns the bound port
func (l *TCPListener) Port() int {
	if addr, ok := l.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

// Host returns the bound IP address
func (l *TCPListener) Host() string {
	if addr, ok := l.Addr().(*net.TCPAddr); ok {
		return addr.IP.String()
	}
	return ""
}
