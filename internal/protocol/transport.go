// internal/protocol/transport.go
package protocol

import (
	"io"
	"net"
)

// Transport is the byte stream of one accepted client connection.
// Read returns io.EOF once the peer has finished sending.
type Transport interface {
	io.ReadWriteCloser
	RemoteAddr() net.Addr
}
