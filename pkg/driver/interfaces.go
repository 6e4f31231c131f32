// pkg/driver/interfaces.go
package driver

import (
	"context"
	"time"
)

//go:generate go tool mockgen -source=interfaces.go -destination=mock_driver.go -package=driver

// PortDriver is the backend that enumerates and opens serial ports
type PortDriver interface {
	// Enumerate lists the ports currently present on the system.
	// The order of the result is not significant, callers sort by PortInfo.Order.
	Enumerate(ctx context.Context) ([]PortInfo, error)

	// Open opens the port at path. It fails with ErrUnknownPath,
	// ErrAccessDenied or ErrAlreadyOpen.
	Open(ctx context.Context, path string, mode OpenMode) (Handle, error)
}

// Handle is an open port. Implementations need not be safe for concurrent
// use; the session registry serializes access to a handle.
type Handle interface {
	// Configure applies the fields of change selected by change.Mask and
	// returns the effective configuration. A zero mask only reads it back.
	Configure(change PortConfig) (PortConfig, error)

	// SetLines drives the requested modem output lines.
	SetLines(ctl ModemControl) error

	// GetLines reports the modem input lines.
	GetLines() (ModemStatus, error)

	// Write transfers p to the device and returns the number of bytes accepted.
	Write(p []byte) (int, error)

	// Read waits up to timeout for data and reads at most len(p) bytes.
	// timedOut is true when the timeout elapsed before any byte arrived.
	// A negative timeout waits indefinitely.
	Read(p []byte, timeout time.Duration) (n int, timedOut bool, err error)

	// Close releases the device.
	Close() error
}
