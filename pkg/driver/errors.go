package driver

import "errors"

var (
	// ErrUnknownPath is returned by Open when no device exists at the path.
	ErrUnknownPath = errors.New("unknown port path")

	// ErrAccessDenied is returned when the device cannot be opened with the
	// requested access, or when a session uses a direction it did not open.
	ErrAccessDenied = errors.New("access denied")

	// ErrAlreadyOpen is returned when the port is held exclusively.
	ErrAlreadyOpen = errors.New("port already open")

	// ErrInvalidArgument is returned for configuration values the device
	// or the driver does not accept.
	ErrInvalidArgument = errors.New("invalid argument")
)
