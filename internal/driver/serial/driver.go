// internal/driver/serial/driver.go
package serial

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	goserial "go.bug.st/serial"
	"go.uber.org/zap"

	"serial-gateway/internal/config"
	"serial-gateway/internal/discovery"
	discoveryserial "serial-gateway/internal/discovery/serial"
	"serial-gateway/internal/model"
	"serial-gateway/pkg/driver"
)

// port is the subset of goserial.Port the driver uses
type port interface {
	SetMode(mode *goserial.Mode) error
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	SetDTR(dtr bool) error
	SetRTS(rts bool) error
	GetModemStatusBits() (*goserial.ModemStatusBits, error)
	SetReadTimeout(t time.Duration) error
	Close() error
}

// openPort is replaced in tests
var openPort = func(path string, mode *goserial.Mode) (port, error) {
	return goserial.Open(path, mode)
}

// Driver exposes the host's serial ports
type Driver struct {
	defaults driver.PortConfig
	scanners *discovery.ScannerManager
	logger   *zap.Logger
}

// NewDriver creates a serial driver that opens ports with defaults
func NewDriver(defaults driver.PortConfig, logger *zap.Logger) *Driver {
	scanners := discovery.NewScannerManager(logger)
	scanners.RegisterScanner(discoveryserial.NewScanner(logger))

	return &Driver{
		defaults: driver.DefaultConfig().Merge(defaults),
		scanners: scanners,
		logger:   logger,
	}
}

// DefaultMode converts the configured open mode. Zero fields keep 9600 8N1.
func DefaultMode(cfg config.SerialPortConfig) (driver.PortConfig, error) {
	var mode driver.PortConfig

	if cfg.BaudRate != 0 {
		mode.BaudRate = cfg.BaudRate
		mode.Mask |= driver.FieldBaudRate
	}
	if cfg.DataBits != 0 {
		if cfg.DataBits < 5 || cfg.DataBits > 8 {
			return driver.PortConfig{}, fmt.Errorf("device.default_mode: %w: invalid data bits: %d", driver.ErrInvalidArgument, cfg.DataBits)
		}
		mode.DataBits = cfg.DataBits
		mode.Mask |= driver.FieldDataBits
	}
	if cfg.Parity != "" {
		parity, err := model.ParseParity(cfg.Parity)
		if err != nil {
			return driver.PortConfig{}, fmt.Errorf("device.default_mode: %w", err)
		}
		mode.Parity = parity
		mode.Mask |= driver.FieldParity
	}
	if cfg.StopBits != 0 {
		stop, err := model.ParseStopBits(cfg.StopBits)
		if err != nil {
			return driver.PortConfig{}, fmt.Errorf("device.default_mode: %w", err)
		}
		mode.StopBits = stop
		mode.Mask |= driver.FieldStopBits
	}
	return mode, nil
}

// Enumerate lists the serial ports
func (d *Driver) Enumerate(ctx context.Context) ([]driver.PortInfo, error) {
	return d.scanners.ScanAll(ctx)
}

// Open opens the serial port at path with the default mode
func (d *Driver) Open(ctx context.Context, path string, mode driver.OpenMode) (driver.Handle, error) {
	d.logger.Debug("Opening serial port",
		zap.String("port", path),
		zap.Int("baud_rate", d.defaults.BaudRate),
	)

	p, err := openPort(path, toSerialMode(d.defaults))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, mapError(err))
	}

	return &handle{
		path:   path,
		port:   p,
		mode:   d.defaults,
		logger: d.logger.With(zap.String("port", path)),
	}, nil
}

// handle is one open serial port. The library cannot read the line
// settings back, so the effective configuration is tracked here.
type handle struct {
	path   string
	port   port
	mode   driver.PortConfig
	logger *zap.Logger
}

func (h *handle) Configure(change driver.PortConfig) (driver.PortConfig, error) {
	if change.Mask == 0 {
		return h.mode, nil
	}
	if change.Mask.Has(driver.FieldFlowControl) && change.FlowControl != driver.FlowNone {
		return driver.PortConfig{}, fmt.Errorf("%w: flow control %s is not supported by the serial driver",
			driver.ErrInvalidArgument, change.FlowControl)
	}

	next := h.mode.Merge(change)
	if err := h.port.SetMode(toSerialMode(next)); err != nil {
		return driver.PortConfig{}, fmt.Errorf("failed to configure %s: %w", h.path, mapError(err))
	}
	h.mode = next

	h.logger.Debug("Serial port configured",
		zap.Int("baud_rate", next.BaudRate),
		zap.Int("data_bits", next.DataBits),
		zap.Stringer("parity", next.Parity),
		zap.Stringer("stop_bits", next.StopBits),
	)
	return h.mode, nil
}

func (h *handle) SetLines(ctl driver.ModemControl) error {
	if ctl.RTS != nil {
		if err := h.port.SetRTS(*ctl.RTS); err != nil {
			return fmt.Errorf("failed to set RTS on %s: %w", h.path, mapError(err))
		}
	}
	if ctl.DTR != nil {
		if err := h.port.SetDTR(*ctl.DTR); err != nil {
			return fmt.Errorf("failed to set DTR on %s: %w", h.path, mapError(err))
		}
	}
	return nil
}

func (h *handle) GetLines() (driver.ModemStatus, error) {
	bits, err := h.port.GetModemStatusBits()
	if err != nil {
		return driver.ModemStatus{}, fmt.Errorf("failed to read modem status of %s: %w", h.path, mapError(err))
	}
	return driver.ModemStatus{
		CTS: bits.CTS,
		DSR: bits.DSR,
		RI:  bits.RI,
		DCD: bits.DCD,
	}, nil
}

func (h *handle) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n, err := h.port.Write(p[written:])
		written += n
		if err != nil {
			return written, fmt.Errorf("failed to write to %s: %w", h.path, err)
		}
		if n == 0 {
			break
		}
	}
	return written, nil
}

func (h *handle) Read(p []byte, timeout time.Duration) (int, bool, error) {
	if timeout < 0 {
		timeout = goserial.NoTimeout
	}
	if err := h.port.SetReadTimeout(timeout); err != nil {
		return 0, false, fmt.Errorf("failed to set read timeout on %s: %w", h.path, mapError(err))
	}

	n, err := h.port.Read(p)
	if err != nil {
		return n, false, fmt.Errorf("failed to read from %s: %w", h.path, err)
	}
	// the library reports an elapsed timeout as an empty read
	return n, n == 0, nil
}

func (h *handle) Close() error {
	if err := h.port.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", h.path, err)
	}
	h.logger.Debug("Serial port closed")
	return nil
}

func toSerialMode(cfg driver.PortConfig) *goserial.Mode {
	mode := &goserial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
	}

	switch cfg.Parity {
	case driver.ParityOdd:
		mode.Parity = goserial.OddParity
	case driver.ParityEven:
		mode.Parity = goserial.EvenParity
	case driver.ParityMark:
		mode.Parity = goserial.MarkParity
	case driver.ParitySpace:
		mode.Parity = goserial.SpaceParity
	default:
		mode.Parity = goserial.NoParity
	}

	switch cfg.StopBits {
	case driver.StopBits1Half:
		mode.StopBits = goserial.OnePointFiveStopBits
	case driver.StopBits2:
		mode.StopBits = goserial.TwoStopBits
	default:
		mode.StopBits = goserial.OneStopBit
	}
	return mode
}

// mapError translates library and OS errors into driver errors
func mapError(err error) error {
	var portErr *goserial.PortError
	if errors.As(err, &portErr) {
		switch portErr.Code() {
		case goserial.PortNotFound:
			return fmt.Errorf("%w: %v", driver.ErrUnknownPath, err)
		case goserial.PermissionDenied:
			return fmt.Errorf("%w: %v", driver.ErrAccessDenied, err)
		case goserial.PortBusy:
			return fmt.Errorf("%w: %v", driver.ErrAlreadyOpen, err)
		case goserial.InvalidSpeed, goserial.InvalidDataBits, goserial.InvalidParity,
			goserial.InvalidStopBits, goserial.InvalidTimeoutValue, goserial.InvalidSerialPort:
			return fmt.Errorf("%w: %v", driver.ErrInvalidArgument, err)
		}
		return err
	}

	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %v", driver.ErrUnknownPath, err)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %v", driver.ErrAccessDenied, err)
	case errors.Is(err, os.ErrInvalid):
		return fmt.Errorf("%w: %v", driver.ErrInvalidArgument, err)
	}
	return err
}
