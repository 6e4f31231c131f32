// internal/driver/loopback/driver.go
package loopback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"serial-gateway/pkg/driver"
)

// MaxBaudRate is the highest baud rate a loopback port accepts
const MaxBaudRate = 4000000

// ErrPortClosed is returned by a handle used after Close
var ErrPortClosed = errors.New("port closed")

// Driver provides in-memory ports whose transmit line is wired to their
// own receive line. RTS drives CTS; DTR drives DSR and DCD.
type Driver struct {
	ports  map[string]*port
	logger *zap.Logger
}

// NewDriver creates a loopback driver with one port per name
func NewDriver(names []string, logger *zap.Logger) *Driver {
	d := &Driver{
		ports:  make(map[string]*port, len(names)),
		logger: logger,
	}
	for _, name := range names {
		d.ports[name] = &port{
			name:   name,
			notify: make(chan struct{}, 1),
		}
	}
	return d
}

type port struct {
	name   string
	notify chan struct{}

	mu     sync.Mutex
	open   bool
	cfg    driver.PortConfig
	rts    bool
	dtr    bool
	buffer bytes.Buffer
}

// Enumerate lists the loopback ports
func (d *Driver) Enumerate(ctx context.Context) ([]driver.PortInfo, error) {
	ports := make([]driver.PortInfo, 0, len(d.ports))
	for name := range d.ports {
		ports = append(ports, driver.PortInfo{
			Path:  name,
			Name:  "Loopback " + name,
			Order: driver.OrderKey(name),
		})
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i].Path < ports[j].Path })
	return ports, nil
}

// Open opens a loopback port exclusively
func (d *Driver) Open(ctx context.Context, path string, mode driver.OpenMode) (driver.Handle, error) {
	p, ok := d.ports[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", driver.ErrUnknownPath, path)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.open {
		return nil, fmt.Errorf("%w: %s", driver.ErrAlreadyOpen, path)
	}
	p.open = true
	p.cfg = driver.DefaultConfig()
	p.rts, p.dtr = false, false
	p.buffer.Reset()

	d.logger.Debug("Loopback port opened", zap.String("port", path))
	return &handle{port: p, logger: d.logger.With(zap.String("port", path))}, nil
}

type handle struct {
	port   *port
	logger *zap.Logger

	closed bool
}

func (h *handle) Configure(change driver.PortConfig) (driver.PortConfig, error) {
	if h.closed {
		return driver.PortConfig{}, ErrPortClosed
	}
	if change.Mask.Has(driver.FieldBaudRate) && (change.BaudRate <= 0 || change.BaudRate > MaxBaudRate) {
		return driver.PortConfig{}, fmt.Errorf("%w: invalid baud rate: %d", driver.ErrInvalidArgument, change.BaudRate)
	}

	p := h.port
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cfg = p.cfg.Merge(change)
	return p.cfg, nil
}

func (h *handle) SetLines(ctl driver.ModemControl) error {
	if h.closed {
		return ErrPortClosed
	}

	p := h.port
	p.mu.Lock()
	defer p.mu.Unlock()

	if ctl.RTS != nil {
		p.rts = *ctl.RTS
	}
	if ctl.DTR != nil {
		p.dtr = *ctl.DTR
	}
	return nil
}

func (h *handle) GetLines() (driver.ModemStatus, error) {
	if h.closed {
		return driver.ModemStatus{}, ErrPortClosed
	}

	p := h.port
	p.mu.Lock()
	defer p.mu.Unlock()

	return driver.ModemStatus{
		CTS: p.rts,
		DSR: p.dtr,
		DCD: p.dtr,
	}, nil
}

func (h *handle) Write(data []byte) (int, error) {
	if h.closed {
		return 0, ErrPortClosed
	}

	p := h.port
	p.mu.Lock()
	n, _ := p.buffer.Write(data)
	p.mu.Unlock()

	select {
	case p.notify <- struct{}{}:
	default:
	}
	return n, nil
}

func (h *handle) Read(buf []byte, timeout time.Duration) (int, bool, error) {
	if h.closed {
		return 0, false, ErrPortClosed
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	p := h.port
	for {
		p.mu.Lock()
		if p.buffer.Len() > 0 {
			n, _ := p.buffer.Read(buf)
			p.mu.Unlock()
			return n, false, nil
		}
		p.mu.Unlock()

		if timeout == 0 {
			return 0, true, nil
		}

		select {
		case <-p.notify:
		case <-expired:
			return 0, true, nil
		}
	}
}

func (h *handle) Close() error {
	if h.closed {
		return ErrPortClosed
	}
	h.closed = true

	p := h.port
	p.mu.Lock()
	p.open = false
	p.buffer.Reset()
	p.mu.Unlock()

	h.logger.Debug("Loopback port closed")
	return nil
}
