// internal/service/port_service.go
package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"serial-gateway/internal/model"
	"serial-gateway/internal/session"
	"serial-gateway/internal/utils"
	"serial-gateway/pkg/driver"
)

// EventPublisher receives session events
type EventPublisher interface {
	Publish(event model.SessionEvent)
}

type nopPublisher struct{}

func (nopPublisher) Publish(model.SessionEvent) {}

// Options bounds the transfer operations
type Options struct {
	// MaxReadSize caps the length of a single read
	MaxReadSize int
	// ReadTimeout is used when a read does not name its own timeout
	ReadTimeout time.Duration
	// MaxReadTimeout caps a client supplied timeout
	MaxReadTimeout time.Duration
}

// OpenRequest describes a port to open
type OpenRequest struct {
	Path      string
	Mode      driver.OpenMode
	Shared    bool
	Permanent bool
	// Config is applied right after opening when its mask is not empty
	Config driver.PortConfig
}

// ReadResult is the outcome of a read
type ReadResult struct {
	Data     []byte
	TimedOut bool
}

// PortService implements the gateway operations on top of a port driver
// and the session registry
type PortService struct {
	driver   driver.PortDriver
	sessions *session.Registry
	events   EventPublisher
	options  Options
	logger   *utils.ServiceLogger
	audit    *utils.AuditLogger
}

// NewPortService creates a new port service instance
func NewPortService(
	portDriver driver.PortDriver,
	sessions *session.Registry,
	events EventPublisher,
	options Options,
	logger *zap.Logger,
) *PortService {
	if events == nil {
		events = nopPublisher{}
	}
	if options.MaxReadSize <= 0 {
		options.MaxReadSize = 4096
	}
	if options.MaxReadTimeout <= 0 {
		options.MaxReadTimeout = time.Minute
	}
	return &PortService{
		driver:   portDriver,
		sessions: sessions,
		events:   events,
		options:  options,
		logger:   utils.NewServiceLogger(logger, "port-service"),
		audit:    utils.NewAuditLogger(logger),
	}
}

// ListPorts enumerates the ports ordered by their order key. Ports with
// equal keys keep the driver's order.
func (ps *PortService) ListPorts(ctx context.Context) ([]driver.PortInfo, error) {
	ports, err := ps.driver.Enumerate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate ports: %w", err)
	}

	sort.SliceStable(ports, func(i, j int) bool {
		return ports[i].Order < ports[j].Order
	})
	return ports, nil
}

// OpenPort opens req.Path and registers a session owned by owner
func (ps *PortService) OpenPort(ctx context.Context, owner string, req OpenRequest) (*session.Session, error) {
	s, err := ps.sessions.Create(session.OpenSpec{
		Path:      req.Path,
		Mode:      req.Mode,
		Shared:    req.Shared,
		Permanent: req.Permanent,
		Owner:     owner,
	}, func() (driver.Handle, error) {
		return ps.driver.Open(ctx, req.Path, req.Mode)
	})
	if err != nil {
		return nil, err
	}

	if req.Config.Mask != 0 {
		err := ps.sessions.WithSession(s.ID, func(s *session.Session) error {
			_, err := s.Handle().Configure(req.Config)
			return err
		})
		if err != nil {
			if _, closeErr := ps.sessions.Remove(s.ID); closeErr != nil {
				ps.logger.Warn("Failed to close session after configuration error",
					zap.Int("session", s.ID),
					zap.Error(closeErr),
				)
			}
			return nil, err
		}
	}

	ps.audit.LogSessionOpened(s.ID, s.Path, owner, s.Shared, s.Permanent)
	ps.events.Publish(model.NewSessionEvent(model.EventSessionOpened, s.ID, s.Path, owner, model.JSONObject{
		"read":      s.Mode.Read,
		"write":     s.Mode.Write,
		"shared":    s.Shared,
		"permanent": s.Permanent,
	}))
	return s, nil
}

// Configure applies change to the session's port and returns the effective
// configuration. An empty change only reads the configuration back.
func (ps *PortService) Configure(ctx context.Context, owner string, id int, change driver.PortConfig) (driver.PortConfig, error) {
	var (
		effective driver.PortConfig
		path      string
	)
	err := ps.sessions.WithSession(id, func(s *session.Session) error {
		path = s.Path
		var err error
		effective, err = s.Handle().Configure(change)
		return err
	})
	if err != nil {
		return driver.PortConfig{}, err
	}

	if change.Mask != 0 {
		ps.audit.LogSessionConfigured(id, path, owner, model.NewConfigResponse(effective))
		ps.events.Publish(model.NewSessionEvent(model.EventSessionConfigured, id, path, owner, model.JSONObject{
			"baud":   effective.BaudRate,
			"bits":   effective.DataBits,
			"parity": effective.Parity.String(),
			"stop":   effective.StopBits.Float64(),
			"flow":   effective.FlowControl.String(),
		}))
	}
	return effective, nil
}

// Modem drives the requested output lines and reports the input lines
func (ps *PortService) Modem(ctx context.Context, id int, ctl driver.ModemControl) (driver.ModemStatus, error) {
	var status driver.ModemStatus
	err := ps.sessions.WithSession(id, func(s *session.Session) error {
		if ctl.RTS != nil || ctl.DTR != nil {
			if err := s.Handle().SetLines(ctl); err != nil {
				return err
			}
		}
		var err error
		status, err = s.Handle().GetLines()
		return err
	})
	return status, err
}

// Write transfers data to the session's port
func (ps *PortService) Write(ctx context.Context, id int, data []byte) (int, error) {
	var written int
	err := ps.sessions.WithSession(id, func(s *session.Session) error {
		if !s.Mode.Write {
			return fmt.Errorf("%w: session %d is not open for writing", driver.ErrAccessDenied, id)
		}
		var err error
		written, err = s.Handle().Write(data)
		return err
	})
	return written, err
}

// Read reads up to length bytes from the session's port. A nil timeout
// uses the configured default; zero polls.
func (ps *PortService) Read(ctx context.Context, id int, length int, timeout *time.Duration) (ReadResult, error) {
	if length > ps.options.MaxReadSize {
		length = ps.options.MaxReadSize
	}

	wait := ps.options.ReadTimeout
	if timeout != nil {
		wait = *timeout
	}
	if wait > ps.options.MaxReadTimeout {
		wait = ps.options.MaxReadTimeout
	}

	var result ReadResult
	err := ps.sessions.WithSession(id, func(s *session.Session) error {
		if !s.Mode.Read {
			return fmt.Errorf("%w: session %d is not open for reading", driver.ErrAccessDenied, id)
		}
		buf := make([]byte, length)
		n, timedOut, err := s.Handle().Read(buf, wait)
		if err != nil {
			return err
		}
		result = ReadResult{Data: buf[:n], TimedOut: timedOut}
		return nil
	})
	return result, err
}

// ClosePort removes the session and releases its port
func (ps *PortService) ClosePort(ctx context.Context, owner string, id int) error {
	s, err := ps.sessions.Remove(id)
	if s != nil {
		ps.sessionClosed(s, owner, "close")
	}
	return err
}

// ReleaseConnection closes the non-permanent sessions opened by owner
func (ps *PortService) ReleaseConnection(owner string) {
	for _, s := range ps.sessions.ReleaseOwner(owner) {
		ps.sessionClosed(s, owner, "connection closed")
	}
}

// Sessions lists the live sessions
func (ps *PortService) Sessions() []model.SessionInfo {
	return ps.sessions.List()
}

// SessionStats returns the registry counters
func (ps *PortService) SessionStats() session.Stats {
	return ps.sessions.Stats()
}

// Shutdown closes every session
func (ps *PortService) Shutdown() {
	ps.sessions.CloseAll()
	ps.logger.LogServiceStop("shutdown")
}

func (ps *PortService) sessionClosed(s *session.Session, owner, reason string) {
	ps.audit.LogSessionClosed(s.ID, s.Path, owner, reason)
	ps.events.Publish(model.NewSessionEvent(model.EventSessionClosed, s.ID, s.Path, owner, model.JSONObject{
		"reason": reason,
	}))
}
