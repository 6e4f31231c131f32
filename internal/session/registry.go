// internal/session/registry.go
package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"serial-gateway/internal/model"
	"serial-gateway/pkg/driver"
)

// ErrUnknownSession is returned for ids that are not (or no longer) live
var ErrUnknownSession = errors.New("unknown session")

// OpenSpec describes a session to create
type OpenSpec struct {
	Path      string
	Mode      driver.OpenMode
	Shared    bool
	Permanent bool
	// Owner identifies the connection that opened the session
	Owner string
}

// device is one open driver handle, possibly addressed by several shared sessions
type device struct {
	path   string
	shared bool
	refs   int
	// pending is non-nil while the handle is being opened or closed and is
	// closed once that finishes. Guarded by Registry.mu.
	pending chan struct{}

	mu     sync.Mutex
	handle driver.Handle
}

// Session is a live registry entry
type Session struct {
	ID        int
	Path      string
	Mode      driver.OpenMode
	Shared    bool
	Permanent bool
	Owner     string
	OpenedAt  time.Time

	dev    *device
	closed bool // guarded by dev.mu
}

// Handle returns the driver handle. It must only be used inside WithSession.
func (s *Session) Handle() driver.Handle {
	return s.dev.handle
}

// Info returns a read-only view of the session
func (s *Session) Info() model.SessionInfo {
	return model.SessionInfo{
		ID:        s.ID,
		Path:      s.Path,
		Read:      s.Mode.Read,
		Write:     s.Mode.Write,
		Shared:    s.Shared,
		Permanent: s.Permanent,
		Owner:     s.Owner,
		OpenedAt:  s.OpenedAt,
	}
}

// Stats holds registry counters
type Stats struct {
	Open   int    `json:"open"`
	Opened uint64 `json:"opened"`
	Closed uint64 `json:"closed"`
}

// Registry maps session ids to open device handles. Access to one handle is
// exclusive; different handles are used concurrently. mu is never held
// while a driver is called or a handle lock is awaited.
type Registry struct {
	mu       sync.Mutex
	sessions map[int]*Session
	devices  map[string]*device
	nextID   int

	opened *atomic.Uint64
	closed *atomic.Uint64
	logger *zap.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		sessions: make(map[int]*Session),
		devices:  make(map[string]*device),
		nextID:   1,
		opened:   atomic.NewUint64(0),
		closed:   atomic.NewUint64(0),
		logger:   logger.With(zap.String("component", "session-registry")),
	}
}

// Create registers a new session for spec.Path. When the path is not open
// yet, open is called to obtain the handle. A path already open is only
// joined when both the existing and the new session are shared. A path that
// is being opened or closed is waited for.
func (r *Registry) Create(spec OpenSpec, open func() (driver.Handle, error)) (*Session, error) {
	r.mu.Lock()
	for {
		dev := r.devices[spec.Path]
		if dev == nil {
			break
		}
		if dev.pending != nil {
			pending := dev.pending
			r.mu.Unlock()
			<-pending
			r.mu.Lock()
			continue
		}
		if !dev.shared || !spec.Shared {
			r.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", driver.ErrAlreadyOpen, spec.Path)
		}
		s := r.register(dev, spec)
		r.mu.Unlock()
		r.logCreated(s)
		return s, nil
	}

	// reserve the path while the driver opens it
	dev := &device{path: spec.Path, shared: spec.Shared, pending: make(chan struct{})}
	r.devices[spec.Path] = dev
	r.mu.Unlock()

	handle, err := open()

	r.mu.Lock()
	pending := dev.pending
	dev.pending = nil
	var s *Session
	if err != nil {
		delete(r.devices, spec.Path)
	} else {
		dev.handle = handle
		s = r.register(dev, spec)
	}
	r.mu.Unlock()
	close(pending)

	if err != nil {
		return nil, err
	}
	r.logCreated(s)
	return s, nil
}

// register adds a session addressing dev. r.mu must be held.
func (r *Registry) register(dev *device, spec OpenSpec) *Session {
	s := &Session{
		ID:        r.nextID,
		Path:      spec.Path,
		Mode:      spec.Mode,
		Shared:    spec.Shared,
		Permanent: spec.Permanent,
		Owner:     spec.Owner,
		OpenedAt:  time.Now(),
		dev:       dev,
	}
	r.nextID++
	dev.refs++
	r.sessions[s.ID] = s
	r.opened.Inc()
	return s
}

func (r *Registry) logCreated(s *Session) {
	r.logger.Debug("Session created",
		zap.Int("session", s.ID),
		zap.String("path", s.Path),
		zap.Bool("shared", s.Shared),
		zap.Bool("permanent", s.Permanent),
	)
}

// WithSession runs fn with exclusive access to the session's handle
func (r *Registry) WithSession(id int, fn func(s *Session) error) error {
	r.mu.Lock()
	s := r.sessions[id]
	r.mu.Unlock()

	if s == nil {
		return fmt.Errorf("%w: %d", ErrUnknownSession, id)
	}

	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()

	// removed while waiting for the handle
	if s.closed {
		return fmt.Errorf("%w: %d", ErrUnknownSession, id)
	}
	return fn(s)
}

// Remove drops the session. The device handle is closed once no shared
// session addresses it any more. Later lookups of id fail.
func (r *Registry) Remove(id int) (*Session, error) {
	r.mu.Lock()
	s := r.sessions[id]
	if s == nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %d", ErrUnknownSession, id)
	}
	delete(r.sessions, id)
	dev := s.dev
	dev.refs--
	last := dev.refs == 0
	var closing chan struct{}
	if last {
		// the path stays reserved until the handle is closed
		closing = make(chan struct{})
		dev.pending = closing
	}
	r.mu.Unlock()

	// waits for an operation in progress on this handle only
	dev.mu.Lock()
	s.closed = true
	var err error
	if last {
		err = dev.handle.Close()
	}
	dev.mu.Unlock()

	if last {
		r.mu.Lock()
		delete(r.devices, dev.path)
		dev.pending = nil
		r.mu.Unlock()
		close(closing)
	}

	r.closed.Inc()
	r.logger.Debug("Session removed",
		zap.Int("session", id),
		zap.String("path", s.Path),
		zap.Bool("handle_closed", last),
	)

	if err != nil {
		return s, fmt.Errorf("failed to close %s: %w", s.Path, err)
	}
	return s, nil
}

// ReleaseOwner removes every non-permanent session opened by owner and
// returns the removed sessions
func (r *Registry) ReleaseOwner(owner string) []*Session {
	r.mu.Lock()
	var ids []int
	for id, s := range r.sessions {
		if s.Owner == owner && !s.Permanent {
			ids = append(ids, id)
		}
	}
	r.mu.Unlock()
	sort.Ints(ids)

	removed := make([]*Session, 0, len(ids))
	for _, id := range ids {
		s, err := r.Remove(id)
		if s != nil {
			removed = append(removed, s)
		}
		if err != nil && !errors.Is(err, ErrUnknownSession) {
			r.logger.Warn("Failed to release session",
				zap.Int("session", id),
				zap.String("owner", owner),
				zap.Error(err),
			)
		}
	}
	return removed
}

// CloseAll removes every session
func (r *Registry) CloseAll() {
	r.mu.Lock()
	ids := make([]int, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		if _, err := r.Remove(id); err != nil && !errors.Is(err, ErrUnknownSession) {
			r.logger.Warn("Failed to close session", zap.Int("session", id), zap.Error(err))
		}
	}
}

// List returns the live sessions ordered by id
func (r *Registry) List() []model.SessionInfo {
	r.mu.Lock()
	infos := make([]model.SessionInfo, 0, len(r.sessions))
	for _, s := range r.sessions {
		infos = append(infos, s.Info())
	}
	r.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Len returns the number of live sessions
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Stats returns the registry counters
func (r *Registry) Stats() Stats {
	return Stats{
		Open:   r.Len(),
		Opened: r.opened.Load(),
		Closed: r.closed.Load(),
	}
}
