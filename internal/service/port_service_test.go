package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"serial-gateway/internal/model"
	"serial-gateway/internal/session"
	"serial-gateway/pkg/driver"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []model.SessionEvent
}

func (r *eventRecorder) Publish(event model.SessionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) kinds() []model.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]model.EventKind, 0, len(r.events))
	for _, e := range r.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func newTestService(t *testing.T, options Options) (*PortService, *driver.MockPortDriver, *eventRecorder) {
	ctrl := gomock.NewController(t)
	mockDriver := driver.NewMockPortDriver(ctrl)
	events := &eventRecorder{}
	ps := NewPortService(mockDriver, session.NewRegistry(zap.NewNop()), events, options, zap.NewNop())
	return ps, mockDriver, events
}

func TestOpenPortPublishesEvent(t *testing.T) {
	ps, mockDriver, events := newTestService(t, Options{})
	handle := driver.NewMockHandle(gomock.NewController(t))

	mode := driver.OpenMode{Read: true, Write: true}
	mockDriver.EXPECT().Open(gomock.Any(), "/dev/ttyS0", mode).Return(handle, nil)

	s, err := ps.OpenPort(context.Background(), "conn-1", OpenRequest{Path: "/dev/ttyS0", Mode: mode})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Owner != "conn-1" {
		t.Errorf("expected owner conn-1, got %s", s.Owner)
	}

	kinds := events.kinds()
	if len(kinds) != 1 || kinds[0] != model.EventSessionOpened {
		t.Errorf("unexpected events %v", kinds)
	}
	if events.events[0].ConnectionID != "conn-1" || events.events[0].Path != "/dev/ttyS0" {
		t.Errorf("unexpected event %+v", events.events[0])
	}
}

func TestOpenPortConfigurationFailureClosesSession(t *testing.T) {
	ps, mockDriver, events := newTestService(t, Options{})
	handle := driver.NewMockHandle(gomock.NewController(t))

	mockDriver.EXPECT().Open(gomock.Any(), "/dev/ttyS0", gomock.Any()).Return(handle, nil)
	handle.EXPECT().Configure(gomock.Any()).Return(driver.PortConfig{}, driver.ErrInvalidArgument)
	handle.EXPECT().Close().Return(nil)

	_, err := ps.OpenPort(context.Background(), "conn-1", OpenRequest{
		Path:   "/dev/ttyS0",
		Mode:   driver.OpenMode{Read: true, Write: true},
		Config: driver.PortConfig{Mask: driver.FieldBaudRate, BaudRate: 1},
	})
	if !errors.Is(err, driver.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if len(ps.Sessions()) != 0 {
		t.Errorf("session must not survive a failed open")
	}
	if len(events.kinds()) != 0 {
		t.Errorf("no event expected, got %v", events.kinds())
	}
}

func TestConfigureEvents(t *testing.T) {
	ps, mockDriver, events := newTestService(t, Options{})
	handle := driver.NewMockHandle(gomock.NewController(t))

	mockDriver.EXPECT().Open(gomock.Any(), "/dev/ttyS0", gomock.Any()).Return(handle, nil)
	s, err := ps.OpenPort(context.Background(), "c", OpenRequest{Path: "/dev/ttyS0", Mode: driver.OpenMode{Read: true}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	handle.EXPECT().Configure(driver.PortConfig{}).Return(driver.DefaultConfig(), nil)
	if _, err := ps.Configure(context.Background(), "c", s.ID, driver.PortConfig{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events.kinds()) != 1 {
		t.Errorf("read-back must not publish an event: %v", events.kinds())
	}

	change := driver.PortConfig{Mask: driver.FieldParity, Parity: driver.ParityOdd}
	handle.EXPECT().Configure(change).Return(driver.DefaultConfig().Merge(change), nil)
	effective, err := ps.Configure(context.Background(), "c", s.ID, change)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if effective.Parity != driver.ParityOdd || effective.BaudRate != 9600 {
		t.Errorf("unexpected effective configuration %+v", effective)
	}
	kinds := events.kinds()
	if len(kinds) != 2 || kinds[1] != model.EventSessionConfigured {
		t.Errorf("unexpected events %v", kinds)
	}
}

func TestModemOnlySetsRequestedLines(t *testing.T) {
	ps, mockDriver, _ := newTestService(t, Options{})
	handle := driver.NewMockHandle(gomock.NewController(t))

	mockDriver.EXPECT().Open(gomock.Any(), gomock.Any(), gomock.Any()).Return(handle, nil)
	s, err := ps.OpenPort(context.Background(), "c", OpenRequest{Path: "/dev/ttyS0", Mode: driver.OpenMode{Read: true}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	handle.EXPECT().GetLines().Return(driver.ModemStatus{RI: true}, nil)
	status, err := ps.Modem(context.Background(), s.ID, driver.ModemControl{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !status.RI {
		t.Errorf("unexpected status %+v", status)
	}

	on := true
	gomock.InOrder(
		handle.EXPECT().SetLines(driver.ModemControl{DTR: &on}).Return(nil),
		handle.EXPECT().GetLines().Return(driver.ModemStatus{DSR: true}, nil),
	)
	if status, err = ps.Modem(context.Background(), s.ID, driver.ModemControl{DTR: &on}); err != nil || !status.DSR {
		t.Errorf("unexpected result %+v, %v", status, err)
	}
}

func TestReadBounds(t *testing.T) {
	ps, mockDriver, _ := newTestService(t, Options{
		MaxReadSize:    8,
		ReadTimeout:    100 * time.Millisecond,
		MaxReadTimeout: time.Second,
	})
	handle := driver.NewMockHandle(gomock.NewController(t))

	mockDriver.EXPECT().Open(gomock.Any(), gomock.Any(), gomock.Any()).Return(handle, nil)
	s, err := ps.OpenPort(context.Background(), "c", OpenRequest{Path: "/dev/ttyS0", Mode: driver.OpenMode{Read: true}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name     string
		length   int
		timeout  *time.Duration
		wantLen  int
		wantWait time.Duration
	}{
		{name: "default timeout", length: 4, wantLen: 4, wantWait: 100 * time.Millisecond},
		{name: "length capped", length: 100, wantLen: 8, wantWait: 100 * time.Millisecond},
		{name: "poll", length: 1, timeout: durationPtr(0), wantLen: 1, wantWait: 0},
		{name: "timeout capped", length: 1, timeout: durationPtr(time.Hour), wantLen: 1, wantWait: time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handle.EXPECT().Read(gomock.Len(tt.wantLen), tt.wantWait).Return(0, true, nil)
			result, err := ps.Read(context.Background(), s.ID, tt.length, tt.timeout)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !result.TimedOut || len(result.Data) != 0 {
				t.Errorf("unexpected result %+v", result)
			}
		})
	}
}

func TestDirectionChecks(t *testing.T) {
	ps, mockDriver, _ := newTestService(t, Options{})
	handle := driver.NewMockHandle(gomock.NewController(t))

	mockDriver.EXPECT().Open(gomock.Any(), gomock.Any(), gomock.Any()).Return(handle, nil)
	s, err := ps.OpenPort(context.Background(), "c", OpenRequest{Path: "/dev/ttyS0", Mode: driver.OpenMode{Write: true}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := ps.Read(context.Background(), s.ID, 1, nil); !errors.Is(err, driver.ErrAccessDenied) {
		t.Errorf("expected access denied, got %v", err)
	}

	handle.EXPECT().Write([]byte{1, 2}).Return(2, nil)
	if n, err := ps.Write(context.Background(), s.ID, []byte{1, 2}); err != nil || n != 2 {
		t.Errorf("unexpected write result %d, %v", n, err)
	}
}

func TestReleaseConnectionKeepsPermanentSessions(t *testing.T) {
	ps, mockDriver, events := newTestService(t, Options{})
	transient := driver.NewMockHandle(gomock.NewController(t))
	permanent := driver.NewMockHandle(gomock.NewController(t))

	mockDriver.EXPECT().Open(gomock.Any(), "/dev/a", gomock.Any()).Return(transient, nil)
	mockDriver.EXPECT().Open(gomock.Any(), "/dev/b", gomock.Any()).Return(permanent, nil)

	mode := driver.OpenMode{Read: true, Write: true}
	if _, err := ps.OpenPort(context.Background(), "c", OpenRequest{Path: "/dev/a", Mode: mode}); err != nil {
		t.Fatal(err)
	}
	kept, err := ps.OpenPort(context.Background(), "c", OpenRequest{Path: "/dev/b", Mode: mode, Permanent: true})
	if err != nil {
		t.Fatal(err)
	}

	transient.EXPECT().Close().Return(nil)
	ps.ReleaseConnection("c")

	sessions := ps.Sessions()
	if len(sessions) != 1 || sessions[0].ID != kept.ID {
		t.Errorf("expected only the permanent session to remain, got %+v", sessions)
	}
	kinds := events.kinds()
	if kinds[len(kinds)-1] != model.EventSessionClosed {
		t.Errorf("expected a closed event, got %v", kinds)
	}

	permanent.EXPECT().Close().Return(nil)
	ps.Shutdown()
	if stats := ps.SessionStats(); stats.Open != 0 || stats.Closed != 2 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestListPortsStableOrder(t *testing.T) {
	ps, mockDriver, _ := newTestService(t, Options{})
	mockDriver.EXPECT().Enumerate(gomock.Any()).Return([]driver.PortInfo{
		{Path: "b", Order: 1},
		{Path: "a", Order: 1},
		{Path: "z", Order: 0},
	}, nil)

	ports, err := ps.ListPorts(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ports[0].Path != "z" || ports[1].Path != "b" || ports[2].Path != "a" {
		t.Errorf("unexpected order %+v", ports)
	}

	mockDriver.EXPECT().Enumerate(gomock.Any()).Return(nil, errors.New("no bus"))
	if _, err := ps.ListPorts(context.Background()); err == nil {
		t.Error("expected enumeration error")
	}
}

func durationPtr(d time.Duration) *time.Duration {
	return &d
}
