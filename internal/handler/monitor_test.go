package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"serial-gateway/internal/config"
	"serial-gateway/internal/driver/loopback"
	"serial-gateway/internal/model"
	"serial-gateway/internal/repository"
	"serial-gateway/internal/server"
	"serial-gateway/internal/service"
	"serial-gateway/internal/session"
	"serial-gateway/pkg/driver"
)

type monitorFixture struct {
	engine      *gin.Engine
	portService *service.PortService
	bus         *EventBus
}

type stubJournal struct {
	filter *repository.EventFilter
	err    error
}

func (s *stubJournal) Create(ctx context.Context, event *model.SessionEvent) error { return nil }

func (s *stubJournal) List(ctx context.Context, filter *repository.EventFilter) ([]*model.SessionEvent, error) {
	s.filter = filter
	if s.err != nil {
		return nil, s.err
	}
	event := model.NewSessionEvent(model.EventSessionOpened, 9, "loop0", "c9", nil)
	return []*model.SessionEvent{&event}, nil
}

func (s *stubJournal) CountByKind(ctx context.Context, since time.Time) (map[model.EventKind]int, error) {
	return map[model.EventKind]int{model.EventSessionOpened: 4}, s.err
}

func (s *stubJournal) DeleteOlderThan(ctx context.Context, olderThan time.Time) (int64, error) {
	return 0, nil
}

func newMonitorFixture(t *testing.T, journal repository.SessionEventRepository) *monitorFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	bus := NewEventBus(10, zap.NewNop())
	portService := service.NewPortService(
		loopback.NewDriver([]string{"loop1", "loop0"}, zap.NewNop()),
		session.NewRegistry(zap.NewNop()),
		bus,
		service.Options{},
		zap.NewNop(),
	)
	gateway := NewGatewayHandler(portService, zap.NewNop())
	controller := server.NewController("tcp", 3, gateway.NewDispatcher(), zap.NewNop())

	cfg := &config.Config{App: config.AppConfig{Name: "serial-gateway", Version: "test"}}
	health := NewHealthHandler(nil, portService, []*server.Controller{controller}, cfg, zap.NewNop())
	sessions := NewSessionHandler(portService, bus, journal, zap.NewNop())

	engine := gin.New()
	health.RegisterRoutes(engine)
	engine.GET("/api/v1/ports", sessions.ListPorts)
	engine.GET("/api/v1/sessions", sessions.ListSessions)
	engine.GET("/api/v1/events", sessions.ListEvents)
	engine.GET("/api/v1/events/summary", sessions.SummarizeEvents)

	return &monitorFixture{engine: engine, portService: portService, bus: bus}
}

func (f *monitorFixture) get(t *testing.T, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body %q: %v", w.Body.String(), err)
	}
	return w, body
}

func TestHealthEndpoints(t *testing.T) {
	f := newMonitorFixture(t, nil)

	t.Run("health", func(t *testing.T) {
		w, body := f.get(t, "/health")
		if w.Code != http.StatusOK || body["status"] != "healthy" {
			t.Fatalf("unexpected health %d %v", w.Code, body)
		}
		checks := body["checks"].(map[string]interface{})
		admission := checks["admission_tcp"].(map[string]interface{})["data"].(map[string]interface{})
		if admission["capacity"] != float64(3) {
			t.Errorf("expected capacity 3, got %v", admission["capacity"])
		}
		if _, ok := checks["database"]; ok {
			t.Error("database check reported while the journal is disabled")
		}
	})

	t.Run("database disabled", func(t *testing.T) {
		w, _ := f.get(t, "/health/db")
		if w.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", w.Code)
		}
	})

	for _, path := range []string{"/ready", "/live"} {
		t.Run(path, func(t *testing.T) {
			w, _ := f.get(t, path)
			if w.Code != http.StatusOK {
				t.Errorf("expected 200, got %d", w.Code)
			}
		})
	}
}

func TestListPortsAndSessions(t *testing.T) {
	f := newMonitorFixture(t, nil)

	_, body := f.get(t, "/api/v1/ports")
	ports := body["data"].([]interface{})
	if len(ports) != 2 || ports[0].(map[string]interface{})["path"] != "loop0" {
		t.Fatalf("unexpected ports %v", ports)
	}

	_, err := f.portService.OpenPort(context.Background(), "c1", service.OpenRequest{
		Path: "loop1",
		Mode: driver.OpenMode{Read: true, Write: true},
	})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	_, body = f.get(t, "/api/v1/sessions")
	data := body["data"].(map[string]interface{})
	sessions := data["sessions"].([]interface{})
	if len(sessions) != 1 || sessions[0].(map[string]interface{})["path"] != "loop1" {
		t.Errorf("unexpected sessions %v", sessions)
	}
	if stats := data["stats"].(map[string]interface{}); stats["open"] != float64(1) {
		t.Errorf("unexpected stats %v", stats)
	}
}

func TestListEventsFromHistory(t *testing.T) {
	f := newMonitorFixture(t, nil)
	f.bus.remember(model.NewSessionEvent(model.EventSessionOpened, 1, "loop0", "c1", nil))
	f.bus.remember(model.NewSessionEvent(model.EventSessionOpened, 2, "loop1", "c1", nil))
	f.bus.remember(model.NewSessionEvent(model.EventSessionClosed, 1, "loop0", "c1", nil))

	tests := []struct {
		query    string
		sessions []float64
	}{
		{"", []float64{1, 2, 1}},
		{"?session=1", []float64{1, 1}},
		{"?kind=SESSION_OPENED&limit=1", []float64{2}},
		{"?path=loop1", []float64{2}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w, body := f.get(t, "/api/v1/events"+tt.query)
			if w.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", w.Code)
			}
			events := body["data"].([]interface{})
			if len(events) != len(tt.sessions) {
				t.Fatalf("expected %d events, got %v", len(tt.sessions), events)
			}
			for i, id := range tt.sessions {
				if got := events[i].(map[string]interface{})["session"]; got != id {
					t.Errorf("event %d: expected session %v, got %v", i, id, got)
				}
			}
		})
	}
}

func TestListEventsRejectsBadFilter(t *testing.T) {
	f := newMonitorFixture(t, nil)

	for _, query := range []string{"?session=x", "?kind=OTHER", "?limit=0", "?since=yesterday"} {
		t.Run(query, func(t *testing.T) {
			w, _ := f.get(t, "/api/v1/events"+query)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", w.Code)
			}
		})
	}
}

func TestListEventsFromJournal(t *testing.T) {
	journal := &stubJournal{}
	f := newMonitorFixture(t, journal)

	w, body := f.get(t, "/api/v1/events?path=loop0&limit=5")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if events := body["data"].([]interface{}); len(events) != 1 {
		t.Errorf("expected journal events, got %v", events)
	}
	if journal.filter == nil || journal.filter.Limit != 5 || *journal.filter.Path != "loop0" {
		t.Errorf("filter not passed to journal: %+v", journal.filter)
	}

	journal.err = errors.New("connection refused")
	w, _ = f.get(t, "/api/v1/events")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}

func TestSummarizeEvents(t *testing.T) {
	t.Run("history", func(t *testing.T) {
		f := newMonitorFixture(t, nil)
		old := model.NewSessionEvent(model.EventSessionOpened, 1, "loop0", "c1", nil)
		old.Timestamp = time.Now().Add(-48 * time.Hour)
		f.bus.remember(old)
		f.bus.remember(model.NewSessionEvent(model.EventSessionOpened, 2, "loop0", "c1", nil))
		f.bus.remember(model.NewSessionEvent(model.EventSessionClosed, 2, "loop0", "c1", nil))

		_, body := f.get(t, "/api/v1/events/summary")
		counts := body["data"].(map[string]interface{})
		if counts["SESSION_OPENED"] != float64(1) || counts["SESSION_CLOSED"] != float64(1) {
			t.Errorf("unexpected counts %v", counts)
		}
	})

	t.Run("journal", func(t *testing.T) {
		f := newMonitorFixture(t, &stubJournal{})
		_, body := f.get(t, "/api/v1/events/summary?since=2026-01-01T00:00:00Z")
		if counts := body["data"].(map[string]interface{}); counts["SESSION_OPENED"] != float64(4) {
			t.Errorf("unexpected counts %v", counts)
		}
	})

	t.Run("invalid since", func(t *testing.T) {
		f := newMonitorFixture(t, nil)
		w, _ := f.get(t, "/api/v1/events/summary?since=never")
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})
}
