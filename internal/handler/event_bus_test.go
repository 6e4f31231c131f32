package handler

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"serial-gateway/internal/model"
)

func receive(t *testing.T, events <-chan model.SessionEvent) model.SessionEvent {
	t.Helper()
	select {
	case event, ok := <-events:
		if !ok {
			t.Fatal("subscription closed")
		}
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
	return model.SessionEvent{}
}

func TestEventBusFanOut(t *testing.T) {
	bus := NewEventBus(10, zap.NewNop())
	go bus.Start()
	defer bus.Stop()

	first := bus.Subscribe()
	second := bus.Subscribe()

	bus.Publish(model.NewSessionEvent(model.EventSessionOpened, 1, "loop0", "c1", nil))

	for _, events := range []<-chan model.SessionEvent{first, second} {
		if event := receive(t, events); event.SessionID != 1 || event.Kind != model.EventSessionOpened {
			t.Errorf("unexpected event %+v", event)
		}
	}
}

func TestEventBusUnsubscribe(t *testing.T) {
	bus := NewEventBus(10, zap.NewNop())
	go bus.Start()
	defer bus.Stop()

	events := bus.Subscribe()
	bus.Unsubscribe(events)

	if _, ok := <-events; ok {
		t.Error("expected closed subscription")
	}

	// publishing after an unsubscribe must not panic
	bus.Publish(model.NewSessionEvent(model.EventSessionClosed, 1, "loop0", "c1", nil))
}

func TestEventBusStopClosesSubscriptions(t *testing.T) {
	bus := NewEventBus(10, zap.NewNop())
	done := make(chan struct{})
	go func() {
		bus.Start()
		close(done)
	}()

	events := bus.Subscribe()
	bus.Publish(model.NewSessionEvent(model.EventSessionOpened, 3, "loop1", "c1", nil))
	bus.Stop()

	if event := receive(t, events); event.SessionID != 3 {
		t.Errorf("queued event lost: %+v", event)
	}
	if _, ok := <-events; ok {
		t.Error("expected subscription to be closed after stop")
	}
	<-done
}

func TestEventBusHistory(t *testing.T) {
	tests := []struct {
		name      string
		size      int
		published int
		want      []int
	}{
		{"partial", 3, 2, []int{1, 2}},
		{"exact", 3, 3, []int{1, 2, 3}},
		{"wrapped", 3, 5, []int{3, 4, 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := NewEventBus(tt.size, zap.NewNop())
			for i := 1; i <= tt.published; i++ {
				bus.remember(model.NewSessionEvent(model.EventSessionOpened, i, "loop0", "", nil))
			}

			recent := bus.Recent()
			if len(recent) != len(tt.want) {
				t.Fatalf("expected %d events, got %d", len(tt.want), len(recent))
			}
			for i, id := range tt.want {
				if recent[i].SessionID != id {
					t.Errorf("event %d: expected session %d, got %d", i, id, recent[i].SessionID)
				}
			}
		})
	}
}
