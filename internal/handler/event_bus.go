// internal/handler/event_bus.go
package handler

import (
	"sync"

	"go.uber.org/zap"

	"serial-gateway/internal/model"
)

const (
	busQueueSize        = 1000
	subscriberQueueSize = 100
	defaultHistorySize  = 100
)

// EventBus distributes session events to subscribers and keeps a short
// history of the most recent ones
type EventBus struct {
	subscribers map[chan model.SessionEvent]struct{}
	events      chan model.SessionEvent
	mutex       sync.RWMutex
	logger      *zap.Logger

	history     []model.SessionEvent
	historyNext int
	historyFull bool
	historyMu   sync.Mutex

	stopOnce sync.Once
}

// NewEventBus creates a new event bus remembering up to historySize events
func NewEventBus(historySize int, logger *zap.Logger) *EventBus {
	if historySize <= 0 {
		historySize = defaultHistorySize
	}
	return &EventBus{
		subscribers: make(map[chan model.SessionEvent]struct{}),
		events:      make(chan model.SessionEvent, busQueueSize),
		logger:      logger.With(zap.String("component", "event-bus")),
		history:     make([]model.SessionEvent, historySize),
	}
}

// Start distributes events until Stop is called. Subscriber channels are
// closed when it returns.
func (eb *EventBus) Start() {
	for event := range eb.events {
		eb.remember(event)
		eb.distributeEvent(event)
	}

	eb.mutex.Lock()
	for subscriber := range eb.subscribers {
		close(subscriber)
		delete(eb.subscribers, subscriber)
	}
	eb.mutex.Unlock()
}

// Stop ends Start once queued events are distributed. Publish must not be
// called afterwards.
func (eb *EventBus) Stop() {
	eb.stopOnce.Do(func() { close(eb.events) })
}

// Publish queues an event without blocking
func (eb *EventBus) Publish(event model.SessionEvent) {
	select {
	case eb.events <- event:
	default:
		eb.logger.Warn("Event bus full, dropping event",
			zap.String("kind", string(event.Kind)),
			zap.Int("session", event.SessionID),
		)
	}
}

// Subscribe returns a channel receiving every event published from now on
func (eb *EventBus) Subscribe() <-chan model.SessionEvent {
	return eb.SubscribeBuffered(subscriberQueueSize)
}

// SubscribeBuffered is Subscribe with an explicit queue size. Events are
// dropped for a subscriber whose queue is full.
func (eb *EventBus) SubscribeBuffered(size int) <-chan model.SessionEvent {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	subscriber := make(chan model.SessionEvent, size)
	eb.subscribers[subscriber] = struct{}{}
	return subscriber
}

// Unsubscribe removes a subscriber and closes its channel
func (eb *EventBus) Unsubscribe(events <-chan model.SessionEvent) {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	for subscriber := range eb.subscribers {
		if subscriber == events {
			delete(eb.subscribers, subscriber)
			close(subscriber)
			return
		}
	}
}

// Recent returns the remembered events, oldest first
func (eb *EventBus) Recent() []model.SessionEvent {
	eb.historyMu.Lock()
	defer eb.historyMu.Unlock()

	if !eb.historyFull {
		return append([]model.SessionEvent(nil), eb.history[:eb.historyNext]...)
	}
	recent := make([]model.SessionEvent, 0, len(eb.history))
	recent = append(recent, eb.history[eb.historyNext:]...)
	return append(recent, eb.history[:eb.historyNext]...)
}

func (eb *EventBus) remember(event model.SessionEvent) {
	eb.historyMu.Lock()
	defer eb.historyMu.Unlock()

	eb.history[eb.historyNext] = event
	eb.historyNext++
	if eb.historyNext == len(eb.history) {
		eb.historyNext = 0
		eb.historyFull = true
	}
}

// distributeEvent distributes an event to subscribers
func (eb *EventBus) distributeEvent(event model.SessionEvent) {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()

	for subscriber := range eb.subscribers {
		select {
		case subscriber <- event:
		default:
			// Subscriber is slow, skip
		}
	}
}
