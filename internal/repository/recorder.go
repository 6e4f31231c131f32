// internal/repository/recorder.go
package repository

import (
	"context"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"serial-gateway/internal/model"
)

const (
	writeTimeout    = 5 * time.Second
	cleanupInterval = time.Hour
)

// Recorder persists session events to the journal
type Recorder struct {
	repo      SessionEventRepository
	retention time.Duration
	logger    *zap.Logger

	stored *atomic.Uint64
	failed *atomic.Uint64
}

// NewRecorder creates a recorder. A positive retention enables hourly
// removal of older events.
func NewRecorder(repo SessionEventRepository, retention time.Duration, logger *zap.Logger) *Recorder {
	return &Recorder{
		repo:      repo,
		retention: retention,
		logger:    logger.With(zap.String("component", "journal")),
		stored:    atomic.NewUint64(0),
		failed:    atomic.NewUint64(0),
	}
}

// Run stores events until ctx is cancelled or events is closed. Events
// already queued when ctx ends are still written.
func (r *Recorder) Run(ctx context.Context, events <-chan model.SessionEvent) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			r.store(event)
		case <-ticker.C:
			r.cleanup()
		case <-ctx.Done():
			r.drain(events)
			return
		}
	}
}

func (r *Recorder) drain(events <-chan model.SessionEvent) {
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			r.store(event)
		default:
			return
		}
	}
}

func (r *Recorder) store(event model.SessionEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := r.repo.Create(ctx, &event); err != nil {
		r.failed.Inc()
		r.logger.Warn("Failed to journal session event",
			zap.String("kind", string(event.Kind)),
			zap.Int("session", event.SessionID),
			zap.Error(err),
		)
		return
	}
	r.stored.Inc()
}

func (r *Recorder) cleanup() {
	if r.retention <= 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if _, err := r.repo.DeleteOlderThan(ctx, time.Now().Add(-r.retention)); err != nil {
		r.logger.Warn("Journal cleanup failed", zap.Error(err))
	}
}

// Stats returns the number of stored and failed events
func (r *Recorder) Stats() (stored, failed uint64) {
	return r.stored.Load(), r.failed.Load()
}
