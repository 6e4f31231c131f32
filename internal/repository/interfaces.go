// internal/repository/interfaces.go
package repository

import (
	"context"
	"time"

	"serial-gateway/internal/model"
)

// SessionEventRepository defines session journal data access operations
type SessionEventRepository interface {
	Create(ctx context.Context, event *model.SessionEvent) error
	List(ctx context.Context, filter *EventFilter) ([]*model.SessionEvent, error)
	CountByKind(ctx context.Context, since time.Time) (map[model.EventKind]int, error)
	DeleteOlderThan(ctx context.Context, olderThan time.Time) (int64, error)
}

// EventFilter represents journal query filters
type EventFilter struct {
	SessionID *int
	Path      *string
	Kind      *model.EventKind
	Since     *time.Time
	Limit     int
}
