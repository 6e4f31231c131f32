// internal/repository/session_event_repository.go
package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"serial-gateway/internal/database"
	"serial-gateway/internal/model"
	"serial-gateway/internal/utils"
)

const defaultEventLimit = 100

// sessionEventRepository implements SessionEventRepository on PostgreSQL
type sessionEventRepository struct {
	db     *database.DB
	logger *utils.ServiceLogger
}

// NewSessionEventRepository creates a new session event repository
func NewSessionEventRepository(db *database.DB, logger *zap.Logger) SessionEventRepository {
	return &sessionEventRepository{
		db:     db,
		logger: utils.NewServiceLogger(logger, "session-event-repository"),
	}
}

// Create stores an event
func (r *sessionEventRepository) Create(ctx context.Context, event *model.SessionEvent) error {
	query := `
		INSERT INTO session_events (
			id, kind, session_id, path, connection_id, data, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		event.ID, event.Kind, event.SessionID, event.Path,
		event.ConnectionID, event.Data, event.Timestamp,
	)
	if err != nil {
		r.logger.Error("Failed to store session event", zap.Error(err), zap.String("event_id", event.ID.String()))
		return fmt.Errorf("failed to store session event: %w", err)
	}
	return nil
}

// List returns the newest events matching filter
func (r *sessionEventRepository) List(ctx context.Context, filter *EventFilter) ([]*model.SessionEvent, error) {
	if filter == nil {
		filter = &EventFilter{}
	}

	var (
		conditions []string
		args       []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if filter.SessionID != nil {
		add("session_id = $%d", *filter.SessionID)
	}
	if filter.Path != nil {
		add("path = $%d", *filter.Path)
	}
	if filter.Kind != nil {
		add("kind = $%d", *filter.Kind)
	}
	if filter.Since != nil {
		add("created_at >= $%d", *filter.Since)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultEventLimit
	}

	query := `
		SELECT id, kind, session_id, path, connection_id, data, created_at
		FROM session_events
	`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	start := time.Now()
	rows, err := r.db.QueryContext(ctx, query, args...)
	r.logger.LogDatabaseQuery(query, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to list session events: %w", err)
	}
	defer rows.Close()

	events := []*model.SessionEvent{}
	for rows.Next() {
		event := &model.SessionEvent{}
		var connectionID *string
		err := rows.Scan(
			&event.ID, &event.Kind, &event.SessionID, &event.Path,
			&connectionID, &event.Data, &event.Timestamp,
		)
		if err != nil {
			r.logger.Error("Failed to scan session event", zap.Error(err))
			continue
		}
		if connectionID != nil {
			event.ConnectionID = *connectionID
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session events: %w", err)
	}
	return events, nil
}

// CountByKind counts the events recorded since the given time
func (r *sessionEventRepository) CountByKind(ctx context.Context, since time.Time) (map[model.EventKind]int, error) {
	query := `
		SELECT kind, COUNT(*)
		FROM session_events
		WHERE created_at >= $1
		GROUP BY kind
	`

	start := time.Now()
	rows, err := r.db.QueryContext(ctx, query, since)
	r.logger.LogDatabaseQuery(query, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to count session events: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.EventKind]int)
	for rows.Next() {
		var (
			kind  model.EventKind
			count int
		)
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("failed to scan event count: %w", err)
		}
		counts[kind] = count
	}
	return counts, rows.Err()
}

// DeleteOlderThan removes events recorded before olderThan
func (r *sessionEventRepository) DeleteOlderThan(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `DELETE FROM session_events WHERE created_at < $1`

	result, err := r.db.ExecContext(ctx, query, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old session events: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	r.logger.Info("Old session events deleted", zap.Int64("count", deleted))
	return deleted, nil
}
