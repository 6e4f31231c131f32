// internal/handler/session_handler.go
package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"serial-gateway/internal/model"
	"serial-gateway/internal/repository"
	"serial-gateway/internal/service"
	"serial-gateway/internal/utils"
)

const maxEventLimit = 1000

// SessionHandler exposes ports, sessions and session events over HTTP
type SessionHandler struct {
	portService *service.PortService
	bus         *EventBus
	journal     repository.SessionEventRepository
	logger      *utils.ServiceLogger
}

// NewSessionHandler creates a new session handler. journal is nil when the
// journal is disabled; events are then served from the bus history.
func NewSessionHandler(
	portService *service.PortService,
	bus *EventBus,
	journal repository.SessionEventRepository,
	logger *zap.Logger,
) *SessionHandler {
	return &SessionHandler{
		portService: portService,
		bus:         bus,
		journal:     journal,
		logger:      utils.NewServiceLogger(logger, "session-handler"),
	}
}

// ListPorts lists the available ports
// @Summary List ports
// @Description Enumerate the ports of the active driver
// @Tags Ports
// @Produce json
// @Success 200 {object} utils.APIResponse{data=[]driver.PortInfo} "Ports"
// @Failure 500 {object} utils.APIResponse "Enumeration failed"
// @Router /api/v1/ports [get]
func (h *SessionHandler) ListPorts(c *gin.Context) {
	ports, err := h.portService.ListPorts(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list ports", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list ports", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Ports retrieved successfully", ports)
}

// ListSessions lists the live sessions
// @Summary List sessions
// @Description List the sessions currently open on the gateway
// @Tags Sessions
// @Produce json
// @Success 200 {object} utils.APIResponse{data=[]model.SessionInfo} "Sessions"
// @Router /api/v1/sessions [get]
func (h *SessionHandler) ListSessions(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Sessions retrieved successfully", gin.H{
		"sessions": h.portService.Sessions(),
		"stats":    h.portService.SessionStats(),
	})
}

// ListEvents lists recent session events, newest first
// @Summary List session events
// @Description List session events from the journal, or from the in-memory history when the journal is disabled
// @Tags Sessions
// @Produce json
// @Param session query int false "Session id"
// @Param path query string false "Port path"
// @Param kind query string false "Event kind" Enums(SESSION_OPENED, SESSION_CONFIGURED, SESSION_CLOSED)
// @Param since query string false "RFC3339 lower bound"
// @Param limit query int false "Maximum number of events" default(100)
// @Success 200 {object} utils.APIResponse{data=[]model.SessionEvent} "Events"
// @Failure 400 {object} utils.APIResponse "Invalid filter"
// @Failure 500 {object} utils.APIResponse "Journal query failed"
// @Router /api/v1/events [get]
func (h *SessionHandler) ListEvents(c *gin.Context) {
	filter, err := parseEventFilter(c)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid event filter", err)
		return
	}

	if h.journal != nil {
		events, err := h.journal.List(c.Request.Context(), filter)
		if err != nil {
			h.logger.Error("Failed to list session events", zap.Error(err))
			utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list session events", err)
			return
		}
		utils.SuccessResponse(c, http.StatusOK, "Events retrieved successfully", events)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Events retrieved successfully", filterRecent(h.bus.Recent(), filter))
}

// SummarizeEvents counts session events per kind
// @Summary Summarize session events
// @Description Count session events per kind since a point in time (default: the last 24 hours)
// @Tags Sessions
// @Produce json
// @Param since query string false "RFC3339 lower bound"
// @Success 200 {object} utils.APIResponse{data=map[string]int} "Counts per kind"
// @Failure 400 {object} utils.APIResponse "Invalid since"
// @Failure 500 {object} utils.APIResponse "Journal query failed"
// @Router /api/v1/events/summary [get]
func (h *SessionHandler) SummarizeEvents(c *gin.Context) {
	since := time.Now().Add(-24 * time.Hour)
	if value := c.Query("since"); value != "" {
		parsed, err := time.Parse(time.RFC3339, value)
		if err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid event filter", fmt.Errorf("invalid since: %s", value))
			return
		}
		since = parsed
	}

	if h.journal != nil {
		counts, err := h.journal.CountByKind(c.Request.Context(), since)
		if err != nil {
			h.logger.Error("Failed to count session events", zap.Error(err))
			utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to count session events", err)
			return
		}
		utils.SuccessResponse(c, http.StatusOK, "Event summary retrieved successfully", counts)
		return
	}

	counts := make(map[model.EventKind]int)
	for _, event := range h.bus.Recent() {
		if !event.Timestamp.Before(since) {
			counts[event.Kind]++
		}
	}
	utils.SuccessResponse(c, http.StatusOK, "Event summary retrieved successfully", counts)
}

func parseEventFilter(c *gin.Context) (*repository.EventFilter, error) {
	filter := &repository.EventFilter{Limit: 100}

	if value := c.Query("session"); value != "" {
		id, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid session: %s", value)
		}
		filter.SessionID = &id
	}
	if value := c.Query("path"); value != "" {
		filter.Path = &value
	}
	if value := c.Query("kind"); value != "" {
		kind := model.EventKind(value)
		switch kind {
		case model.EventSessionOpened, model.EventSessionConfigured, model.EventSessionClosed:
		default:
			return nil, fmt.Errorf("invalid kind: %s", value)
		}
		filter.Kind = &kind
	}
	if value := c.Query("since"); value != "" {
		since, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return nil, fmt.Errorf("invalid since: %s", value)
		}
		filter.Since = &since
	}
	if value := c.Query("limit"); value != "" {
		limit, err := strconv.Atoi(value)
		if err != nil || limit < 1 || limit > maxEventLimit {
			return nil, fmt.Errorf("limit must be between 1 and %d", maxEventLimit)
		}
		filter.Limit = limit
	}
	return filter, nil
}

// filterRecent applies filter to an oldest-first history, returning the
// matches newest first
func filterRecent(events []model.SessionEvent, filter *repository.EventFilter) []model.SessionEvent {
	matches := []model.SessionEvent{}
	for i := len(events) - 1; i >= 0 && len(matches) < filter.Limit; i-- {
		event := events[i]
		if filter.SessionID != nil && event.SessionID != *filter.SessionID {
			continue
		}
		if filter.Path != nil && event.Path != *filter.Path {
			continue
		}
		if filter.Kind != nil && event.Kind != *filter.Kind {
			continue
		}
		if filter.Since != nil && event.Timestamp.Before(*filter.Since) {
			continue
		}
		matches = append(matches, event)
	}
	return matches
}
