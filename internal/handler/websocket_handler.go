// internal/handler/websocket_handler.go
package handler

import (
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"serial-gateway/internal/model"
	"serial-gateway/internal/server"
	"serial-gateway/internal/utils"
)

const (
	pongWait     = 60 * time.Second
	pingPeriod   = 54 * time.Second
	writeWait    = 10 * time.Second
	maxEventSize = 4096
)

// WebSocketMessage is one frame of the event stream
type WebSocketMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// WebSocketHandler serves the gateway protocol and the session event
// stream over WebSocket
type WebSocketHandler struct {
	upgrader websocket.Upgrader
	gateway  *server.ChannelListener
	bus      *EventBus
	streams  *atomic.Int64
	logger   *utils.ServiceLogger
}

// NewWebSocketHandler creates a new WebSocket handler. Upgraded gateway
// connections are offered to gateway; allowedOrigins restricts browser
// origins, empty meaning any.
func NewWebSocketHandler(
	gateway *server.ChannelListener,
	bus *EventBus,
	allowedOrigins []string,
	logger *zap.Logger,
) *WebSocketHandler {
	return &WebSocketHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		gateway: gateway,
		bus:     bus,
		streams: atomic.NewInt64(0),
		logger:  utils.NewServiceLogger(logger, "websocket-handler"),
	}
}

// RegisterRoutes registers WebSocket routes
func (h *WebSocketHandler) RegisterRoutes(router gin.IRoutes) {
	router.GET("/gateway", h.HandleGatewayConnection)
	router.GET("/events", h.HandleEventConnection)
}

// HandleGatewayConnection upgrades the request and hands the connection to
// the gateway. It blocks while the gateway is at capacity.
func (h *WebSocketHandler) HandleGatewayConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	// Gateway connections are long lived; drop the HTTP server's deadlines.
	conn.SetReadDeadline(time.Time{})
	conn.SetWriteDeadline(time.Time{})

	transport := server.NewWebSocketTransport(conn)
	if err := h.gateway.Offer(transport); err != nil {
		h.logger.Warn("Gateway is not accepting connections",
			zap.String("remote_addr", c.Request.RemoteAddr),
			zap.Error(err),
		)
		transport.Close()
	}
}

// HandleEventConnection streams session events to the client, starting
// with the remembered history
func (h *WebSocketHandler) HandleEventConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	clientID := uuid.New().String()
	events := h.bus.Subscribe()

	h.logger.Info("Event WebSocket client connected",
		zap.String("client_id", clientID),
		zap.String("remote_addr", c.Request.RemoteAddr),
		zap.Int64("streams", h.streams.Inc()),
	)

	done := make(chan struct{})
	go h.handleClientRead(conn, clientID, done)
	go h.handleClientWrite(conn, clientID, events, h.bus.Recent(), done)
}

// handleClientRead discards client frames, keeping the pong deadline alive,
// and closes done when the client goes away
func (h *WebSocketHandler) handleClientRead(conn *websocket.Conn, clientID string, done chan struct{}) {
	defer close(done)

	conn.SetReadLimit(maxEventSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("WebSocket read error",
					zap.Error(err),
					zap.String("client_id", clientID),
				)
			}
			return
		}
	}
}

// handleClientWrite forwards events until the client or the bus goes away
func (h *WebSocketHandler) handleClientWrite(
	conn *websocket.Conn,
	clientID string,
	events <-chan model.SessionEvent,
	history []model.SessionEvent,
	done <-chan struct{},
) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.bus.Unsubscribe(events)
		conn.Close()
		h.logger.Info("Event WebSocket client disconnected",
			zap.String("client_id", clientID),
			zap.Int64("streams", h.streams.Dec()),
		)
	}()

	for _, event := range history {
		if !h.sendEvent(conn, clientID, event) {
			return
		}
	}

	for {
		select {
		case event, ok := <-events:
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
				return
			}
			if !h.sendEvent(conn, clientID, event) {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			return
		}
	}
}

func (h *WebSocketHandler) sendEvent(conn *websocket.Conn, clientID string, event model.SessionEvent) bool {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := conn.WriteJSON(&WebSocketMessage{
		Type:      "session_event",
		Data:      event,
		Timestamp: time.Now(),
	})
	if err != nil {
		h.logger.Warn("WebSocket write error",
			zap.Error(err),
			zap.String("client_id", clientID),
		)
		return false
	}
	return true
}

// originChecker accepts requests without an Origin header, same-host
// origins and the listed origins
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		u, err := url.Parse(origin)
		return err == nil && u.Host == r.Host
	}
}
