package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aescanero/dago-editor/pkg/domain"
	"github.com/aescanero/dago-editor/pkg/ports"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	bufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// SessionLookup reports whether a session exists
type SessionLookup interface {
	Exists(id string) bool
}

// SessionLookupFunc adapts a function to SessionLookup
type SessionLookupFunc func(id string) bool

// Exists calls f(id)
func (f SessionLookupFunc) Exists(id string) bool { return f(id) }

// Handler handles WebSocket connections
type Handler struct {
	eventBus ports.EventBus
	sessions SessionLookup
	logger   *zap.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(eventBus ports.EventBus, sessions SessionLookup, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		eventBus: eventBus,
		sessions: sessions,
		logger:   logger,
	}
}

// HandleSessionStream streams the events of one session until the client
// disconnects
func (h *Handler) HandleSessionStream(c *gin.Context) {
	sessionID := c.Param("id")
	if !h.sessions.Exists(sessionID) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": gin.H{"code": "SESSION_NOT_FOUND", "message": "Session not found"},
		})
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// subscribe before the handshake completes so no event is missed
	events := make(chan domain.Event, bufferSize)
	if err := h.subscribe(ctx, sessionID, events); err != nil {
		h.logger.Error("failed to subscribe to events",
			zap.String("session_id", sessionID),
			zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": gin.H{"code": "EVENTS_UNAVAILABLE", "message": err.Error()},
		})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	h.logger.Info("WebSocket connection established",
		zap.String("session_id", sessionID),
		zap.String("client", c.ClientIP()))

	// the read loop only drains control frames and notices the close
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("WebSocket connection closed", zap.String("session_id", sessionID))
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case event := <-events:
			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("failed to marshal event", zap.Error(err))
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Warn("failed to write message",
					zap.String("session_id", sessionID),
					zap.Error(err))
				return
			}
		}
	}
}

// subscribe forwards the session's run and graph events to ch until ctx
// is done
func (h *Handler) subscribe(ctx context.Context, sessionID string, ch chan<- domain.Event) error {
	handler := func(ctx context.Context, event domain.Event) error {
		if event.SessionID != sessionID {
			return nil
		}
		select {
		case ch <- event:
		case <-ctx.Done():
			return ctx.Err()
		default:
			h.logger.Warn("event channel full, dropping event",
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)))
		}
		return nil
	}

	for _, topic := range []string{ports.TopicRunEvents, ports.TopicGraphEvents} {
		if err := h.eventBus.Subscribe(ctx, topic, handler); err != nil {
			return err
		}
	}
	return nil
}
