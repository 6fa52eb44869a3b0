package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/platformbuilds/mirador-remedy/internal/models"
	"github.com/platformbuilds/mirador-remedy/pkg/logger"
)

// StreamHandler pushes alert state changes to websocket subscribers. It is
// registered as a listener on the alert manager; a slow client gets dropped
// events rather than blocking the pipeline.
type StreamHandler struct {
	upgrader websocket.Upgrader
	logger   logger.Logger

	mu      sync.Mutex
	clients map[string]chan *models.AlertStateChange
	max     int
}

func NewStreamHandler(maxConnections, readBufferSize, writeBufferSize int, logger logger.Logger) *StreamHandler {
	if maxConnections <= 0 {
		maxConnections = 100
	}
	return &StreamHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  readBufferSize,
			WriteBufferSize: writeBufferSize,
			// TODO: tighten in prod (check Origin/Host, tenant, auth)
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:  logger,
		clients: make(map[string]chan *models.AlertStateChange),
		max:     maxConnections,
	}
}

// Broadcast fans one state change out to every connected client. Full client
// buffers drop the event.
func (h *StreamHandler) Broadcast(change *models.AlertStateChange) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.clients {
		select {
		case ch <- change:
		default:
			h.logger.Warn("Dropping alert stream event for slow client", "clientId", id)
		}
	}
}

// GET /api/v1/alerts/stream - WebSocket endpoint for live alert state changes
func (h *StreamHandler) HandleAlertsStream(c *gin.Context) {
	h.mu.Lock()
	if len(h.clients) >= h.max {
		h.mu.Unlock()
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "error": "too many stream connections"})
		return
	}
	clientID := generateClientID()
	events := make(chan *models.AlertStateChange, 64)
	h.clients[clientID] = events
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, clientID)
		h.mu.Unlock()
	}()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	h.logger.Info("WebSocket client connected", "clientId", clientID, "stream", "alerts")

	// basic heartbeat so idle proxies don't drop us
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case change := <-events:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(map[string]interface{}{
				"type":      "alert_state_change",
				"data":      change,
				"timestamp": time.Now().Format(time.RFC3339),
			}); err != nil {
				h.logger.Error("WebSocket write failed", "clientId", clientID, "error", err)
				return
			}

		case <-heartbeat.C:
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			_ = conn.WriteJSON(map[string]interface{}{
				"type": "heartbeat",
				"data": map[string]any{"ts": time.Now().UnixMilli()},
			})

		case <-c.Request.Context().Done():
			return
		}
	}
}

func generateClientID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
