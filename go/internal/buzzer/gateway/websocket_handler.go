package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/buzzer/go/internal/buzzer"
)

// WebSocketHandler handles observer WebSocket upgrades.
type WebSocketHandler struct {
	connectionManager *ConnectionManager
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
	}
}

// HandleConnection handles GET /ws
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	// Upgrade writes its own HTTP error on failure.
	if _, err := h.connectionManager.UpgradeConnection(w, r); err != nil {
		log.Error().
			Err(err).
			Str("remote_addr", r.RemoteAddr).
			Msg("failed to upgrade WebSocket connection")
	}
}

// HandleConnectionStats handles GET /ws/stats
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.connectionManager.GetConnectionStats())
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", h.HandleConnection)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
}

// writePump is the only goroutine that writes to c.Conn.
func (c *Connection) writePump() {
	cfg := c.Manager.config
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if !ok {
				// manager closed the queue: pruned, unregistered or shutting down
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID.String()).
					Msg("failed to write message to WebSocket")
				c.Manager.Unregister(c)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID.String()).
					Msg("failed to send ping")
				c.Manager.Unregister(c)
				return
			}
		}
	}
}

func (c *Connection) readPump() {
	cfg := c.Manager.config
	defer func() {
		c.cancel()
		c.Manager.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(cfg.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID.String()).
					Msg("unexpected WebSocket close error")
			}
			return
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	}
}

// handleClientMessage processes commands received from an observer.
func (c *Connection) handleClientMessage(raw []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Debug().Err(err).Str("connection_id", c.ID.String()).Msg("malformed client message")
		c.Manager.sendError(c, ErrorCodeBadRequest, "malformed message")
		return
	}

	switch msg.Type {
	case ClientMessageReset:
		if _, err := c.Manager.RequestReset(c.ctx, c, msg.Token); err != nil && !errors.Is(err, ErrResetNotAllowed) {
			log.Error().Err(err).Str("connection_id", c.ID.String()).Msg("reset request failed")
		}

	case ClientMessageBuzz:
		if !c.Manager.config.AllowSimulatedPress {
			c.Manager.sendError(c, ErrorCodeBadRequest, "simulated presses are disabled")
			return
		}
		if msg.Player == nil {
			c.Manager.sendError(c, ErrorCodeBadRequest, "player is required")
			return
		}
		c.Manager.SubmitBuzz(c, *msg.Player)

	default:
		log.Debug().
			Str("connection_id", c.ID.String()).
			Str("type", msg.Type).
			Msg("ignoring unknown client message")
		c.Manager.sendError(c, ErrorCodeBadRequest, "unknown message type")
	}
}

// Ensure the manager satisfies the arbiter listener contract.
var _ buzzer.Listener = (*ConnectionManager)(nil)
