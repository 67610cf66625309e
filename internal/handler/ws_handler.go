package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"saga-server/internal/delivery/websocket"
	"saga-server/internal/reconciler"
)

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Origin filtering is handled by the CORS layer for the API; the
		// socket carries no credentials beyond the participant id.
		return true
	},
}

// WSHandler upgrades connections and attaches them to the hub. Each
// connection also runs a reconciler watcher under the connecting
// participant's identity: every participant's process evaluates the host
// guard independently, and only the host's watcher ever reconciles.
type WSHandler struct {
	hub        *websocket.Hub
	reconciler *reconciler.Reconciler
	logger     *zap.Logger
}

// NewWSHandler creates a WSHandler.
func NewWSHandler(hub *websocket.Hub, rec *reconciler.Reconciler, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		hub:        hub,
		reconciler: rec,
		logger:     logger.Named("WSHandler"),
	}
}

func (h *WSHandler) serve(c *gin.Context) {
	sessionID := c.Param("code")
	participantID := c.Query("participantId")
	if participantID == "" {
		c.JSON(http.StatusBadRequest, APIError{Message: "participantId query parameter is required"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := h.hub.NewClient(conn, sessionID, participantID)

	// The watcher lives exactly as long as the connection: its context is
	// cancelled when the read pump returns.
	watchCtx := c.Request.Context()
	go func() {
		if err := h.reconciler.Watch(watchCtx, sessionID, participantID); err != nil && watchCtx.Err() == nil {
			h.logger.Warn("Reconciler watcher stopped",
				zap.String("sessionId", sessionID), zap.Error(err))
		}
	}()

	go client.WritePump()
	client.ReadPump()
}
