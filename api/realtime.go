package api

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/exp/slog"
)

const (
	websocketWriteWait    = 10 * time.Second
	websocketPingInterval = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// websocket streams session events to one client. The client never sends anything meaningful;
// reads only detect the close.
func (h *handler) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("Error upgrading websocket", "error", err)
		return
	}
	defer conn.Close()

	subscriberID, events := h.session.Subscribe()
	defer h.session.Unsubscribe(subscriberID)
	slog.Info("Websocket subscriber connected", "subscriber", subscriberID)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(websocketPingInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-events:
			conn.SetWriteDeadline(time.Now().Add(websocketWriteWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"))
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				slog.Info("Websocket subscriber gone", "subscriber", subscriberID, "error", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(websocketWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			slog.Info("Websocket subscriber disconnected", "subscriber", subscriberID)
			return
		}
	}
}

// events is the server-sent events variant of websocket.
func (h *handler) events(c *gin.Context) {
	subscriberID, events := h.session.Subscribe()
	defer h.session.Unsubscribe(subscriberID)

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(event.Name, event.Data)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
