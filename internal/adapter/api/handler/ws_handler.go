package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/user/healthwatch/internal/broadcast"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// WSHandler upgrades HTTP connections to websockets and streams hub
// envelopes for the topics the client asked for.
type WSHandler struct {
	logger   *slog.Logger
	hub      *broadcast.Hub
	upgrader websocket.Upgrader
}

// NewWSHandler creates the websocket streaming handler.
func NewWSHandler(logger *slog.Logger, hub *broadcast.Hub) *WSHandler {
	return &WSHandler{
		logger: logger,
		hub:    hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Stream handles GET /ws. Topics come from the ?topics= query
// parameter, comma separated; the default subscription covers targets,
// events and alerts.
func (h *WSHandler) Stream(w http.ResponseWriter, r *http.Request) {
	topics := parseTopics(r.URL.Query().Get("topics"))

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	sub := h.hub.Subscribe(topics...)
	h.logger.Info("websocket client connected", "remote", r.RemoteAddr, "topics", topics)

	go h.readPump(conn, sub)
	h.writePump(conn, sub, r.RemoteAddr)
}

// readPump discards inbound frames and keeps the pong deadline fresh.
// Closing the subscription ends the write pump.
func (h *WSHandler) readPump(conn *websocket.Conn, sub *broadcast.Subscription) {
	defer sub.Close()

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WSHandler) writePump(conn *websocket.Conn, sub *broadcast.Subscription, remote string) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
		h.logger.Info("websocket client disconnected", "remote", remote)
	}()

	for {
		select {
		case msg, ok := <-sub.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func parseTopics(raw string) []string {
	if raw == "" {
		return []string{broadcast.TopicTargets, broadcast.TopicEvents, broadcast.TopicAlerts}
	}
	parts := strings.Split(raw, ",")
	topics := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			topics = append(topics, p)
		}
	}
	if len(topics) == 0 {
		return []string{broadcast.TopicTargets, broadcast.TopicEvents, broadcast.TopicAlerts}
	}
	return topics
}
