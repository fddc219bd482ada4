package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/honeygrid/scamtrap/internal/events"
)

// FeedHandler streams pipeline events to operator WebSocket clients.
type FeedHandler struct {
	hub   *events.Hub
	isDev bool
}

// NewFeedHandler creates a feed handler. isDev relaxes origin checks for
// local dashboards.
func NewFeedHandler(hub *events.Hub, isDev bool) *FeedHandler {
	return &FeedHandler{hub: hub, isDev: isDev}
}

// ServeHTTP upgrades the connection and forwards hub events until the
// client disconnects. The feed is observe-only; nothing is read from the
// client beyond control frames.
func (h *FeedHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	opts := &websocket.AcceptOptions{}
	if h.isDev {
		opts.InsecureSkipVerify = true
	}

	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		slog.Warn("feed websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "feed closed")

	// CloseRead pumps control frames and cancels the context when the
	// client goes away.
	ctx := conn.CloseRead(r.Context())

	sub, cancel := h.hub.Subscribe()
	defer cancel()

	slog.Info("feed subscriber connected", "remote", r.RemoteAddr)

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "bye")
			return
		case evt, ok := <-sub:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "hub closed")
				return
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				slog.Warn("feed event marshal failed", "type", evt.Type, "error", err)
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
				slog.Debug("feed write failed, dropping subscriber", "error", err)
				return
			}
		}
	}
}
