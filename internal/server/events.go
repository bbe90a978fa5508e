package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/ayusman/mudra/internal/app"
)

// eventsHandler broadcasts capture pipeline events via WebSocket.
type eventsHandler struct {
	app      *app.App
	upgrader websocket.Upgrader
}

func newEventsHandler(a *app.App, origins originPolicy) *eventsHandler {
	return &eventsHandler{
		app: a,
		upgrader: websocket.Upgrader{
			CheckOrigin: origins.checkWebSocketOrigin,
		},
	}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *eventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("websocket upgrade error")
		return
	}
	defer conn.Close()

	events, cancel := h.app.Subscribe()
	defer cancel()

	// Keep connection alive by reading messages
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}
