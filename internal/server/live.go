package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/recognizer"
)

const (
	liveReadLimit   = 64 << 10
	liveIdleTimeout = 60 * time.Second
	liveWriteWait   = 5 * time.Second
)

// liveFrame is one client message: the landmarks of one frame, or a reset.
type liveFrame struct {
	recognizer.SequenceFrame
	Reset bool `json:"reset,omitempty"`
}

// liveReply reports the segmenter's view after one frame.
type liveReply struct {
	Seq      int                `json:"seq"`
	State    gesture.State      `json:"state"`
	Frames   int                `json:"frames"`
	Held     gesture.HeldResult `json:"held"`
	Decision *gesture.Decision  `json:"decision,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// liveHandler runs a live capture session over a WebSocket. Each connection
// owns its own Segmenter, driven only by that connection's read loop.
type liveHandler struct {
	svc      *recognizer.Service
	cfg      gesture.SegmenterConfig
	upgrader websocket.Upgrader
}

func newLiveHandler(svc *recognizer.Service, cfg gesture.SegmenterConfig, origins originPolicy) *liveHandler {
	return &liveHandler{
		svc: svc,
		cfg: cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: origins.checkWebSocketOrigin,
		},
	}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *liveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.SequenceClassifier(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("websocket upgrade error")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(liveReadLimit)

	seg := gesture.NewSegmenter(h.cfg, m.Model, h.svc.SequenceGate(m.Labels))
	entry := log.WithField("remote", r.RemoteAddr)
	entry.Debug("live session opened")

	for seq := 1; ; seq++ {
		conn.SetReadDeadline(time.Now().Add(liveIdleTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				entry.WithError(err).Warn("live session closed")
			}
			return
		}

		reply := liveReply{Seq: seq}
		var frame liveFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			reply.Error = "invalid frame: " + err.Error()
		} else if frame.Reset {
			seg.Reset()
		} else if hands, err := frame.Hands(); err != nil {
			reply.Error = err.Error()
		} else {
			step, err := seg.Step(r.Context(), hands)
			reply.Decision = step.Decision
			if err != nil {
				reply.Error = err.Error()
				entry.WithError(err).Warn("live inference failed")
			}
		}
		reply.State = seg.State()
		reply.Frames = seg.Frames()
		reply.Held = seg.Held()

		conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
		if err := conn.WriteJSON(reply); err != nil {
			entry.WithError(err).Debug("live write failed")
			return
		}
	}
}
