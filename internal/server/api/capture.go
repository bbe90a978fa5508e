package api

import (
	"net/http"

	"github.com/ayusman/mudra/internal/app"
)

// CaptureHandler controls the server-side capture pipeline.
type CaptureHandler struct {
	app *app.App
}

// NewCaptureHandler creates a new CaptureHandler.
func NewCaptureHandler(a *app.App) *CaptureHandler {
	return &CaptureHandler{app: a}
}

type enableRequest struct {
	Enabled bool `json:"enabled"`
}

// Status handles GET /api/capture.
func (h *CaptureHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.app.Status())
}

// Start handles POST /api/capture/start.
func (h *CaptureHandler) Start(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Start(r.Context()); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.app.Status())
}

// Stop handles POST /api/capture/stop.
func (h *CaptureHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.app.Stop()
	writeJSON(w, http.StatusOK, h.app.Status())
}

// SetEnabled handles PUT /api/capture/enabled. Pausing keeps the camera open.
func (h *CaptureHandler) SetEnabled(w http.ResponseWriter, r *http.Request) {
	var req enableRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.app.SetEnabled(req.Enabled)
	writeJSON(w, http.StatusOK, h.app.Status())
}
