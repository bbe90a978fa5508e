package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/recognizer"
)

// RecognitionHandler exposes the recognizer operations over HTTP. It keeps
// no state between requests except the explicitly keyed smoothing sessions.
type RecognitionHandler struct {
	svc *recognizer.Service
}

// NewRecognitionHandler creates a new RecognitionHandler.
func NewRecognitionHandler(svc *recognizer.Service) *RecognitionHandler {
	return &RecognitionHandler{svc: svc}
}

type featuresRequest struct {
	Features []float32 `json:"features"`
}

type landmarksRequest struct {
	Handed    string             `json:"handed"`
	Landmarks []detector.Point3D `json:"landmarks"`
}

type smoothRequest struct {
	SessionID string             `json:"session_id"`
	Handed    string             `json:"handed"`
	Landmarks []detector.Point3D `json:"landmarks"`
	Features  []float32          `json:"features"`
}

type sequenceRequest struct {
	Frames []recognizer.SequenceFrame `json:"frames"`
}

type sequenceRawRequest struct {
	Frames [][]float32 `json:"frames"`
}

// Health handles GET /health.
func (h *RecognitionHandler) Health(w http.ResponseWriter, r *http.Request) {
	health, err := h.svc.Health(r.Context())
	if err != nil {
		writeServiceError(w, r, fmt.Errorf("service unhealthy: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, health)
}

// PredictFeatures handles POST /predict/features.
func (h *RecognitionHandler) PredictFeatures(w http.ResponseWriter, r *http.Request) {
	var req featuresRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.svc.PredictFromFeatures(r.Context(), req.Features)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// PredictLandmarks handles POST /predict/landmarks and POST /predict.
func (h *RecognitionHandler) PredictLandmarks(w http.ResponseWriter, r *http.Request) {
	var req landmarksRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validatePoints(req.Landmarks); err != nil {
		writeServiceError(w, r, err)
		return
	}
	p, err := h.svc.PredictFromLandmarks(r.Context(), detector.Handedness(req.Handed), req.Landmarks)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// PredictSmoothed handles POST /predict/smooth. The session comes from the
// sessionId query parameter or the body; a new one is created when absent.
func (h *RecognitionHandler) PredictSmoothed(w http.ResponseWriter, r *http.Request) {
	var req smoothRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		sessionID = req.SessionID
	}
	if err := validatePoints(req.Landmarks); err != nil {
		writeServiceError(w, r, err)
		return
	}
	res, err := h.svc.PredictSmoothed(r.Context(), sessionID, detector.Handedness(req.Handed), req.Landmarks, req.Features)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ResetSession handles DELETE /session/{id}.
func (h *RecognitionHandler) ResetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.svc.ResetSession(id) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": id, "reset": true})
}

// SequenceInfo handles GET /sequence/info.
func (h *RecognitionHandler) SequenceInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.SequenceInfo(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// PredictSequence handles POST /sequence/predict.
func (h *RecognitionHandler) PredictSequence(w http.ResponseWriter, r *http.Request) {
	var req sequenceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	for i, f := range req.Frames {
		if err := validatePoints(f.Left); err != nil {
			writeServiceError(w, r, fmt.Errorf("frame %d left hand: %w", i, err))
			return
		}
		if err := validatePoints(f.Right); err != nil {
			writeServiceError(w, r, fmt.Errorf("frame %d right hand: %w", i, err))
			return
		}
	}
	d, err := h.svc.PredictFromSequence(r.Context(), req.Frames)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// PredictSequenceRaw handles POST /sequence/predict-raw.
func (h *RecognitionHandler) PredictSequenceRaw(w http.ResponseWriter, r *http.Request) {
	var req sequenceRawRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	d, err := h.svc.PredictFromSequenceRaw(r.Context(), req.Frames)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// validatePoints checks that image coordinates are normalized to [0,1].
// Depth is relative and unbounded.
func validatePoints(points []detector.Point3D) error {
	for i, p := range points {
		if p.X < 0 || p.X > 1 || p.Y < 0 || p.Y > 1 {
			return fmt.Errorf("%w: landmark %d outside the unit square", recognizer.ErrInvalidInput, i)
		}
	}
	return nil
}
