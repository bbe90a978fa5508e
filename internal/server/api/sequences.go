package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ayusman/mudra/internal/store"
)

// DefaultStatsDays is the window of GET /api/predictions/top1-stats.
const DefaultStatsDays = 7

const maxStatsDays = 365

// SequenceHandler handles recorded sequences and their prediction log.
type SequenceHandler struct {
	store *store.Store
}

// NewSequenceHandler creates a new SequenceHandler.
func NewSequenceHandler(s *store.Store) *SequenceHandler {
	return &SequenceHandler{store: s}
}

type createSequenceRequest struct {
	SessionID string          `json:"session_id"`
	TStartMs  int64           `json:"t_start_ms"`
	TEndMs    int64           `json:"t_end_ms"`
	Label     string          `json:"label"`
	Keypoints json.RawMessage `json:"keypoints"`
}

type createPredictionRequest struct {
	SequenceID string       `json:"sequence_id"`
	ModelID    string       `json:"model_id"`
	TopK       []store.TopK `json:"topk"`
}

type listSequencesResponse struct {
	Sequences []*store.Sequence `json:"sequences"`
}

type listPredictionsResponse struct {
	Predictions []*store.Prediction `json:"predictions"`
}

type top1StatsResponse struct {
	Days  int                `json:"days"`
	Since time.Time          `json:"since"`
	Stats []store.LabelCount `json:"stats"`
}

// CreateSequence handles POST /api/sequences.
func (h *SequenceHandler) CreateSequence(w http.ResponseWriter, r *http.Request) {
	var req createSequenceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	seq := &store.Sequence{
		SessionID: req.SessionID,
		TStartMs:  req.TStartMs,
		TEndMs:    req.TEndMs,
		Label:     req.Label,
		Keypoints: req.Keypoints,
	}
	if err := h.store.Sequences().Create(seq); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, seq)
}

// GetSequence handles GET /api/sequences/{id}.
func (h *SequenceHandler) GetSequence(w http.ResponseWriter, r *http.Request) {
	seq, err := h.store.Sequences().GetByID(chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, seq)
}

// ListSequences handles GET /api/sequences?session_id=.
func (h *SequenceHandler) ListSequences(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	seqs, err := h.store.Sequences().ListBySession(sessionID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listSequencesResponse{Sequences: append([]*store.Sequence{}, seqs...)})
}

// ListPredictions handles GET /api/sequences/{id}/predictions.
func (h *SequenceHandler) ListPredictions(w http.ResponseWriter, r *http.Request) {
	preds, err := h.store.Predictions().ListBySequence(chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listPredictionsResponse{Predictions: append([]*store.Prediction{}, preds...)})
}

// CreatePrediction handles POST /api/predictions. The sequence must exist.
func (h *SequenceHandler) CreatePrediction(w http.ResponseWriter, r *http.Request) {
	var req createPredictionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p := &store.Prediction{
		SequenceID: req.SequenceID,
		ModelID:    req.ModelID,
		TopK:       req.TopK,
	}
	if err := p.Validate(); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if _, err := h.store.Sequences().GetByID(req.SequenceID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := h.store.Predictions().Create(p); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// Top1Stats handles GET /api/predictions/top1-stats?days=N: how often each
// label was the top prediction over the last N days, most frequent first.
func (h *SequenceHandler) Top1Stats(w http.ResponseWriter, r *http.Request) {
	days := DefaultStatsDays
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxStatsDays {
			writeError(w, http.StatusBadRequest, "days must be an integer between 1 and 365")
			return
		}
		days = n
	}

	since := time.Now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
	stats, err := h.store.Predictions().Top1CountsSince(since)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, top1StatsResponse{Days: days, Since: since, Stats: stats})
}
