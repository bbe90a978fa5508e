package recognizer

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/ayusman/mudra/internal/classifier"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/gesture"
)

// SmoothedPrediction is a static prediction together with the smoothing
// verdict of its session.
type SmoothedPrediction struct {
	classifier.Prediction
	SessionID     string `json:"session_id"`
	FinalLabel    string `json:"final_label,omitempty"`
	IsStable      bool   `json:"is_stable"`
	HistoryLength int    `json:"history_length"`
}

type session struct {
	smoother *gesture.Smoother
	lastSeen time.Time
}

// Sessions is a table of per-client smoothing histories. Sessions that have
// not been used for the TTL are dropped by Sweep.
type Sessions struct {
	mu          sync.Mutex
	sessions    map[string]*session
	historySize int
	minHistory  int
	ttl         time.Duration
	now         func() time.Time
}

// NewSessions creates an empty session table.
func NewSessions(historySize, minHistory int, ttl time.Duration) *Sessions {
	return &Sessions{
		sessions:    make(map[string]*session),
		historySize: historySize,
		minHistory:  minHistory,
		ttl:         ttl,
		now:         time.Now,
	}
}

// Observe feeds a gated decision into the session's history. An empty id
// starts a new session; the id actually used is returned.
func (s *Sessions) Observe(id string, d gesture.Decision) (string, string, bool, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		id = uuid.New().String()
	}
	sess, ok := s.sessions[id]
	if !ok {
		sess = &session{smoother: gesture.NewSmoother(s.historySize, s.minHistory)}
		s.sessions[id] = sess
	}
	sess.lastSeen = s.now()

	label, stable := sess.smoother.Observe(d)
	return id, label, stable, sess.smoother.Len()
}

// Reset forgets a session. It reports whether the session existed.
func (s *Sessions) Reset(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	return ok
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep drops sessions idle for longer than the TTL and returns how many
// were removed.
func (s *Sessions) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.ttl)
	removed := 0
	for id, sess := range s.sessions {
		if sess.lastSeen.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Run sweeps idle sessions every interval until ctx is cancelled.
func (s *Sessions) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				log.WithField("sessions", n).Debug("cleaned up stale smoothing sessions")
			}
		}
	}
}

// PredictSmoothed classifies one hand, either as raw landmarks or as
// precomputed features, and smooths the result within a session.
func (s *Service) PredictSmoothed(ctx context.Context, sessionID string, handedness detector.Handedness, points []detector.Point3D, features []float32) (SmoothedPrediction, error) {
	var (
		p   classifier.Prediction
		err error
	)
	if len(points) > 0 {
		p, err = s.PredictFromLandmarks(ctx, handedness, points)
	} else {
		p, err = s.PredictFromFeatures(ctx, features)
	}
	if err != nil {
		return SmoothedPrediction{}, err
	}

	d := gesture.Decision{
		Label:      p.Label,
		Confidence: p.Confidence,
		ClassIndex: p.ClassIndex,
		Proba:      p.Proba,
		Accepted:   p.Confidence >= s.cfg.StaticThreshold,
	}
	id, label, stable, n := s.sessions.Observe(sessionID, d)
	return SmoothedPrediction{
		Prediction:    p,
		SessionID:     id,
		FinalLabel:    strings.ToUpper(label),
		IsStable:      stable,
		HistoryLength: n,
	}, nil
}

// ResetSession forgets a smoothing session.
func (s *Service) ResetSession(id string) bool {
	return s.sessions.Reset(id)
}
