package gesture

import (
	"context"
	"fmt"

	"github.com/ayusman/mudra/internal/detector"
)

// Default smoothing settings for the single-frame path.
const (
	DefaultHistorySize = 7
	DefaultMinHistory  = 3
)

// Smoother stabilizes per-frame static predictions with a majority vote over
// the most recent class indices.
type Smoother struct {
	size       int
	minHistory int
	history    []int
}

// NewSmoother creates a Smoother keeping the last size predictions and
// requiring at least minHistory of them before surfacing a label.
func NewSmoother(size, minHistory int) *Smoother {
	if size <= 0 {
		size = DefaultHistorySize
	}
	if minHistory <= 0 {
		minHistory = DefaultMinHistory
	}
	return &Smoother{
		size:       size,
		minHistory: minHistory,
		history:    make([]int, 0, size),
	}
}

// Observe records a gated prediction and returns the label to surface, if any.
// A label is surfaced only when the decision passed the gate, the history is
// long enough and the decision's class is the history's majority class.
func (s *Smoother) Observe(d Decision) (string, bool) {
	if len(s.history) == s.size {
		copy(s.history, s.history[1:])
		s.history = s.history[:s.size-1]
	}
	s.history = append(s.history, d.ClassIndex)

	if !d.Accepted || len(s.history) < s.minHistory {
		return "", false
	}
	if s.Majority() != d.ClassIndex {
		return "", false
	}
	return d.Label, true
}

// Majority returns the most frequent class in the history. Ties go to the
// class seen first. Returns -1 for an empty history.
func (s *Smoother) Majority() int {
	counts := make(map[int]int, len(s.history))
	for _, c := range s.history {
		counts[c]++
	}
	best, bestCount := -1, 0
	for _, c := range s.history {
		if counts[c] > bestCount {
			best, bestCount = c, counts[c]
		}
	}
	return best
}

// Len returns the number of predictions in the history.
func (s *Smoother) Len() int { return len(s.history) }

// Clear drops the history. Called whenever a frame has no hand.
func (s *Smoother) Clear() {
	s.history = s.history[:0]
}

// StaticResult is the outcome of one frame on the single-frame path.
type StaticResult struct {
	HandPresent bool     `json:"hand_present"`
	Decision    Decision `json:"decision"`
	Label       string   `json:"label"`
	Stable      bool     `json:"stable"`
	History     int      `json:"history"`
}

// StaticTracker runs the single-frame classifier on every frame with a hand
// and smooths its output.
type StaticTracker struct {
	model    Classifier
	gate     *Gate
	smoother *Smoother
}

// NewStaticTracker creates a StaticTracker.
func NewStaticTracker(model Classifier, gate *Gate, smoother *Smoother) *StaticTracker {
	return &StaticTracker{model: model, gate: gate, smoother: smoother}
}

// Step classifies the first detected hand of the frame. Frames without a hand
// clear the smoothing history.
func (t *StaticTracker) Step(ctx context.Context, frame detector.FrameHands) (StaticResult, error) {
	hand := frame.First()
	if hand == nil {
		t.smoother.Clear()
		return StaticResult{}, nil
	}

	feat := hand.Features()
	proba, err := t.model.PredictProba(ctx, feat[:])
	if err != nil {
		return StaticResult{HandPresent: true}, fmt.Errorf("classify frame: %w", err)
	}

	d := t.gate.Apply(proba)
	label, stable := t.smoother.Observe(d)
	return StaticResult{
		HandPresent: true,
		Decision:    d,
		Label:       label,
		Stable:      stable,
		History:     t.smoother.Len(),
	}, nil
}

// Reset clears the smoothing history.
func (t *StaticTracker) Reset() {
	t.smoother.Clear()
}
