// Package recognizer implements the transport-agnostic serving operations
// for the static single-frame classifier and the 60-frame sequence
// classifier.
package recognizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ayusman/mudra/internal/classifier"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/gesture"
)

// Error kinds surfaced by every operation.
var (
	ErrInvalidInput     = detector.ErrInvalidInput
	ErrModelUnavailable = classifier.ErrModelUnavailable
	ErrInferenceFailure = classifier.ErrInferenceFailure
)

// Config holds recognition policy.
type Config struct {
	StaticThreshold   float64
	SequenceThreshold float64
	HoldFrames        int
	HistorySize       int
	MinHistory        int
	// SessionTTL is how long an idle smoothing session is kept.
	SessionTTL time.Duration
	// SweepInterval is how often idle smoothing sessions are collected.
	SweepInterval time.Duration
}

// DefaultConfig returns the recognition policy the bundled models were tuned for.
func DefaultConfig() Config {
	return Config{
		StaticThreshold:   gesture.DefaultStaticThreshold,
		SequenceThreshold: gesture.DefaultSequenceThreshold,
		HoldFrames:        gesture.DefaultHoldFrames,
		HistorySize:       gesture.DefaultHistorySize,
		MinHistory:        gesture.DefaultMinHistory,
		SessionTTL:        5 * time.Minute,
		SweepInterval:     time.Minute,
	}
}

// Health is the result of a health check.
type Health struct {
	Status           string   `json:"status"`
	AvailableClasses []string `json:"available_classes"`
	SequenceReady    bool     `json:"sequence_ready"`
}

// SequenceInfo describes the sequence model's input contract.
type SequenceInfo struct {
	SequenceLength      int      `json:"sequence_length"`
	FeaturesPerFrame    int      `json:"features_per_frame"`
	Actions             []string `json:"actions"`
	ConfidenceThreshold float64  `json:"confidence_threshold"`
}

// HandPoints is one optional hand of a sequence frame.
type HandPoints []detector.Point3D

// SequenceFrame holds the raw landmarks of one frame. Either hand may be absent.
type SequenceFrame struct {
	Left  HandPoints `json:"left,omitempty"`
	Right HandPoints `json:"right,omitempty"`
}

// Service exposes recognition as request/response operations. It is safe for
// concurrent use; the only mutable state is the smoothing session table.
type Service struct {
	cfg      Config
	static   *classifier.Loader
	sequence *classifier.Loader
	sessions *Sessions
}

// New creates a Service. Models are loaded on first use.
func New(cfg Config, static, sequence *classifier.Loader) *Service {
	return &Service{
		cfg:      cfg,
		static:   static,
		sequence: sequence,
		sessions: NewSessions(cfg.HistorySize, cfg.MinHistory, cfg.SessionTTL),
	}
}

// Sessions returns the smoothing session table.
func (s *Service) Sessions() *Sessions { return s.sessions }

// Config returns the recognition policy.
func (s *Service) Config() Config { return s.cfg }

// Health loads the static model if needed and reports its labels.
func (s *Service) Health(ctx context.Context) (Health, error) {
	m, err := s.static.Get(ctx)
	if err != nil {
		return Health{}, err
	}
	_, seqErr := s.sequence.Get(ctx)
	return Health{
		Status:           "healthy",
		AvailableClasses: upperAll(m.Labels.Labels()),
		SequenceReady:    seqErr == nil,
	}, nil
}

// PredictFromFeatures classifies one normalized hand. The label is upper-cased
// and no confidence threshold is applied.
func (s *Service) PredictFromFeatures(ctx context.Context, features []float32) (classifier.Prediction, error) {
	if len(features) != detector.FeatureSize {
		return classifier.Prediction{}, fmt.Errorf("%w: expected %d features, got %d", ErrInvalidInput, detector.FeatureSize, len(features))
	}
	m, err := s.static.Get(ctx)
	if err != nil {
		return classifier.Prediction{}, err
	}
	p, err := m.Predict(ctx, features)
	if err != nil {
		return classifier.Prediction{}, inferenceError(err)
	}
	p.Label = strings.ToUpper(p.Label)
	return p, nil
}

// PredictFromLandmarks normalizes 21 raw points and classifies them.
func (s *Service) PredictFromLandmarks(ctx context.Context, handedness detector.Handedness, points []detector.Point3D) (classifier.Prediction, error) {
	feat, err := detector.FeaturesFromPoints(points, handedness)
	if err != nil {
		return classifier.Prediction{}, err
	}
	return s.PredictFromFeatures(ctx, feat[:])
}

// SequenceInfo reports the sequence model's window shape, labels and threshold.
func (s *Service) SequenceInfo(ctx context.Context) (SequenceInfo, error) {
	m, err := s.sequence.Get(ctx)
	if err != nil {
		return SequenceInfo{}, err
	}
	return SequenceInfo{
		SequenceLength:      gesture.WindowSize,
		FeaturesPerFrame:    gesture.FrameFeatures,
		Actions:             m.Labels.Labels(),
		ConfidenceThreshold: s.cfg.SequenceThreshold,
	}, nil
}

// PredictFromSequence builds keypoints for 60 frames of raw landmarks and
// classifies the window once.
func (s *Service) PredictFromSequence(ctx context.Context, frames []SequenceFrame) (gesture.Decision, error) {
	if len(frames) != gesture.WindowSize {
		return gesture.Decision{}, fmt.Errorf("%w: expected %d frames, got %d", ErrInvalidInput, gesture.WindowSize, len(frames))
	}
	window := make(gesture.Window, 0, gesture.WindowSize)
	for i, f := range frames {
		hands, err := f.Hands()
		if err != nil {
			return gesture.Decision{}, fmt.Errorf("frame %d: %w", i, err)
		}
		window = append(window, gesture.Keypoints(hands))
	}
	return s.classifyWindow(ctx, window)
}

// PredictFromSequenceRaw classifies 60 precomputed 126-value frames.
func (s *Service) PredictFromSequenceRaw(ctx context.Context, frames [][]float32) (gesture.Decision, error) {
	if len(frames) != gesture.WindowSize {
		return gesture.Decision{}, fmt.Errorf("%w: expected %d frames, got %d", ErrInvalidInput, gesture.WindowSize, len(frames))
	}
	window := make(gesture.Window, 0, gesture.WindowSize)
	for i, f := range frames {
		kp, err := gesture.ParseKeypoints(f)
		if err != nil {
			return gesture.Decision{}, fmt.Errorf("frame %d: %w", i, err)
		}
		window = append(window, kp)
	}
	return s.classifyWindow(ctx, window)
}

func (s *Service) classifyWindow(ctx context.Context, window gesture.Window) (gesture.Decision, error) {
	m, err := s.sequence.Get(ctx)
	if err != nil {
		return gesture.Decision{}, err
	}
	proba, err := m.Model.PredictProba(ctx, window.Flatten())
	if err != nil {
		return gesture.Decision{}, inferenceError(err)
	}
	return s.SequenceGate(m.Labels).Apply(proba), nil
}

// SequenceClassifier returns the loaded sequence model for callers that run
// their own segmenter, such as live sessions.
func (s *Service) SequenceClassifier(ctx context.Context) (*classifier.Classified, error) {
	return s.sequence.Get(ctx)
}

// StaticClassifier returns the loaded static model.
func (s *Service) StaticClassifier(ctx context.Context) (*classifier.Classified, error) {
	return s.static.Get(ctx)
}

// SequenceGate builds the sequence confidence gate over a label table.
func (s *Service) SequenceGate(labels classifier.LabelTable) *gesture.Gate {
	return gesture.NewGate(labels.Labels(), s.cfg.SequenceThreshold, s.cfg.HoldFrames)
}

// StaticGate builds the static confidence gate. Labels are upper-cased.
func (s *Service) StaticGate(labels classifier.LabelTable) *gesture.Gate {
	return gesture.NewGate(upperAll(labels.Labels()), s.cfg.StaticThreshold, 0)
}

// Hands validates the frame's landmarks and splits them per hand.
func (f SequenceFrame) Hands() (detector.FrameHands, error) {
	var fh detector.FrameHands
	if len(f.Left) > 0 {
		h, err := detector.NewHandLandmarks(f.Left, detector.Left)
		if err != nil {
			return fh, fmt.Errorf("left hand: %w", err)
		}
		fh.Left = h
	}
	if len(f.Right) > 0 {
		h, err := detector.NewHandLandmarks(f.Right, detector.Right)
		if err != nil {
			return fh, fmt.Errorf("right hand: %w", err)
		}
		fh.Right = h
	}
	return fh, nil
}

func inferenceError(err error) error {
	if errors.Is(err, ErrInferenceFailure) || errors.Is(err, ErrInvalidInput) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrInferenceFailure, err)
}

func upperAll(labels []string) []string {
	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = strings.ToUpper(l)
	}
	return out
}
