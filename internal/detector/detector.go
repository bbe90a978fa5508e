package detector

import "gocv.io/x/gocv"

// Detector defines the interface for hand detection implementations.
type Detector interface {
	// Detect analyzes a video frame and returns detected hand landmarks.
	// Returns an empty slice if no hands are detected.
	Detect(frame *gocv.Mat) ([]HandLandmarks, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for hand detection.
type Config struct {
	// MaxHands is the maximum number of hands to detect (default: 2).
	MaxHands int

	// MinConfidence is the minimum detection confidence threshold (0.0-1.0).
	MinConfidence float64

	// MinTrackingConf is the minimum tracking confidence threshold (0.0-1.0).
	MinTrackingConf float64

	// ScriptPath overrides the MediaPipe service script lookup.
	ScriptPath string
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		MaxHands:        2,
		MinConfidence:   0.6,
		MinTrackingConf: 0.6,
	}
}

// FrameHands holds the hands detected in one frame, split by handedness.
// Either side may be nil.
type FrameHands struct {
	Left  *HandLandmarks `json:"left,omitempty"`
	Right *HandLandmarks `json:"right,omitempty"`
}

// Present reports whether at least one hand was detected.
func (f FrameHands) Present() bool {
	return f.Left != nil || f.Right != nil
}

// First returns the first detected hand, preferring the right hand, or nil.
func (f FrameHands) First() *HandLandmarks {
	if f.Right != nil {
		return f.Right
	}
	return f.Left
}

// SplitHands assigns detector output to the left and right slots.
// When two hands carry the same tag the higher scoring one wins.
func SplitHands(hands []HandLandmarks) FrameHands {
	var f FrameHands
	for i := range hands {
		h := &hands[i]
		switch h.Handedness {
		case Left:
			if f.Left == nil || h.Score > f.Left.Score {
				f.Left = h
			}
		case Right:
			if f.Right == nil || h.Score > f.Right.Score {
				f.Right = h
			}
		}
	}
	return f
}
