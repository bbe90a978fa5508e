// Package detector provides hand landmark types, landmark normalization and
// the hand detector interface used by the recognition pipeline.
package detector

import (
	"errors"
	"fmt"
	"math"
)

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = 21
)

// FeatureSize is the length of a normalized single-hand feature vector.
const FeatureSize = NumLandmarks * 3

// palmEpsilon keeps the palm scale away from zero.
const palmEpsilon = 1e-6

// ErrInvalidInput is returned when a landmark payload has the wrong shape.
var ErrInvalidInput = errors.New("invalid input")

// Handedness tags a hand as Left or Right.
type Handedness string

const (
	Left  Handedness = "Left"
	Right Handedness = "Right"
)

// ParseHandedness validates a handedness tag.
func ParseHandedness(s string) (Handedness, error) {
	switch Handedness(s) {
	case Left, Right:
		return Handedness(s), nil
	}
	return "", fmt.Errorf("%w: handedness must be Left or Right, got %q", ErrInvalidInput, s)
}

// Point3D represents a 3D point in space with x, y, z coordinates.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// HandLandmarks represents the 21 hand landmarks detected by MediaPipe.
type HandLandmarks struct {
	Points     [NumLandmarks]Point3D `json:"points"`
	Handedness Handedness            `json:"handedness"`
	Score      float64               `json:"score"`
}

// FeatureVector is one normalized hand, 21 points x (x, y, z), row-major.
type FeatureVector [FeatureSize]float32

// NewHandLandmarks builds a HandLandmarks from a variable-length point list.
// Returns ErrInvalidInput unless exactly 21 points are given.
func NewHandLandmarks(points []Point3D, handedness Handedness) (*HandLandmarks, error) {
	if len(points) != NumLandmarks {
		return nil, fmt.Errorf("%w: expected %d landmarks, got %d", ErrInvalidInput, NumLandmarks, len(points))
	}
	h := &HandLandmarks{Handedness: handedness}
	copy(h.Points[:], points)
	return h, nil
}

// Features normalizes the hand into a position, size and mirror invariant
// feature vector.
//
// Left hands are mirrored (x <- 1 - x) into the right-hand frame, the wrist
// becomes the origin and every coordinate is divided by the planar distance
// from the wrist to the middle finger MCP.
func (h *HandLandmarks) Features() FeatureVector {
	pts := h.Points
	if h.Handedness == Left {
		for i := range pts {
			pts[i].X = 1.0 - pts[i].X
		}
	}

	wrist := pts[Wrist]
	for i := range pts {
		pts[i].X -= wrist.X
		pts[i].Y -= wrist.Y
		pts[i].Z -= wrist.Z
	}

	mid := pts[MiddleMCP]
	scale := math.Hypot(mid.X, mid.Y) + palmEpsilon

	var out FeatureVector
	for i, p := range pts {
		out[i*3] = float32(p.X / scale)
		out[i*3+1] = float32(p.Y / scale)
		out[i*3+2] = float32(p.Z / scale)
	}
	return out
}

// FeaturesFromPoints validates a raw point list and normalizes it.
func FeaturesFromPoints(points []Point3D, handedness Handedness) (FeatureVector, error) {
	if _, err := ParseHandedness(string(handedness)); err != nil {
		return FeatureVector{}, err
	}
	h, err := NewHandLandmarks(points, handedness)
	if err != nil {
		return FeatureVector{}, err
	}
	return h.Features(), nil
}

// Mirrored returns a copy of the hand with x mirrored and the handedness flipped.
func (h *HandLandmarks) Mirrored() *HandLandmarks {
	if h == nil {
		return nil
	}
	m := *h
	for i := range m.Points {
		m.Points[i].X = 1.0 - m.Points[i].X
	}
	if h.Handedness == Left {
		m.Handedness = Right
	} else {
		m.Handedness = Left
	}
	return &m
}
