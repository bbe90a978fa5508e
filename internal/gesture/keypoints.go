// Package gesture turns per-frame hand landmarks into recognized signs.
//
// It holds the feature accumulator that builds fixed-size keypoint frames,
// the segmentation state machine that decides when a sign starts and when a
// completed window is classified, the confidence gate applied to classifier
// output and the majority-vote smoother used by the single-frame path.
package gesture

import (
	"fmt"

	"github.com/ayusman/mudra/internal/detector"
)

const (
	// HandFeatures is the number of features for one normalized hand.
	HandFeatures = detector.FeatureSize
	// FrameFeatures is the number of features per frame: left hand then right hand.
	FrameFeatures = 2 * HandFeatures
	// WindowSize is the number of frames the sequence model consumes at once.
	WindowSize = 60
)

// FrameKeypoints is one frame of sequence model input. The first 63 values
// describe the left hand, the last 63 the right hand; an absent hand is all
// zeros.
type FrameKeypoints [FrameFeatures]float32

// Keypoints builds the sequence features for one frame. It must be called for
// every frame of a window, including frames without any hand.
func Keypoints(f detector.FrameHands) FrameKeypoints {
	var kp FrameKeypoints
	if f.Left != nil {
		left := f.Left.Features()
		copy(kp[:HandFeatures], left[:])
	}
	if f.Right != nil {
		right := f.Right.Features()
		copy(kp[HandFeatures:], right[:])
	}
	return kp
}

// ParseKeypoints converts a raw 126 value frame into FrameKeypoints.
func ParseKeypoints(values []float32) (FrameKeypoints, error) {
	var kp FrameKeypoints
	if len(values) != FrameFeatures {
		return kp, fmt.Errorf("%w: frame has %d features, expected %d", detector.ErrInvalidInput, len(values), FrameFeatures)
	}
	copy(kp[:], values)
	return kp, nil
}

// Window is an ordered run of keypoint frames, oldest first.
type Window []FrameKeypoints

// Flatten stacks the window row-major into a single input vector.
func (w Window) Flatten() []float32 {
	out := make([]float32, 0, len(w)*FrameFeatures)
	for i := range w {
		out = append(out, w[i][:]...)
	}
	return out
}
