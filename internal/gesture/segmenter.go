package gesture

import (
	"context"
	"fmt"

	"github.com/ayusman/mudra/internal/detector"
)

// State is the segmentation state of a capture session.
type State int

const (
	// Idle waits for a stable run of frames with a hand.
	Idle State = iota
	// Recording appends every frame to the window until it is full.
	Recording
	// WaitingForAbsence blocks new signs until the hands are withdrawn.
	WaitingForAbsence
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case WaitingForAbsence:
		return "wait_absence"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Default segmentation settings.
const (
	DefaultPresenceStartFrames = 5
	DefaultAbsenceEndFrames    = 10
)

// Classifier is the sequence model contract: a probability distribution
// over the model's ordered label table for one flattened input.
type Classifier interface {
	PredictProba(ctx context.Context, input []float32) ([]float64, error)
}

// SegmenterConfig holds the hysteresis settings of a Segmenter.
type SegmenterConfig struct {
	// PresenceStartFrames consecutive frames with a hand start recording.
	PresenceStartFrames int
	// AbsenceEndFrames consecutive frames without a hand re-arm the segmenter.
	AbsenceEndFrames int
	// WindowSize is the number of frames classified at once.
	WindowSize int
}

// DefaultSegmenterConfig returns the settings the sequence model was trained with.
func DefaultSegmenterConfig() SegmenterConfig {
	return SegmenterConfig{
		PresenceStartFrames: DefaultPresenceStartFrames,
		AbsenceEndFrames:    DefaultAbsenceEndFrames,
		WindowSize:          WindowSize,
	}
}

// Step reports what a single call to Segmenter.Step did.
type Step struct {
	Previous State      `json:"previous"`
	State    State      `json:"state"`
	Frames   int        `json:"frames"`
	Decision *Decision  `json:"decision,omitempty"`
	Held     HeldResult `json:"held"`
	// Window is the window consumed by this step, if any. The segmenter keeps
	// no reference to it.
	Window Window `json:"-"`
}

// Transitioned reports whether the step changed state.
func (s Step) Transitioned() bool {
	return s.Previous != s.State
}

// Segmenter is the per-session capture controller. It decides frame by frame
// when a sign begins, runs exactly one inference per completed window and
// refuses a new sign until every hand has left the frame.
//
// A Segmenter is owned by a single goroutine; it is not safe for concurrent use.
type Segmenter struct {
	cfg   SegmenterConfig
	model Classifier
	gate  *Gate

	state    State
	presence int
	absence  int
	window   Window
	held     HeldResult
}

// NewSegmenter creates a Segmenter in the Idle state.
func NewSegmenter(cfg SegmenterConfig, model Classifier, gate *Gate) *Segmenter {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = WindowSize
	}
	s := &Segmenter{
		cfg:   cfg,
		model: model,
		gate:  gate,
	}
	s.enterIdle()
	return s
}

// State returns the current segmentation state.
func (s *Segmenter) State() State { return s.state }

// Frames returns the number of frames in the live window.
func (s *Segmenter) Frames() int { return len(s.window) }

// Held returns the currently held result.
func (s *Segmenter) Held() HeldResult { return s.held }

// Reset ends the session: a partial window is dropped without inference and
// the machine returns to Idle.
func (s *Segmenter) Reset() {
	s.held = HeldResult{}
	s.enterIdle()
}

func (s *Segmenter) enterIdle() {
	s.state = Idle
	s.window = nil
	s.presence = 0
	s.absence = 0
}

// Step advances the machine by one frame.
//
// An error is returned only when the classifier fails on a completed window;
// the window is consumed either way and the machine moves on to
// WaitingForAbsence.
func (s *Segmenter) Step(ctx context.Context, frame detector.FrameHands) (Step, error) {
	s.held.tick()

	step := Step{Previous: s.state}
	present := frame.Present()

	var err error
	switch s.state {
	case Idle:
		if present {
			s.presence++
		} else {
			s.presence = 0
		}
		if s.presence >= s.cfg.PresenceStartFrames {
			s.presence = 0
			s.state = Recording
			s.window = make(Window, 0, s.cfg.WindowSize)
		}

	case Recording:
		s.window = append(s.window, Keypoints(frame))
		if len(s.window) >= s.cfg.WindowSize {
			step.Window = s.window
			step.Decision, err = s.classify(ctx)
		}

	case WaitingForAbsence:
		if present {
			s.absence = 0
		} else {
			s.absence++
		}
		if s.absence >= s.cfg.AbsenceEndFrames {
			s.enterIdle()
		}
	}

	step.State = s.state
	step.Frames = len(s.window)
	step.Held = s.held
	return step, err
}

// classify consumes the full window and leaves Recording.
func (s *Segmenter) classify(ctx context.Context) (*Decision, error) {
	input := s.window.Flatten()
	s.window = nil
	s.absence = 0
	s.state = WaitingForAbsence

	proba, err := s.model.PredictProba(ctx, input)
	if err != nil {
		s.held = HeldResult{}
		return nil, fmt.Errorf("classify window: %w", err)
	}

	d := s.gate.Apply(proba)
	s.held = heldFrom(d)
	return &d, nil
}
