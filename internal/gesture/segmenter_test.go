package gesture

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/ayusman/mudra/internal/detector"
)

type fakeModel struct {
	proba []float64
	err   error
	calls int
	last  []float32
}

func (m *fakeModel) PredictProba(_ context.Context, input []float32) ([]float64, error) {
	m.calls++
	m.last = input
	if m.err != nil {
		return nil, m.err
	}
	return m.proba, nil
}

var testLabels = []string{"hello", "thanks", "yes"}

func withHand() detector.FrameHands {
	h := detector.OpenPalmLandmarks()
	return detector.FrameHands{Right: &h}
}

func noHand() detector.FrameHands { return detector.FrameHands{} }

func newTestSegmenter(model Classifier) *Segmenter {
	return NewSegmenter(DefaultSegmenterConfig(), model, NewGate(testLabels, DefaultSequenceThreshold, DefaultHoldFrames))
}

func stepN(t *testing.T, s *Segmenter, frame detector.FrameHands, n int) Step {
	t.Helper()
	var last Step
	for i := 0; i < n; i++ {
		var err error
		last, err = s.Step(context.Background(), frame)
		if err != nil {
			t.Fatalf("step %d: unexpected error: %v", i, err)
		}
	}
	return last
}

func TestSegmenter_PresenceThreshold(t *testing.T) {
	s := newTestSegmenter(&fakeModel{proba: []float64{0.9, 0.05, 0.05}})

	stepN(t, s, withHand(), DefaultPresenceStartFrames-1)
	if s.State() != Idle {
		t.Fatalf("expected Idle after %d frames, got %s", DefaultPresenceStartFrames-1, s.State())
	}

	step := stepN(t, s, withHand(), 1)
	if s.State() != Recording {
		t.Fatalf("expected Recording after %d frames, got %s", DefaultPresenceStartFrames, s.State())
	}
	if !step.Transitioned() || step.Previous != Idle {
		t.Errorf("expected Idle->Recording transition, got %s->%s", step.Previous, step.State)
	}
	if s.Frames() != 0 {
		t.Errorf("triggering frame must not be recorded, window has %d frames", s.Frames())
	}
}

func TestSegmenter_PresenceRunResets(t *testing.T) {
	s := newTestSegmenter(&fakeModel{})

	stepN(t, s, withHand(), DefaultPresenceStartFrames-1)
	stepN(t, s, noHand(), 1)
	stepN(t, s, withHand(), DefaultPresenceStartFrames-1)
	if s.State() != Idle {
		t.Fatalf("interrupted presence run must not start recording, got %s", s.State())
	}
}

func TestSegmenter_WindowInference(t *testing.T) {
	model := &fakeModel{proba: []float64{0.1, 0.85, 0.05}}
	s := newTestSegmenter(model)
	stepN(t, s, withHand(), DefaultPresenceStartFrames)

	stepN(t, s, withHand(), WindowSize-1)
	if model.calls != 0 {
		t.Fatalf("expected no inference before window is full, got %d", model.calls)
	}
	if s.Frames() != WindowSize-1 {
		t.Fatalf("expected %d frames, got %d", WindowSize-1, s.Frames())
	}

	step := stepN(t, s, withHand(), 1)
	if model.calls != 1 {
		t.Fatalf("expected exactly one inference, got %d", model.calls)
	}
	if len(model.last) != WindowSize*FrameFeatures {
		t.Errorf("expected input of %d values, got %d", WindowSize*FrameFeatures, len(model.last))
	}
	if step.Decision == nil || !step.Decision.Accepted || step.Decision.Label != "thanks" {
		t.Fatalf("unexpected decision: %+v", step.Decision)
	}
	if s.State() != WaitingForAbsence {
		t.Errorf("expected WaitingForAbsence, got %s", s.State())
	}
	if s.Frames() != 0 {
		t.Errorf("expected window discarded, got %d frames", s.Frames())
	}
	if !step.Held.Active() || step.Held.TTL != DefaultHoldFrames {
		t.Errorf("expected held result with TTL %d, got %+v", DefaultHoldFrames, step.Held)
	}

	// Hands kept in view never start a second inference.
	stepN(t, s, withHand(), 200)
	if model.calls != 1 {
		t.Errorf("expected no further inference while hands stay, got %d", model.calls)
	}
}

func TestSegmenter_AllZeroWindow(t *testing.T) {
	model := &fakeModel{proba: []float64{0.4, 0.3, 0.3}}
	s := newTestSegmenter(model)
	stepN(t, s, withHand(), DefaultPresenceStartFrames)

	// Hands vanish right after recording starts; the window still fills.
	step := stepN(t, s, noHand(), WindowSize)
	if model.calls != 1 {
		t.Fatalf("expected one inference on an all-zero window, got %d", model.calls)
	}
	for i, v := range model.last {
		if v != 0 {
			t.Fatalf("expected zero input, value %d is %f", i, v)
		}
	}
	if step.Decision == nil || step.Decision.Accepted {
		t.Errorf("expected a rejected decision, got %+v", step.Decision)
	}
	if step.Held.Active() {
		t.Error("rejected decision must not be held")
	}
}

func TestSegmenter_AbsenceThreshold(t *testing.T) {
	s := newTestSegmenter(&fakeModel{proba: []float64{0.9, 0.05, 0.05}})
	stepN(t, s, withHand(), DefaultPresenceStartFrames+WindowSize)
	if s.State() != WaitingForAbsence {
		t.Fatalf("expected WaitingForAbsence, got %s", s.State())
	}

	stepN(t, s, noHand(), DefaultAbsenceEndFrames-1)
	stepN(t, s, withHand(), 1)
	stepN(t, s, noHand(), DefaultAbsenceEndFrames-1)
	if s.State() != WaitingForAbsence {
		t.Fatalf("interrupted absence run must not re-arm, got %s", s.State())
	}

	stepN(t, s, noHand(), 1)
	if s.State() != Idle {
		t.Fatalf("expected Idle after %d absent frames, got %s", DefaultAbsenceEndFrames, s.State())
	}
}

func TestSegmenter_InferenceFailure(t *testing.T) {
	boom := errors.New("model crashed")
	model := &fakeModel{err: boom}
	s := newTestSegmenter(model)
	stepN(t, s, withHand(), DefaultPresenceStartFrames+WindowSize-1)

	step, err := s.Step(context.Background(), withHand())
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped model error, got %v", err)
	}
	if step.Decision != nil {
		t.Error("expected no decision on failure")
	}
	if s.State() != WaitingForAbsence || s.Frames() != 0 {
		t.Errorf("expected discarded window in WaitingForAbsence, got %s with %d frames", s.State(), s.Frames())
	}

	stepN(t, s, withHand(), 100)
	if model.calls != 1 {
		t.Errorf("failed window must not be retried, got %d calls", model.calls)
	}
}

func TestSegmenter_HeldResultExpires(t *testing.T) {
	s := newTestSegmenter(&fakeModel{proba: []float64{0.95, 0.03, 0.02}})
	step := stepN(t, s, withHand(), DefaultPresenceStartFrames+WindowSize)
	if step.Held.Label != "hello" {
		t.Fatalf("expected held label hello, got %q", step.Held.Label)
	}

	step = stepN(t, s, withHand(), DefaultHoldFrames-1)
	if !step.Held.Active() || step.Held.TTL != 1 {
		t.Fatalf("expected TTL 1, got %+v", step.Held)
	}
	step = stepN(t, s, withHand(), 1)
	if step.Held.Active() || step.Held.Label != "" {
		t.Errorf("expected held result cleared, got %+v", step.Held)
	}
}

func TestSegmenter_Reset(t *testing.T) {
	model := &fakeModel{proba: []float64{0.9, 0.05, 0.05}}
	s := newTestSegmenter(model)
	stepN(t, s, withHand(), DefaultPresenceStartFrames+30)

	s.Reset()
	if s.State() != Idle || s.Frames() != 0 {
		t.Errorf("expected empty Idle segmenter, got %s with %d frames", s.State(), s.Frames())
	}
	if model.calls != 0 {
		t.Errorf("partial window must not be classified, got %d calls", model.calls)
	}
}

func TestSegmenter_Scenario(t *testing.T) {
	model := &fakeModel{proba: []float64{0.02, 0.03, 0.95}}
	s := newTestSegmenter(model)
	ctx := context.Background()

	var decisions []Decision
	frames := make([]detector.FrameHands, 0, 150)
	for i := 0; i < 8; i++ {
		frames = append(frames, noHand())
	}
	for i := 0; i < 80; i++ {
		frames = append(frames, withHand())
	}
	for i := 0; i < 12; i++ {
		frames = append(frames, noHand())
	}
	for i := 0; i < DefaultPresenceStartFrames+WindowSize; i++ {
		frames = append(frames, withHand())
	}

	for i, f := range frames {
		step, err := s.Step(ctx, f)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if step.Decision != nil {
			decisions = append(decisions, *step.Decision)
		}
	}

	if len(decisions) != 2 {
		t.Fatalf("expected 2 signs, got %d", len(decisions))
	}
	for _, d := range decisions {
		if d.Label != "yes" || !d.Accepted {
			t.Errorf("unexpected decision %+v", d)
		}
	}
}

func TestState_String(t *testing.T) {
	cases := map[State]string{
		Idle:              "idle",
		Recording:         "recording",
		WaitingForAbsence: "wait_absence",
		State(9):          "State(9)",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	}
}

func TestGate_Apply(t *testing.T) {
	g := NewGate(testLabels, DefaultSequenceThreshold, DefaultHoldFrames)

	t.Run("accepts at threshold", func(t *testing.T) {
		d := g.Apply([]float64{0.1, DefaultSequenceThreshold, 0.1})
		if !d.Accepted || d.Label != "thanks" || d.Hold != DefaultHoldFrames {
			t.Errorf("unexpected decision %+v", d)
		}
	})

	t.Run("rejects just below threshold", func(t *testing.T) {
		below := math.Nextafter(DefaultSequenceThreshold, 0)
		d := g.Apply([]float64{0.1, below, 0.1})
		if d.Accepted || d.Label != "" || d.Hold != 0 {
			t.Errorf("unexpected decision %+v", d)
		}
		if d.ClassIndex != 1 || d.Confidence != below {
			t.Errorf("rejected decision must still report argmax, got %+v", d)
		}
	})

	t.Run("first maximum wins", func(t *testing.T) {
		d := g.Apply([]float64{0.45, 0.45, 0.1})
		if d.ClassIndex != 0 {
			t.Errorf("expected class 0, got %d", d.ClassIndex)
		}
	})

	t.Run("empty or oversized output", func(t *testing.T) {
		if d := g.Apply(nil); d.Accepted || d.ClassIndex != -1 {
			t.Errorf("unexpected decision for empty output %+v", d)
		}
		if d := g.Apply([]float64{0, 0, 0, 1}); d.Accepted {
			t.Errorf("index beyond label table must be rejected, got %+v", d)
		}
	})
}

func TestKeypoints(t *testing.T) {
	t.Run("absent hands are zero", func(t *testing.T) {
		kp := Keypoints(noHand())
		for i, v := range kp {
			if v != 0 {
				t.Fatalf("value %d is %f", i, v)
			}
		}
	})

	t.Run("left then right", func(t *testing.T) {
		right := detector.OpenPalmLandmarks()
		kp := Keypoints(detector.FrameHands{Right: &right})
		for i := 0; i < HandFeatures; i++ {
			if kp[i] != 0 {
				t.Fatalf("left slot value %d is %f", i, kp[i])
			}
		}
		want := right.Features()
		for i := 0; i < HandFeatures; i++ {
			if kp[HandFeatures+i] != want[i] {
				t.Fatalf("right slot value %d: expected %f, got %f", i, want[i], kp[HandFeatures+i])
			}
		}
	})

	t.Run("parse validates length", func(t *testing.T) {
		if _, err := ParseKeypoints(make([]float32, FrameFeatures)); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		for _, n := range []int{0, FrameFeatures - 1, FrameFeatures + 1} {
			if _, err := ParseKeypoints(make([]float32, n)); !errors.Is(err, detector.ErrInvalidInput) {
				t.Errorf("%d values: expected ErrInvalidInput, got %v", n, err)
			}
		}
	})

	t.Run("flatten is row major", func(t *testing.T) {
		w := Window{{1}, {2}}
		flat := w.Flatten()
		if len(flat) != 2*FrameFeatures || flat[0] != 1 || flat[FrameFeatures] != 2 {
			t.Errorf("unexpected flatten result")
		}
	})
}
