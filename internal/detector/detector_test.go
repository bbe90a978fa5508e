package detector

import (
	"errors"
	"math"
	"strconv"
	"testing"
)

const epsilon = 1e-5

func sampleHand(handedness Handedness) HandLandmarks {
	hand := HandLandmarks{Handedness: handedness, Score: 0.9}
	for i := 0; i < NumLandmarks; i++ {
		hand.Points[i] = Point3D{
			X: 0.40 + float64(i)*0.011,
			Y: 0.80 - float64(i)*0.017,
			Z: -0.01 * float64(i%4),
		}
	}
	return hand
}

func TestHandLandmarks_Features(t *testing.T) {
	t.Run("output has 63 values with wrist at origin", func(t *testing.T) {
		for _, handedness := range []Handedness{Left, Right} {
			hand := sampleHand(handedness)
			feat := hand.Features()

			if len(feat) != FeatureSize {
				t.Fatalf("%s: expected %d features, got %d", handedness, FeatureSize, len(feat))
			}
			for i := 0; i < 3; i++ {
				if feat[i] != 0 {
					t.Errorf("%s: expected wrist coordinate %d to be 0, got %f", handedness, i, feat[i])
				}
			}
		}
	})

	t.Run("middle MCP planar distance is 1", func(t *testing.T) {
		hand := HandLandmarks{Handedness: Right}
		hand.Points[Wrist] = Point3D{X: 0.5, Y: 0.8, Z: 0.1}
		hand.Points[MiddleMCP] = Point3D{X: 0.53, Y: 0.76, Z: 0.3} // planar distance 0.05

		feat := hand.Features()
		x := float64(feat[MiddleMCP*3])
		y := float64(feat[MiddleMCP*3+1])
		if d := math.Hypot(x, y); math.Abs(d-1.0) > 1e-4 {
			t.Errorf("expected planar distance 1.0, got %f", d)
		}
		// z is scaled by the planar distance, not included in it.
		if z := float64(feat[MiddleMCP*3+2]); math.Abs(z-4.0) > 1e-3 {
			t.Errorf("expected scaled z 4.0, got %f", z)
		}
	})

	t.Run("mirrored left hand matches right hand", func(t *testing.T) {
		right := sampleHand(Right)
		left := right.Mirrored()
		if left.Handedness != Left {
			t.Fatalf("expected mirrored hand to be Left, got %s", left.Handedness)
		}

		a := right.Features()
		b := left.Features()
		for i := range a {
			if math.Abs(float64(a[i]-b[i])) > epsilon {
				t.Fatalf("feature %d differs: right=%f left=%f", i, a[i], b[i])
			}
		}
	})

	t.Run("translation and scale invariant", func(t *testing.T) {
		hand := sampleHand(Right)
		moved := hand
		for i := range moved.Points {
			moved.Points[i].X = moved.Points[i].X*2 + 0.1
			moved.Points[i].Y = moved.Points[i].Y*2 - 0.3
			moved.Points[i].Z = moved.Points[i].Z * 2
		}

		a := hand.Features()
		b := moved.Features()
		for i := range a {
			if math.Abs(float64(a[i]-b[i])) > 1e-4 {
				t.Fatalf("feature %d differs: %f vs %f", i, a[i], b[i])
			}
		}
	})

	t.Run("zero palm scale stays finite", func(t *testing.T) {
		hand := HandLandmarks{Handedness: Right}
		for i := range hand.Points {
			hand.Points[i] = Point3D{X: 0.5, Y: 0.5}
		}
		for i, v := range hand.Features() {
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				t.Fatalf("feature %d is not finite: %f", i, v)
			}
		}
	})
}

func TestFeaturesFromPoints(t *testing.T) {
	hand := sampleHand(Right)

	t.Run("accepts 21 points", func(t *testing.T) {
		feat, err := FeaturesFromPoints(hand.Points[:], Right)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if feat != hand.Features() {
			t.Error("expected same features as HandLandmarks.Features")
		}
	})

	for _, n := range []int{0, 20, 22} {
		points := make([]Point3D, n)
		if _, err := FeaturesFromPoints(points, Right); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%d points: expected ErrInvalidInput, got %v", n, err)
		}
	}

	if _, err := FeaturesFromPoints(hand.Points[:], "Both"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("bad handedness: expected ErrInvalidInput, got %v", err)
	}
}

func TestSplitHands(t *testing.T) {
	t.Run("no hands", func(t *testing.T) {
		f := SplitHands(nil)
		if f.Present() {
			t.Error("expected no hand present")
		}
		if f.First() != nil {
			t.Error("expected First to be nil")
		}
	})

	t.Run("assigns by handedness", func(t *testing.T) {
		right := sampleHand(Right)
		left := sampleHand(Left)
		f := SplitHands([]HandLandmarks{right, left})

		if f.Left == nil || f.Left.Handedness != Left {
			t.Error("expected left slot to hold the left hand")
		}
		if f.Right == nil || f.Right.Handedness != Right {
			t.Error("expected right slot to hold the right hand")
		}
		if f.First() != f.Right {
			t.Error("expected First to prefer the right hand")
		}
	})

	t.Run("duplicate tag keeps higher score", func(t *testing.T) {
		a := sampleHand(Right)
		a.Score = 0.6
		b := sampleHand(Right)
		b.Score = 0.95
		f := SplitHands([]HandLandmarks{a, b})
		if f.Right.Score != 0.95 {
			t.Errorf("expected score 0.95, got %f", f.Right.Score)
		}
		if f.Left != nil {
			t.Error("expected left slot empty")
		}
	})
}

func TestDecodeHands(t *testing.T) {
	hand := sampleHand(Right)
	pts := ""
	for i, p := range hand.Points {
		if i > 0 {
			pts += ","
		}
		pts += `{"x":` + ftoa(p.X) + `,"y":` + ftoa(p.Y) + `,"z":` + ftoa(p.Z) + `}`
	}
	line := []byte(`{"hands":[{"points":[` + pts + `],"handedness":"Right","score":0.9},` +
		`{"points":[{"x":0,"y":0,"z":0}],"handedness":"Left","score":0.8}]}` + "\n")

	hands, err := decodeHands(line)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hands) != 1 {
		t.Fatalf("expected malformed hand to be dropped, got %d hands", len(hands))
	}
	if hands[0].Handedness != Right || hands[0].Score != 0.9 {
		t.Errorf("unexpected hand: %+v", hands[0])
	}

	if _, err := decodeHands([]byte("not json")); err == nil {
		t.Error("expected parse error")
	}
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func TestMockDetector(t *testing.T) {
	t.Run("returns empty hands by default", func(t *testing.T) {
		mock := NewMockDetector()

		hands, err := mock.Detect(nil)
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if hands != nil {
			t.Errorf("expected nil hands, got %v", hands)
		}
	})

	t.Run("plays back a sequence then falls back", func(t *testing.T) {
		mock := NewMockDetector()
		mock.SetHands([]HandLandmarks{OpenPalmLandmarks()})
		mock.SetSequence([][]HandLandmarks{nil, {ThumbsUpLandmarks()}})

		first, _ := mock.Detect(nil)
		second, _ := mock.Detect(nil)
		third, _ := mock.Detect(nil)

		if len(first) != 0 || len(second) != 1 || len(third) != 1 {
			t.Fatalf("unexpected playback lengths %d %d %d", len(first), len(second), len(third))
		}
		if third[0].Points != OpenPalmLandmarks().Points {
			t.Error("expected fallback hands after the sequence")
		}
		if mock.Calls() != 3 {
			t.Errorf("expected 3 calls, got %d", mock.Calls())
		}
	})

	t.Run("returns configured error", func(t *testing.T) {
		mock := NewMockDetector()

		expectedErr := errors.New("detection failed")
		mock.SetError(expectedErr)

		hands, err := mock.Detect(nil)
		if err != expectedErr {
			t.Errorf("expected error %v, got %v", expectedErr, err)
		}
		if hands != nil {
			t.Errorf("expected nil hands when error is set, got %v", hands)
		}
	})

	t.Run("implements Detector interface", func(t *testing.T) {
		var _ Detector = (*MockDetector)(nil)
		var _ Detector = (*MediaPipeDetector)(nil)
	})
}
