package app

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/store"
)

// RecordTopK is how many ranked labels are logged per recorded window.
const RecordTopK = 3

// recordedWindow is the stored keypoints document of one window.
type recordedWindow struct {
	Frames gesture.Window `json:"frames"`
}

// EncodeWindow renders a window as the keypoints document stored with a
// sequence.
func EncodeWindow(w gesture.Window) (json.RawMessage, error) {
	return json.Marshal(recordedWindow{Frames: w})
}

// DecodeWindow parses stored keypoints, either {"frames": [...]} or a bare
// array of frames, into raw 126-value frames.
func DecodeWindow(raw json.RawMessage) ([][]float32, error) {
	var doc struct {
		Frames [][]float32 `json:"frames"`
	}
	if err := json.Unmarshal(raw, &doc); err == nil {
		return doc.Frames, nil
	}
	var frames [][]float32
	if err := json.Unmarshal(raw, &frames); err != nil {
		return nil, fmt.Errorf("decode keypoints: %w", err)
	}
	return frames, nil
}

// TopK ranks the k most probable labels, highest first. Ties keep label order.
func TopK(proba []float64, labels []string, k int) []store.TopK {
	n := min(len(proba), len(labels))
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		switch {
		case proba[a] > proba[b]:
			return -1
		case proba[a] < proba[b]:
			return 1
		}
		return 0
	})
	if k > n {
		k = n
	}
	out := make([]store.TopK, 0, k)
	for _, i := range idx[:k] {
		out = append(out, store.TopK{Label: labels[i], P: proba[i]})
	}
	return out
}

// record stores a classified window and its top-k prediction and returns the
// sequence ID.
func (a *App) record(c *classified) (string, error) {
	if a.config.Store == nil {
		return "", fmt.Errorf("record: no store configured")
	}
	kp, err := EncodeWindow(c.window)
	if err != nil {
		return "", err
	}

	seq := &store.Sequence{
		SessionID: a.sessionID,
		TStartMs:  max(c.start.Sub(a.started).Milliseconds(), 0),
		TEndMs:    max(c.end.Sub(a.started).Milliseconds(), 0),
		Label:     a.config.RecordLabel,
		Keypoints: kp,
	}
	if err := a.config.Store.Sequences().Create(seq); err != nil {
		return "", fmt.Errorf("store sequence: %w", err)
	}

	topk := TopK(c.decision.Proba, a.seqLabels, RecordTopK)
	if len(topk) == 0 {
		return seq.ID, nil
	}
	pred := &store.Prediction{
		SequenceID: seq.ID,
		ModelID:    a.config.ModelID,
		TopK:       topk,
	}
	if err := a.config.Store.Predictions().Create(pred); err != nil {
		return seq.ID, fmt.Errorf("store prediction: %w", err)
	}
	return seq.ID, nil
}
