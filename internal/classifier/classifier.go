// Package classifier provides the model contract used by the recognizer,
// ordered label tables shipped with model artifacts and the backends that
// evaluate them.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ayusman/mudra/internal/gesture"
)

var (
	// ErrModelUnavailable is returned when a model artifact cannot be loaded.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrInferenceFailure is returned when a loaded model fails to evaluate.
	ErrInferenceFailure = errors.New("inference failure")
)

// Model maps one flattened input vector to a probability distribution over
// its label table.
type Model interface {
	gesture.Classifier
	// InputDim is the length of the input vector the model accepts.
	InputDim() int
	// OutputDim is the number of classes the model scores.
	OutputDim() int
	Close() error
}

// Prediction is a labelled classifier output.
type Prediction struct {
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	ClassIndex int       `json:"class_index"`
	Proba      []float64 `json:"raw_proba"`
}

// Classified bundles a model with the label table it was trained on.
type Classified struct {
	Model  Model
	Labels LabelTable
}

// Predict evaluates the model and labels the top class. It does not apply any
// confidence threshold.
func (c *Classified) Predict(ctx context.Context, input []float32) (Prediction, error) {
	proba, err := c.Model.PredictProba(ctx, input)
	if err != nil {
		return Prediction{}, err
	}
	if len(proba) != c.Labels.Len() {
		return Prediction{}, fmt.Errorf("%w: model returned %d scores for %d labels", ErrInferenceFailure, len(proba), c.Labels.Len())
	}
	idx, confidence := gesture.Argmax(proba)
	return Prediction{
		Label:      c.Labels.Label(idx),
		Confidence: confidence,
		ClassIndex: idx,
		Proba:      proba,
	}, nil
}

// Open picks a backend from the source: an http(s) URL is a remote model
// server, anything else is a dense model artifact on disk.
func Open(ctx context.Context, source string, opts RemoteOptions) (Model, LabelTable, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		m, err := NewRemote(ctx, source, opts)
		if err != nil {
			return nil, LabelTable{}, err
		}
		return m, m.Labels(), nil
	}
	m, err := LoadDense(source)
	if err != nil {
		return nil, LabelTable{}, err
	}
	return m, m.Labels(), nil
}
