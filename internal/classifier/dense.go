package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"
)

// Activation functions supported by dense layers.
const (
	ActivationReLU     = "relu"
	ActivationSoftmax  = "softmax"
	ActivationIdentity = "identity"
)

// DenseArtifact is the on-disk form of a feed-forward network: a chain of
// fully connected layers with row-major weights (out × in).
type DenseArtifact struct {
	InputDim int          `json:"input_dim"`
	Classes  []string     `json:"classes,omitempty"`
	Layers   []DenseLayer `json:"layers"`
}

// DenseLayer is one fully connected layer.
type DenseLayer struct {
	Weights    [][]float64 `json:"weights"`
	Bias       []float64   `json:"bias"`
	Activation string      `json:"activation"`
}

type denseLayer struct {
	w          *mat.Dense
	b          *mat.VecDense
	activation string
}

// Dense evaluates a DenseArtifact in process. It is immutable after load and
// safe for concurrent use.
type Dense struct {
	inputDim  int
	outputDim int
	layers    []denseLayer
	labels    LabelTable
}

// LoadDense reads and validates a JSON dense artifact.
func LoadDense(path string) (*Dense, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	var a DenseArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrModelUnavailable, path, err)
	}
	return NewDense(a)
}

// NewDense builds a model from an artifact, checking that layer shapes chain.
func NewDense(a DenseArtifact) (*Dense, error) {
	if a.InputDim <= 0 {
		return nil, fmt.Errorf("%w: input_dim must be positive", ErrModelUnavailable)
	}
	if len(a.Layers) == 0 {
		return nil, fmt.Errorf("%w: model has no layers", ErrModelUnavailable)
	}

	d := &Dense{inputDim: a.InputDim}
	in := a.InputDim
	for i, l := range a.Layers {
		out := len(l.Weights)
		if out == 0 || len(l.Bias) != out {
			return nil, fmt.Errorf("%w: layer %d has %d rows and %d biases", ErrModelUnavailable, i, out, len(l.Bias))
		}
		flat := make([]float64, 0, out*in)
		for r, row := range l.Weights {
			if len(row) != in {
				return nil, fmt.Errorf("%w: layer %d row %d has %d weights, expected %d", ErrModelUnavailable, i, r, len(row), in)
			}
			flat = append(flat, row...)
		}
		switch l.Activation {
		case ActivationReLU, ActivationSoftmax, ActivationIdentity:
		case "":
			l.Activation = ActivationIdentity
		default:
			return nil, fmt.Errorf("%w: layer %d has unknown activation %q", ErrModelUnavailable, i, l.Activation)
		}
		d.layers = append(d.layers, denseLayer{
			w:          mat.NewDense(out, in, flat),
			b:          mat.NewVecDense(out, append([]float64(nil), l.Bias...)),
			activation: l.Activation,
		})
		in = out
	}
	d.outputDim = in

	if len(a.Classes) > 0 {
		labels, err := NewLabelTable(a.Classes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
		}
		if err := labels.Validate(d.outputDim); err != nil {
			return nil, err
		}
		d.labels = labels
	}
	return d, nil
}

// Labels returns the label table embedded in the artifact, which may be empty.
func (d *Dense) Labels() LabelTable { return d.labels }

// InputDim implements Model.
func (d *Dense) InputDim() int { return d.inputDim }

// OutputDim implements Model.
func (d *Dense) OutputDim() int { return d.outputDim }

// PredictProba implements Model. The output of the last layer is returned as
// is; artifacts end in a softmax layer to produce probabilities.
func (d *Dense) PredictProba(ctx context.Context, input []float32) ([]float64, error) {
	if len(input) != d.inputDim {
		return nil, fmt.Errorf("%w: input has %d values, model expects %d", ErrInferenceFailure, len(input), d.inputDim)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInferenceFailure, err)
	}

	x := make([]float64, len(input))
	for i, v := range input {
		x[i] = float64(v)
	}
	vec := mat.NewVecDense(len(x), x)

	for _, l := range d.layers {
		rows, _ := l.w.Dims()
		next := mat.NewVecDense(rows, nil)
		next.MulVec(l.w, vec)
		next.AddVec(next, l.b)
		activate(next, l.activation)
		vec = next
	}

	out := make([]float64, vec.Len())
	for i := range out {
		out[i] = vec.AtVec(i)
		if math.IsNaN(out[i]) {
			return nil, fmt.Errorf("%w: model produced NaN", ErrInferenceFailure)
		}
	}
	return out, nil
}

// Close implements Model.
func (d *Dense) Close() error { return nil }

func activate(v *mat.VecDense, activation string) {
	switch activation {
	case ActivationReLU:
		for i := 0; i < v.Len(); i++ {
			if v.AtVec(i) < 0 {
				v.SetVec(i, 0)
			}
		}
	case ActivationSoftmax:
		softmax(v)
	}
}

func softmax(v *mat.VecDense) {
	maxVal := math.Inf(-1)
	for i := 0; i < v.Len(); i++ {
		maxVal = math.Max(maxVal, v.AtVec(i))
	}
	sum := 0.0
	for i := 0; i < v.Len(); i++ {
		e := math.Exp(v.AtVec(i) - maxVal)
		v.SetVec(i, e)
		sum += e
	}
	v.ScaleVec(1/sum, v)
}
