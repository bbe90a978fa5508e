package classifier

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"
)

// RemoteOptions configures a remote model client.
type RemoteOptions struct {
	// Timeout bounds a single request. Zero means no timeout.
	Timeout time.Duration
}

type remoteInfo struct {
	InputDim  int      `json:"input_dim"`
	OutputDim int      `json:"output_dim"`
	Classes   []string `json:"classes"`
}

type predictRequest struct {
	Inputs []float32 `json:"inputs"`
}

type predictResponse struct {
	Proba []float64 `json:"proba"`
}

type remoteError struct {
	Error string `json:"error"`
}

// Remote is a model served over HTTP. The server answers
// GET /info with its dimensions and classes and
// POST /predict_proba {"inputs": [...]} with {"proba": [...]}.
type Remote struct {
	client *resty.Client
	info   remoteInfo
	labels LabelTable
}

// NewRemote connects to a model server and fetches its description.
func NewRemote(ctx context.Context, baseURL string, opts RemoteOptions) (*Remote, error) {
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json")
	if opts.Timeout > 0 {
		client.SetTimeout(opts.Timeout)
	}

	var info remoteInfo
	resp, err := client.R().
		SetContext(ctx).
		SetResult(&info).
		Get("/info")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: model server returned %s", ErrModelUnavailable, resp.Status())
	}
	if info.OutputDim <= 0 {
		info.OutputDim = len(info.Classes)
	}
	if info.OutputDim <= 0 {
		return nil, fmt.Errorf("%w: model server reported no outputs", ErrModelUnavailable)
	}

	r := &Remote{client: client, info: info}
	if len(info.Classes) > 0 {
		labels, err := NewLabelTable(info.Classes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
		}
		if err := labels.Validate(info.OutputDim); err != nil {
			return nil, err
		}
		r.labels = labels
	}

	log.WithFields(log.Fields{
		"url":     baseURL,
		"inputs":  info.InputDim,
		"outputs": info.OutputDim,
	}).Info("connected to remote model")
	return r, nil
}

// Labels returns the classes reported by the server, which may be empty.
func (r *Remote) Labels() LabelTable { return r.labels }

// InputDim implements Model. Zero when the server did not report it.
func (r *Remote) InputDim() int { return r.info.InputDim }

// OutputDim implements Model.
func (r *Remote) OutputDim() int { return r.info.OutputDim }

// PredictProba implements Model.
func (r *Remote) PredictProba(ctx context.Context, input []float32) ([]float64, error) {
	if r.info.InputDim > 0 && len(input) != r.info.InputDim {
		return nil, fmt.Errorf("%w: input has %d values, model expects %d", ErrInferenceFailure, len(input), r.info.InputDim)
	}

	var result predictResponse
	var apiErr remoteError
	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(predictRequest{Inputs: input}).
		SetResult(&result).
		SetError(&apiErr).
		Post("/predict_proba")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInferenceFailure, err)
	}
	if resp.IsError() {
		if apiErr.Error != "" {
			return nil, fmt.Errorf("%w: %s: %s", ErrInferenceFailure, resp.Status(), apiErr.Error)
		}
		return nil, fmt.Errorf("%w: model server returned %s", ErrInferenceFailure, resp.Status())
	}
	if len(result.Proba) != r.info.OutputDim {
		return nil, fmt.Errorf("%w: got %d scores, expected %d", ErrInferenceFailure, len(result.Proba), r.info.OutputDim)
	}
	return result.Proba, nil
}

// Close implements Model.
func (r *Remote) Close() error { return nil }
