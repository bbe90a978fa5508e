package classifier

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

// LoaderConfig describes where a model and its labels come from.
type LoaderConfig struct {
	// Name identifies the model in logs ("static", "sequence").
	Name string
	// Source is a dense artifact path or an http(s) model server URL.
	Source string
	// LabelsPath optionally overrides the label table with a YAML file.
	LabelsPath string
	// DefaultLabels is used when neither the artifact nor LabelsPath carry labels.
	DefaultLabels *LabelTable
	// InputDim, when positive, is checked against the model.
	InputDim int
	Remote   RemoteOptions
}

// Loader loads a model lazily on first use and caches the outcome, success
// or failure, for the life of the process. Concurrent first callers share a
// single load.
type Loader struct {
	cfg  LoaderConfig
	open func(ctx context.Context, source string, opts RemoteOptions) (Model, LabelTable, error)

	once   sync.Once
	result *Classified
	err    error
}

// NewLoader creates a Loader. Nothing is read until Get is called.
func NewLoader(cfg LoaderConfig) *Loader {
	return &Loader{cfg: cfg, open: Open}
}

// NewStaticLoader returns a Loader that always yields the given model. Useful
// for tests and for embedding an already constructed model.
func NewStaticLoader(m Model, labels LabelTable) *Loader {
	l := &Loader{}
	l.once.Do(func() {
		if err := labels.Validate(m.OutputDim()); err != nil {
			l.err = err
			return
		}
		l.result = &Classified{Model: m, Labels: labels}
	})
	return l
}

// Get returns the loaded model, loading it on the first call. The load
// outlives ctx: a caller that goes away must not leave the model unavailable
// for everyone else. Remote loads are bounded by the configured timeout.
func (l *Loader) Get(ctx context.Context) (*Classified, error) {
	l.once.Do(func() {
		l.result, l.err = l.load(context.WithoutCancel(ctx))
		if l.err != nil {
			log.WithError(l.err).WithField("model", l.cfg.Name).Warn("model load failed")
			return
		}
		log.WithFields(log.Fields{
			"model":   l.cfg.Name,
			"source":  l.cfg.Source,
			"classes": l.result.Labels.Len(),
		}).Info("model loaded")
	})
	return l.result, l.err
}

func (l *Loader) load(ctx context.Context) (*Classified, error) {
	if l.cfg.Source == "" {
		return nil, fmt.Errorf("%w: no %s model configured", ErrModelUnavailable, l.cfg.Name)
	}

	m, labels, err := l.open(ctx, l.cfg.Source, l.cfg.Remote)
	if err != nil {
		return nil, err
	}

	switch {
	case l.cfg.LabelsPath != "":
		labels, err = LoadLabels(l.cfg.LabelsPath)
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
		}
	case labels.Len() == 0 && l.cfg.DefaultLabels != nil:
		labels = *l.cfg.DefaultLabels
	}

	if err := labels.Validate(m.OutputDim()); err != nil {
		m.Close()
		return nil, err
	}
	if l.cfg.InputDim > 0 && m.InputDim() > 0 && m.InputDim() != l.cfg.InputDim {
		m.Close()
		return nil, fmt.Errorf("%w: %s model takes %d inputs, expected %d", ErrModelUnavailable, l.cfg.Name, m.InputDim(), l.cfg.InputDim)
	}
	return &Classified{Model: m, Labels: labels}, nil
}
