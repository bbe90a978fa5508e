package classifier

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed sequence_labels.yaml
var defaultSequenceLabels []byte

// LabelTable is the ordered list of class names a model scores. Index i of a
// probability vector belongs to label i.
type LabelTable struct {
	labels []string
	index  map[string]int
}

type labelFile struct {
	Labels []string `yaml:"labels"`
}

// NewLabelTable builds a table from an ordered list. Labels must be non-empty
// and unique.
func NewLabelTable(labels []string) (LabelTable, error) {
	if len(labels) == 0 {
		return LabelTable{}, fmt.Errorf("label table is empty")
	}
	index := make(map[string]int, len(labels))
	for i, l := range labels {
		if strings.TrimSpace(l) == "" {
			return LabelTable{}, fmt.Errorf("label %d is blank", i)
		}
		if j, dup := index[l]; dup {
			return LabelTable{}, fmt.Errorf("label %q appears at %d and %d", l, j, i)
		}
		index[l] = i
	}
	return LabelTable{labels: append([]string(nil), labels...), index: index}, nil
}

// ParseLabels reads a YAML document of the form `labels: [...]`.
func ParseLabels(data []byte) (LabelTable, error) {
	var f labelFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return LabelTable{}, fmt.Errorf("parse labels: %w", err)
	}
	return NewLabelTable(f.Labels)
}

// LoadLabels reads a label table from a YAML file.
func LoadLabels(path string) (LabelTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return LabelTable{}, fmt.Errorf("read labels: %w", err)
	}
	return ParseLabels(data)
}

// DefaultSequenceLabels returns the 60 Vietnamese Sign Language phrases of
// the bundled sequence model.
func DefaultSequenceLabels() LabelTable {
	t, err := ParseLabels(defaultSequenceLabels)
	if err != nil {
		panic(err)
	}
	return t
}

// Len returns the number of labels.
func (t LabelTable) Len() int { return len(t.labels) }

// Labels returns a copy of the ordered labels.
func (t LabelTable) Labels() []string {
	return append([]string(nil), t.labels...)
}

// Label returns the label at index i, or "" when out of range.
func (t LabelTable) Label(i int) string {
	if i < 0 || i >= len(t.labels) {
		return ""
	}
	return t.labels[i]
}

// Index returns the position of a label.
func (t LabelTable) Index(label string) (int, bool) {
	i, ok := t.index[label]
	return i, ok
}

// Validate checks the table against a model's output dimension.
func (t LabelTable) Validate(outputDim int) error {
	if len(t.labels) != outputDim {
		return fmt.Errorf("%w: %d labels for a model with %d outputs", ErrModelUnavailable, len(t.labels), outputDim)
	}
	return nil
}
