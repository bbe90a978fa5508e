package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// identityArtifact scores class i with input i through a softmax.
func identityArtifact(classes []string) DenseArtifact {
	n := len(classes)
	weights := make([][]float64, n)
	for i := range weights {
		weights[i] = make([]float64, n)
		weights[i][i] = 1
	}
	return DenseArtifact{
		InputDim: n,
		Classes:  classes,
		Layers: []DenseLayer{
			{Weights: weights, Bias: make([]float64, n), Activation: ActivationReLU},
			{Weights: weights, Bias: make([]float64, n), Activation: ActivationSoftmax},
		},
	}
}

func writeArtifact(t *testing.T, a DenseArtifact) string {
	t.Helper()
	data, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal artifact: %v", err)
	}
	path := filepath.Join(t.TempDir(), "model.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return path
}

func TestDense(t *testing.T) {
	path := writeArtifact(t, identityArtifact([]string{"a", "b", "c"}))
	m, err := LoadDense(path)
	if err != nil {
		t.Fatalf("LoadDense: %v", err)
	}

	if m.InputDim() != 3 || m.OutputDim() != 3 {
		t.Fatalf("unexpected dims %d -> %d", m.InputDim(), m.OutputDim())
	}
	if m.Labels().Label(2) != "c" {
		t.Errorf("expected embedded labels, got %v", m.Labels().Labels())
	}

	t.Run("softmax output", func(t *testing.T) {
		proba, err := m.PredictProba(context.Background(), []float32{0, 5, -3})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		sum := 0.0
		for _, p := range proba {
			sum += p
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Errorf("expected probabilities to sum to 1, got %f", sum)
		}
		if !(proba[1] > proba[0] && proba[0] == proba[2]) {
			t.Errorf("unexpected distribution %v", proba)
		}
	})

	t.Run("wrong input length", func(t *testing.T) {
		_, err := m.PredictProba(context.Background(), []float32{1, 2})
		if !errors.Is(err, ErrInferenceFailure) {
			t.Errorf("expected ErrInferenceFailure, got %v", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := m.PredictProba(ctx, []float32{1, 2, 3}); !errors.Is(err, ErrInferenceFailure) {
			t.Errorf("expected ErrInferenceFailure, got %v", err)
		}
	})
}

func TestNewDense_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(a *DenseArtifact)
	}{
		{"no layers", func(a *DenseArtifact) { a.Layers = nil }},
		{"zero input", func(a *DenseArtifact) { a.InputDim = 0 }},
		{"bias mismatch", func(a *DenseArtifact) { a.Layers[0].Bias = []float64{0} }},
		{"row mismatch", func(a *DenseArtifact) { a.Layers[1].Weights[0] = []float64{1} }},
		{"bad activation", func(a *DenseArtifact) { a.Layers[0].Activation = "tanh" }},
		{"class count", func(a *DenseArtifact) { a.Classes = []string{"a", "b"} }},
		{"duplicate class", func(a *DenseArtifact) { a.Classes = []string{"a", "a", "b"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := identityArtifact([]string{"a", "b", "c"})
			tt.mutate(&a)
			if _, err := NewDense(a); !errors.Is(err, ErrModelUnavailable) {
				t.Errorf("expected ErrModelUnavailable, got %v", err)
			}
		})
	}

	if _, err := LoadDense(filepath.Join(t.TempDir(), "missing.json")); !errors.Is(err, ErrModelUnavailable) {
		t.Errorf("missing file: expected ErrModelUnavailable, got %v", err)
	}
}

func TestLabelTable(t *testing.T) {
	seq := DefaultSequenceLabels()
	if seq.Len() != 60 {
		t.Fatalf("expected 60 sequence labels, got %d", seq.Len())
	}
	if seq.Label(0) != "ban dang lam gi" || seq.Label(59) != "xin chao" {
		t.Errorf("unexpected label order: %q ... %q", seq.Label(0), seq.Label(59))
	}
	if i, ok := seq.Index("cam on"); !ok || i != 13 {
		t.Errorf("expected cam on at 13, got %d %v", i, ok)
	}
	if seq.Label(60) != "" || seq.Label(-1) != "" {
		t.Error("expected empty label out of range")
	}
	if err := seq.Validate(59); !errors.Is(err, ErrModelUnavailable) {
		t.Errorf("expected validation error, got %v", err)
	}

	path := filepath.Join(t.TempDir(), "labels.yaml")
	os.WriteFile(path, []byte("labels:\n  - A\n  - B\n"), 0o644)
	table, err := LoadLabels(path)
	if err != nil {
		t.Fatalf("LoadLabels: %v", err)
	}
	if table.Len() != 2 || table.Label(1) != "B" {
		t.Errorf("unexpected table %v", table.Labels())
	}

	if _, err := ParseLabels([]byte("labels: []")); err == nil {
		t.Error("expected error for empty table")
	}
	if _, err := ParseLabels([]byte("labels: [A, '  ']")); err == nil {
		t.Error("expected error for blank label")
	}
}

func TestClassified_Predict(t *testing.T) {
	m, err := NewDense(identityArtifact([]string{"a", "b", "c"}))
	if err != nil {
		t.Fatal(err)
	}
	c := &Classified{Model: m, Labels: m.Labels()}
	p, err := c.Predict(context.Background(), []float32{0, 0, 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Label != "c" || p.ClassIndex != 2 || len(p.Proba) != 3 {
		t.Errorf("unexpected prediction %+v", p)
	}
}

func TestLoader(t *testing.T) {
	t.Run("loads once under concurrency", func(t *testing.T) {
		var opens int32
		l := NewLoader(LoaderConfig{Name: "test", Source: "model.json"})
		l.open = func(ctx context.Context, source string, opts RemoteOptions) (Model, LabelTable, error) {
			atomic.AddInt32(&opens, 1)
			time.Sleep(10 * time.Millisecond)
			m, err := NewDense(identityArtifact([]string{"a", "b"}))
			return m, m.Labels(), err
		}

		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := l.Get(context.Background()); err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()
		if opens != 1 {
			t.Errorf("expected one load, got %d", opens)
		}
	})

	t.Run("caches failure", func(t *testing.T) {
		l := NewLoader(LoaderConfig{Name: "static", Source: filepath.Join(t.TempDir(), "missing.json")})
		for i := 0; i < 2; i++ {
			if _, err := l.Get(context.Background()); !errors.Is(err, ErrModelUnavailable) {
				t.Errorf("expected ErrModelUnavailable, got %v", err)
			}
		}
	})

	t.Run("cancelled first caller does not poison the model", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{"input_dim": 2, "output_dim": 2, "classes": []string{"no", "yes"}})
		}))
		defer srv.Close()

		l := NewLoader(LoaderConfig{Name: "sequence", Source: srv.URL, Remote: RemoteOptions{Timeout: time.Second}})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		c, err := l.Get(ctx)
		if err != nil {
			t.Fatalf("load with a cancelled context failed: %v", err)
		}
		if c.Labels.Label(1) != "yes" {
			t.Errorf("unexpected labels %v", c.Labels.Labels())
		}
		if again, err := l.Get(context.Background()); err != nil || again != c {
			t.Errorf("expected the cached model, got %v, %v", again, err)
		}
	})

	t.Run("no source", func(t *testing.T) {
		if _, err := NewLoader(LoaderConfig{Name: "sequence"}).Get(context.Background()); !errors.Is(err, ErrModelUnavailable) {
			t.Errorf("expected ErrModelUnavailable, got %v", err)
		}
	})

	t.Run("default labels fill unlabelled artifact", func(t *testing.T) {
		a := identityArtifact([]string{"x", "y"})
		a.Classes = nil
		defaults, _ := NewLabelTable([]string{"left", "right"})
		l := NewLoader(LoaderConfig{Name: "seq", Source: writeArtifact(t, a), DefaultLabels: &defaults, InputDim: 2})
		c, err := l.Get(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c.Labels.Label(1) != "right" {
			t.Errorf("expected default labels, got %v", c.Labels.Labels())
		}
	})

	t.Run("labels file overrides and is validated", func(t *testing.T) {
		labels := filepath.Join(t.TempDir(), "labels.yaml")
		os.WriteFile(labels, []byte("labels: [one, two, three]\n"), 0o644)
		l := NewLoader(LoaderConfig{Name: "seq", Source: writeArtifact(t, identityArtifact([]string{"x", "y"})), LabelsPath: labels})
		if _, err := l.Get(context.Background()); !errors.Is(err, ErrModelUnavailable) {
			t.Errorf("expected label mismatch error, got %v", err)
		}
	})

	t.Run("input dimension mismatch", func(t *testing.T) {
		l := NewLoader(LoaderConfig{Name: "seq", Source: writeArtifact(t, identityArtifact([]string{"x", "y"})), InputDim: 126})
		if _, err := l.Get(context.Background()); !errors.Is(err, ErrModelUnavailable) {
			t.Errorf("expected ErrModelUnavailable, got %v", err)
		}
	})
}

func TestRemote(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/info":
			json.NewEncoder(w).Encode(map[string]any{"input_dim": 2, "output_dim": 2, "classes": []string{"no", "yes"}})
		case "/predict_proba":
			atomic.AddInt32(&calls, 1)
			var req predictRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
				return
			}
			if req.Inputs[0] < 0 {
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(map[string]string{"error": "negative input"})
				return
			}
			json.NewEncoder(w).Encode(map[string]any{"proba": []float64{0.1, 0.9}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	m, labels, err := Open(context.Background(), srv.URL, RemoteOptions{Timeout: time.Second})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if m.OutputDim() != 2 || labels.Label(1) != "yes" {
		t.Fatalf("unexpected remote description %d %v", m.OutputDim(), labels.Labels())
	}

	proba, err := m.PredictProba(context.Background(), []float32{1, 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if proba[1] != 0.9 {
		t.Errorf("unexpected proba %v", proba)
	}

	if _, err := m.PredictProba(context.Background(), []float32{-1, 2}); !errors.Is(err, ErrInferenceFailure) {
		t.Errorf("expected ErrInferenceFailure, got %v", err)
	}
	if _, err := m.PredictProba(context.Background(), []float32{1}); !errors.Is(err, ErrInferenceFailure) {
		t.Errorf("expected ErrInferenceFailure for bad length, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 server calls, got %d", calls)
	}

	if _, err := NewRemote(context.Background(), srv.URL+"/missing", RemoteOptions{}); !errors.Is(err, ErrModelUnavailable) {
		t.Errorf("expected ErrModelUnavailable for bad server, got %v", err)
	}
}
