package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/ayusman/mudra/internal/classifier"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/recognizer"
	"github.com/ayusman/mudra/internal/store"
)

// stubModel returns a fixed distribution.
type stubModel struct {
	in    int
	proba []float64
	err   error
}

func (m *stubModel) PredictProba(context.Context, []float32) ([]float64, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.proba, nil
}

func (m *stubModel) InputDim() int  { return m.in }
func (m *stubModel) OutputDim() int { return len(m.proba) }
func (m *stubModel) Close() error   { return nil }

func newTestService(t *testing.T) (*recognizer.Service, *stubModel, *stubModel) {
	t.Helper()
	static := &stubModel{in: detector.FeatureSize, proba: []float64{0.1, 0.7, 0.2}}
	sequence := &stubModel{in: gesture.WindowSize * gesture.FrameFeatures, proba: []float64{0.05, 0.9, 0.05}}
	staticLabels, err := classifier.NewLabelTable([]string{"a", "b", "c"})
	if err != nil {
		t.Fatal(err)
	}
	seqLabels, err := classifier.NewLabelTable([]string{"xin chao", "cam on", "toi khong hieu"})
	if err != nil {
		t.Fatal(err)
	}
	svc := recognizer.New(recognizer.DefaultConfig(),
		classifier.NewStaticLoader(static, staticLabels),
		classifier.NewStaticLoader(sequence, seqLabels),
	)
	return svc, static, sequence
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// jsonRequest builds a request with a JSON body.
func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// withURLParams attaches chi URL parameters to a request.
func withURLParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func palm() []detector.Point3D {
	h := detector.OpenPalmLandmarks()
	return h.Points[:]
}
