package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/ayusman/mudra/internal/classifier"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/recognizer"
)

type stubModel struct {
	in    int
	proba []float64
}

func (m *stubModel) PredictProba(context.Context, []float32) ([]float64, error) {
	return m.proba, nil
}

func (m *stubModel) InputDim() int  { return m.in }
func (m *stubModel) OutputDim() int { return len(m.proba) }
func (m *stubModel) Close() error   { return nil }

func newTestRecognizer(t *testing.T) *recognizer.Service {
	t.Helper()
	staticLabels, err := classifier.NewLabelTable([]string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	seqLabels, err := classifier.NewLabelTable([]string{"xin chao", "cam on"})
	if err != nil {
		t.Fatal(err)
	}
	return recognizer.New(recognizer.DefaultConfig(),
		classifier.NewStaticLoader(&stubModel{in: detector.FeatureSize, proba: []float64{0.9, 0.1}}, staticLabels),
		classifier.NewStaticLoader(&stubModel{in: gesture.WindowSize * gesture.FrameFeatures, proba: []float64{0.15, 0.85}}, seqLabels),
	)
}

func TestServer_Root(t *testing.T) {
	s := New(Config{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var response map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response["service"] != ServiceName || response["status"] != "running" {
		t.Errorf("unexpected root response %v", response)
	}
}

func TestServer_Status(t *testing.T) {
	s := New(Config{})

	t.Run("returns 200 with JSON response", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected Content-Type application/json, got %s", ct)
		}

		var response map[string]any
		if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response["status"] != "ok" {
			t.Errorf("expected status 'ok', got %v", response["status"])
		}
		if _, exists := response["uptime"]; !exists {
			t.Error("expected 'uptime' field in response")
		}
	})

	t.Run("only allows GET method", func(t *testing.T) {
		for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch} {
			req := httptest.NewRequest(method, "/api/status", nil)
			rec := httptest.NewRecorder()

			s.ServeHTTP(rec, req)

			if rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("method %s: expected status %d, got %d", method, http.StatusMethodNotAllowed, rec.Code)
			}
		}
	})
}

func TestServer_NotFound(t *testing.T) {
	s := New(Config{})

	for _, path := range []string{"/api/nonexistent", "/health", "/api/bindings", "/api/capture"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected status %d, got %d", path, http.StatusNotFound, rec.Code)
		}
	}
}

func TestServer_RecognitionRoutes(t *testing.T) {
	s := New(Config{Recognizer: newTestRecognizer(t)})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var health recognizer.Health
	json.NewDecoder(rec.Body).Decode(&health)
	if len(health.AvailableClasses) != 2 || health.AvailableClasses[0] != "A" {
		t.Errorf("unexpected health %+v", health)
	}

	req = httptest.NewRequest(http.MethodDelete, "/session/unknown", nil)
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestServer_CORS(t *testing.T) {
	s := New(Config{AllowedOrigins: []string{"https://signs.example.org"}})

	tests := []struct {
		origin string
		want   string
	}{
		{"http://localhost:5173", "http://localhost:5173"},
		{"http://127.0.0.1:8000", "http://127.0.0.1:8000"},
		{"https://signs.example.org", "https://signs.example.org"},
		{"https://evil.example.com", ""},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, "/api/status", nil)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodGet)
			rec := httptest.NewRecorder()

			s.ServeHTTP(rec, req)

			if rec.Code != http.StatusNoContent {
				t.Errorf("expected preflight status %d, got %d", http.StatusNoContent, rec.Code)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.want)
			}
		})
	}

	t.Run("wildcard", func(t *testing.T) {
		p := newOriginPolicy([]string{"*"})
		if !p.allows("https://anything.example") {
			t.Error("expected wildcard to allow any origin")
		}
		if p.allows("") {
			t.Error("expected empty origin to be ignored by CORS")
		}
	})

	t.Run("websocket without origin", func(t *testing.T) {
		p := newOriginPolicy(nil)
		req := httptest.NewRequest(http.MethodGet, "/api/live", nil)
		if !p.checkWebSocketOrigin(req) {
			t.Error("expected non-browser client to be accepted")
		}
		req.Header.Set("Origin", "https://evil.example.com")
		if p.checkWebSocketOrigin(req) {
			t.Error("expected foreign origin to be rejected")
		}
	})
}

func TestServer_StaticFiles(t *testing.T) {
	tmpDir := t.TempDir()

	testContent := "<html><body>Hello, World!</body></html>"
	if err := os.WriteFile(filepath.Join(tmpDir, "index.html"), []byte(testContent), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	cssContent := "body { color: red; }"
	if err := os.WriteFile(filepath.Join(tmpDir, "style.css"), []byte(cssContent), 0644); err != nil {
		t.Fatalf("failed to create test CSS file: %v", err)
	}

	s := New(Config{StaticDir: tmpDir})

	t.Run("serves index.html under /ui/", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ui/", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		if rec.Body.String() != testContent {
			t.Errorf("expected body %q, got %q", testContent, rec.Body.String())
		}
	})

	t.Run("serves static files from configured directory", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ui/style.css", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		if rec.Body.String() != cssContent {
			t.Errorf("expected body %q, got %q", cssContent, rec.Body.String())
		}
	})

	t.Run("redirects /ui to /ui/", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ui", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusMovedPermanently {
			t.Errorf("expected status %d, got %d", http.StatusMovedPermanently, rec.Code)
		}
	})

	t.Run("returns 404 for non-existent static files", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ui/nonexistent.html", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})
}

func TestNew(t *testing.T) {
	t.Run("creates server with config", func(t *testing.T) {
		cfg := Config{StaticDir: "/some/path"}
		s := New(cfg)

		if s == nil {
			t.Fatal("expected non-nil server")
		}
		if s.config.StaticDir != cfg.StaticDir {
			t.Errorf("expected StaticDir %s, got %s", cfg.StaticDir, s.config.StaticDir)
		}
		if s.config.Segmenter != gesture.DefaultSegmenterConfig() {
			t.Errorf("expected default segmenter config, got %+v", s.config.Segmenter)
		}
	})

	t.Run("server implements http.Handler", func(t *testing.T) {
		s := New(Config{})
		var _ http.Handler = s
	})
}
