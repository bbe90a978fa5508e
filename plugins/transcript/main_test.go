package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestHandle_Append(t *testing.T) {
	now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { now = time.Now })

	path := filepath.Join(t.TempDir(), "out", "transcript.txt")
	req := `{"action": "append", "sign": "xin chao", "confidence": 0.91, "config": {"path": "` + path + `"}}`

	for i := 0; i < 2; i++ {
		resp := handle(strings.NewReader(req))
		if !resp.Success {
			t.Fatalf("append failed: %s", resp.Error)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "2026-03-01T12:00:00Z\txin chao\t0.910\n"
	if string(data) != want+want {
		t.Errorf("transcript = %q, want two lines of %q", data, want)
	}
}

func TestHandle_Errors(t *testing.T) {
	tests := []struct {
		name string
		req  string
		want string
	}{
		{"malformed", `{"action":`, "failed to decode request"},
		{"unknown action", `{"action": "shout", "sign": "cam on"}`, "unknown action"},
		{"no sign", `{"action": "append"}`, "no sign"},
		{"bad config", `{"action": "append", "sign": "cam on", "config": [1]}`, "invalid config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := handle(strings.NewReader(tt.req))
			if resp.Success || !strings.Contains(resp.Error, tt.want) {
				t.Errorf("expected error containing %q, got %+v", tt.want, resp)
			}
		})
	}
}
