// Package main provides a transcript plugin. It appends recognized signs to a
// text file and can speak them with the platform's text-to-speech command.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"
)

// Request represents the input from the plugin executor.
type Request struct {
	Action     string          `json:"action"`
	Sign       string          `json:"sign"`
	Confidence float64         `json:"confidence"`
	Config     json.RawMessage `json:"config"`
	Params     json.RawMessage `json:"params"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Config is the per-binding configuration.
type Config struct {
	// Path of the transcript file (default ~/.mudra/transcript.txt).
	Path string `json:"path"`
	// Voice is passed to the speech command when set.
	Voice string `json:"voice"`
}

// actionHandler defines a function type for handling specific actions.
type actionHandler func(req Request, cfg Config) error

// actionHandlers maps action names to their handler functions.
var actionHandlers = map[string]actionHandler{
	"append": appendSign,
	"speak":  speakSign,
}

// now is replaced in tests.
var now = time.Now

func main() {
	json.NewEncoder(os.Stdout).Encode(handle(os.Stdin))
}

// handle decodes one request and runs its action.
func handle(r io.Reader) Response {
	var req Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return Response{Error: fmt.Sprintf("failed to decode request: %v", err)}
	}

	var cfg Config
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			return Response{Error: fmt.Sprintf("invalid config: %v", err)}
		}
	}

	handler, ok := actionHandlers[req.Action]
	if !ok {
		return Response{Error: fmt.Sprintf("unknown action: %s", req.Action)}
	}
	if req.Sign == "" {
		return Response{Error: "request has no sign"}
	}
	if err := handler(req, cfg); err != nil {
		return Response{Error: fmt.Sprintf("action %s failed: %v", req.Action, err)}
	}
	return Response{Success: true}
}

// appendSign writes one tab-separated line: RFC 3339 time, sign, confidence.
func appendSign(req Request, cfg Config) error {
	path := cfg.Path
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		path = filepath.Join(home, ".mudra", "transcript.txt")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(f, "%s\t%s\t%.3f\n", now().Format(time.RFC3339), req.Sign, req.Confidence)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

// speakSign reads the sign aloud with say (macOS) or spd-say (Linux).
func speakSign(req Request, cfg Config) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		args := []string{}
		if cfg.Voice != "" {
			args = append(args, "-v", cfg.Voice)
		}
		cmd = exec.Command("say", append(args, req.Sign)...)
	case "linux":
		args := []string{"--wait"}
		if cfg.Voice != "" {
			args = append(args, "-l", cfg.Voice)
		}
		cmd = exec.Command("spd-say", append(args, req.Sign)...)
	default:
		return fmt.Errorf("speech is not supported on %s", runtime.GOOS)
	}
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}
