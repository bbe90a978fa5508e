// Package plugin discovers external action plugins and runs them when a
// bound sign is recognized.
package plugin

import (
	"encoding/json"
	"slices"
)

// Manifest describes a plugin's metadata and capabilities.
type Manifest struct {
	Name         string          `json:"name"`
	Version      string          `json:"version"`
	Description  string          `json:"description"`
	Executable   string          `json:"executable"`
	Actions      []string        `json:"actions"`
	ConfigSchema json.RawMessage `json:"configSchema,omitempty"`
}

// Request is written to a plugin's stdin as JSON.
type Request struct {
	Action     string          `json:"action"`
	Sign       string          `json:"sign"`
	Confidence float64         `json:"confidence"`
	Config     json.RawMessage `json:"config,omitempty"`
	Params     json.RawMessage `json:"params,omitempty"`
}

// Response is read from a plugin's stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin represents a discovered plugin with its manifest and location.
type Plugin struct {
	Manifest   Manifest `json:"manifest"`
	Path       string   `json:"path"`
	Executable string   `json:"executable"`
}

// Supports reports whether the plugin declares the action. A plugin that
// declares no actions accepts any.
func (p *Plugin) Supports(action string) bool {
	if len(p.Manifest.Actions) == 0 {
		return true
	}
	return slices.Contains(p.Manifest.Actions, action)
}
