package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ayusman/mudra/internal/plugin"
	"github.com/ayusman/mudra/internal/store"
)

// BindingHandler handles HTTP requests for sign-to-action bindings.
type BindingHandler struct {
	store   *store.Store
	plugins *plugin.Manager
}

// NewBindingHandler creates a new BindingHandler. When plugins is non-nil,
// bindings must name a discovered plugin and one of its actions.
func NewBindingHandler(s *store.Store, plugins *plugin.Manager) *BindingHandler {
	return &BindingHandler{store: s, plugins: plugins}
}

type createBindingRequest struct {
	Label      string          `json:"label"`
	PluginName string          `json:"plugin_name"`
	ActionName string          `json:"action_name"`
	Config     json.RawMessage `json:"config"`
	Enabled    *bool           `json:"enabled"`
}

type updateBindingRequest struct {
	PluginName string          `json:"plugin_name"`
	ActionName string          `json:"action_name"`
	Config     json.RawMessage `json:"config"`
	Enabled    *bool           `json:"enabled"`
}

type bindingResponse struct {
	ID         string          `json:"id"`
	Label      string          `json:"label"`
	PluginName string          `json:"plugin_name"`
	ActionName string          `json:"action_name"`
	Config     json.RawMessage `json:"config"`
	Enabled    bool            `json:"enabled"`
	CreatedAt  string          `json:"created_at"`
}

type listBindingsResponse struct {
	Bindings []bindingResponse `json:"bindings"`
}

type listPluginsResponse struct {
	Plugins []*plugin.Plugin `json:"plugins"`
}

func toBindingResponse(b *store.Binding) bindingResponse {
	config := b.Config
	if len(config) == 0 {
		config = json.RawMessage("{}")
	}
	return bindingResponse{
		ID:         b.ID,
		Label:      b.Label,
		PluginName: b.PluginName,
		ActionName: b.ActionName,
		Config:     config,
		Enabled:    b.Enabled,
		CreatedAt:  b.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// List handles GET /api/bindings.
func (h *BindingHandler) List(w http.ResponseWriter, r *http.Request) {
	bindings, err := h.store.Bindings().List()
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response := listBindingsResponse{Bindings: make([]bindingResponse, 0, len(bindings))}
	for _, b := range bindings {
		response.Bindings = append(response.Bindings, toBindingResponse(b))
	}
	writeJSON(w, http.StatusOK, response)
}

// Get handles GET /api/bindings/{id}.
func (h *BindingHandler) Get(w http.ResponseWriter, r *http.Request) {
	b, err := h.store.Bindings().GetByID(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "binding not found")
			return
		}
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBindingResponse(b))
}

// Create handles POST /api/bindings.
func (h *BindingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createBindingRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	req.Label = strings.TrimSpace(req.Label)
	if req.Label == "" {
		writeError(w, http.StatusBadRequest, "label is required")
		return
	}
	if req.PluginName == "" {
		writeError(w, http.StatusBadRequest, "plugin_name is required")
		return
	}
	if req.ActionName == "" {
		writeError(w, http.StatusBadRequest, "action_name is required")
		return
	}
	if msg := h.checkPlugin(req.PluginName, req.ActionName); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	existing, err := h.store.Bindings().GetByLabel(req.Label)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "an action is already bound to this sign")
		return
	}

	config := req.Config
	if len(config) == 0 {
		config = json.RawMessage("{}")
	}
	b := &store.Binding{
		Label:      req.Label,
		PluginName: req.PluginName,
		ActionName: req.ActionName,
		Config:     config,
		Enabled:    req.Enabled == nil || *req.Enabled,
	}
	if err := h.store.Bindings().Create(b); err != nil {
		writeServiceError(w, r, err)
		return
	}

	created, err := h.store.Bindings().GetByID(b.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBindingResponse(created))
}

// Update handles PUT /api/bindings/{id}. Omitted fields keep their value.
func (h *BindingHandler) Update(w http.ResponseWriter, r *http.Request) {
	b, err := h.store.Bindings().GetByID(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "binding not found")
			return
		}
		writeServiceError(w, r, err)
		return
	}

	var req updateBindingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.PluginName != "" {
		b.PluginName = req.PluginName
	}
	if req.ActionName != "" {
		b.ActionName = req.ActionName
	}
	if len(req.Config) > 0 {
		b.Config = req.Config
	}
	if req.Enabled != nil {
		b.Enabled = *req.Enabled
	}
	if msg := h.checkPlugin(b.PluginName, b.ActionName); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	if err := h.store.Bindings().Update(b); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBindingResponse(b))
}

// Delete handles DELETE /api/bindings/{id}.
func (h *BindingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Bindings().Delete(chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "binding not found")
			return
		}
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Plugins handles GET /api/plugins.
func (h *BindingHandler) Plugins(w http.ResponseWriter, r *http.Request) {
	response := listPluginsResponse{Plugins: []*plugin.Plugin{}}
	if h.plugins != nil {
		response.Plugins = append(response.Plugins, h.plugins.List()...)
	}
	writeJSON(w, http.StatusOK, response)
}

// checkPlugin returns a client error message when the plugin or action is
// unknown, or "" when it is valid or no plugin manager is configured.
func (h *BindingHandler) checkPlugin(pluginName, action string) string {
	if h.plugins == nil {
		return ""
	}
	p, err := h.plugins.Get(pluginName)
	if err != nil {
		return "plugin not found: " + pluginName
	}
	if !p.Supports(action) {
		return "action not supported by plugin: " + action
	}
	return ""
}
