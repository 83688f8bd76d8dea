// ABOUTME: HTTP JSON API exposing the control facade to the external web panel.
// ABOUTME: Structured success/error responses; no operation silently drops errors.

package control

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/bothive/bothive/internal/registry"
)

// StatusResponse is the JSON response for GET /api/status.
type StatusResponse struct {
	Alive       bool   `json:"alive"`
	ModuleCount int    `json:"module_count"`
	Version     string `json:"version"`
}

// ModuleResponse describes one module in GET /api/modules.
type ModuleResponse struct {
	ID          string `json:"id"`
	State       string `json:"state"`
	Error       string `json:"error,omitempty"`
	Version     string `json:"version,omitempty"`
	Description string `json:"description,omitempty"`
	Disabled    bool   `json:"disabled,omitempty"`
}

// ListModulesResponse is the JSON response for GET /api/modules.
type ListModulesResponse struct {
	Modules []ModuleResponse `json:"modules"`
}

// ToggleRequest is the JSON request body for POST /api/toggle.
type ToggleRequest struct {
	ID      string `json:"id"`
	Desired string `json:"desired"`
}

// ToggleResponse is the JSON response for POST /api/toggle.
type ToggleResponse struct {
	ID    string `json:"id"`
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

// LogsResponse is the JSON response for GET /api/logs.
type LogsResponse struct {
	Lines []string `json:"lines"`
}

// errorResponse is the JSON body of every non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
}

// Routes returns the mux serving the control wire contract.
func (f *Facade) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", f.handleStatus)
	mux.HandleFunc("/api/modules", f.handleListModules)
	mux.HandleFunc("/api/toggle", f.handleToggle)
	mux.HandleFunc("/api/logs", f.handleLogs)
	mux.HandleFunc("/api/shutdown", f.handleShutdown)
	return mux
}

func (f *Facade) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		f.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	status := f.Status()
	f.writeJSON(w, http.StatusOK, StatusResponse{
		Alive:       status.Alive,
		ModuleCount: status.ModuleCount,
		Version:     status.Version,
	})
}

func (f *Facade) handleListModules(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		f.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	descriptors := f.ListModules()
	response := ListModulesResponse{Modules: make([]ModuleResponse, 0, len(descriptors))}
	for _, d := range descriptors {
		response.Modules = append(response.Modules, ModuleResponse{
			ID:          d.ID,
			State:       string(d.State),
			Error:       d.LastError,
			Version:     d.Version,
			Description: d.Description,
			Disabled:    d.Disabled,
		})
	}
	f.writeJSON(w, http.StatusOK, response)
}

func (f *Facade) handleToggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		f.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req ToggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		f.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ID == "" {
		f.sendJSONError(w, http.StatusBadRequest, "id is required")
		return
	}

	requestID := uuid.NewString()[:8]
	f.logger.Info("toggle requested",
		"request_id", requestID,
		"module", req.ID,
		"desired", req.Desired,
	)

	state, err := f.Toggle(req.ID, registry.State(req.Desired))
	switch {
	case errors.Is(err, ErrBadDesiredState):
		f.sendJSONError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case errors.Is(err, registry.ErrModuleNotFound):
		f.sendJSONError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		// The lifecycle operation ran and failed; the module is visible
		// in its Error state. Report both the state and the failure.
		f.writeJSON(w, http.StatusBadGateway, ToggleResponse{
			ID:    req.ID,
			State: string(state),
			Error: err.Error(),
		})
		return
	}

	f.writeJSON(w, http.StatusOK, ToggleResponse{ID: req.ID, State: string(state)})
}

func (f *Facade) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		f.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			f.sendJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	f.writeJSON(w, http.StatusOK, LogsResponse{Lines: f.RecentLogLines(limit)})
}

func (f *Facade) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		f.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	// Respond before the host starts tearing down.
	w.WriteHeader(http.StatusOK)
	f.Shutdown()
}

func (f *Facade) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		f.logger.Error("failed to encode response", "error", err)
	}
}

func (f *Facade) sendJSONError(w http.ResponseWriter, status int, message string) {
	f.writeJSON(w, status, errorResponse{Error: message})
}
