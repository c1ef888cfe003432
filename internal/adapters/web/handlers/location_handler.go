package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"

	"github.com/gorilla/mux"

	"github.com/lcalzada-xor/geotrack/internal/core/domain"
	"github.com/lcalzada-xor/geotrack/internal/core/ports"
	"github.com/lcalzada-xor/geotrack/internal/core/services/audit"
)

// OperatorHeader names the caller recorded in the audit trail.
const OperatorHeader = "X-Operator"

// LocationHandler exposes start/stop/status of the running provider. It never
// returns coordinates.
type LocationHandler struct {
	Service ports.LocationService
}

// NewLocationHandler creates a new LocationHandler
func NewLocationHandler(service ports.LocationService) *LocationHandler {
	return &LocationHandler{
		Service: service,
	}
}

type startResponse struct {
	domain.StartReport
	Error string `json:"error,omitempty"`
}

// HandleStart starts location updates. A permission denial answers 403.
func (h *LocationHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := withOperator(r)
	report, err := h.Service.StartLocationUpdates(ctx)
	switch {
	case errors.Is(err, domain.ErrClosed):
		http.Error(w, "Provider is shut down", http.StatusConflict)
		return
	case !report.PermissionGranted && err == nil:
		writeJSON(w, http.StatusForbidden, startResponse{StartReport: report, Error: "location permission denied"})
		return
	case err != nil && len(report.Subscribed) == 0:
		slog.Error("start location updates failed", "error", err)
		writeJSON(w, http.StatusBadGateway, startResponse{StartReport: report, Error: err.Error()})
		return
	}

	resp := startResponse{StartReport: report}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleStop stops location updates.
func (h *LocationHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.Service.StopLocationUpdates(withOperator(r))
	w.WriteHeader(http.StatusNoContent)
}

// HandleStatus returns the provider status.
func (h *LocationHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Service.Status())
}

// HandleSource returns the status of a single source.
func (h *LocationHandler) HandleSource(w http.ResponseWriter, r *http.Request) {
	source := domain.Source(mux.Vars(r)["source"])
	if !source.IsValid() {
		http.Error(w, "Unknown source", http.StatusNotFound)
		return
	}

	status := h.Service.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"source":    source,
		"active":    slices.Contains(status.ActiveSources, source),
		"delivered": status.Delivered[source],
	})
}

func withOperator(r *http.Request) context.Context {
	name := r.Header.Get(OperatorHeader)
	if name == "" {
		return r.Context()
	}
	return audit.WithActor(r.Context(), audit.Actor{ID: name, Username: name})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response failed", "error", err)
	}
}
