// Package api implements the HTTP REST API and WebSocket event stream of
// the UTM service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/skyward/utm/internal/geofence"
	"github.com/skyward/utm/internal/orchestrator"
	"github.com/skyward/utm/internal/uas"
)

// Handlers bundles the orchestrator-facing HTTP handlers.
type Handlers struct {
	orch  *orchestrator.Orchestrator
	fence *geofence.Engine
	log   *logrus.Entry
}

// NewHandlers creates the handler set.
func NewHandlers(orch *orchestrator.Orchestrator, fence *geofence.Engine, log *logrus.Entry) *Handlers {
	return &Handlers{orch: orch, fence: fence, log: log}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// respondError maps the orchestrator's error taxonomy onto HTTP statuses.
func (h *Handlers) respondError(w http.ResponseWriter, err error) {
	code := "internal"
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, orchestrator.ErrOutsideArea):
		code, status = "outside_area", http.StatusBadRequest
	case errors.Is(err, orchestrator.ErrInNoFly):
		code, status = "in_no_fly", http.StatusBadRequest
	case errors.Is(err, orchestrator.ErrPlanFailed):
		code, status = "plan_failed", http.StatusUnprocessableEntity
	case errors.Is(err, orchestrator.ErrDuplicateAircraft):
		code, status = "duplicate", http.StatusConflict
	case errors.Is(err, orchestrator.ErrUnknownMission), errors.Is(err, orchestrator.ErrUnknownAircraft):
		code, status = "not_found", http.StatusNotFound
	}

	respondJSON(w, status, errorResponse{Error: err.Error(), Code: code})
}

// SubmitMission handles POST /api/missions.
func (h *Handlers) SubmitMission(w http.ResponseWriter, r *http.Request) {
	var req uas.DeliveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Code: "bad_request"})
		return
	}

	result, err := h.orch.Submit(req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

// ListMissions handles GET /api/missions.
func (h *Handlers) ListMissions(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.orch.ListMissions())
}

// GetMission handles GET /api/missions/{id}.
func (h *Handlers) GetMission(w http.ResponseWriter, r *http.Request) {
	mission, err := h.orch.GetMission(chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, mission)
}

// AbortMission handles POST /api/missions/{id}/abort.
func (h *Handlers) AbortMission(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	json.NewDecoder(r.Body).Decode(&body)
	if body.Reason == "" {
		body.Reason = "operator abort"
	}

	if err := h.orch.Abort(chi.URLParam(r, "id"), body.Reason); err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "aborted"})
}

// RegisterDrone handles POST /api/drones/{id}/register.
func (h *Handlers) RegisterDrone(w http.ResponseWriter, r *http.Request) {
	droneID := chi.URLParam(r, "id")

	var body struct {
		uas.Position
		Model       string  `json:"model"`
		MaxPayload  float64 `json:"max_payload"`
		MaxRange    float64 `json:"max_range"`
		CruiseSpeed float64 `json:"cruise_speed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Code: "bad_request"})
		return
	}

	reg := uas.Registration{
		DroneID:     droneID,
		Model:       body.Model,
		MaxPayload:  body.MaxPayload,
		MaxRange:    body.MaxRange,
		CruiseSpeed: body.CruiseSpeed,
	}
	if err := h.orch.RegisterAircraft(reg, body.Position); err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "registered", "drone_id": droneID})
}

// UpdateTelemetry handles POST /api/drones/{id}/telemetry.
func (h *Handlers) UpdateTelemetry(w http.ResponseWriter, r *http.Request) {
	var tel uas.Telemetry
	if err := json.NewDecoder(r.Body).Decode(&tel); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Code: "bad_request"})
		return
	}
	tel.DroneID = chi.URLParam(r, "id")

	if err := h.orch.UpdateTelemetry(tel); err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListDrones handles GET /api/drones.
func (h *Handlers) ListDrones(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.orch.ListAircraft())
}

// GetDrone handles GET /api/drones/{id}.
func (h *Handlers) GetDrone(w http.ResponseWriter, r *http.Request) {
	tel, err := h.orch.GetAircraft(chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, tel)
}

// GetGeofences handles GET /api/geofences.
func (h *Handlers) GetGeofences(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.fence.Snapshot())
}

// GetStatus handles GET /api/status.
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.orch.Status())
}
