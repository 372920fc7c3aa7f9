package handler

import (
	"net/http"

	"gearledger/internal/lifecycle"
)

// ScheduleMaintenance handles POST /equipment/{id}/maintenance.
func (s *Server) ScheduleMaintenance(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeValidation(w, err.Error())
		return
	}
	var req scheduleMaintenanceRequest
	if err := s.decode(r, &req); err != nil {
		writeValidation(w, err.Error())
		return
	}

	win, err := s.engine.ScheduleMaintenance(r.Context(), id, lifecycle.NewWindow{
		StartsAt: req.StartsAt,
		EndsAt:   req.EndsAt,
		Reason:   req.Reason,
	}, command(r, req.commandRequest))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, win)
}

// CancelMaintenance handles DELETE /equipment/{id}/maintenance/{windowID}.
func (s *Server) CancelMaintenance(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeValidation(w, err.Error())
		return
	}
	windowID, err := pathUUID(r, "windowID")
	if err != nil {
		writeValidation(w, err.Error())
		return
	}
	var req commandRequest
	if err := s.decode(r, &req); err != nil {
		writeValidation(w, err.Error())
		return
	}
	if err := s.engine.CancelMaintenance(r.Context(), id, windowID, command(r, req)); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListMaintenance handles GET /equipment/{id}/maintenance.
func (s *Server) ListMaintenance(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeValidation(w, err.Error())
		return
	}
	windows, err := s.engine.ListMaintenance(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list(windows))
}
