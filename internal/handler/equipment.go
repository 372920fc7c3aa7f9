package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"gearledger/internal/domain"
	"gearledger/internal/lifecycle"
)

// ListResponse wraps every collection.
type ListResponse[T any] struct {
	Data []T `json:"data"`
}

func list[T any](items []T) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Data: items}
}

// CreateEquipment handles POST /equipment.
func (s *Server) CreateEquipment(w http.ResponseWriter, r *http.Request) {
	var req createEquipmentRequest
	if err := s.decode(r, &req); err != nil {
		writeValidation(w, err.Error())
		return
	}

	eq, err := s.engine.CreateEquipment(r.Context(), lifecycle.NewEquipment{
		Name:        req.Name,
		Description: req.Description,
		Slug:        req.Slug,
	}, command(r, req.commandRequest))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	w.Header().Set("Location", "/equipment/"+eq.ID.String())
	writeJSON(w, http.StatusCreated, eq)
}

// ListEquipment handles GET /equipment.
func (s *Server) ListEquipment(w http.ResponseWriter, r *http.Request) {
	filter, err := equipmentFilter(r)
	if err != nil {
		writeValidation(w, err.Error())
		return
	}
	items, err := s.engine.ListEquipment(r.Context(), filter)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list(items))
}

// GetEquipment handles GET /equipment/{id}.
func (s *Server) GetEquipment(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeValidation(w, err.Error())
		return
	}
	eq, err := s.engine.GetEquipment(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eq)
}

// DeleteEquipment handles DELETE /equipment/{id}.
func (s *Server) DeleteEquipment(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeValidation(w, err.Error())
		return
	}
	var req commandRequest
	if err := s.decode(r, &req); err != nil {
		writeValidation(w, err.Error())
		return
	}
	if err := s.engine.DeleteEquipment(r.Context(), id, command(r, req)); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// transitionFunc is an engine command that answers with the new snapshot.
type transitionFunc func(ctx context.Context, equipmentID uuid.UUID, cmd lifecycle.Command) (domain.Equipment, error)

// transition decodes the optional command body, runs op on the equipment in
// the path and writes the resulting snapshot.
func (s *Server) transition(w http.ResponseWriter, r *http.Request, op transitionFunc) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeValidation(w, err.Error())
		return
	}
	var req commandRequest
	if err := s.decode(r, &req); err != nil {
		writeValidation(w, err.Error())
		return
	}
	eq, err := op(r.Context(), id, command(r, req))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eq)
}

// Claim handles POST /equipment/{id}/claim.
func (s *Server) Claim(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.engine.Claim)
}

// CheckOut handles POST /equipment/{id}/checkout.
func (s *Server) CheckOut(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.engine.CheckOut)
}

// Release handles POST /equipment/{id}/release.
func (s *Server) Release(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.engine.Release)
}

// Retire handles POST /equipment/{id}/retire.
func (s *Server) Retire(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.engine.Retire)
}

// EndMaintenance handles POST /equipment/{id}/maintenance/end.
func (s *Server) EndMaintenance(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.engine.EndMaintenance)
}
