package handler

import "net/http"

// ListCheckouts handles GET /equipment/{id}/checkouts.
func (s *Server) ListCheckouts(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeValidation(w, err.Error())
		return
	}
	checkouts, err := s.engine.ListCheckouts(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list(checkouts))
}

// GetHistory handles GET /equipment/{id}/history. Events are in commit order
// and remain available after the equipment was hard-deleted.
func (s *Server) GetHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeValidation(w, err.Error())
		return
	}
	events, err := s.engine.GetHistory(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list(events))
}

// ActorHistory handles GET /actors/{userID}/history.
func (s *Server) ActorHistory(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUUID(r, "userID")
	if err != nil {
		writeValidation(w, err.Error())
		return
	}
	events, err := s.engine.ActorHistory(r.Context(), userID)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list(events))
}
