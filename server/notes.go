package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"redmatrix/notes"
)

// CreateNote stores a new note and queues verification when a transaction
// hash accompanies it.
func (s *Server) CreateNote(w http.ResponseWriter, r *http.Request) {
	var in notes.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	note, err := s.notes.Create(r.Context(), in)
	if err != nil {
		s.handleServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, note)
}

// ListNotes returns every note, most recently updated first.
func (s *Server) ListNotes(w http.ResponseWriter, r *http.Request) {
	list, err := s.notes.All(r.Context())
	if err != nil {
		s.handleServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

// SearchNotes returns notes matching the keyword query parameter.
func (s *Server) SearchNotes(w http.ResponseWriter, r *http.Request) {
	list, err := s.notes.Search(r.Context(), r.URL.Query().Get("keyword"))
	if err != nil {
		s.handleServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

// GetNote returns a single note by ID.
func (s *Server) GetNote(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathUUID(w, r, "id")
	if !ok {
		return
	}
	note, err := s.notes.ByID(r.Context(), id)
	if err != nil {
		s.handleServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, note)
}

// UpdateNote replaces a note's content and re-queues verification when the
// transaction hash changes.
func (s *Server) UpdateNote(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathUUID(w, r, "id")
	if !ok {
		return
	}
	var in notes.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	note, err := s.notes.Update(r.Context(), id, in)
	if err != nil {
		s.handleServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, note)
}

// DeleteNote removes a note.
func (s *Server) DeleteNote(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := s.notes.Delete(r.Context(), id); err != nil {
		s.handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) pathUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid "+param)
		return uuid.Nil, false
	}
	return id, true
}
