package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type enqueueRequest struct {
	NoteID      uuid.UUID `json:"noteId"`
	TxHash      string    `json:"txHash"`
	ContentHash string    `json:"contentHash"`
	OwnerWallet string    `json:"ownerWallet"`
}

// EnqueueVerification registers a transaction for verification. Enqueueing the
// same transaction hash twice returns the existing record.
func (s *Server) EnqueueVerification(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	rec, err := s.verifications.Enqueue(r.Context(), req.NoteID, req.TxHash, req.ContentHash, req.OwnerWallet)
	if err != nil {
		s.handleServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, rec)
}

// ListVerifications returns every verification record, most recent first.
func (s *Server) ListVerifications(w http.ResponseWriter, r *http.Request) {
	recs, err := s.verifications.All(r.Context())
	if err != nil {
		s.handleServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, recs)
}

// GetVerification returns a single record by ID.
func (s *Server) GetVerification(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathUUID(w, r, "id")
	if !ok {
		return
	}
	rec, err := s.verifications.ByID(r.Context(), id)
	if err != nil {
		s.handleServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

// VerificationByTxHash returns the record for a transaction hash.
func (s *Server) VerificationByTxHash(w http.ResponseWriter, r *http.Request) {
	hash := strings.TrimSpace(chi.URLParam(r, "txHash"))
	if hash == "" {
		s.writeError(w, http.StatusBadRequest, "tx hash is required")
		return
	}
	rec, err := s.verifications.ByTxHash(r.Context(), hash)
	if err != nil {
		s.handleServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

// VerificationsForNote returns all records for a note, most recent first.
func (s *Server) VerificationsForNote(w http.ResponseWriter, r *http.Request) {
	noteID, ok := s.pathUUID(w, r, "noteId")
	if !ok {
		return
	}
	recs, err := s.verifications.ForNote(r.Context(), noteID)
	if err != nil {
		s.handleServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, recs)
}

// LatestVerificationForNote returns the most recent record for a note.
func (s *Server) LatestVerificationForNote(w http.ResponseWriter, r *http.Request) {
	noteID, ok := s.pathUUID(w, r, "noteId")
	if !ok {
		return
	}
	rec, err := s.verifications.LatestForNote(r.Context(), noteID)
	if err != nil {
		s.handleServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

// PendingVerifications lists the records currently eligible for a retry pass.
func (s *Server) PendingVerifications(w http.ResponseWriter, r *http.Request) {
	recs, err := s.verifications.PendingRetry(r.Context())
	if err != nil {
		s.handleServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, recs)
}

// RetryVerification forces an immediate out-of-band attempt for a record.
func (s *Server) RetryVerification(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathUUID(w, r, "id")
	if !ok {
		return
	}
	rec, err := s.verifications.Retry(r.Context(), id)
	if err != nil {
		s.handleServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

// VerificationStats returns record counts grouped by status.
func (s *Server) VerificationStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.verifications.Stats(r.Context())
	if err != nil {
		s.handleServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

// WorkerStatus reports the background worker state.
func (s *Server) WorkerStatus(w http.ResponseWriter, r *http.Request) {
	if s.worker == nil {
		s.writeError(w, http.StatusServiceUnavailable, "worker not running")
		return
	}
	s.writeJSON(w, http.StatusOK, s.worker.Status())
}
