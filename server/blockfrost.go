package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"redmatrix/ledger"
)

// TransactionMetadata proxies the raw metadata entries for a transaction
// straight from the indexer. Missing credentials map to 503 so callers can
// distinguish an unconfigured deployment from an unknown transaction.
func (s *Server) TransactionMetadata(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		s.writeError(w, http.StatusServiceUnavailable, "ledger client not configured")
		return
	}
	hash := strings.TrimSpace(chi.URLParam(r, "txHash"))
	if hash == "" {
		s.writeError(w, http.StatusBadRequest, "tx hash is required")
		return
	}

	entries, err := s.ledger.FetchMetadata(r.Context(), hash)
	switch {
	case errors.Is(err, ledger.ErrUnconfigured):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case errors.Is(err, ledger.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		s.logger.Error("metadata fetch failed", "txHash", hash, "error", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}
