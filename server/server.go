package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"redmatrix/notes"
	"redmatrix/verification"
)

// Config captures the dependencies required to construct the server.
type Config struct {
	Notes         *notes.Service
	Verifications *verification.Service
	Worker        *verification.Worker
	Ledger        verification.LedgerClient
	Logger        *slog.Logger
}

// Server exposes the notes and verification APIs over HTTP.
type Server struct {
	notes         *notes.Service
	verifications *verification.Service
	worker        *verification.Worker
	ledger        verification.LedgerClient
	logger        *slog.Logger

	router http.Handler
}

// New constructs a configured HTTP router.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{
		notes:         cfg.Notes,
		verifications: cfg.Verifications,
		worker:        cfg.Worker,
		ledger:        cfg.Ledger,
		logger:        logger,
	}
	srv.router = srv.buildRouter()
	return srv
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Route("/notes", func(n chi.Router) {
			n.Get("/", s.ListNotes)
			n.Post("/", s.CreateNote)
			n.Get("/search", s.SearchNotes)
			n.Get("/{id}", s.GetNote)
			n.Put("/{id}", s.UpdateNote)
			n.Delete("/{id}", s.DeleteNote)
		})
		api.Route("/verifications", func(v chi.Router) {
			v.Get("/", s.ListVerifications)
			v.Post("/", s.EnqueueVerification)
			v.Get("/stats", s.VerificationStats)
			v.Get("/pending", s.PendingVerifications)
			v.Get("/worker/status", s.WorkerStatus)
			v.Get("/tx/{txHash}", s.VerificationByTxHash)
			v.Get("/note/{noteId}", s.VerificationsForNote)
			v.Get("/note/{noteId}/latest", s.LatestVerificationForNote)
			v.Get("/{id}", s.GetVerification)
			v.Post("/{id}/retry", s.RetryVerification)
		})
		api.Get("/blockfrost/txs/{txHash}/metadata", s.TransactionMetadata)
	})

	return r
}

// Health reports process liveness.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// handleServiceError translates service sentinels to HTTP status codes.
func (s *Server) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, notes.ErrNotFound), errors.Is(err, verification.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, notes.ErrValidation), errors.Is(err, verification.ErrValidation):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}
