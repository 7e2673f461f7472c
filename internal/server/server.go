// Package server exposes the trajectory store over HTTP: sampling for a
// remote training consumer, online timestep ingestion, and diagnostics.
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/cartridge/trajectory/internal/schema"
	"github.com/cartridge/trajectory/internal/store"
	"github.com/cartridge/trajectory/internal/types"
)

const maxBodyBytes = 8 * 1024 * 1024

// Server wires HTTP handlers to the trajectory store.
type Server struct {
	store  *store.Store
	acc    *store.Accumulator
	logger zerolog.Logger
}

// NewServer constructs a Server instance around a store and its online
// accumulator.
func NewServer(s *store.Store, acc *store.Accumulator, logger zerolog.Logger) *Server {
	return &Server{store: s, acc: acc, logger: logger}
}

// Routes builds the HTTP router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestLogger(s.logger))
	r.Get("/healthz", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Post("/sample", s.handleSample)
		r.Post("/timesteps", s.handleAddTimestep)
		r.Post("/episodes/end", s.handleEndOfEpisode)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.store.Stats())
}

// sampleRequest is the sampling payload. BatchSize falls back to 1 when
// omitted.
type sampleRequest struct {
	BatchSize int `json:"batch_size"`
}

func (s *Server) handleSample(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	req := sampleRequest{BatchSize: 1}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid JSON payload")
			return
		}
	}
	batch, err := s.store.Sample(req.BatchSize)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, batch)
}

func (s *Server) handleAddTimestep(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()
	var ts types.Timestep
	if err := json.NewDecoder(r.Body).Decode(&ts); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid timestep payload")
		return
	}
	if err := s.acc.Add(ts); err != nil {
		s.respondError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, s.store.Stats())
}

func (s *Server) handleEndOfEpisode(w http.ResponseWriter, r *http.Request) {
	if err := s.acc.EndOfEpisode(); err != nil {
		s.respondError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.store.Stats())
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrEmptyBuffer):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, schema.ErrSchemaMismatch):
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.writeError(w, http.StatusBadRequest, err.Error())
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}
