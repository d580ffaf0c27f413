// Package api exposes the ingest and query HTTP surface.
//
// The handlers are a thin boundary: events go through the shared update
// mapper into the buffer, queries go through the sink adapter, and the
// flush endpoint triggers one projector cycle out of cadence. No row
// semantics live here.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"gridsync/internal/buffer"
	"gridsync/internal/grid"
	"gridsync/internal/mapper"
	"gridsync/internal/projector"
)

const (
	contentTypeJSON        = "application/json"
	defaultShutdownTimeout = 5 * time.Second
)

// Server serves the gridsync HTTP API.
type Server struct {
	buf        buffer.Buffer
	proj       *projector.Projector
	log        *slog.Logger
	httpServer *http.Server
}

// NewServer wires the buffer and projector into a router.
func NewServer(addr string, buf buffer.Buffer, proj *projector.Projector, log *slog.Logger) *Server {
	s := &Server{buf: buf, proj: proj, log: log}
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.routes(),
	}
	return s
}

// routes builds the chi router.
func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)
	r.Post("/events", s.handleIngest)
	r.Get("/rows/{key}", s.handleGetRow)
	r.Get("/status", s.handleStatus)
	r.Post("/flush", s.handleFlush)

	return r
}

// Handler returns the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins serving. Blocks until the listener fails or Stop runs.
func (s *Server) Start() error {
	s.log.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleIngest maps one event into the buffer.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var ev mapper.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid event body: %v", err))
		return
	}

	update, err := mapper.Map(ev)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	size, err := s.buf.Add(r.Context(), update)
	if err != nil {
		s.log.Error("buffer add failed", "key", update.Key, "error", err)
		writeError(w, http.StatusInternalServerError, "buffering failed")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"key":      update.Key,
		"buffered": size,
	})
}

func (s *Server) handleGetRow(w http.ResponseWriter, r *http.Request) {
	key := grid.NewKey(chi.URLParam(r, "key"))

	row, ok, err := s.proj.Sink().GetByKey(r.Context(), key)
	if err != nil {
		s.log.Error("row read failed", "key", key, "error", err)
		writeError(w, http.StatusBadGateway, "sink read failed")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no row for key %q", key))
		return
	}

	writeJSON(w, http.StatusOK, row)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	size, err := s.buf.Size(r.Context())
	if err != nil {
		s.log.Error("buffer size failed", "error", err)
		writeError(w, http.StatusInternalServerError, "buffer unavailable")
		return
	}

	status := map[string]any{"buffered": size}
	if last, ok := s.proj.LastResult(); ok {
		status["last_flush"] = last
	}
	writeJSON(w, http.StatusOK, status)
}

// handleFlush triggers one flush cycle out of cadence.
func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	result, err := s.proj.FlushOnce(r.Context())
	if err != nil {
		s.log.Warn("manual flush failed", "error", err)
		writeError(w, http.StatusBadGateway, fmt.Sprintf("flush failed: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
