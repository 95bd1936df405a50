package mcp

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hopkins385/mcp-google-vertex/internal/middleware"
)

// Router exposes the JSON-RPC endpoint over HTTP alongside a health probe.
// The health route stays outside the rate limit so probes never starve.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP, middleware.RequestID, chimw.Recoverer, middleware.Logger(s.logger))

	r.Get("/healthz", s.handleHealthz)

	rpc := r.With()
	if s.rateLimitPerMinute > 0 {
		rpc = r.With(middleware.RateLimit(s.rateLimitPerMinute, time.Minute))
	}
	rpc.Post("/mcp", s.handleRPC)

	return r
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMessageBytes))
	if err != nil {
		http.Error(w, "read request body", http.StatusBadRequest)
		return
	}
	resp := s.Handle(r.Context(), body)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	calls, failures := s.Stats()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":   "ok",
		"calls":    calls,
		"failures": failures,
	})
}
