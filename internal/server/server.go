// Package server exposes the gateway over HTTP: one entry endpoint per
// supported protocol, each backed by a configured pipeline.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"llmgate/internal/codec"
	"llmgate/internal/config"
	"llmgate/internal/limits"
	"llmgate/internal/pipeline"
	responsesstate "llmgate/internal/responses-state"
	"llmgate/internal/usage"
)

// maxBodyBytes limits the size of incoming request bodies.
const maxBodyBytes = 10 * 1024 * 1024 // 10 MB

// Server is the gateway HTTP server.
type Server struct {
	cfg        *config.Config
	manager    *pipeline.Manager
	estimator  *usage.Estimator
	limits     *limits.Tracker
	respState  *responsesstate.Store
	httpServer *http.Server

	accessToken string
}

// New wires the routes and returns a server ready to listen. limitsTracker
// may be nil, in which case /v1/limits reports nothing.
func New(cfg *config.Config, manager *pipeline.Manager, limitsTracker *limits.Tracker) *Server {
	s := &Server{
		cfg:         cfg,
		manager:     manager,
		estimator:   usage.NewEstimator(),
		limits:      limitsTracker,
		respState:   responsesstate.NewStore(0, 0),
		accessToken: strings.TrimSpace(os.Getenv("LLMGATE_ACCESS_TOKEN")),
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /", s.handleHealth)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/models", s.handleListModels)
	mux.HandleFunc("GET /v1/limits", s.handleLimits)

	mux.HandleFunc("POST /v1/chat/completions", s.handleEntry(codec.ProtocolOpenAIChat))
	mux.HandleFunc("POST /v1/responses", s.handleEntry(codec.ProtocolOpenAIResponses))
	mux.HandleFunc("POST /v1/messages", s.handleEntry(codec.ProtocolAnthropic))
	mux.HandleFunc("POST /v1/messages/count_tokens", s.handleCountTokens)

	mux.HandleFunc("OPTIONS /", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	handler := corsMiddleware(s.authMiddleware(logMiddleware(cfg.Server.Verbose, mux)))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 600 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Handler returns the fully wrapped HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts the server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.respState.Close()
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLimits(w http.ResponseWriter, r *http.Request) {
	if s.limits == nil {
		writeJSON(w, http.StatusOK, map[string]limits.Snapshot{})
		return
	}
	writeJSON(w, http.StatusOK, s.limits.Snapshot())
}
