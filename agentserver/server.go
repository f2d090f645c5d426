// Package agentserver exposes a runner.Runner over the run protocol: an
// NDJSON streaming HTTP API plus a WebSocket variant.
package agentserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/logging"
	"github.com/hupe1980/agentdeck/runner"
)

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// AllowedOrigin is sent as Access-Control-Allow-Origin and checked on
	// WebSocket upgrades ("*" allows any origin).
	AllowedOrigin string
	// Logging services.
	Logger logging.Logger
}

// Server serves the run protocol for one runner.
type Server struct {
	runner        *runner.Runner
	allowedOrigin string
	logger        logging.Logger
	handler       http.Handler
}

// New constructs a Server and its routes.
func New(r *runner.Runner, optFns ...func(o *Options)) *Server {
	opts := Options{
		AllowedOrigin: "*",
		Logger:        logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Server{
		runner:        r,
		allowedOrigin: opts.AllowedOrigin,
		logger:        opts.Logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+core.PathRuns, s.handleRun)
	mux.HandleFunc("POST "+core.PathRunCancel, s.handleCancel)
	mux.HandleFunc("GET "+core.PathAgents, s.handleListAgents)
	mux.HandleFunc("GET "+core.PathRunsWS, s.handleWebSocket)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	s.handler = s.corsMiddleware(mux)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Shutdown cancels all active runs.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.runner.Shutdown(ctx)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req core.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, core.CodeBadRequest, fmt.Errorf("invalid run request: %w", err))
		return
	}
	if req.AgentName == "" {
		s.errorResponse(w, http.StatusBadRequest, core.CodeBadRequest, errors.New("agent_name is required"))
		return
	}

	run, events, err := s.runner.Run(r.Context(), req)
	if err != nil {
		s.runError(w, err)
		return
	}

	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", core.ContentTypeNDJSON)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	for ev := range events {
		if err := enc.Encode(ev); err != nil {
			s.logger.Warn("agentserver.stream.write_failed", "run_id", run.ID, "error", err)
			_ = s.runner.Cancel(run.ID)
			continue
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	if err := s.runner.Cancel(runID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			s.errorResponse(w, http.StatusNotFound, core.CodeNotFound, err)
			return
		}
		s.errorResponse(w, http.StatusInternalServerError, core.CodeAgentError, err)
		return
	}
	s.logger.Info("agentserver.run.cancel", "run_id", runID)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleListAgents(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, core.AgentList{Agents: s.runner.Agents()})
}

// runError writes the response for a run that could not be started.
func (s *Server) runError(w http.ResponseWriter, err error) {
	if errors.Is(err, core.ErrAgentNotFound) {
		s.errorResponse(w, http.StatusNotFound, core.CodeAgentNotFound, err)
		return
	}
	s.errorResponse(w, http.StatusInternalServerError, core.CodeAgentError, err)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("agentserver.response.write_failed", "error", err)
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, code string, err error) {
	s.logger.Error("agentserver.api.error", "status", status, "code", code, "error", err)
	s.jsonResponse(w, status, core.ErrorBody{Error: core.RunError{Code: code, Message: err.Error()}})
}
