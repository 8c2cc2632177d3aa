// Package api exposes the interview engine over HTTP: JSON endpoints
// for conversation lifecycle and an SSE stream for generation turns.
package api

import (
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/boganlabs/bogan/internal/log"
)

// ServerConfig configures the API server.
type ServerConfig struct {
	Logger      log.Logger
	Interviewer Interviewer       // Required
	Store       ConversationStore // Required
	Pool        *pgxpool.Pool     // Optional: nil disables pool stats in /readyz
	CORSOrigins []string          // Allowed origins for CORS
}

// Server is the HTTP API server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates the API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Interviewer == nil {
		return nil, errors.New("interviewer is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("conversation store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	h := &conversationHandler{
		interviewer: cfg.Interviewer,
		store:       cfg.Store,
		logger:      logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/conversations", h.create)
	mux.HandleFunc("GET /api/conversations", h.list)
	mux.HandleFunc("GET /api/conversations/{id}", h.get)
	mux.HandleFunc("POST /api/conversations/{id}/messages", h.appendMessage)
	mux.HandleFunc("GET /api/conversations/{id}/stream", h.stream)
	mux.HandleFunc("POST /api/conversations/{id}/demographics", h.demographics)
	mux.HandleFunc("GET /api/conversations/{id}/findings", h.findings)
	mux.HandleFunc("GET /api/conversations/{id}/diagnoses", h.diagnoses)

	// Build middleware stack (outermost first):
	//   Recovery → RequestID → Logging → CORS → Routes
	// RequestID precedes Logging so the id is set before any response.
	var handler http.Handler = mux
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probes bypass the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /healthz", health)
	topMux.Handle("GET /readyz", readiness(cfg.Pool, logger))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
