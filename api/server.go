package api

import (
	"net/http"

	"github.com/vinayprograms/orchestrator/auth"
	"github.com/vinayprograms/orchestrator/errors"
	"github.com/vinayprograms/orchestrator/logging"
	"github.com/vinayprograms/orchestrator/ratelimit"
	"github.com/vinayprograms/orchestrator/service"
)

// Options configures a Server.
type Options struct {
	// Service handles every operation. Required.
	Service *service.Service

	// Auth guards POST routes. Nil accepts every request.
	Auth *auth.Authenticator

	// Limiter throttles claims per worker. Nil disables throttling.
	Limiter *ratelimit.KeyedLimiter

	// Events serves GET /events. Nil leaves the route unregistered.
	Events http.Handler

	Logger *logging.Logger
}

// Server exposes the orchestrator over HTTP.
type Server struct {
	svc     *service.Service
	auth    *auth.Authenticator
	limiter *ratelimit.KeyedLimiter
	events  http.Handler
	logger  *logging.Logger
	mux     *http.ServeMux
}

// New creates a server and registers its routes.
func New(opts Options) *Server {
	s := &Server{
		svc:     opts.Service,
		auth:    opts.Auth,
		limiter: opts.Limiter,
		events:  opts.Events,
		logger:  opts.Logger,
		mux:     http.NewServeMux(),
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	s.routes()
	return s
}

// Handler returns the root handler with request logging.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.recoverPanics(s.mux))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	// Reads are open.
	s.mux.HandleFunc("GET /tasks", s.handleListTasks)
	s.mux.HandleFunc("GET /tasks/search", s.handleSearch)
	s.mux.HandleFunc("GET /tasks/{id}", s.handleGetTask)
	s.mux.HandleFunc("GET /bots", s.handleListBots)
	s.mux.HandleFunc("GET /workers", s.handleListWorkers)
	s.mux.HandleFunc("GET /clients", s.handleListClients)
	s.mux.HandleFunc("GET /projects", s.handleListProjects)
	if s.events != nil {
		s.mux.Handle("GET /events", s.events)
	}

	// Mutations need the API key.
	s.post("/bots/register", s.handleRegisterBot)
	s.post("/workers/register", s.handleRegisterWorker)
	s.post("/workers/heartbeat", s.handleHeartbeat)
	s.post("/clients/create", s.handleCreateClient)
	s.post("/projects/create", s.handleCreateProject)
	s.post("/tasks/intake", s.handleIntake)
	s.post("/tasks/assign", s.handleAssign)
	s.post("/tasks/status", s.handleStatus)
	s.post("/tasks/claim", s.handleClaim)
	s.post("/tasks/complete", s.handleComplete)
	s.post("/tasks/fail", s.handleFail)
	s.post("/tasks/reopen", s.handleReopen)
	s.post("/deliver", s.handleDeliver)
}

func (s *Server) post(path string, h http.HandlerFunc) {
	var handler http.Handler = h
	if s.auth != nil {
		handler = s.auth.Middleware(h, s.reject)
	}
	s.mux.Handle("POST "+path, handler)
}

func (s *Server) reject(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Warn("auth_rejected", map[string]interface{}{
		"path":   r.URL.Path,
		"reason": err.Error(),
	})
	writeError(w, errors.Unauthorized("unauthorized"))
}
