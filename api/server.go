// Package api provides the HTTP REST surface of the retrofit backend.
//
// Endpoints:
//
//	GET  /api/health                        liveness + dependency status
//	GET  /api/models                        model availability
//	POST /api/inference                     surrogate/analytic predictions
//	POST /api/optimize                      NSGA-II run (sync or async)
//	GET  /api/optimize/{id}                 background job status
//	POST /api/mcdm                          rank solutions by preference
//	POST /api/buildings/query               filtered building query
//	GET  /api/buildings/...                 stats, schema, distinct, options
//	POST /api/chat                          assistant (JSON or SSE stream)
//	POST /api/chat/feedback                 response ratings
//	...  /api/chat/session/{id}             session state management
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: recovery, logging, CORS, per-client rate limiting
//   - health.go: health and model availability endpoints
//   - retrofit.go: inference, optimization, and MCDM endpoints
//   - buildings.go: building database endpoints
//   - chat.go: assistant endpoints (chat, sessions, feedback)
//   - response.go: JSON response helpers
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/isabella-tue/retrofit/internal/buildings"
	"github.com/isabella-tue/retrofit/internal/chat"
	"github.com/isabella-tue/retrofit/internal/log"
	"github.com/isabella-tue/retrofit/internal/optimize"
	"github.com/isabella-tue/retrofit/internal/retrofit"
)

const (
	// DefaultAddr is the default address for the HTTP server.
	DefaultAddr = "127.0.0.1:8000"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout is the timeout for reading request headers.
	// This prevents Slowloris attacks (CWE-400).
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is the maximum duration for writing the response.
	// Generous because synchronous optimization runs and SSE chat
	// streams are served on the same handler.
	WriteTimeout = 5 * time.Minute

	// IdleTimeout is the maximum time to wait for the next request on keep-alive connections.
	IdleTimeout = 120 * time.Second
)

// Deps are the services the server exposes over HTTP.
type Deps struct {
	DB        Pinger          // used for health checks, may be nil
	JobCtx    context.Context // bounds async optimization jobs, defaults to Background
	Predictor *retrofit.Predictor
	Optimizer *optimize.Runner
	Buildings *buildings.Store
	ChatFlow  *chat.Flow
	Sessions  *chat.SessionStore
	Feedback  *chat.FeedbackStore
	Logger    log.Logger
}

// Options tune the HTTP behavior of the server.
type Options struct {
	CORSOrigins []string
	TrustProxy  bool
	RateBurst   int

	// Model names reported by /api/models.
	PrimaryModel   string
	CheapModel     string
	FallbackModels []string
}

// Server is the HTTP server for the retrofit REST API.
type Server struct {
	mux     *http.ServeMux
	logger  log.Logger
	opts    Options
	limiter *rateLimiter

	health    *HealthHandler
	retrofit  *RetrofitHandler
	buildings *BuildingsHandler
	chat      *ChatHandler
}

// NewServer creates a new HTTP server with all routes registered.
func NewServer(deps Deps, opts Options) (*Server, error) {
	if deps.Predictor == nil {
		return nil, fmt.Errorf("api: predictor is required")
	}
	if deps.Optimizer == nil {
		return nil, fmt.Errorf("api: optimizer is required")
	}
	if deps.Logger == nil {
		deps.Logger = log.NewNop()
	}

	mux := http.NewServeMux()
	s := &Server{
		mux:       mux,
		logger:    deps.Logger,
		opts:      opts,
		limiter:   newRateLimiter(opts.RateBurst, opts.TrustProxy),
		health:    NewHealthHandler(deps.DB, deps.Predictor, opts, deps.Logger),
		retrofit:  NewRetrofitHandler(deps.Predictor, deps.Optimizer, deps.Logger),
		buildings: NewBuildingsHandler(deps.Buildings, deps.Logger),
		chat:      NewChatHandler(deps.ChatFlow, deps.Sessions, deps.Feedback, deps.Logger),
	}

	if deps.JobCtx != nil {
		s.retrofit.SetJobContext(deps.JobCtx)
	}

	s.health.RegisterRoutes(mux)
	s.retrofit.RegisterRoutes(mux)
	s.buildings.RegisterRoutes(mux)
	s.chat.RegisterRoutes(mux)

	return s, nil
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery → logging → CORS → rate limit → handler
func (s *Server) Handler() http.Handler {
	return chain(s.mux,
		recoveryMiddleware(s.logger),
		loggingMiddleware(s.logger),
		corsMiddleware(s.opts.CORSOrigins),
		s.limiter.middleware,
	)
}

// Run starts the HTTP server and blocks until the context is cancelled.
// It handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
