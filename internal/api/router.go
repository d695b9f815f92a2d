package api

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/odvcencio/queuehealth/internal/auth"
	"github.com/odvcencio/queuehealth/internal/service"
)

// ServerOptions configures NewServer. AuthSvc guards /metrics when set;
// health routes never require auth.
type ServerOptions struct {
	Logger        *slog.Logger
	AuthSvc       *auth.Service
	EnableMetrics bool
	Registerer    prometheus.Registerer
	Gatherer      prometheus.Gatherer
	Compress      bool
}

type Server struct {
	healthSvc *service.HealthService
	authSvc   *auth.Service
	logger    *slog.Logger
	gatherer  prometheus.Gatherer
	metrics   *httpMetrics
	mux       *http.ServeMux
	handler   http.Handler
}

type middlewareFunc func(http.Handler) http.Handler

func NewServer(healthSvc *service.HealthService, opts ServerOptions) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		healthSvc: healthSvc,
		authSvc:   opts.AuthSvc,
		logger:    logger,
		gatherer:  opts.Gatherer,
		mux:       http.NewServeMux(),
	}
	if opts.EnableMetrics {
		if opts.Registerer != nil {
			s.metrics = newHTTPMetrics(opts.Registerer)
		} else {
			s.metrics = getDefaultHTTPMetrics()
		}
	}
	s.routes(opts.EnableMetrics)

	middlewares := []middlewareFunc{
		requestIDMiddleware,
		func(next http.Handler) http.Handler { return requestLoggingMiddleware(logger, next) },
		func(next http.Handler) http.Handler { return requestMetricsMiddleware(s.metrics, next) },
		requestTracingMiddleware,
	}
	if opts.Compress {
		middlewares = append([]middlewareFunc{compressionMiddleware}, middlewares...)
	}
	s.handler = chainMiddleware(s.mux, middlewares...)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes(enableMetrics bool) {
	// Health
	for _, prefix := range []string{"", "/api/v1"} {
		s.mux.HandleFunc("GET "+prefix+"/status", s.handleStatus)
		s.mux.HandleFunc("GET "+prefix+"/delayed_jobs", s.handleDelayedJobs)
	}

	// Metrics
	if enableMetrics {
		s.mux.Handle("GET /metrics", auth.RequireScope(s.authSvc, auth.ScopeMetricsRead)(metricsHandler(s.gatherer)))
	}
}

// chainMiddleware wraps h so that the first middleware is outermost.
func chainMiddleware(h http.Handler, middlewares ...middlewareFunc) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
