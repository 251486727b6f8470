package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/mattjoyce/tspl-agent/internal/dispatch"
	"github.com/mattjoyce/tspl-agent/internal/events"
	"github.com/mattjoyce/tspl-agent/internal/netinfo"
)

// Dispatcher prints jobs. Implemented by *dispatch.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, job dispatch.Job) (dispatch.Outcome, error)
	Chain() []string
	Stats() dispatch.Stats
}

// EventStream is the read side of the events hub.
type EventStream interface {
	SnapshotSince(lastID int64) []events.Event
	Subscribe() (<-chan events.Event, func())
}

// Config holds API server configuration
type Config struct {
	Listen         string
	Printer        string
	Token          string
	AllowedOrigins []string
	MaxBodyBytes   int64
	// RateLimit is the sustained /print rate in requests per second; 0 disables.
	RateLimit float64
	RateBurst int
	Platform  string
	Version   string
}

// Server represents the HTTP API server
type Server struct {
	config     Config
	dispatcher Dispatcher
	events     EventStream
	interfaces netinfo.Lister
	limiter    *rate.Limiter
	logger     *slog.Logger
	server     *http.Server
	startedAt  time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithInterfaces overrides network interface enumeration.
func WithInterfaces(l netinfo.Lister) Option {
	return func(s *Server) {
		if l != nil {
			s.interfaces = l
		}
	}
}

// New creates a new API server instance
func New(config Config, dispatcher Dispatcher, stream EventStream, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = 256 * 1024
	}

	s := &Server{
		config:     config,
		dispatcher: dispatcher,
		events:     stream,
		interfaces: netinfo.List,
		logger:     logger,
		startedAt:  time.Now(),
	}
	if config.RateLimit > 0 {
		burst := config.RateBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), burst)
	}
	for _, opt := range opts {
		opt(s)
	}

	s.server = &http.Server{
		Addr:              config.Listen,
		Handler:           s.setupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// No WriteTimeout: /print is held open until the OS print command exits
		// and /events streams indefinitely.
		IdleTimeout: 60 * time.Second,
		ErrorLog:    slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
	return s
}

// Handler returns the fully wired HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Listen binds the configured address.
func (s *Server) Listen() (net.Listener, error) {
	l, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", s.config.Listen, err)
	}
	return l, nil
}

// Serve accepts connections on l until Shutdown. A clean shutdown returns nil.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("API server listening", "listen", l.Addr().String())
	if err := s.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// Start binds and serves until ctx is cancelled (blocking).
func (s *Server) Start(ctx context.Context) error {
	l, err := s.Listen()
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Serve(l)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// setupRoutes configures the HTTP router
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware())
	r.Use(optionsNoContent)

	// Unauthenticated discovery endpoints.
	r.Get("/health", s.handleHealth)
	r.Get("/whoami", s.handleWhoami)
	r.Get("/openapi.json", s.handleOpenAPI)

	// Protected API.
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.With(s.rateLimitMiddleware).Post("/print", s.handlePrint)
		r.Get("/events", s.handleEvents)
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"remote_addr", r.RemoteAddr,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// rateLimitMiddleware rejects requests beyond the configured /print rate.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			s.logger.Warn("print request rate limited", "remote_addr", r.RemoteAddr)
			w.Header().Set("Retry-After", "1")
			writeText(w, http.StatusTooManyRequests, "Too many print requests.")
			return
		}
		next.ServeHTTP(w, r)
	})
}
