// Package server exposes the HTTP surface of lockstep: the SSE stream, the
// lock endpoints, and the broadcast trigger endpoint.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/HyphaGroup/lockstep/internal/auth"
	"github.com/HyphaGroup/lockstep/internal/lock"
	"github.com/HyphaGroup/lockstep/internal/metrics"
	"github.com/HyphaGroup/lockstep/internal/realtime"
)

// Config holds server construction options.
type Config struct {
	KeepAliveInterval time.Duration // SSE keep-alive comment interval
	RateLimiter       *auth.RateLimiter
}

// Server wires the registry, broadcaster and coordinator behind HTTP
// handlers.
type Server struct {
	registry    *realtime.Registry
	broadcaster *realtime.Broadcaster
	coordinator *lock.Coordinator
	authStore   *auth.Store
	keepAlive   time.Duration
	limiter     *auth.RateLimiter
	httpServer  *http.Server
	done        chan struct{}
}

// New creates a server. All collaborators are injected; the server owns no
// global state.
func New(registry *realtime.Registry, broadcaster *realtime.Broadcaster, coordinator *lock.Coordinator, authStore *auth.Store, cfg Config) *Server {
	keepAlive := cfg.KeepAliveInterval
	if keepAlive <= 0 {
		keepAlive = 30 * time.Second
	}
	limiter := cfg.RateLimiter
	if limiter == nil {
		limiter = auth.NewRateLimiter(10, 20)
	}
	return &Server{
		registry:    registry,
		broadcaster: broadcaster,
		coordinator: coordinator,
		authStore:   authStore,
		keepAlive:   keepAlive,
		limiter:     limiter,
		done:        make(chan struct{}),
	}
}

// Handler builds the full route tree with auth, rate-limit and metrics
// middleware applied.
func (s *Server) Handler() http.Handler {
	authed := http.NewServeMux()
	authed.HandleFunc("/stream", s.handleStream)
	authed.HandleFunc("/locks", s.handleLocks)
	authed.HandleFunc("/broadcast", s.handleBroadcast)

	protected := auth.Middleware(s.authStore)(
		auth.RateLimitMiddleware(s.limiter)(authed),
	)

	mux := http.NewServeMux()
	mux.Handle("/stream", protected)
	mux.Handle("/locks", protected)
	mux.Handle("/broadcast", protected)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())

	return metrics.Middleware(mux)
}

// Serve starts the HTTP server on addr and blocks until it stops.
func (s *Server) Serve(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server. Open stream connections are
// told to close first, since http.Server.Shutdown waits for active requests;
// clients are expected to reconnect on their own.
func (s *Server) Shutdown(ctx context.Context) error {
	close(s.done)
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
