package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/onnwee/bhtree/internal/api/handlers"
	"github.com/onnwee/bhtree/internal/logger"
	"github.com/onnwee/bhtree/internal/middleware"
)

// Worker is a background loop that runs until its context ends.
type Worker interface {
	Start(ctx context.Context)
}

// Options configures a Server. Hub, Workers and RateLimiter are optional.
type Options struct {
	Addr            string
	Handler         http.Handler
	Hub             *handlers.Hub
	Workers         []Worker
	RateLimiter     *middleware.RateLimiter
	ShutdownTimeout time.Duration
}

// Server owns the HTTP listener and the background loops behind it.
type Server struct {
	http            *http.Server
	hub             *handlers.Hub
	workers         []Worker
	rateLimiter     *middleware.RateLimiter
	shutdownTimeout time.Duration
}

// New builds a server without starting it.
func New(opts Options) *Server {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 15 * time.Second
	}
	return &Server{
		http: &http.Server{
			Addr:              opts.Addr,
			Handler:           opts.Handler,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		hub:             opts.Hub,
		workers:         opts.Workers,
		rateLimiter:     opts.RateLimiter,
		shutdownTimeout: opts.ShutdownTimeout,
	}
}

// Run listens on the configured address until ctx ends, then shuts down.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.http.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx ends. In-flight requests get
// the shutdown timeout to finish; WebSocket clients are disconnected.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	if s.hub != nil {
		go s.hub.Run(bgCtx)
	}
	for _, w := range s.workers {
		go w.Start(bgCtx)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", ln.Addr().String())
		errCh <- s.http.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.stopBackground(stopBackground)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down HTTP server", "timeout", s.shutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	// Hijacked WebSocket connections are not tracked by Shutdown.
	s.stopBackground(stopBackground)
	err := s.http.Shutdown(shutdownCtx)
	if serveErr := <-errCh; serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) && err == nil {
		err = serveErr
	}
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("HTTP server stopped")
	return nil
}

func (s *Server) stopBackground(cancel context.CancelFunc) {
	cancel()
	if s.hub != nil {
		<-s.hub.Done()
	}
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
}
