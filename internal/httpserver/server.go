// Package httpserver exposes notes, todos and their category trees over a
// JSON API with a WebSocket feed of committed events.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/relicta-tech/notebase/internal/config"
	"github.com/relicta-tech/notebase/internal/container"
	"github.com/relicta-tech/notebase/internal/httpserver/handlers"
	"github.com/relicta-tech/notebase/internal/httpserver/middleware"
	httpws "github.com/relicta-tech/notebase/internal/httpserver/websocket"
	"github.com/relicta-tech/notebase/internal/observability"
)

// Server is the notebase HTTP server.
type Server struct {
	config      config.ServerConfig
	router      chi.Router
	httpServer  *http.Server
	wsHub       *httpws.Hub
	broadcaster *httpws.EventBroadcaster
	limiter     *middleware.RateLimiter
	metrics     *observability.Metrics
	logger      *slog.Logger

	mu       sync.Mutex
	listener net.Listener
}

// ServerDeps contains dependencies for creating a new server.
type ServerDeps struct {
	Config config.ServerConfig
	// App must be initialized. The server does not close it.
	App *container.Container
	// ReadOnly rejects commands. Use it when the journal is opened without
	// the writer lock.
	ReadOnly bool
	Logger   *slog.Logger
}

// NewServer creates the server and subscribes its WebSocket broadcaster to
// the application's event bus.
func NewServer(deps ServerDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		config: deps.Config,
		wsHub:  httpws.NewHub(deps.Config.CORSOrigins, logger),
		logger: logger,
	}
	s.broadcaster = httpws.NewEventBroadcaster(s.wsHub)
	if deps.Config.RateLimit > 0 {
		s.limiter = middleware.NewRateLimiter(middleware.PerMinute(deps.Config.RateLimit))
	}

	// Set handler context for dependency injection
	handlers.SetContext(&handlers.Context{
		App:      deps.App,
		ReadOnly: deps.ReadOnly,
	})
	if deps.App != nil {
		deps.App.Bus().Subscribe("http.websocket", s.broadcaster.Handle)
		s.metrics = deps.App.Metrics()
		s.metrics.Gauge("notebase_websocket_clients", "Connected WebSocket clients", func() float64 {
			return float64(s.wsHub.ClientCount())
		})
	}

	s.router = s.setupRouter()

	s.httpServer = &http.Server{
		Addr:              s.config.Address,
		Handler:           s.router,
		ReadTimeout:       s.getReadTimeout(),
		ReadHeaderTimeout: s.getReadTimeout(),
		WriteTimeout:      s.getWriteTimeout(),
		IdleTimeout:       s.getIdleTimeout(),
	}

	return s
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	// Start WebSocket hub
	go s.wsHub.Run(ctx)

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	s.logger.Info("http server listening", "address", listener.Addr().String())

	// Wait for context cancellation or server error
	select {
	case <-ctx.Done():
		// Use a new context for shutdown since the original is canceled
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx) //nolint:contextcheck // Intentionally new context for graceful shutdown
	case err := <-errChan:
		s.wsHub.Close()
		if s.limiter != nil {
			s.limiter.Close()
		}
		return err
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	s.wsHub.Close()
	if s.limiter != nil {
		s.limiter.Close()
	}

	return s.httpServer.Shutdown(shutdownCtx)
}

// Address returns the bound address once Start is listening, otherwise the
// configured one.
func (s *Server) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Address
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the WebSocket hub for broadcasting events.
func (s *Server) Hub() *httpws.Hub {
	return s.wsHub
}

// EventBroadcaster returns the broadcaster subscribed to the event bus.
func (s *Server) EventBroadcaster() *httpws.EventBroadcaster {
	return s.broadcaster
}

// getReadTimeout returns the read timeout with default.
func (s *Server) getReadTimeout() time.Duration {
	if s.config.ReadTimeout > 0 {
		return s.config.ReadTimeout
	}
	return 15 * time.Second
}

// getWriteTimeout returns the write timeout with default.
func (s *Server) getWriteTimeout() time.Duration {
	if s.config.WriteTimeout > 0 {
		return s.config.WriteTimeout
	}
	return 15 * time.Second
}

// getIdleTimeout returns the idle timeout with default.
func (s *Server) getIdleTimeout() time.Duration {
	if s.config.IdleTimeout > 0 {
		return s.config.IdleTimeout
	}
	return 60 * time.Second
}
