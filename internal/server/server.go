// Package server provides the HTTP API, the run-status websocket and the
// metrics endpoint, plus their lifecycle management.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scrypster/luminaries/internal/config"
	"github.com/scrypster/luminaries/internal/identity"
	"github.com/scrypster/luminaries/internal/logging"
	"github.com/scrypster/luminaries/internal/storage"
)

// Dependencies are the collaborators the routes need. Resolver and Queue
// may be nil.
type Dependencies struct {
	Store    storage.Store
	Bus      Publisher
	Resolver *identity.Resolver
	Queue    QueueSizeGetter
	Hub      *Hub
}

// NewHandler builds the full route table wrapped in rate limiting and
// security headers. The caller starts deps.Hub with Run.
func NewHandler(cfg config.ServerConfig, deps Dependencies) http.Handler {
	api := NewAPIHandlers(deps.Store, deps.Bus, deps.Resolver, deps.Queue)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/events", instrument("/api/events", api.PublishEvent))
	mux.HandleFunc("GET /api/resolve", instrument("/api/resolve", api.Resolve))
	mux.HandleFunc("GET /api/persons", instrument("/api/persons", api.ListPersons))
	mux.HandleFunc("POST /api/persons", instrument("/api/persons", api.CreatePerson))
	mux.HandleFunc("GET /api/persons/{id}", instrument("/api/persons/{id}", api.GetPerson))
	mux.HandleFunc("GET /api/persons/{id}/runs", instrument("/api/persons/{id}/runs", api.GetPersonRuns))
	mux.HandleFunc("GET /api/persons/{id}/cards", instrument("/api/persons/{id}/cards", api.GetPersonCards))
	mux.HandleFunc("GET /api/stats", instrument("/api/stats", api.GetStats))
	mux.HandleFunc("GET /api/health", Health)
	mux.Handle("GET /metrics", promhttp.Handler())
	if deps.Hub != nil {
		mux.Handle("GET /ws", deps.Hub)
	}

	handler := RateLimitMiddleware(mux, NewRateLimiter(cfg.RateLimit, cfg.RateBurst))
	return securityHeadersMiddleware(handler)
}

// Start listens on cfg.Server and serves until ctx is cancelled.
// Returns the actual address being listened on (useful for testing with port 0).
func Start(ctx context.Context, cfg *config.Config, deps Dependencies) (string, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("listen on %s: %w", addr, err)
	}

	server := &http.Server{
		Handler:      NewHandler(cfg.Server, deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error().Err(err).Msg("Server error")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logging.Warn().Err(err).Msg("Server shutdown error")
		}
		if deps.Hub != nil {
			deps.Hub.Stop()
		}
	}()

	actual := listener.Addr().String()
	logging.Info().Str("addr", actual).Msg("HTTP server listening")
	return actual, nil
}
