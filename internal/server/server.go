// Package server provides the HTTP surface over the query core: the search
// and rules API, the live activity feed, and server lifecycle management.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/deckhaven/cardex/internal/config"
)

// Server owns the HTTP listener and the activity hub.
type Server struct {
	cfg      *config.Config
	handlers *Handlers
	hub      *ActivityHub

	httpServer *http.Server
}

// New assembles a server from the handler set. The handlers' hub (if any)
// must be the one passed here so feed lifecycle follows server lifecycle.
func New(cfg *config.Config, handlers *Handlers, hub *ActivityHub) *Server {
	return &Server{cfg: cfg, handlers: handlers, hub: hub}
}

// Start begins serving and returns the bound address, which is useful with
// port 0 in tests. The server shuts down gracefully when ctx is cancelled.
func (s *Server) Start(ctx context.Context) (string, error) {
	mux := http.NewServeMux()

	// Health endpoint stays outside auth so monitors can reach it.
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	api := http.NewServeMux()
	s.handlers.Routes(api)
	mux.Handle("/api/", requireAuth(api, s.cfg))

	if s.hub != nil {
		go s.hub.Run()
		mux.Handle("/ws/activity", s.hub)
	}

	limiter := newRateLimiter(s.cfg.Server.RateLimit, s.cfg.Server.RateBurst)
	handler := securityHeaders(rateLimit(mux, limiter))

	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("server: listen on %s: %w", addr, err)
	}

	s.httpServer = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("server: shutdown: %v", err)
		}
		if s.hub != nil {
			s.hub.Stop()
		}
	}()

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("server: serve: %v", err)
		}
	}()

	return listener.Addr().String(), nil
}
