package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/semaphore"

	"adstoryboard/internal/app"
	"adstoryboard/internal/storyboard"
)

const (
	cacheCleanupInterval = 10 * time.Minute
	shutdownTimeout      = 10 * time.Second
)

// Server exposes storyboard generation over HTTP and websocket. At most
// server.max_concurrent generations run at once; further requests wait.
type Server struct {
	service  *app.Service
	pipeline *app.Pipeline
	results  *cache.Cache
	slots    *semaphore.Weighted
	upgrader websocket.Upgrader
}

func New(service *app.Service) *Server {
	cfg := service.Config().Server
	slots := int64(max(cfg.MaxConcurrent, 1))

	return &Server{
		service:  service,
		pipeline: app.NewPipeline(service),
		results:  cache.New(cfg.ResultTTL, cacheCleanupInterval),
		slots:    semaphore.NewWeighted(slots),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 << 10,
			WriteBufferSize: 64 << 10,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("GET /api/options", s.handleOptions)
	mux.HandleFunc("POST /api/storyboards", s.handleCreate)
	mux.HandleFunc("GET /api/storyboards/stream", s.handleStream)
	mux.HandleFunc("GET /api/storyboards/{id}", s.handleGet)

	return mux
}

// HTTPServer returns an http.Server whose write timeout covers a full
// generation: one script call and SceneCount image calls.
func (s *Server) HTTPServer() *http.Server {
	cfg := s.service.Config()
	gen := cfg.Generation.ScriptTimeout + storyboard.SceneCount*cfg.Generation.ImageTimeout

	return &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: gen + time.Minute,
		IdleTimeout:  60 * time.Second,
	}
}

// ListenAndServe blocks until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := s.HTTPServer()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	slog.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// acquire waits for a generation slot.
func (s *Server) acquire(ctx context.Context) (func(), error) {
	if err := s.slots.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { s.slots.Release(1) }, nil
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Catalog())
}
