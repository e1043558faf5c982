package web

import (
	"context"
	"net/http"
	"time"

	"github.com/cjeanneret/bonehal/internal/debug"
	"github.com/cjeanneret/bonehal/internal/hw/pin"
)

// Server wraps the HTTP server and handlers.
type Server struct {
	addr     string
	handlers *Handlers
}

// NewServer creates a server for the given address and dependencies.
func NewServer(addr string, broadcaster *StatusBroadcaster, hal Controller, pins pin.Table) *Server {
	return &Server{
		addr:     addr,
		handlers: NewHandlers(broadcaster, hal, pins),
	}
}

// Mux returns an http.Handler with all routes registered.
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /pins", s.handlers.HandleListPins)
	mux.HandleFunc("GET /pins/{key}", s.handlers.HandleGetPin)
	mux.HandleFunc("POST /pins/{key}/provision", s.handlers.HandleProvision)
	mux.HandleFunc("POST /pins/{key}/export", s.handlers.HandleExport)
	mux.HandleFunc("GET /pins/{key}/digital", s.handlers.HandleDigitalRead)
	mux.HandleFunc("POST /pins/{key}/digital", s.handlers.HandleDigitalWrite)
	mux.HandleFunc("GET /pins/{key}/analog", s.handlers.HandleAnalogRead)
	mux.HandleFunc("POST /pins/{key}/pwm", s.handlers.HandlePWM)
	mux.HandleFunc("GET /board", s.handlers.HandleBoard)
	mux.HandleFunc("GET /status/stream", s.handlers.HandleStatusStream)

	return mux
}

// Run starts the server and blocks until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.Mux(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		debug.Info("web server listening on %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
