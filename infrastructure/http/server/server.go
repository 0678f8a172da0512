// Package server exposes the relay over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"time"
)

type Server struct {
	log             *slog.Logger
	srv             *http.Server
	shutdownTimeout time.Duration
}

func NewServer(logger *slog.Logger, address string, handler http.Handler, shutdownTimeout time.Duration) *Server {
	return &Server{
		log: logger,
		srv: &http.Server{
			Addr:              address,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ErrorLog:          log.New(logWriter{logger: logger}, "", 0),
		},
		shutdownTimeout: shutdownTimeout,
	}
}

// Serve accepts connections on l until ctx is done, then shuts down gracefully.
// Upgraded connections inherit ctx and close with it.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.srv.BaseContext = func(net.Listener) context.Context { return ctx }

	errChan := make(chan error, 1)
	go func() {
		s.log.Info("Starting HTTP server", "address", l.Addr().String())
		if err := s.srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	s.log.Info("Shutting down HTTP server")
	return s.srv.Shutdown(shutdownCtx)
}
