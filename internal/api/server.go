package api

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Config holds server configuration.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:         ":8080",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Server is the UTM HTTP API server.
type Server struct {
	httpServer *http.Server
	hub        *WebSocketHub
	log        *logrus.Entry
}

// NewServer wires the router, handlers, and WebSocket hub into an HTTP
// server.
func NewServer(cfg Config, h *Handlers, hub *WebSocketHub, log *logrus.Entry) *Server {
	s := &Server{hub: hub, log: log}

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      NewRouter(h, hub),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// Start runs the WebSocket hub and serves HTTP until the listener fails.
func (s *Server) Start() error {
	go s.hub.Run()
	s.log.WithField("addr", s.httpServer.Addr).Info("HTTP server listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
