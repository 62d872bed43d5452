// Package api provides the HTTP boundary for the follow-up agent: the inbound
// SMS webhook, the message-status webhook, the health endpoint, and a small
// admin endpoint for kicking off follow-up campaigns.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/kalkia/sarah-agent/internal/campaign"
	"github.com/kalkia/sarah-agent/internal/flow"
)

// DefaultAddr is the listen address when none is configured.
const DefaultAddr = ":5000"

// DefaultRequestTimeout bounds the processing of a single webhook request.
const DefaultRequestTimeout = 30 * time.Second

// Opts holds configuration for the API server.
type Opts struct {
	Addr string
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// Server wires the webhook handlers to the conversation engine and the
// campaign scheduler.
type Server struct {
	engine    *flow.Engine
	campaigns *campaign.Scheduler
	addr      string
	http      *http.Server
}

// NewServer creates the API server with explicit dependencies.
func NewServer(engine *flow.Engine, campaigns *campaign.Scheduler, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	return &Server{engine: engine, campaigns: campaigns, addr: cfg.Addr}
}

// Routes returns the HTTP handler with all endpoints registered. Exposed for
// tests.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/sms/inbound", s.inboundHandler)
	mux.HandleFunc("/sms/status", s.statusHandler)
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/campaign/start", s.campaignStartHandler)
	return mux
}

// Run starts the HTTP server and blocks until the context is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.http = &http.Server{
		Addr:        s.addr,
		Handler:     s.Routes(),
		ReadTimeout: DefaultRequestTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("api.Run: listening", "addr", s.addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return err
		}
		slog.Info("api.Run: shut down cleanly")
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
