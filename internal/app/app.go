// Package app wires all Quorum subsystems into a running HTTP server.
//
// The App struct owns the server lifecycle: New assembles the route table,
// Run serves until the context is cancelled or the listener fails, and
// Shutdown drains in-flight requests.
//
// For testing, inject route registrars and a metrics handler via functional
// options. When an option is not provided, New falls back to the production
// implementation.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/daybreakhan/quorum/internal/config"
	"github.com/daybreakhan/quorum/internal/observe"
)

// Registrar registers HTTP routes on a mux. Both the Telegram webhook handler
// and the health handler satisfy it.
type Registrar interface {
	Register(mux *http.ServeMux)
}

// App owns the HTTP server serving the webhook, health, and metrics routes.
type App struct {
	cfg     *config.Config
	handler http.Handler
	srv     *http.Server

	metricsHandler http.Handler
	registrars     []Registrar

	mu   sync.Mutex
	ln   net.Listener
	once sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithRegistrar adds a route registrar to the server's mux. Call once per
// subsystem that exposes routes.
func WithRegistrar(r Registrar) Option {
	return func(a *App) { a.registrars = append(a.registrars, r) }
}

// WithMetricsHandler overrides the Prometheus scrape handler served at
// GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// New assembles the route table and the HTTP server. Routes registered:
//
//   - every Registrar's routes (webhook, health)
//   - GET /metrics for Prometheus scrapes
//
// All routes are wrapped in the request-metrics middleware.
func New(cfg *config.Config, metrics *observe.Metrics, opts ...Option) *App {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metricsHandler == nil {
		a.metricsHandler = promhttp.Handler()
	}

	mux := http.NewServeMux()
	for _, r := range a.registrars {
		r.Register(mux)
	}
	mux.Handle("GET /metrics", a.metricsHandler)

	a.handler = observe.Middleware(metrics)(mux)
	a.srv = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return a
}

// Handler returns the fully assembled route table, middleware included.
// Exposed for tests that drive the server through httptest.
func (a *App) Handler() http.Handler { return a.handler }

// Addr returns the listener's address once Run has bound it, or the
// configured address before that. With listen_addr ":0" this is the only way
// to learn the assigned port.
func (a *App) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ln != nil {
		return a.ln.Addr().String()
	}
	return a.srv.Addr
}

// Run binds the listener and serves until ctx is cancelled or the server
// fails. On cancellation it returns nil; the caller is expected to follow up
// with Shutdown.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.srv.Addr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", a.srv.Addr, err)
	}
	a.mu.Lock()
	a.ln = ln
	a.mu.Unlock()

	slog.Info("http server listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return fmt.Errorf("app: serve: %w", err)
	}
}

// Shutdown gracefully drains the HTTP server. Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.once.Do(func() {
		err = a.srv.Shutdown(ctx)
	})
	return err
}
