// Package app wires the chatsync server runtime: config, logging, metrics,
// HTTP routes, and the realtime gateway.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chatsync/chatsync/internal/realtime"
	"github.com/chatsync/chatsync/internal/rest"
)

// App is the chatsync server runtime: it owns the store, hub, gateway, and
// HTTP server wiring.
type App struct {
	cfg Config
	log Logger

	registry *prometheus.Registry

	store *realtime.Store
	hub   *realtime.Hub
	ws    *realtime.WSGateway
	rest  *rest.Handler
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) *App {
	if log == nil {
		log = NewLogger(cfg.LogLevel)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	metrics := realtime.NewMetrics(registry)
	store := realtime.NewStore()
	hub := realtime.NewHub(log, store, metrics)
	ws := realtime.NewWSGateway(log, hub, metrics)
	restHandler := rest.NewHandler(log, store, hub)

	return &App{
		cfg:      cfg,
		log:      log,
		registry: registry,
		store:    store,
		hub:      hub,
		ws:       ws,
		rest:     restHandler,
	}
}

// Router builds the full HTTP routing surface.
func (a *App) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	}).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

	r.HandleFunc("/ws", a.ws.HandleWS)

	a.rest.Register(r)

	return rest.WithCORS(WithRequestLogging(r, a.log), a.cfg.CORSOrigin)
}

// Run starts the HTTP server and blocks until context cancellation or fatal
// server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Router(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
