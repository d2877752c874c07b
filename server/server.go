// Package server wires the scheduling engine into a long-running daemon:
// the shop registry, the background sweeper, calendar export, and the
// metrics endpoint.
package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/popupkit/popupkit/export"
	"github.com/popupkit/popupkit/internal/profile"
	"github.com/popupkit/popupkit/metrics"
	"github.com/popupkit/popupkit/scheduler"
	"github.com/popupkit/popupkit/store"
)

type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	Registry *scheduler.Registry
	Sweeper  *scheduler.Sweeper
	Metrics  *metrics.Exporter

	httpServer *http.Server
}

// NewServer assembles the daemon and primes the registry with every
// shop already present in the store.
func NewServer(ctx context.Context, profile *profile.Profile, storeInstance *store.Store) (*Server, error) {
	exporter := metrics.New(metrics.DefaultConfig())

	registry := scheduler.NewRegistry(
		storeInstance,
		int64(profile.WarmLoadLimit),
		profile.ReloadPerMinute,
		scheduler.WithDefaultTimezone(profile.DefaultTimezone),
		scheduler.WithMetrics(exporter),
	)
	exporter.TrackRegistry(registry)

	sweeper := scheduler.NewSweeper(registry, profile.SweepInterval)
	if profile.ExportDir != "" {
		calendars := export.New(profile.ExportDir, profile.FeedBaseURL)
		sweeper.AddHook(calendars.Hook())
	}

	s := &Server{
		Profile:  profile,
		Store:    storeInstance,
		Registry: registry,
		Sweeper:  sweeper,
		Metrics:  exporter,
	}

	if _, err := registry.ReloadAll(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to warm shop registry")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", exporter.Handler())
	mux.HandleFunc("/healthz", s.handleHealthz)
	s.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// Start runs the sweeper and the metrics listener. The listener is
// bound synchronously so address errors surface at startup.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Sweeper.Start(); err != nil {
		return errors.Wrap(err, "failed to start sweeper")
	}

	listener, err := net.Listen("tcp", s.Profile.MetricsAddr())
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", s.Profile.MetricsAddr())
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics listener failed", "error", err)
		}
	}()
	slog.Info("metrics endpoint up", "addr", s.Profile.MetricsAddr())

	go s.Sweeper.Sweep(ctx)
	return nil
}

// Shutdown stops the sweeper, drains the metrics listener, and closes
// the store.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	s.Sweeper.Stop()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			slog.Error("failed to shut down metrics listener", "error", err)
		}
	}

	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close store", "error", err)
	}

	slog.Info("popupkit stopped")
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}
