package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const defaultSweepInterval = 5 * time.Minute

// SweepHook runs after each registry resync. Feed regeneration hangs
// off this.
type SweepHook func(ctx context.Context, r *Registry)

// Sweeper periodically resyncs every loaded shop from the store so
// managers converge on external writes without webhooks.
type Sweeper struct {
	registry *Registry
	interval time.Duration
	parser   cron.Parser
	c        *cron.Cron
	hooks    []SweepHook
}

// NewSweeper builds a sweeper over the registry. A non-positive
// interval falls back to the default.
func NewSweeper(registry *Registry, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Sweeper{
		registry: registry,
		interval: interval,
		// Descriptor enables the @every form used for the sweep spec.
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// AddHook registers a hook to run after each sweep. Hooks must be
// registered before Start.
func (s *Sweeper) AddHook(h SweepHook) {
	s.hooks = append(s.hooks, h)
}

// Start schedules the periodic sweep and returns immediately.
func (s *Sweeper) Start() error {
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(time.UTC))
	if _, err := s.c.AddFunc(fmt.Sprintf("@every %s", s.interval), s.sweep); err != nil {
		return err
	}
	s.c.Start()
	slog.Info("schedule sweeper started", "interval", s.interval.String())
	return nil
}

// Stop halts the schedule and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	if s.c == nil {
		return
	}
	<-s.c.Stop().Done()
	slog.Info("schedule sweeper stopped")
}

// Sweep runs one resync pass immediately. Start calls this on the
// cron schedule; callers may also invoke it directly, for a
// warm-up pass at boot.
func (s *Sweeper) Sweep(ctx context.Context) {
	start := time.Now()
	reloaded, err := s.registry.ReloadAll(ctx)
	if err != nil {
		slog.Error("sweep failed", "error", err)
		return
	}
	for _, hook := range s.hooks {
		hook(ctx, s.registry)
	}
	slog.Debug("sweep finished", "shops", reloaded, "elapsed", time.Since(start).String())
}

func (s *Sweeper) sweep() {
	// Each pass gets its own deadline so a stuck store cannot pile up
	// overlapping sweeps.
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()
	s.Sweep(ctx)
}
