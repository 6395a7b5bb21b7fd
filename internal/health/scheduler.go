// Package health keeps server status and metrics fresh. The scheduler
// runs on a fixed interval and fans out one probe goroutine per server per
// tick, so no server's probe can delay another's and no probe failure can
// abort the loop. It owns the startup-timeout watchdog: a stuck start is
// detected here, not in the lifecycle controller.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mcphub/internal/adapter"
	"mcphub/internal/hub"
	"mcphub/internal/registry"
	"mcphub/pkg/logging"
)

const (
	// DefaultInterval is the pause between scheduler ticks.
	DefaultInterval = 30 * time.Second

	// DefaultProbeTimeout bounds a single probe; an expired probe is
	// abandoned for the tick and treated as a failure.
	DefaultProbeTimeout = 5 * time.Second

	// DefaultStartupTimeout is how long a record may sit in starting
	// before it is marked timed out.
	DefaultStartupTimeout = 60 * time.Second
)

// AdapterLookup resolves the live adapter for a server id, or nil when the
// hub holds no instance for it.
type AdapterLookup func(id string) adapter.ServerAdapter

// Options tunes the scheduler. Zero values select the defaults.
type Options struct {
	Interval       time.Duration
	ProbeTimeout   time.Duration
	StartupTimeout time.Duration
	Clock          Clock
}

// Scheduler is the periodic health prober.
type Scheduler struct {
	registry *registry.Registry
	lookup   AdapterLookup

	interval       time.Duration
	probeTimeout   time.Duration
	startupTimeout time.Duration
	clock          Clock
}

// New creates a health scheduler over the registry. The lookup is how the
// scheduler reaches each server's adapter without sharing any lock with
// the lifecycle controller.
func New(reg *registry.Registry, lookup AdapterLookup, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}
	if opts.StartupTimeout <= 0 {
		opts.StartupTimeout = DefaultStartupTimeout
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	return &Scheduler{
		registry:       reg,
		lookup:         lookup,
		interval:       opts.Interval,
		probeTimeout:   opts.ProbeTimeout,
		startupTimeout: opts.StartupTimeout,
		clock:          opts.Clock,
	}
}

// Run executes ticks on the configured interval until the context is
// cancelled. Nothing that happens inside a tick is fatal to the loop.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logging.Info("HealthScheduler", "Health monitoring started (interval: %s)", s.interval)

	for {
		select {
		case <-ctx.Done():
			logging.Info("HealthScheduler", "Health monitoring stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one probing pass over every registered server, one goroutine
// per server, and waits for the pass to finish.
func (s *Scheduler) Tick(ctx context.Context) {
	snapshot := s.registry.Snapshot()
	if len(snapshot) == 0 {
		return
	}

	logging.Debug("HealthScheduler", "Performing health checks for %d servers", len(snapshot))

	var wg sync.WaitGroup
	for _, rec := range snapshot {
		wg.Add(1)
		go func(rec hub.ServerRecord) {
			defer wg.Done()
			s.checkServer(ctx, rec)
		}(rec)
	}
	wg.Wait()
}

// checkServer handles one server's outcome for the tick. Any panic is
// converted into a status update for that server only.
func (s *Scheduler) checkServer(ctx context.Context, rec hub.ServerRecord) {
	id := rec.Config.ID

	defer func() {
		if r := recover(); r != nil {
			logging.Warn("HealthScheduler", "Health check panicked for %s: %v", id, r)
			s.registry.UpdateIf(id, func(cur hub.ServerRecord) hub.ServerRecord {
				return cur.WithError(hub.StatusError, fmt.Sprintf("health check failed: %v", r), s.clock.Now())
			}, rec.Status)
		}
	}()

	switch rec.Status {
	case hub.StatusRunning:
		s.probeRunning(ctx, rec)
	case hub.StatusStarting:
		s.checkStartupProgress(rec)
	case hub.StatusError:
		s.attemptRecovery(ctx, rec)
	default:
		// Remaining states are owned by the lifecycle controller.
	}
}

// probeRunning probes a running server; success refreshes metrics, failure
// or timeout marks the server not responding.
func (s *Scheduler) probeRunning(ctx context.Context, rec hub.ServerRecord) {
	id := rec.Config.ID

	ad := s.lookup(id)
	if ad == nil {
		logging.Debug("HealthScheduler", "No adapter instance for %s, skipping probe", id)
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	report, err := ad.Probe(probeCtx)
	cancel()

	if err != nil {
		logging.Warn("HealthScheduler", "Probe failed for %s: %v", id, err)
		s.registry.UpdateIf(id, func(cur hub.ServerRecord) hub.ServerRecord {
			return cur.WithError(hub.StatusNotResponding, err.Error(), s.clock.Now())
		}, hub.StatusRunning)
		return
	}

	s.registry.UpdateIf(id, func(cur hub.ServerRecord) hub.ServerRecord {
		return cur.WithHealth(s.clock.Now(), report.Metrics)
	}, hub.StatusRunning)
}

// checkStartupProgress marks a server timed out when it has been starting
// for longer than the startup timeout.
func (s *Scheduler) checkStartupProgress(rec hub.ServerRecord) {
	id := rec.Config.ID

	elapsed := s.clock.Now().Sub(rec.LastTransition)
	if elapsed <= s.startupTimeout {
		return // still settling
	}

	logging.Warn("HealthScheduler", "Server %s stuck in starting for %s, marking timed out", id, elapsed)
	s.registry.UpdateIf(id, func(cur hub.ServerRecord) hub.ServerRecord {
		return cur.WithError(hub.StatusTimeout,
			fmt.Sprintf("startup did not complete within %s", s.startupTimeout), s.clock.Now())
	}, hub.StatusStarting)
}

// attemptRecovery offers an error-state server to its adapter's recovery
// strategy, when one exists. Absent a strategy or on failure the record
// stays in error.
func (s *Scheduler) attemptRecovery(ctx context.Context, rec hub.ServerRecord) {
	id := rec.Config.ID

	ad := s.lookup(id)
	rc, ok := ad.(adapter.Recoverer)
	if ad == nil || !ok {
		return
	}

	logging.Info("HealthScheduler", "Attempting recovery for server: %s", id)

	recoverCtx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	err := rc.Recover(recoverCtx)
	cancel()

	if err != nil {
		logging.Warn("HealthScheduler", "Recovery failed for %s: %v", id, err)
		return
	}

	s.registry.UpdateIf(id, func(cur hub.ServerRecord) hub.ServerRecord {
		out := cur.WithStatus(hub.StatusRunning, s.clock.Now())
		out.LastHealthCheck = s.clock.Now()
		return out
	}, hub.StatusError)
	logging.Info("HealthScheduler", "Server %s recovered", id)
}
