// Package controller drives the per-server state machine: start, stop and
// restart. Operations on the same server id are serialized through the
// registry's atomic status guard, never a coarse lock, so unrelated ids
// proceed fully concurrently.
package controller

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

// DefaultGracePeriod bounds the wait for a graceful stop before the
// controller escalates to forced termination.
const DefaultGracePeriod = 10 * time.Second

// Options tunes the controller. Zero values select the defaults.
type Options struct {
	// GracePeriod is the bounded wait for a graceful stop.
	GracePeriod time.Duration

	// Now supplies the controller's clock; tests inject a fake.
	Now func() time.Time
}

// Controller owns adapter invocation and the lifecycle transitions of
// every managed server.
type Controller struct {
	registry *registry.Registry
	adapters *adapter.Registry

	gracePeriod time.Duration
	now         func() time.Time

	// instances maps server id to its live adapter. Adapters are owned
	// exclusively by their id and replaced on each fresh start.
	mu        sync.Mutex
	instances map[string]adapter.ServerAdapter
}

// New creates a lifecycle controller over the given registries.
func New(reg *registry.Registry, adapters *adapter.Registry, opts Options) *Controller {
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Controller{
		registry:    reg,
		adapters:    adapters,
		gracePeriod: opts.GracePeriod,
		now:         opts.Now,
		instances:   make(map[string]adapter.ServerAdapter),
	}
}

// Adapter returns the live adapter instance for a server id, or nil. The
// health scheduler probes through this lookup.
func (c *Controller) Adapter(id string) adapter.ServerAdapter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.instances[id]
}

// Start brings a server up. Validation failures surface as a typed error
// with no state change; adapter failures are recorded on the returned
// record (status error), not returned as an error. A start for an id that
// is already starting or running is a no-op returning the current record.
func (c *Controller) Start(ctx context.Context, cfg hub.ServerConfig) (hub.ServerRecord, error) {
	if err := cfg.Validate(); err != nil {
		return hub.ServerRecord{}, err
	}

	now := c.now()
	rec, created := c.registry.CreateIfAbsent(hub.NewServerRecord(cfg, now))
	if created {
		logging.Debug("Controller", "Registered server %s (type: %s, port: %d)", cfg.ID, cfg.Type, cfg.Port)
	}

	// Claim the transition. Exactly one concurrent caller wins; losers
	// observe the winner's in-progress or final state.
	claimed, ok := c.registry.UpdateIf(cfg.ID, func(r hub.ServerRecord) hub.ServerRecord {
		return r.WithConfig(cfg).WithStatus(hub.StatusStarting, c.now())
	}, hub.StatusStopped, hub.StatusError, hub.StatusTimeout)
	if !ok {
		return claimed, nil
	}

	ad, err := c.adapters.New(cfg)
	if err != nil {
		rec, _ = c.registry.UpdateIf(cfg.ID, func(r hub.ServerRecord) hub.ServerRecord {
			return r.WithError(hub.StatusError, err.Error(), c.now())
		}, hub.StatusStarting)
		logging.Error("Controller", err, "No adapter for server %s", cfg.ID)
		return rec, nil
	}

	c.mu.Lock()
	c.instances[cfg.ID] = ad
	c.mu.Unlock()

	logging.Info("Controller", "Starting server: %s (type: %s)", cfg.ID, cfg.Type)

	if err := ad.Start(ctx); err != nil {
		rec, _ = c.registry.UpdateIf(cfg.ID, func(r hub.ServerRecord) hub.ServerRecord {
			return r.WithError(hub.StatusError, err.Error(), c.now())
		}, hub.StatusStarting)
		logging.Error("Controller", err, "Server %s failed to start", cfg.ID)
		return rec, nil
	}

	var pid int
	if pi, ok := ad.(adapter.ProcessInfo); ok {
		pid = pi.PID()
	}

	// The startup-timeout watchdog lives in the health scheduler; if it
	// already moved the record to timeout this swap loses and the timeout
	// stands.
	rec, ok = c.registry.UpdateIf(cfg.ID, func(r hub.ServerRecord) hub.ServerRecord {
		return r.WithRunning(c.now(), pid)
	}, hub.StatusStarting)
	if ok {
		logging.Info("Controller", "Server %s is running (PID: %d)", cfg.ID, pid)
	}
	return rec, nil
}

// Stop brings a server down, gracefully first and forcibly after the
// grace period. Stopping an already-stopped server is a no-op; an unknown
// id returns hub.ErrUnknownServer. A stop issued while a start is in
// flight waits for the start to settle before acting.
func (c *Controller) Stop(ctx context.Context, id string) (hub.ServerRecord, error) {
	rec, ok := c.registry.Get(id)
	if !ok {
		return hub.ServerRecord{}, hub.ErrUnknownServer
	}

	for {
		switch rec.Status {
		case hub.StatusStopped:
			return rec, nil // idempotent no-op
		case hub.StatusStarting:
			// Never interrupt an indeterminate start.
			settled, err := c.registry.WaitUntilSettled(ctx, id, hub.StatusStarting)
			if err != nil {
				return settled, err
			}
			rec = settled
			continue
		case hub.StatusStopping:
			// Another stop owns the termination sequence; observe its outcome.
			settled, err := c.registry.WaitUntilSettled(ctx, id, hub.StatusStopping)
			if err != nil {
				return settled, err
			}
			return settled, nil
		}

		claimed, ok := c.registry.UpdateIf(id, func(r hub.ServerRecord) hub.ServerRecord {
			return r.WithStatus(hub.StatusStopping, c.now())
		}, rec.Status)
		if !ok {
			// Lost the race; re-read and decide again.
			rec, ok = c.registry.Get(id)
			if !ok {
				return hub.ServerRecord{}, hub.ErrUnknownServer
			}
			continue
		}
		return c.terminate(ctx, claimed), nil
	}
}

// terminate runs the graceful-then-forced shutdown sequence for a record
// already claimed into the stopping status.
func (c *Controller) terminate(ctx context.Context, rec hub.ServerRecord) hub.ServerRecord {
	id := rec.Config.ID

	c.mu.Lock()
	ad := c.instances[id]
	c.mu.Unlock()

	if ad == nil {
		// No live adapter (e.g. recorded from a previous hub run); nothing
		// to terminate.
		out, _ := c.registry.UpdateIf(id, func(r hub.ServerRecord) hub.ServerRecord {
			return r.WithStopped(c.now())
		}, hub.StatusStopping)
		return out
	}

	logging.Info("Controller", "Stopping server: %s", id)

	graceCtx, cancel := context.WithTimeout(ctx, c.gracePeriod)
	err := ad.Stop(graceCtx)
	cancel()

	if err != nil {
		// Grace period expired or the graceful path failed; escalate.
		logging.Warn("Controller", "Graceful stop of %s failed (%v), forcing termination", id, err)

		fs, canForce := ad.(adapter.ForceStopper)
		if !canForce {
			out, _ := c.registry.UpdateIf(id, func(r hub.ServerRecord) hub.ServerRecord {
				return r.WithError(hub.StatusError, fmt.Sprintf("stop failed: %v", err), c.now())
			}, hub.StatusStopping)
			return out
		}
		if kerr := fs.Kill(); kerr != nil {
			logging.Error("Controller", kerr, "Forced termination of %s failed", id)
			out, _ := c.registry.UpdateIf(id, func(r hub.ServerRecord) hub.ServerRecord {
				return r.WithError(hub.StatusError, fmt.Sprintf("forced termination failed: %v", kerr), c.now())
			}, hub.StatusStopping)
			return out
		}
		// Forced termination after grace expiry is a normal outcome.
		logging.Warn("Controller", "Server %s terminated forcibly", id)
	}

	out, _ := c.registry.UpdateIf(id, func(r hub.ServerRecord) hub.ServerRecord {
		return r.WithStopped(c.now())
	}, hub.StatusStopping)

	c.mu.Lock()
	delete(c.instances, id)
	c.mu.Unlock()

	logging.Info("Controller", "Stopped server: %s", id)
	return out
}

// Restart composes Stop and Start using the previously stored config. An
// unknown id returns hub.ErrUnknownServer; if the stop leg fails the
// restart aborts with the record left in error.
func (c *Controller) Restart(ctx context.Context, id string) (hub.ServerRecord, error) {
	rec, ok := c.registry.Get(id)
	if !ok {
		return hub.ServerRecord{}, hub.ErrUnknownServer
	}
	cfg := rec.Config

	stopped, err := c.Stop(ctx, id)
	if err != nil {
		return stopped, err
	}
	if stopped.Status != hub.StatusStopped {
		logging.Warn("Controller", "Restart of %s aborted: stop left status %s", id, stopped.Status)
		return stopped, nil
	}

	return c.Start(ctx, cfg)
}

// StopAll stops every registered server. Used during hub shutdown;
// individual failures are recorded per server and do not abort the sweep.
func (c *Controller) StopAll(ctx context.Context) {
	for _, rec := range c.registry.Snapshot() {
		if _, err := c.Stop(ctx, rec.Config.ID); err != nil {
			logging.Error("Controller", err, "Failed to stop server %s during shutdown", rec.Config.ID)
		}
	}
}
