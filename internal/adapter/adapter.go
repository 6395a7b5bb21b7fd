// Package adapter defines the pluggable contract between the hub and the
// servers it manages, plus the bundled adapter implementations. An adapter
// instance is owned exclusively by the single server id it serves.
package adapter

import (
	"context"

	"mcphub/internal/hub"
)

// ProbeReport is the successful outcome of a health probe. Metrics are
// advisory and may be nil when the adapter has nothing to report.
type ProbeReport struct {
	Metrics *hub.HealthMetrics
}

// ServerAdapter is implemented once per managed-server type. Start and
// Stop may block until the underlying server settles; Probe must respect
// the deadline on its context.
type ServerAdapter interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Probe(ctx context.Context) (ProbeReport, error)
}

// ForceStopper is an optional interface for adapters that support forced
// termination after the graceful grace period expires.
type ForceStopper interface {
	Kill() error
}

// Recoverer is an optional interface for adapters that can attempt
// remediation of an error-state server. Absent this interface the hub
// assumes no self-healing.
type Recoverer interface {
	Recover(ctx context.Context) error
}

// ProcessInfo is an optional interface for adapters backed by an OS
// process.
type ProcessInfo interface {
	PID() int
}

// Factory builds a fresh adapter instance for one server configuration.
type Factory func(cfg hub.ServerConfig) (ServerAdapter, error)
