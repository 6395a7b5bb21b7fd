package hub

import (
	"fmt"
	"strings"
	"time"
)

// ServerStatus represents the current status of a managed server.
type ServerStatus string

const (
	StatusStopped       ServerStatus = "stopped"
	StatusStarting      ServerStatus = "starting"
	StatusRunning       ServerStatus = "running"
	StatusStopping      ServerStatus = "stopping"
	StatusError         ServerStatus = "error"
	StatusNotResponding ServerStatus = "not responding"
	StatusTimeout       ServerStatus = "timeout"
	StatusDegraded      ServerStatus = "degraded"
	StatusMaintenance   ServerStatus = "maintenance"
)

// ParseServerStatus converts a string to a ServerStatus.
func ParseServerStatus(value string) (ServerStatus, error) {
	switch strings.ToLower(value) {
	case "stopped":
		return StatusStopped, nil
	case "starting":
		return StatusStarting, nil
	case "running":
		return StatusRunning, nil
	case "stopping":
		return StatusStopping, nil
	case "error":
		return StatusError, nil
	case "not responding":
		return StatusNotResponding, nil
	case "timeout":
		return StatusTimeout, nil
	case "degraded":
		return StatusDegraded, nil
	case "maintenance":
		return StatusMaintenance, nil
	default:
		return "", fmt.Errorf("unknown server status: %s", value)
	}
}

// IsHealthy reports whether the status counts as healthy for display
// purposes. Transitional states are considered healthy; maintenance is a
// planned state.
func (s ServerStatus) IsHealthy() bool {
	switch s {
	case StatusRunning, StatusStarting, StatusMaintenance:
		return true
	default:
		return false
	}
}

// IsActive reports whether the server is in an active state, i.e. there
// may be a live process behind the record.
func (s ServerStatus) IsActive() bool {
	switch s {
	case StatusRunning, StatusStarting, StatusDegraded, StatusMaintenance:
		return true
	default:
		return false
	}
}

// Startable reports whether a start() call is permitted from this status.
// A fresh start is allowed from the resting state and from the failure
// states a caller may want to retry out of; everything else is a no-op.
func (s ServerStatus) Startable() bool {
	switch s {
	case StatusStopped, StatusError, StatusTimeout:
		return true
	default:
		return false
	}
}

func (s ServerStatus) String() string {
	return string(s)
}

// ServerConfig is the immutable identity and static configuration of a
// managed server, supplied by the caller at start time.
type ServerConfig struct {
	ID       string            `json:"id" yaml:"id"`
	Type     string            `json:"type" yaml:"type"`
	Port     int               `json:"port" yaml:"port"`
	Enabled  bool              `json:"enabled" yaml:"enabled"`
	Command  []string          `json:"command,omitempty" yaml:"command,omitempty"`
	Env      map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Validate checks the caller contract for a server configuration.
// Violations are reported as a *ValidationError.
func (c ServerConfig) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return &ValidationError{Field: "id", Reason: "must not be empty"}
	}
	if strings.TrimSpace(c.Type) == "" {
		return &ValidationError{Field: "type", Reason: "must not be empty"}
	}
	if c.Port <= 0 {
		return &ValidationError{Field: "port", Reason: fmt.Sprintf("must be positive, got %d", c.Port)}
	}
	return nil
}

// Clone returns a deep copy of the configuration.
func (c ServerConfig) Clone() ServerConfig {
	out := c
	if c.Command != nil {
		out.Command = make([]string, len(c.Command))
		copy(out.Command, c.Command)
	}
	if c.Env != nil {
		out.Env = make(map[string]string, len(c.Env))
		for k, v := range c.Env {
			out.Env[k] = v
		}
	}
	if c.Metadata != nil {
		out.Metadata = make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// ServerRecord is the hub's snapshot of one managed server. Records are
// immutable: every mutation goes through a With* constructor that returns
// a new value, and the registry hands out copies only.
type ServerRecord struct {
	Config ServerConfig `json:"config"`
	Status ServerStatus `json:"status"`
	PID    int          `json:"pid,omitempty"`

	// StartTime is set when the record enters running and is monotonically
	// non-decreasing across successive running periods.
	StartTime time.Time `json:"startTime,omitempty"`

	// LastTransition is set on every status change and drives the startup
	// timeout in the health scheduler.
	LastTransition time.Time `json:"lastTransition,omitempty"`

	LastHealthCheck time.Time      `json:"lastHealthCheck,omitempty"`
	ErrorMessage    string         `json:"errorMessage,omitempty"`
	Metrics         *HealthMetrics `json:"healthMetrics,omitempty"`
}

// NewServerRecord creates a stopped record for the given configuration.
func NewServerRecord(cfg ServerConfig, at time.Time) ServerRecord {
	return ServerRecord{
		Config:         cfg.Clone(),
		Status:         StatusStopped,
		LastTransition: at,
	}
}

// Clone returns a deep copy of the record.
func (r ServerRecord) Clone() ServerRecord {
	out := r
	out.Config = r.Config.Clone()
	if r.Metrics != nil {
		m := *r.Metrics
		out.Metrics = &m
	}
	return out
}

// WithStatus returns a copy of the record in the given status. The error
// message is cleared; use WithError for failure transitions.
func (r ServerRecord) WithStatus(status ServerStatus, at time.Time) ServerRecord {
	out := r.Clone()
	out.Status = status
	out.LastTransition = at
	out.ErrorMessage = ""
	return out
}

// WithConfig returns a copy of the record carrying a fresh configuration.
// Used when a retried start supplies an updated config for an existing id.
func (r ServerRecord) WithConfig(cfg ServerConfig) ServerRecord {
	out := r.Clone()
	out.Config = cfg.Clone()
	return out
}

// WithRunning returns a copy of the record in the running status with a
// fresh start time. The start time is bumped past the previous one when
// the clock has not advanced, so successive running periods never report
// an earlier timestamp.
func (r ServerRecord) WithRunning(at time.Time, pid int) ServerRecord {
	out := r.WithStatus(StatusRunning, at)
	start := at
	if !start.After(r.StartTime) {
		start = r.StartTime.Add(time.Nanosecond)
	}
	out.StartTime = start
	out.LastHealthCheck = at
	out.PID = pid
	return out
}

// WithError returns a copy of the record in the given failure status with
// the captured message.
func (r ServerRecord) WithError(status ServerStatus, message string, at time.Time) ServerRecord {
	out := r.Clone()
	out.Status = status
	out.LastTransition = at
	out.ErrorMessage = message
	return out
}

// WithHealth returns a copy of the record with refreshed health data.
// The status is left untouched; metrics are advisory and supplied by the
// probe.
func (r ServerRecord) WithHealth(at time.Time, metrics *HealthMetrics) ServerRecord {
	out := r.Clone()
	out.LastHealthCheck = at
	if metrics != nil {
		m := *metrics
		out.Metrics = &m
	}
	return out
}

// WithStopped returns a copy of the record back in the stopped resting
// state, clearing runtime fields.
func (r ServerRecord) WithStopped(at time.Time) ServerRecord {
	out := r.WithStatus(StatusStopped, at)
	out.PID = 0
	out.Metrics = nil
	return out
}
