package adapter

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"mcphub/internal/hub"
)

// StaticAdapter fronts a server whose process lifetime is managed outside
// the hub (a sidecar, a system service). Start and Stop are no-ops; the
// probe is an HTTP GET against the configured port.
type StaticAdapter struct {
	cfg    hub.ServerConfig
	client *http.Client
}

// NewStaticAdapter creates an adapter for an externally managed server.
func NewStaticAdapter(cfg hub.ServerConfig) *StaticAdapter {
	return &StaticAdapter{
		cfg:    cfg.Clone(),
		client: &http.Client{},
	}
}

// NewStaticFactory is the Factory for the "static" server type.
func NewStaticFactory() Factory {
	return func(cfg hub.ServerConfig) (ServerAdapter, error) {
		return NewStaticAdapter(cfg), nil
	}
}

// Start is a no-op; the hub does not own the process.
func (a *StaticAdapter) Start(ctx context.Context) error {
	return nil
}

// Stop is a no-op; the hub does not own the process.
func (a *StaticAdapter) Stop(ctx context.Context) error {
	return nil
}

// Probe issues an HTTP GET against the configured port. Any response from
// the server counts as alive; a 5xx reports the failure.
func (a *StaticAdapter) Probe(ctx context.Context) (ProbeReport, error) {
	started := time.Now()

	url := fmt.Sprintf("http://localhost:%d/", a.cfg.Port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ProbeReport{}, fmt.Errorf("failed to create request for %s: %w", a.cfg.ID, err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return ProbeReport{}, fmt.Errorf("failed to connect to %s: %w", a.cfg.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return ProbeReport{}, fmt.Errorf("%s returned status %d", a.cfg.ID, resp.StatusCode)
	}

	return ProbeReport{
		Metrics: &hub.HealthMetrics{
			ResponseTimeMs: float64(time.Since(started).Microseconds()) / 1000.0,
		},
	}, nil
}
