// Package status exposes read-only views of the hub's state: per-server
// snapshots and an aggregated system overview. It never mutates the
// registry and never talks to adapters.
package status

import (
	"runtime"
	"time"

	"mcphub/internal/hub"
	"mcphub/internal/registry"
)

// SystemMetrics describes the hub process itself.
type SystemMetrics struct {
	NumCPU         int     `json:"numCpu"`
	NumGoroutine   int     `json:"numGoroutine"`
	HeapAllocBytes uint64  `json:"heapAllocBytes"`
	HeapSysBytes   uint64  `json:"heapSysBytes"`
	HeapPercent    float64 `json:"heapPercent"`
	GoVersion      string  `json:"goVersion"`
}

// Overview is a point-in-time aggregate over every managed server plus
// the hub's own process metrics.
type Overview struct {
	Timestamp    time.Time          `json:"timestamp"`
	TotalServers int                `json:"totalServers"`
	Healthy      int                `json:"healthyServers"`
	Unhealthy    int                `json:"unhealthyServers"`
	System       SystemMetrics      `json:"systemMetrics"`
	Servers      []hub.ServerRecord `json:"servers"`
}

// Aggregator builds status views from the registry.
type Aggregator struct {
	registry *registry.Registry
	now      func() time.Time
}

// New creates an aggregator over the registry. A nil now func selects the
// wall clock.
func New(reg *registry.Registry, now func() time.Time) *Aggregator {
	if now == nil {
		now = time.Now
	}
	return &Aggregator{registry: reg, now: now}
}

// Server returns the record for one server id.
func (a *Aggregator) Server(id string) (hub.ServerRecord, error) {
	rec, ok := a.registry.Get(id)
	if !ok {
		return hub.ServerRecord{}, hub.ErrUnknownServer
	}
	return rec, nil
}

// Servers returns every record at a single logical instant, in
// registration order.
func (a *Aggregator) Servers() []hub.ServerRecord {
	return a.registry.Snapshot()
}

// SystemOverview aggregates one registry snapshot into counts and attaches
// the hub's process metrics. Healthy counts servers that are actually
// serving; transitional and failed states count as unhealthy.
func (a *Aggregator) SystemOverview() Overview {
	servers := a.registry.Snapshot()

	healthy := 0
	for _, rec := range servers {
		if rec.Status == hub.StatusRunning {
			healthy++
		}
	}

	return Overview{
		Timestamp:    a.now(),
		TotalServers: len(servers),
		Healthy:      healthy,
		Unhealthy:    len(servers) - healthy,
		System:       collectSystemMetrics(),
		Servers:      servers,
	}
}

func collectSystemMetrics() SystemMetrics {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	heapPercent := 0.0
	if mem.HeapSys > 0 {
		heapPercent = float64(mem.HeapAlloc) / float64(mem.HeapSys) * 100
	}

	return SystemMetrics{
		NumCPU:         runtime.NumCPU(),
		NumGoroutine:   runtime.NumGoroutine(),
		HeapAllocBytes: mem.HeapAlloc,
		HeapSysBytes:   mem.HeapSys,
		HeapPercent:    heapPercent,
		GoVersion:      runtime.Version(),
	}
}
