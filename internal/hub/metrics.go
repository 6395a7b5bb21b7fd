package hub

// HealthMetrics carries advisory runtime metrics for one managed server,
// supplied by the probe. The hub never makes control decisions from them.
type HealthMetrics struct {
	CPUPercent        float64 `json:"cpuPercent"`
	MemoryUsedBytes   uint64  `json:"memoryUsedBytes"`
	MemoryTotalBytes  uint64  `json:"memoryTotalBytes"`
	ActiveConnections int     `json:"activeConnections"`
	RequestCount      uint64  `json:"requestCount"`
	ErrorCount        uint64  `json:"errorCount"`
	ResponseTimeMs    float64 `json:"responseTimeMs"`
}

// MemoryPercent returns the memory usage as a percentage of the total,
// or 0 when the total is unknown.
func (m HealthMetrics) MemoryPercent() float64 {
	if m.MemoryTotalBytes == 0 {
		return 0
	}
	return float64(m.MemoryUsedBytes) / float64(m.MemoryTotalBytes) * 100.0
}

// ErrorRate returns the percentage of requests that failed, or 0 when no
// requests have been observed.
func (m HealthMetrics) ErrorRate() float64 {
	if m.RequestCount == 0 {
		return 0
	}
	return float64(m.ErrorCount) / float64(m.RequestCount) * 100.0
}

// WithinLimits reports whether the sampled metrics sit inside the coarse
// thresholds used for display (high CPU, memory pressure, error rate, or
// slow responses flag the server).
func (m HealthMetrics) WithinLimits() bool {
	return m.CPUPercent < 90.0 &&
		m.MemoryPercent() < 85.0 &&
		m.ErrorRate() < 5.0 &&
		m.ResponseTimeMs < 5000.0
}
