package health

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcphub/internal/adapter"
	"mcphub/internal/hub"
	"mcphub/internal/registry"
)

// fakeClock is a settable clock for driving timeout logic deterministically.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(at time.Time) *fakeClock {
	return &fakeClock{now: at}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// probeAdapter is a minimal adapter whose probe behavior is a hook.
type probeAdapter struct {
	probeFunc   func(ctx context.Context) (adapter.ProbeReport, error)
	probeCalls  atomic.Int64
	recoverFunc func(ctx context.Context) error
}

func (a *probeAdapter) Start(ctx context.Context) error { return nil }
func (a *probeAdapter) Stop(ctx context.Context) error  { return nil }

func (a *probeAdapter) Probe(ctx context.Context) (adapter.ProbeReport, error) {
	a.probeCalls.Add(1)
	if a.probeFunc != nil {
		return a.probeFunc(ctx)
	}
	return adapter.ProbeReport{}, nil
}

// recoverAdapter adds a recovery strategy on top of probeAdapter.
type recoverAdapter struct {
	probeAdapter
	recoverCalls atomic.Int64
}

func (a *recoverAdapter) Recover(ctx context.Context) error {
	a.recoverCalls.Add(1)
	if a.recoverFunc != nil {
		return a.recoverFunc(ctx)
	}
	return nil
}

func testConfig(id string) hub.ServerConfig {
	return hub.ServerConfig{ID: id, Type: "command", Port: 9000, Enabled: true}
}

// seedRecord places a record for id in the registry in the given status.
func seedRecord(t *testing.T, reg *registry.Registry, id string, status hub.ServerStatus, at time.Time) hub.ServerRecord {
	t.Helper()
	rec, created := reg.CreateIfAbsent(hub.NewServerRecord(testConfig(id), at))
	require.True(t, created)
	if status == hub.StatusStopped {
		return rec
	}
	rec, ok := reg.UpdateIf(id, func(r hub.ServerRecord) hub.ServerRecord {
		if status == hub.StatusRunning {
			return r.WithRunning(at, 1000)
		}
		return r.WithStatus(status, at)
	}, hub.StatusStopped)
	require.True(t, ok)
	return rec
}

func staticLookup(m map[string]adapter.ServerAdapter) AdapterLookup {
	return func(id string) adapter.ServerAdapter { return m[id] }
}

func TestTick_ProbeSuccessRefreshesHealth(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(t0)
	reg := registry.New()
	seedRecord(t, reg, "api", hub.StatusRunning, t0)

	ad := &probeAdapter{
		probeFunc: func(ctx context.Context) (adapter.ProbeReport, error) {
			return adapter.ProbeReport{Metrics: &hub.HealthMetrics{
				CPUPercent:     12.5,
				ResponseTimeMs: 8,
			}}, nil
		},
	}
	s := New(reg, staticLookup(map[string]adapter.ServerAdapter{"api": ad}), Options{Clock: clock})

	clock.Advance(time.Minute)
	s.Tick(context.Background())

	rec, ok := reg.Get("api")
	require.True(t, ok)
	assert.Equal(t, hub.StatusRunning, rec.Status)
	assert.Equal(t, clock.Now(), rec.LastHealthCheck)
	require.NotNil(t, rec.Metrics)
	assert.Equal(t, 12.5, rec.Metrics.CPUPercent)
	assert.Equal(t, int64(1), ad.probeCalls.Load())
}

func TestTick_ProbeFailureMarksNotResponding(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(t0)
	reg := registry.New()
	seedRecord(t, reg, "api", hub.StatusRunning, t0)

	ad := &probeAdapter{
		probeFunc: func(ctx context.Context) (adapter.ProbeReport, error) {
			return adapter.ProbeReport{}, errors.New("connection refused")
		},
	}
	s := New(reg, staticLookup(map[string]adapter.ServerAdapter{"api": ad}), Options{Clock: clock})

	s.Tick(context.Background())

	rec, ok := reg.Get("api")
	require.True(t, ok)
	assert.Equal(t, hub.StatusNotResponding, rec.Status)
	assert.Equal(t, "connection refused", rec.ErrorMessage)
}

func TestTick_ProbeTimeoutMarksNotResponding(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(t0)
	reg := registry.New()
	seedRecord(t, reg, "slow", hub.StatusRunning, t0)

	ad := &probeAdapter{
		probeFunc: func(ctx context.Context) (adapter.ProbeReport, error) {
			<-ctx.Done()
			return adapter.ProbeReport{}, ctx.Err()
		},
	}
	s := New(reg, staticLookup(map[string]adapter.ServerAdapter{"slow": ad}), Options{
		Clock:        clock,
		ProbeTimeout: 20 * time.Millisecond,
	})

	s.Tick(context.Background())

	rec, ok := reg.Get("slow")
	require.True(t, ok)
	assert.Equal(t, hub.StatusNotResponding, rec.Status)
}

func TestTick_StartupWithinTimeoutUntouched(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(t0)
	reg := registry.New()
	seedRecord(t, reg, "api", hub.StatusStarting, t0)

	s := New(reg, staticLookup(nil), Options{Clock: clock})

	clock.Advance(30 * time.Second)
	s.Tick(context.Background())

	rec, ok := reg.Get("api")
	require.True(t, ok)
	assert.Equal(t, hub.StatusStarting, rec.Status)
}

func TestTick_StartupTimeoutMarksTimedOut(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(t0)
	reg := registry.New()
	seedRecord(t, reg, "api", hub.StatusStarting, t0)

	s := New(reg, staticLookup(nil), Options{Clock: clock})

	clock.Advance(DefaultStartupTimeout + time.Second)
	s.Tick(context.Background())

	rec, ok := reg.Get("api")
	require.True(t, ok)
	assert.Equal(t, hub.StatusTimeout, rec.Status)
	assert.Contains(t, rec.ErrorMessage, "did not complete")
}

func TestTick_RecoverySucceeds(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(t0)
	reg := registry.New()
	seedRecord(t, reg, "api", hub.StatusError, t0)

	ad := &recoverAdapter{}
	s := New(reg, staticLookup(map[string]adapter.ServerAdapter{"api": ad}), Options{Clock: clock})

	s.Tick(context.Background())

	rec, ok := reg.Get("api")
	require.True(t, ok)
	assert.Equal(t, hub.StatusRunning, rec.Status)
	assert.Empty(t, rec.ErrorMessage)
	assert.Equal(t, int64(1), ad.recoverCalls.Load())
}

func TestTick_RecoveryFailureStaysInError(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(t0)
	reg := registry.New()
	seedRecord(t, reg, "api", hub.StatusError, t0)

	ad := &recoverAdapter{}
	ad.recoverFunc = func(ctx context.Context) error {
		return errors.New("still broken")
	}
	s := New(reg, staticLookup(map[string]adapter.ServerAdapter{"api": ad}), Options{Clock: clock})

	s.Tick(context.Background())

	rec, ok := reg.Get("api")
	require.True(t, ok)
	assert.Equal(t, hub.StatusError, rec.Status)
}

func TestTick_NoRecoveryStrategyLeavesError(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(t0)
	reg := registry.New()
	seedRecord(t, reg, "api", hub.StatusError, t0)

	// Plain adapter without a Recover method.
	ad := &probeAdapter{}
	s := New(reg, staticLookup(map[string]adapter.ServerAdapter{"api": ad}), Options{Clock: clock})

	s.Tick(context.Background())

	rec, ok := reg.Get("api")
	require.True(t, ok)
	assert.Equal(t, hub.StatusError, rec.Status)
	assert.Equal(t, int64(0), ad.probeCalls.Load())
}

func TestTick_PanicIsolatedToOneServer(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(t0)
	reg := registry.New()

	adapters := make(map[string]adapter.ServerAdapter)
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("srv-%d", i)
		seedRecord(t, reg, id, hub.StatusRunning, t0)
		adapters[id] = &probeAdapter{}
	}
	adapters["srv-2"] = &probeAdapter{
		probeFunc: func(ctx context.Context) (adapter.ProbeReport, error) {
			panic("probe exploded")
		},
	}

	s := New(reg, staticLookup(adapters), Options{Clock: clock})
	s.Tick(context.Background())

	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("srv-%d", i)
		rec, ok := reg.Get(id)
		require.True(t, ok)
		if id == "srv-2" {
			assert.Equal(t, hub.StatusError, rec.Status, "panicking server should land in error")
			assert.Contains(t, rec.ErrorMessage, "probe exploded")
		} else {
			assert.Equal(t, hub.StatusRunning, rec.Status, "other servers must be unaffected")
			assert.Equal(t, clock.Now(), rec.LastHealthCheck)
		}
	}
}

func TestTick_StoppedAndStoppingUntouched(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(t0)
	reg := registry.New()
	seedRecord(t, reg, "resting", hub.StatusStopped, t0)
	seedRecord(t, reg, "leaving", hub.StatusStopping, t0)

	ad := &probeAdapter{}
	s := New(reg, staticLookup(map[string]adapter.ServerAdapter{
		"resting": ad,
		"leaving": ad,
	}), Options{Clock: clock})

	clock.Advance(time.Hour)
	s.Tick(context.Background())

	resting, ok := reg.Get("resting")
	require.True(t, ok)
	assert.Equal(t, hub.StatusStopped, resting.Status)

	leaving, ok := reg.Get("leaving")
	require.True(t, ok)
	assert.Equal(t, hub.StatusStopping, leaving.Status)
	assert.Equal(t, int64(0), ad.probeCalls.Load())
}

func TestTick_MissingAdapterSkipsProbe(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(t0)
	reg := registry.New()
	seedRecord(t, reg, "orphan", hub.StatusRunning, t0)

	s := New(reg, staticLookup(nil), Options{Clock: clock})
	s.Tick(context.Background())

	rec, ok := reg.Get("orphan")
	require.True(t, ok)
	assert.Equal(t, hub.StatusRunning, rec.Status)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	reg := registry.New()
	s := New(reg, staticLookup(nil), Options{Interval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestRun_TicksOnInterval(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	reg := registry.New()
	seedRecord(t, reg, "api", hub.StatusRunning, t0)

	ad := &probeAdapter{}
	s := New(reg, staticLookup(map[string]adapter.ServerAdapter{"api": ad}), Options{
		Interval: 5 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	require.Eventually(t, func() bool {
		return ad.probeCalls.Load() >= 2
	}, time.Second, 5*time.Millisecond, "expected at least two probe passes")
}
