package controller

import (
	"context"
	"sync"
	"sync/atomic"

	"mcphub/internal/adapter"
	"mcphub/internal/hub"
)

// mockAdapter is a hand-rolled adapter with function hooks for testing.
type mockAdapter struct {
	mu sync.Mutex

	startFunc func(ctx context.Context) error
	stopFunc  func(ctx context.Context) error
	probeFunc func(ctx context.Context) (adapter.ProbeReport, error)
	killFunc  func() error

	startCalls atomic.Int64
	stopCalls  atomic.Int64
	killCalls  atomic.Int64
	pid        int
}

func (m *mockAdapter) Start(ctx context.Context) error {
	m.startCalls.Add(1)
	if m.startFunc != nil {
		return m.startFunc(ctx)
	}
	return nil
}

func (m *mockAdapter) Stop(ctx context.Context) error {
	m.stopCalls.Add(1)
	if m.stopFunc != nil {
		return m.stopFunc(ctx)
	}
	return nil
}

func (m *mockAdapter) Probe(ctx context.Context) (adapter.ProbeReport, error) {
	if m.probeFunc != nil {
		return m.probeFunc(ctx)
	}
	return adapter.ProbeReport{}, nil
}

func (m *mockAdapter) Kill() error {
	m.killCalls.Add(1)
	if m.killFunc != nil {
		return m.killFunc()
	}
	return nil
}

func (m *mockAdapter) PID() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pid
}

// mockFactory registers a shared mock adapter under the given type and
// counts factory invocations.
type mockFactory struct {
	adapter      *mockAdapter
	factoryCalls atomic.Int64
}

func (f *mockFactory) factory(cfg hub.ServerConfig) (adapter.ServerAdapter, error) {
	f.factoryCalls.Add(1)
	return f.adapter, nil
}

func newTestAdapters(serverType string, mock *mockAdapter) (*adapter.Registry, *mockFactory) {
	reg := adapter.NewRegistry()
	f := &mockFactory{adapter: mock}
	if err := reg.Register(serverType, f.factory); err != nil {
		panic(err)
	}
	return reg, f
}
