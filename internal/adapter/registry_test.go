package adapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcphub/internal/hub"
)

type nopAdapter struct{}

func (nopAdapter) Start(ctx context.Context) error { return nil }
func (nopAdapter) Stop(ctx context.Context) error  { return nil }
func (nopAdapter) Probe(ctx context.Context) (ProbeReport, error) {
	return ProbeReport{}, nil
}

func TestRegistry_RegisterAndNew(t *testing.T) {
	reg := NewRegistry()

	err := reg.Register("echo", func(cfg hub.ServerConfig) (ServerAdapter, error) {
		return nopAdapter{}, nil
	})
	require.NoError(t, err)

	ad, err := reg.New(hub.ServerConfig{ID: "s1", Type: "echo", Port: 9000})
	require.NoError(t, err)
	assert.NotNil(t, ad)
}

func TestRegistry_DuplicateType(t *testing.T) {
	reg := NewRegistry()
	factory := func(cfg hub.ServerConfig) (ServerAdapter, error) { return nopAdapter{}, nil }

	require.NoError(t, reg.Register("echo", factory))
	err := reg.Register("echo", factory)
	assert.Error(t, err)
}

func TestRegistry_UnknownType(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.New(hub.ServerConfig{ID: "s1", Type: "mystery", Port: 9000})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "mystery")
}

func TestRegistry_InvalidRegistration(t *testing.T) {
	reg := NewRegistry()

	assert.Error(t, reg.Register("", func(cfg hub.ServerConfig) (ServerAdapter, error) { return nopAdapter{}, nil }))
	assert.Error(t, reg.Register("echo", nil))
}

func TestRegistry_Types(t *testing.T) {
	reg := NewRegistry()
	factory := func(cfg hub.ServerConfig) (ServerAdapter, error) { return nopAdapter{}, nil }

	require.NoError(t, reg.Register("mcp", factory))
	require.NoError(t, reg.Register("command", factory))
	require.NoError(t, reg.Register("static", factory))

	assert.Equal(t, []string{"command", "mcp", "static"}, reg.Types())
}

func TestNewCommandAdapter_RequiresCommand(t *testing.T) {
	_, err := NewCommandAdapter(hub.ServerConfig{ID: "s1", Type: "command", Port: 9000})
	assert.Error(t, err)

	ad, err := NewCommandAdapter(hub.ServerConfig{
		ID:      "s1",
		Type:    "command",
		Port:    9000,
		Command: []string{"sleep", "60"},
	})
	require.NoError(t, err)
	assert.Zero(t, ad.PID())
}

func TestCommandAdapter_StopBeforeStart(t *testing.T) {
	ad, err := NewCommandAdapter(hub.ServerConfig{
		ID:      "s1",
		Type:    "command",
		Port:    9000,
		Command: []string{"sleep", "60"},
	})
	require.NoError(t, err)

	// Stopping a never-started process is a safe no-op.
	assert.NoError(t, ad.Stop(context.Background()))
	assert.NoError(t, ad.Kill())
}
