// Package config loads the hub's layered YAML configuration: built-in
// defaults, then the user config, then the project config, with later
// layers overriding earlier ones.
package config

import (
	"fmt"
	"time"

	"mcphub/internal/hub"
)

// HubSettings tunes the lifecycle controller and the health scheduler.
type HubSettings struct {
	ProbeInterval   time.Duration `yaml:"probeInterval,omitempty"`
	ProbeTimeout    time.Duration `yaml:"probeTimeout,omitempty"`
	StartupTimeout  time.Duration `yaml:"startupTimeout,omitempty"`
	StopGracePeriod time.Duration `yaml:"stopGracePeriod,omitempty"`
}

// APISettings tunes the HTTP API.
type APISettings struct {
	ListenAddress string `yaml:"listenAddress,omitempty"`
}

// ServerDefinition declares one managed server in configuration.
type ServerDefinition struct {
	ID       string            `yaml:"id"`
	Type     string            `yaml:"type"`
	Port     int               `yaml:"port"`
	Enabled  bool              `yaml:"enabled"`
	Command  []string          `yaml:"command,omitempty"`
	Env      map[string]string `yaml:"env,omitempty"`
	Metadata map[string]string `yaml:"metadata,omitempty"`
}

// ToServerConfig converts the definition to the hub's runtime config type.
func (d ServerDefinition) ToServerConfig() hub.ServerConfig {
	return hub.ServerConfig{
		ID:       d.ID,
		Type:     d.Type,
		Port:     d.Port,
		Enabled:  d.Enabled,
		Command:  d.Command,
		Env:      d.Env,
		Metadata: d.Metadata,
	}
}

// HubConfig is the root configuration document.
type HubConfig struct {
	Hub     HubSettings        `yaml:"hub,omitempty"`
	API     APISettings        `yaml:"api,omitempty"`
	Servers []ServerDefinition `yaml:"servers,omitempty"`
}

// Validate checks the assembled configuration for conflicts the layering
// cannot catch: duplicate ids and invalid server definitions.
func (c HubConfig) Validate() error {
	seen := make(map[string]bool, len(c.Servers))
	for _, def := range c.Servers {
		if seen[def.ID] {
			return fmt.Errorf("duplicate server id: %s", def.ID)
		}
		seen[def.ID] = true
		if err := def.ToServerConfig().Validate(); err != nil {
			return fmt.Errorf("server %q: %w", def.ID, err)
		}
	}
	return nil
}
