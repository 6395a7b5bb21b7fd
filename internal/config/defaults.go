package config

import "time"

// DefaultListenAddress is where the HTTP API binds unless configured.
const DefaultListenAddress = "127.0.0.1:8765"

// DefaultConfig returns the built-in base layer.
func DefaultConfig() HubConfig {
	return HubConfig{
		Hub: HubSettings{
			ProbeInterval:   30 * time.Second,
			ProbeTimeout:    5 * time.Second,
			StartupTimeout:  60 * time.Second,
			StopGracePeriod: 10 * time.Second,
		},
		API: APISettings{
			ListenAddress: DefaultListenAddress,
		},
	}
}
