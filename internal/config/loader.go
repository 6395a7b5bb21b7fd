package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// For mocking in tests
var osUserHomeDir = os.UserHomeDir
var osGetwd = os.Getwd

const (
	userConfigDir    = ".config/mcphub"
	projectConfigDir = ".mcphub"
	configFileName   = "config.yaml"
)

// Load assembles the hub configuration by layering defaults, the user
// config and the project config. Missing files are fine; unreadable or
// invalid files are errors.
func Load() (HubConfig, error) {
	config := DefaultConfig()

	userConfigPath, err := getUserConfigPath()
	if err != nil {
		// User config is optional; carry on with defaults.
		fmt.Fprintf(os.Stderr, "Warning: Could not determine user config path: %v\n", err)
	} else {
		if _, err := os.Stat(userConfigPath); !os.IsNotExist(err) {
			userConfig, err := loadConfigFromFile(userConfigPath)
			if err != nil {
				return HubConfig{}, fmt.Errorf("error loading user config from %s: %w", userConfigPath, err)
			}
			config = mergeConfigs(config, userConfig)
		}
	}

	projectConfigPath, err := getProjectConfigPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not determine project config path: %v\n", err)
	} else {
		if _, err := os.Stat(projectConfigPath); !os.IsNotExist(err) {
			projectConfig, err := loadConfigFromFile(projectConfigPath)
			if err != nil {
				return HubConfig{}, fmt.Errorf("error loading project config from %s: %w", projectConfigPath, err)
			}
			config = mergeConfigs(config, projectConfig)
		}
	}

	if err := config.Validate(); err != nil {
		return HubConfig{}, err
	}
	return config, nil
}

var getUserConfigPath = func() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

var getProjectConfigPath = func() (string, error) {
	wd, err := osGetwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, projectConfigDir, configFileName), nil
}

func loadConfigFromFile(filePath string) (HubConfig, error) {
	var config HubConfig
	data, err := os.ReadFile(filePath)
	if err != nil {
		return HubConfig{}, err
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return HubConfig{}, err
	}
	return config, nil
}

// mergeConfigs merges 'overlay' into 'base'. Scalars override when set;
// server definitions are merged by id with overlay winning, keeping base
// order first and appending new overlay servers in their own order.
func mergeConfigs(base, overlay HubConfig) HubConfig {
	merged := base

	if overlay.Hub.ProbeInterval != 0 {
		merged.Hub.ProbeInterval = overlay.Hub.ProbeInterval
	}
	if overlay.Hub.ProbeTimeout != 0 {
		merged.Hub.ProbeTimeout = overlay.Hub.ProbeTimeout
	}
	if overlay.Hub.StartupTimeout != 0 {
		merged.Hub.StartupTimeout = overlay.Hub.StartupTimeout
	}
	if overlay.Hub.StopGracePeriod != 0 {
		merged.Hub.StopGracePeriod = overlay.Hub.StopGracePeriod
	}

	if overlay.API.ListenAddress != "" {
		merged.API.ListenAddress = overlay.API.ListenAddress
	}

	if len(overlay.Servers) > 0 {
		overlayByID := make(map[string]ServerDefinition, len(overlay.Servers))
		for _, srv := range overlay.Servers {
			overlayByID[srv.ID] = srv
		}

		var servers []ServerDefinition
		seen := make(map[string]bool, len(merged.Servers))
		for _, srv := range merged.Servers {
			if replacement, ok := overlayByID[srv.ID]; ok {
				servers = append(servers, replacement)
			} else {
				servers = append(servers, srv)
			}
			seen[srv.ID] = true
		}
		for _, srv := range overlay.Servers {
			if !seen[srv.ID] {
				servers = append(servers, srv)
			}
		}
		merged.Servers = servers
	}

	return merged
}
