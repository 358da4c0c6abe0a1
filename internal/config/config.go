// Package config loads the daemon configuration and sets up logging.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Endpoint kinds. An endpoint config names its backend with the "type" key.
const (
	KindPipe   = "pipe"
	KindDevice = "device"
	KindFile   = "file"
)

// Endpoint describes one named sink or source. Only the fields relevant to
// its Type are read by the backend.
type Endpoint struct {
	Name string `mapstructure:"name"`
	Type string `mapstructure:"type"`

	// Pipe endpoints.
	Path   string `mapstructure:"path"`
	Create bool   `mapstructure:"create"`

	// Device endpoints. Named-device selection is parsed but not yet
	// honored; the default device is used.
	Device string `mapstructure:"device"`

	// File endpoints (sources only).
	Loop bool `mapstructure:"loop"`
}

// Config is the full static startup description of the daemon.
type Config struct {
	Listen   string
	LogLevel string
	LogFile  string

	Outputs []Endpoint
	Sources []Endpoint
}

func setViperDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":1705")
	v.SetDefault("loglevel", "info")
	v.SetDefault("logfile", "")
}

// Load reads the YAML config file at configFilePath. Unlike defaults such
// as the listen address, the endpoint lists cannot be invented, so a
// missing or unreadable file is an error.
func Load(configFilePath string) (*Config, error) {
	v := viper.New()
	setViperDefaults(v)

	v.SetConfigFile(configFilePath)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFilePath, err)
	}

	cfg := &Config{
		Listen:   v.GetString("listen"),
		LogLevel: v.GetString("loglevel"),
		LogFile:  v.GetString("logfile"),
	}

	if err := v.UnmarshalKey("outputs", &cfg.Outputs); err != nil {
		return nil, fmt.Errorf("failed to parse outputs: %w", err)
	}
	if err := v.UnmarshalKey("sources", &cfg.Sources); err != nil {
		return nil, fmt.Errorf("failed to parse sources: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) validate() error {
	seen := make(map[string]bool)
	for _, lst := range [][]Endpoint{cfg.Outputs, cfg.Sources} {
		for _, ep := range lst {
			if ep.Name == "" {
				return fmt.Errorf("endpoint with type %q has no name", ep.Type)
			}
			switch ep.Type {
			case KindPipe:
				if ep.Path == "" {
					return fmt.Errorf("pipe endpoint %s has no path", ep.Name)
				}
			case KindDevice:
				// Nothing required; default device is used.
			case KindFile:
				if ep.Path == "" {
					return fmt.Errorf("file endpoint %s has no path", ep.Name)
				}
			default:
				return fmt.Errorf("endpoint %s has unknown type %q", ep.Name, ep.Type)
			}
		}
	}
	for _, ep := range cfg.Outputs {
		if seen["sink/"+ep.Name] {
			return fmt.Errorf("duplicate sink name %s", ep.Name)
		}
		seen["sink/"+ep.Name] = true
	}
	for _, ep := range cfg.Sources {
		if seen["source/"+ep.Name] {
			return fmt.Errorf("duplicate source name %s", ep.Name)
		}
		seen["source/"+ep.Name] = true
	}
	return nil
}
