// Package config loads the droidctl CLI configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the CLI settings. Durations are written as Go duration
// strings ("1s", "500ms").
type Config struct {
	ADBPath        string `yaml:"adbPath" json:"adbPath"`
	Device         string `yaml:"device" json:"device"`
	Debug          bool   `yaml:"debug" json:"debug"`
	CommandTimeout string `yaml:"commandTimeout" json:"commandTimeout"`
	ConnectSettle  string `yaml:"connectSettle" json:"connectSettle"`
	KeySettle      string `yaml:"keySettle" json:"keySettle"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		ADBPath:       "adb",
		ConnectSettle: "1s",
		KeySettle:     "500ms",
	}
}

// Load reads a YAML configuration file, fills in defaults and validates
// the duration fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.ADBPath == "" {
		cfg.ADBPath = "adb"
	}

	for name, value := range map[string]string{
		"commandTimeout": cfg.CommandTimeout,
		"connectSettle":  cfg.ConnectSettle,
		"keySettle":      cfg.KeySettle,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", name, value, err)
		}
	}
	return cfg, nil
}

// Duration parses one of the config's duration fields, returning zero for
// an empty value. Load has already validated the syntax.
func Duration(value string) time.Duration {
	if value == "" {
		return 0
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}
