package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Config holds all configuration for the engine
type Config struct {
	Snapshot    string `koanf:"snapshot"`     // Path to the graph snapshot file
	Watch       bool   `koanf:"watch"`        // Reload when the snapshot changes on disk
	Verbosity   string `koanf:"verbosity"`    // trace, debug, info, warn, error
	JSONLogs    bool   `koanf:"json-logs"`    // Log in JSON instead of compact console format
	EventBuffer int    `koanf:"event-buffer"` // Events buffered per topic for late subscribers
}

// Load loads configuration from defaults, config file, environment variables, and flags.
// Priority: Flags > Env > Config File > Defaults
func Load(f *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	defaults := map[string]interface{}{
		"snapshot":     "update-engine.json",
		"watch":        false,
		"verbosity":    "info",
		"json-logs":    false,
		"event-buffer": 16,
	}
	if err := k.Load(makeMapProvider(defaults), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config File (optional) - update-engine.toml
	// We ignore errors here as the file might not exist
	_ = k.Load(file.Provider("update-engine.toml"), toml.Parser())

	// 3. Environment Variables
	// Prefix: UPDATE_ENGINE_ (e.g., UPDATE_ENGINE_SNAPSHOT=/var/lib/graph.json)
	if err := k.Load(env.Provider("UPDATE_ENGINE_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(
			strings.TrimPrefix(s, "UPDATE_ENGINE_")), "_", "-")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags
	if f != nil {
		if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Helper to use map as a provider
type mapProvider struct {
	m map[string]interface{}
}

func makeMapProvider(m map[string]interface{}) *mapProvider {
	return &mapProvider{m: m}
}

func (p *mapProvider) Read() (map[string]interface{}, error) {
	return p.m, nil
}

func (p *mapProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}
