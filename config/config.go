/*
Package config loads server configuration.

Layered with koanf: built-in defaults, then an optional salesboard.yaml,
then SALESBOARD_* environment variables. Later layers win.

  SALESBOARD_PORT=9090 SALESBOARD_DB_PATH=/data/salesboard.db ./server
*/
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ConfigFileName is the optional config file looked up next to the
// working directory.
const ConfigFileName = "salesboard.yaml"

const envPrefix = "SALESBOARD_"

// Config holds everything the server needs at startup.
type Config struct {
	Port          int    `koanf:"port"`
	DBPath        string `koanf:"db_path"`
	SessionSecret string `koanf:"session_secret"`

	// Ingestion policy.
	SyncThresholdBytes int           `koanf:"sync_threshold_bytes"`
	StaleAfter         time.Duration `koanf:"stale_after"`
	SweepInterval      time.Duration `koanf:"sweep_interval"`
	TopN               int           `koanf:"top_n"`

	CORSOrigins []string `koanf:"cors_origins"`
}

func defaults() map[string]any {
	return map[string]any{
		"port":                 8080,
		"db_path":              "salesboard.db",
		"session_secret":       "",
		"sync_threshold_bytes": 256 << 10,
		"stale_after":          "10m",
		"sweep_interval":       "1m",
		"top_n":                10,
		"cors_origins":         []string{"http://localhost:5173", "http://localhost:8080"},
	}
}

// Load reads configuration from defaults, an optional YAML file and
// the environment. path may be empty, in which case only the default
// file name is probed.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		if _, err := os.Stat(ConfigFileName); err == nil {
			path = ConfigFileName
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
