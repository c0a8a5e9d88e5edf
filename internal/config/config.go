// Package config loads the process-wide gateway configuration.
//
// Sources are layered, later ones win:
//
//  1. optional YAML file (optimus.yaml, or the path given to Load)
//  2. PORT / NODE_ENV / ENV aliases used by most hosting platforms
//  3. OPTIMUS_* environment variables, "__" separates nested keys
//     (OPTIMUS_SERVER__PORT, OPTIMUS_RULES__URL, ...)
//  4. explicit overrides, usually command line flags
//
// Missing keys fall back to defaults. The resulting Config is read once at
// startup and never mutated afterwards.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultFile is read when no explicit config path is given. It is optional.
const DefaultFile = "optimus.yaml"

// EnvPrefix prefixes every environment variable understood by Load.
const EnvPrefix = "OPTIMUS_"

// Version is the service version reported by GET /version.
// Overridden at build time with -ldflags "-X github.com/tjfontaine/optimus/internal/config.Version=...".
var Version = "dev"

type Config struct {
	Env     string        `koanf:"env"`
	Service ServiceConfig `koanf:"service"`
	Server  ServerConfig  `koanf:"server"`
	Metrics MetricsConfig `koanf:"metrics"`
	Tracing TracingConfig `koanf:"tracing"`
	Log     LogConfig     `koanf:"log"`
	Rules   RulesConfig   `koanf:"rules"`
}

type ServiceConfig struct {
	Name    string `koanf:"name"`
	Version string `koanf:"version"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	MaxBodyBytes    int64         `koanf:"max_body_bytes"`
}

// MetricsConfig controls the Prometheus listener. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

type TracingConfig struct {
	Enabled bool `koanf:"enabled"`
}

type LogConfig struct {
	Level string `koanf:"level"`
	JSON  bool   `koanf:"json"`
}

// RulesConfig points at the rule-application engine.
type RulesConfig struct {
	URL                  string            `koanf:"url"`
	Timeout              time.Duration     `koanf:"timeout"`
	Retries              int               `koanf:"retries"`
	Headers              map[string]string `koanf:"headers"`
	BlockPrivateNetworks bool              `koanf:"block_private_networks"`
}

// LoadOptions tunes Load. The zero value reads DefaultFile and the environment.
type LoadOptions struct {
	// Path of the YAML file. When set, the file must exist.
	Path string
	// Overrides are applied last, keyed by dotted koanf path ("server.port").
	Overrides map[string]any
}

var defaults = map[string]any{
	"env":                     "development",
	"service.name":            "optimus",
	"server.port":             8080,
	"server.read_timeout":     "30s",
	"server.write_timeout":    "30s",
	"server.idle_timeout":     "120s",
	"server.shutdown_timeout": "30s",
	"server.max_body_bytes":   int64(1 << 20),
	"log.level":               "info",
	"log.json":                true,
	"rules.timeout":           "10s",
}

// Load builds a Config from the layered sources described in the package doc.
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")

	path := opts.Path
	if path == "" {
		path = DefaultFile
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		// The default file is optional, an explicit one is not
		if opts.Path != "" || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if v := os.Getenv("PORT"); v != "" {
		k.Set("server.port", v)
	}
	for _, name := range []string{"ENV", "NODE_ENV"} {
		if v := os.Getenv(name); v != "" {
			k.Set("env", v)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	for key, v := range opts.Overrides {
		k.Set(key, v)
	}

	for key, v := range defaults {
		if !k.Exists(key) {
			k.Set(key, v)
		}
	}
	if !k.Exists("service.version") {
		k.Set("service.version", Version)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Validate reports the first setting that would prevent the gateway from serving.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Service.Name == "" {
		return errors.New("service.name is required")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return errors.New("server.max_body_bytes must be positive")
	}
	if c.Rules.URL == "" {
		return errors.New("rules.url is required")
	}
	u, err := url.Parse(c.Rules.URL)
	if err != nil {
		return fmt.Errorf("rules.url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("rules.url must be http or https, got %q", c.Rules.URL)
	}
	if c.Rules.Retries < 0 {
		return errors.New("rules.retries must not be negative")
	}
	return nil
}

// Addr is the listen address for the API server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
