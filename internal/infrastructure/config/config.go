package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"

	"github.com/GriffinCanCode/routeproxy/internal/codec"
	"github.com/GriffinCanCode/routeproxy/internal/infrastructure/logging"
)

// FileEnv names the environment variable holding an optional config file.
const FileEnv = "ROUTEPROXY_CONFIG"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server" json:"server"`
	Route     RouteConfig     `yaml:"route" toml:"route" json:"route"`
	Logging   LogConfig       `yaml:"logging" toml:"logging" json:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit" toml:"rate_limit" json:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors" toml:"cors" json:"cors"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string `envconfig:"PORT" yaml:"port" toml:"port" json:"port"`
	Host         string `envconfig:"HOST" yaml:"host" toml:"host" json:"host"`
	MaxBodyBytes int64  `envconfig:"MAX_BODY_BYTES" yaml:"max_body_bytes" toml:"max_body_bytes" json:"max_body_bytes"`
}

// RouteConfig controls how addresses are turned into routes.
type RouteConfig struct {
	Base  string `envconfig:"ROUTE_BASE" yaml:"base" toml:"base" json:"base"`
	Codec string `envconfig:"ROUTE_CODEC" yaml:"codec" toml:"codec" json:"codec"`
	Key   string `envconfig:"ROUTE_KEY" yaml:"key" toml:"key" json:"key"`
	Hook  string `envconfig:"JS_HOOK" yaml:"hook" toml:"hook" json:"hook"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" yaml:"level" toml:"level" json:"level"`
	Development bool   `envconfig:"LOG_DEV" yaml:"development" toml:"development" json:"development"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" yaml:"rps" toml:"rps" json:"rps"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" yaml:"burst" toml:"burst" json:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" yaml:"enabled" toml:"enabled" json:"enabled"`
}

// CORSConfig lists the origins allowed to call the API.
type CORSConfig struct {
	Origins []string `envconfig:"CORS_ORIGINS" yaml:"origins" toml:"origins" json:"origins"`
}

// Load reads the file named by FileEnv, if any, then the environment.
func Load() (*Config, error) {
	return LoadFile(os.Getenv(FileEnv))
}

// LoadFile layers configuration: defaults, then the file at path (skipped
// when empty), then environment variables. Only variables that are set
// override earlier layers.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads configuration from the environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         "8000",
			Host:         "0.0.0.0",
			MaxBodyBytes: 10 << 20,
		},
		Route: RouteConfig{
			Base:  "/route/",
			Codec: string(codec.StreamXor),
			Hook:  "__rw$",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		CORS: CORSConfig{
			Origins: []string{"*"},
		},
	}
}

// Validate checks values that would otherwise fail late, at first use.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("%w: empty port", ErrInvalid)
	}
	if n, err := strconv.Atoi(c.Server.Port); err != nil || n < 0 || n > 65535 {
		return fmt.Errorf("%w: port %q", ErrInvalid, c.Server.Port)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("%w: max body bytes must be positive", ErrInvalid)
	}
	if !strings.HasPrefix(c.Route.Base, "/") {
		return fmt.Errorf("%w: route base %q must start with /", ErrInvalid, c.Route.Base)
	}
	if _, err := codec.ParseKind(c.Route.Codec); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: log level: %w", ErrInvalid, err)
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("%w: rate limit needs positive rps and burst", ErrInvalid)
	}
	return nil
}

// NewCodec builds the route codec. When no key is configured a fresh one is
// generated and generated is true; the key never leaves the process.
func (r RouteConfig) NewCodec() (c *codec.Codec, generated bool, err error) {
	kind, err := codec.ParseKind(r.Codec)
	if err != nil {
		return nil, false, err
	}
	key := r.Key
	if key == "" && kind != codec.Plain {
		if key, err = codec.GenerateKey(kind); err != nil {
			return nil, false, err
		}
		generated = true
	}
	c, err = codec.New(kind, key)
	if err != nil {
		return nil, false, err
	}
	return c, generated, nil
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	case ".json":
		err = sonic.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("%w: unsupported config file extension %q", ErrInvalid, ext)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}
