// Package config loads and validates the optional .scriptconsole YAML file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the name of the configuration file.
const FileName = ".scriptconsole"

// Default values applied for zero fields.
const (
	DefaultTimeout       = 5 * time.Minute
	DefaultChunkSize     = 5
	DefaultCacheBackend  = "memory"
	DefaultCacheCapacity = 1000
	DefaultCacheTTL      = time.Hour
	DefaultRedisPrefix   = "scriptconsole:"
	DefaultMaxAttempts   = 5
	DefaultBackoff       = 10 * time.Millisecond
	DefaultHTTPAddr      = "127.0.0.1:8080"
)

// Config holds the parsed .scriptconsole configuration.
// All fields are optional; zero values represent defaults.
type Config struct {
	Version     int               `yaml:"version"`
	RawTimeout  string            `yaml:"timeout"` // e.g. "5m", "30s"
	Output      OutputConfig      `yaml:"output"`
	Cache       CacheConfig       `yaml:"cache"`
	Scripts     ScriptsConfig     `yaml:"scripts"`
	Transaction TransactionConfig `yaml:"transaction"`
	HTTP        HTTPConfig        `yaml:"http"`
	Log         LogConfig         `yaml:"log"`
	Users       []string          `yaml:"users"` // principals scripts may run as
}

// OutputConfig controls the chunked output cache.
type OutputConfig struct {
	ChunkSize int `yaml:"chunk_size"` // lines per chunk
}

// CacheConfig selects the store shared by output chunks and result channels.
type CacheConfig struct {
	Backend  string      `yaml:"backend"` // memory or redis
	Capacity int         `yaml:"capacity"`
	RawTTL   string      `yaml:"ttl"`
	Redis    RedisConfig `yaml:"redis"`
}

// RedisConfig locates the Redis server of the redis backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// ScriptsConfig names the fragments wrapped around every script.
type ScriptsConfig struct {
	Dir      string `yaml:"dir"` // replaces the bundled resources when set
	PreRoll  string `yaml:"pre_roll"`
	PostRoll string `yaml:"post_roll"`
}

// TransactionConfig controls retries of transactional runs.
type TransactionConfig struct {
	MaxAttempts int    `yaml:"max_attempts"`
	RawBackoff  string `yaml:"backoff"`
}

// HTTPConfig controls the HTTP server.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig controls process logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

func durationOr(raw string, def time.Duration) time.Duration {
	if raw != "" {
		d, err := time.ParseDuration(raw)
		if err == nil && d > 0 {
			return d
		}
	}
	return def
}

// Timeout returns the configured per-run timeout or the default.
func (c *Config) Timeout() time.Duration {
	return durationOr(c.RawTimeout, DefaultTimeout)
}

// ChunkSize returns the configured output chunk size or the default.
func (c *Config) ChunkSize() int {
	if c.Output.ChunkSize > 0 {
		return c.Output.ChunkSize
	}
	return DefaultChunkSize
}

// CacheBackend returns the configured cache backend or the default.
func (c *Config) CacheBackend() string {
	if c.Cache.Backend != "" {
		return c.Cache.Backend
	}
	return DefaultCacheBackend
}

// CacheCapacity returns the configured in-memory capacity or the default.
func (c *Config) CacheCapacity() int {
	if c.Cache.Capacity > 0 {
		return c.Cache.Capacity
	}
	return DefaultCacheCapacity
}

// CacheTTL returns the configured entry lifetime or the default.
func (c *Config) CacheTTL() time.Duration {
	return durationOr(c.Cache.RawTTL, DefaultCacheTTL)
}

// RedisPrefix returns the configured key prefix or the default.
func (c *Config) RedisPrefix() string {
	if c.Cache.Redis.Prefix != "" {
		return c.Cache.Redis.Prefix
	}
	return DefaultRedisPrefix
}

// MaxAttempts returns the configured transaction attempts or the default.
func (c *Config) MaxAttempts() int {
	if c.Transaction.MaxAttempts > 0 {
		return c.Transaction.MaxAttempts
	}
	return DefaultMaxAttempts
}

// Backoff returns the configured retry backoff or the default.
func (c *Config) Backoff() time.Duration {
	return durationOr(c.Transaction.RawBackoff, DefaultBackoff)
}

// HTTPAddr returns the configured listen address or the default.
func (c *Config) HTTPAddr() string {
	if c.HTTP.Addr != "" {
		return c.HTTP.Addr
	}
	return DefaultHTTPAddr
}

// LogLevel returns the configured log level, info by default.
func (c *Config) LogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Validate reports values that would otherwise be silently replaced by
// defaults.
func (c *Config) Validate() error {
	var errs []error
	switch c.CacheBackend() {
	case "memory":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			errs = append(errs, errors.New("cache.redis.addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cache.backend %q", c.Cache.Backend))
	}
	for key, raw := range map[string]string{
		"timeout":             c.RawTimeout,
		"cache.ttl":           c.Cache.RawTTL,
		"transaction.backoff": c.Transaction.RawBackoff,
	} {
		if raw == "" {
			continue
		}
		if d, err := time.ParseDuration(raw); err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("%s: invalid duration %q", key, raw))
		}
	}
	if c.Log.Level != "" {
		var l slog.Level
		if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
			errs = append(errs, fmt.Errorf("log.level: %w", err))
		}
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// LoadResult holds the parsed config and where it was found.
type LoadResult struct {
	Config *Config
	Path   string // empty when no file was found
}

// Load looks for a .scriptconsole file in workspace and its parents. If
// none exists, a default Config is returned.
func Load(workspace string) (*LoadResult, error) {
	path, err := find(workspace)
	if err != nil {
		return &LoadResult{Config: &Config{}}, nil
	}
	return LoadFile(path)
}

// LoadFile reads and validates the file at path.
func LoadFile(path string) (*LoadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	return &LoadResult{Config: cfg, Path: path}, nil
}

// find walks upward from dir looking for FileName.
func find(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%s not found", FileName)
		}
		dir = parent
	}
}
