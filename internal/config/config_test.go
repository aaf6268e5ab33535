package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_FromWorkspace(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `version: 1
timeout: 10m
output:
  chunk_size: 3
cache:
  backend: redis
  ttl: 30s
  redis:
    addr: localhost:6379
    db: 2
transaction:
  max_attempts: 7
  backoff: 5ms
http:
  addr: ":9000"
log:
  level: debug
  format: json
users: [alice, bob]
`)

	res, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Path != path {
		t.Errorf("Path = %q, want %q", res.Path, path)
	}
	c := res.Config
	if c.Version != 1 || c.Timeout() != 10*time.Minute || c.ChunkSize() != 3 {
		t.Errorf("config = %+v", c)
	}
	if c.CacheBackend() != "redis" || c.CacheTTL() != 30*time.Second || c.Cache.Redis.DB != 2 {
		t.Errorf("cache = %+v", c.Cache)
	}
	if c.MaxAttempts() != 7 || c.Backoff() != 5*time.Millisecond {
		t.Errorf("transaction = %+v", c.Transaction)
	}
	if c.HTTPAddr() != ":9000" || c.LogLevel() != slog.LevelDebug || c.Log.Format != "json" {
		t.Errorf("http/log = %+v %+v", c.HTTP, c.Log)
	}
	if len(c.Users) != 2 || c.Users[1] != "bob" {
		t.Errorf("users = %v", c.Users)
	}
}

func TestLoad_FromSubdirectory(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "version: 2\n")

	sub := filepath.Join(root, "pkg", "foo")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	res, err := Load(sub)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Config.Version != 2 {
		t.Errorf("Config.Version = %d, want 2", res.Config.Version)
	}
}

func TestLoad_NoFile(t *testing.T) {
	res, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Path != "" {
		t.Errorf("Path = %q, want empty", res.Path)
	}
	c := res.Config
	if c.Timeout() != DefaultTimeout || c.ChunkSize() != DefaultChunkSize ||
		c.CacheBackend() != DefaultCacheBackend || c.CacheCapacity() != DefaultCacheCapacity ||
		c.CacheTTL() != DefaultCacheTTL || c.RedisPrefix() != DefaultRedisPrefix ||
		c.MaxAttempts() != DefaultMaxAttempts || c.Backoff() != DefaultBackoff ||
		c.HTTPAddr() != DefaultHTTPAddr || c.LogLevel() != slog.LevelInfo {
		t.Errorf("defaults not applied: %+v", c)
	}
}

func TestLoadFile_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"yaml", "version: [", "parsing"},
		{"backend", "cache:\n  backend: memcached\n", "unknown cache.backend"},
		{"redis addr", "cache:\n  backend: redis\n", "cache.redis.addr"},
		{"duration", "timeout: soon\n", "timeout: invalid duration"},
		{"level", "log:\n  level: loud\n", "log.level"},
		{"format", "log:\n  format: xml\n", "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), tt.content)
			_, err := LoadFile(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}
