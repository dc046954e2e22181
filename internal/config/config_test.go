package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	defer os.Chdir(wd)

	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("DUUM_VISION_ENABLED", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BasicConfig.MaxFiles != 10 {
		t.Fatalf("expected max files 10, got %d", cfg.BasicConfig.MaxFiles)
	}
	if !cfg.BasicConfig.VisionEnabled {
		t.Fatalf("expected vision enabled from env")
	}
	if got := cfg.VisionProvider().APIKey; got != "sk-test" {
		t.Fatalf("expected openai key from env, got %q", got)
	}
	if cfg.CacheTTL() != 30*24*time.Hour {
		t.Fatalf("unexpected cache ttl %s", cfg.CacheTTL())
	}
	if cfg.Vision.MaxBatchSize != cfg.BasicConfig.MaxFiles {
		t.Fatalf("batch size should default to max files")
	}
	if cfg.BasicConfig.MaxWorkers != 4 || cfg.BasicConfig.QueueSize != 16 {
		t.Fatalf("unexpected worker defaults %d/%d", cfg.BasicConfig.MaxWorkers, cfg.BasicConfig.QueueSize)
	}
}

func TestLoadExplicitMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected error for explicit missing config")
	}
}

func TestLoadFileAndValidate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{
		"basic_config": {"server_address": ":9000", "max_files": 4},
		"cache": {"backend": "sql", "database": "sqlite3"},
		"databases": {"sqlite3": {"dsn": "cache.db"}},
		"redis": {"host": "cache.internal", "port": 6380}
	}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("REDIS_ADDR", "")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BasicConfig.ServerAddress != ":9000" || cfg.BasicConfig.MaxFiles != 4 {
		t.Fatalf("basic config not decoded: %+v", cfg.BasicConfig)
	}
	if want := filepath.Join(dir, "cache.db"); cfg.Databases["sqlite3"].DSN != want {
		t.Fatalf("expected dsn resolved to %s, got %s", want, cfg.Databases["sqlite3"].DSN)
	}
	if cfg.Redis.Port != 6380 {
		t.Fatalf("redis port not decoded")
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"cache": {"backend": "memcached"}}`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(bad); err == nil {
		t.Fatalf("expected unsupported backend error")
	}
}

func TestRedisAddrOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("REDIS_ADDR", "10.0.0.5:6390")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Redis.Host != "10.0.0.5" || cfg.Redis.Port != 6390 {
		t.Fatalf("unexpected redis override %+v", cfg.Redis)
	}
}
