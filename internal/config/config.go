package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const defaultPath = "config.json"

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Vision      VisionConfig              `json:"vision"`
	Providers   map[string]ProviderConfig `json:"providers"`
	Cache       CacheConfig               `json:"cache"`
	Redis       RedisConfig               `json:"redis"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Duum        DuumConfig                `json:"duum"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

type BasicConfig struct {
	ServerAddress  string   `json:"server_address"`
	MaxFiles       int      `json:"max_files"`
	MaxUploadMB    int      `json:"max_upload_mb"`
	VisionEnabled  bool     `json:"vision_enabled"`
	AllowedOrigins []string `json:"allowed_origins"`
	MaxWorkers     int      `json:"max_workers"`
	QueueSize      int      `json:"queue_size"`
}

// VisionConfig selects the provider used for item extraction and proposals.
type VisionConfig struct {
	Provider                string `json:"provider"`
	Model                   string `json:"model"`
	ProposalModel           string `json:"proposal_model"`
	MaxBatchSize            int    `json:"max_batch_size"`
	MaxOutputTokens         int    `json:"max_output_tokens"`
	ProposalMaxOutputTokens int    `json:"proposal_max_output_tokens"`
	TimeoutSeconds          int    `json:"timeout_seconds"`
}

type CacheConfig struct {
	Backend        string `json:"backend"`
	TTLHours       int    `json:"ttl_hours"`
	Database       string `json:"database"`
	CleanupMinutes int    `json:"cleanup_minutes"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Username string `json:"username"`
	Password string `json:"password"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

// DuumConfig points at the Duum Core backend that stores proposals.
type DuumConfig struct {
	BaseURL      string `json:"base_url"`
	Token        string `json:"token"`
	SystemPrompt string `json:"system_prompt"`
}

// Load reads configuration from the provided path (defaults to config.json) and
// applies environment overrides. A missing default file is tolerated so the
// service can run from environment variables alone.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = defaultPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	var cfg Config
	file, err := os.Open(absPath)
	switch {
	case err == nil:
		defer file.Close()
		if err := json.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}

	applyEnv(&cfg)
	cfg.applyDefaults()

	if db, ok := cfg.Databases["sqlite3"]; ok && db.DSN != "" && db.DSN != ":memory:" &&
		!strings.HasPrefix(db.DSN, "file:") && !filepath.IsAbs(db.DSN) {
		db.DSN = filepath.Join(filepath.Dir(absPath), db.DSN)
		cfg.Databases["sqlite3"] = db
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.BasicConfig.ServerAddress == "" {
		c.BasicConfig.ServerAddress = ":8788"
	}
	if c.BasicConfig.MaxFiles <= 0 {
		c.BasicConfig.MaxFiles = 10
	}
	if c.BasicConfig.MaxUploadMB <= 0 {
		c.BasicConfig.MaxUploadMB = 40
	}
	if c.BasicConfig.MaxWorkers <= 0 {
		c.BasicConfig.MaxWorkers = 4
	}
	if c.BasicConfig.QueueSize <= 0 {
		c.BasicConfig.QueueSize = 16
	}
	if len(c.BasicConfig.AllowedOrigins) == 0 {
		c.BasicConfig.AllowedOrigins = []string{"https://duum.io", "https://app.duum.io"}
	}
	if c.Vision.Provider == "" {
		c.Vision.Provider = "openai-responses"
	}
	if c.Vision.Model == "" {
		c.Vision.Model = "gpt-4o-2024-08-06"
	}
	if c.Vision.ProposalModel == "" {
		c.Vision.ProposalModel = "gpt-4.1-mini"
	}
	if c.Vision.MaxBatchSize <= 0 {
		c.Vision.MaxBatchSize = c.BasicConfig.MaxFiles
	}
	if c.Vision.MaxOutputTokens <= 0 {
		c.Vision.MaxOutputTokens = 450
	}
	if c.Vision.ProposalMaxOutputTokens <= 0 {
		c.Vision.ProposalMaxOutputTokens = 900
	}
	if c.Vision.TimeoutSeconds <= 0 {
		c.Vision.TimeoutSeconds = 120
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = "redis"
	}
	if c.Cache.TTLHours <= 0 {
		c.Cache.TTLHours = 30 * 24
	}
	if c.Cache.CleanupMinutes <= 0 {
		c.Cache.CleanupMinutes = 60
	}
	if c.Duum.SystemPrompt == "" {
		c.Duum.SystemPrompt = "You are Duum OCR."
	}
}

func (c *Config) validate() error {
	switch c.Cache.Backend {
	case "redis", "none":
	case "sql":
		if c.Cache.Database == "" {
			return fmt.Errorf("cache.database must be configured for the sql cache backend")
		}
		if _, ok := c.Databases[c.Cache.Database]; !ok {
			return fmt.Errorf("database config for %s not found", c.Cache.Database)
		}
	default:
		return fmt.Errorf("unsupported cache backend: %s", c.Cache.Backend)
	}
	switch c.Vision.Provider {
	case "openai-responses", "openai", "claude", "gemini":
	default:
		return fmt.Errorf("unsupported vision provider: %s", c.Vision.Provider)
	}
	return nil
}

// Provider returns the provider entry for name, or an empty entry.
func (c *Config) Provider(name string) ProviderConfig {
	if c == nil || c.Providers == nil {
		return ProviderConfig{}
	}
	return c.Providers[name]
}

// CacheTTL is the retention window for cached extraction results.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLHours) * time.Hour
}

// ProviderKeyEnv names the environment variable that carries the credential for provider.
func ProviderKeyEnv(provider string) string {
	switch provider {
	case "claude":
		return "ANTHROPIC_API_KEY"
	case "gemini":
		return "GEMINI_API_KEY"
	default:
		return "OPENAI_API_KEY"
	}
}

// providerEntry maps a vision provider to its entry in Providers; both openai
// flavors share one credential.
func providerEntry(provider string) string {
	if provider == "openai-responses" {
		return "openai"
	}
	return provider
}

// VisionProvider returns the provider entry backing the configured vision provider.
func (c *Config) VisionProvider() ProviderConfig {
	return c.Provider(providerEntry(c.Vision.Provider))
}

func applyEnv(cfg *Config) {
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]ProviderConfig)
	}
	for _, name := range []string{"openai", "claude", "gemini"} {
		if key := strings.TrimSpace(os.Getenv(ProviderKeyEnv(name))); key != "" {
			p := cfg.Providers[name]
			p.APIKey = key
			cfg.Providers[name] = p
		}
	}
	if v := strings.TrimSpace(os.Getenv("OPENAI_MODEL")); v != "" {
		cfg.Vision.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("DUUM_VISION_ENABLED")); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.BasicConfig.VisionEnabled = enabled
		}
	}
	if v := os.Getenv("DUUM_WP_BASE"); v != "" {
		cfg.Duum.BaseURL = v
	}
	if v := os.Getenv("DUUM_WP_TOKEN"); v != "" {
		cfg.Duum.Token = v
	}
	if v := os.Getenv("DUUM_SYSTEM_PROMPT"); v != "" {
		cfg.Duum.SystemPrompt = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_ADDR")); v != "" {
		host, port, ok := strings.Cut(v, ":")
		cfg.Redis.Host = host
		if ok {
			if p, err := strconv.Atoi(port); err == nil {
				cfg.Redis.Port = p
			}
		}
	}
}
