// Package config loads the federation configuration: backends, the virtual
// schema, and the settings of every collaborator.
// Supports YAML files and environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tordrt/fedquery/internal/db"
)

// Config holds all configuration for fedquery.
type Config struct {
	Backends      map[string]BackendConfig `yaml:"backends"`
	VirtualTables []VirtualTableConfig     `yaml:"virtual_tables"`
	Relationships []RelationshipConfig     `yaml:"relationships"`
	Selector      SelectorConfig           `yaml:"selector"`
	Retry         RetryConfig              `yaml:"retry"`
	Federation    FederationConfig         `yaml:"federation"`
	LLM           LLMConfig                `yaml:"llm"`
	Embedding     EmbeddingConfig          `yaml:"embedding"`
	Cache         CacheConfig              `yaml:"cache"`
	Log           LogConfig                `yaml:"log"`
}

// BackendConfig describes one physical database.
type BackendConfig struct {
	URL    string `yaml:"url"`
	Kind   string `yaml:"kind"`   // optional, detected from the URL scheme
	Schema string `yaml:"schema"` // postgres schema or mysql database
}

// VirtualTableConfig maps a virtual name to "<alias>.<physical>".
type VirtualTableConfig struct {
	Name   string `yaml:"name"`
	Source string `yaml:"source"`
}

// RelationshipConfig declares a join between two virtual tables as
// "<table>.<column>" pairs.
type RelationshipConfig struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// SelectorConfig holds semantic table selection settings.
type SelectorConfig struct {
	TopK int `yaml:"top_k"`
}

// RetryConfig holds orchestrator retry settings.
type RetryConfig struct {
	MaxRetries int `yaml:"max_retries"`
}

// FederationConfig holds cross-database join settings.
type FederationConfig struct {
	FetchLimit int `yaml:"fetch_limit"`
}

// LLMConfig holds drafting oracle settings.
type LLMConfig struct {
	Provider    string        `yaml:"provider"` // openai or mock
	Model       string        `yaml:"model"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Temperature float32       `yaml:"temperature"`
	Planning    bool          `yaml:"planning"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
}

// EmbeddingConfig holds embedding model settings.
type EmbeddingConfig struct {
	Provider  string        `yaml:"provider"` // openai or hash
	Model     string        `yaml:"model"`
	BaseURL   string        `yaml:"base_url"`
	APIKey    string        `yaml:"api_key"`
	Dimension int           `yaml:"dimension"`
	Timeout   time.Duration `yaml:"timeout"`
}

// CacheConfig holds describe cache settings.
type CacheConfig struct {
	Driver     string        `yaml:"driver"` // none, memory or redis
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads configuration from a YAML file and applies environment overrides.
// Relative SQLite paths are resolved against the config file's directory.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
		cfg.resolveSQLitePaths(path)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Parse decodes YAML without reading a file or the environment.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns a configuration with defaults for everything except
// backends and the virtual schema.
func DefaultConfig() *Config {
	return &Config{
		Selector:   SelectorConfig{TopK: 3},
		Retry:      RetryConfig{MaxRetries: 2},
		Federation: FederationConfig{FetchLimit: 1000},
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			Temperature: 0,
			Timeout:     60 * time.Second,
			MaxRetries:  3,
			RetryDelay:  time.Second,
		},
		Embedding: EmbeddingConfig{
			Provider:  "openai",
			Model:     "text-embedding-3-small",
			Dimension: 256,
			Timeout:   30 * time.Second,
		},
		Cache: CacheConfig{
			Driver:     "none",
			TTL:        10 * time.Minute,
			MaxEntries: 1000,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "fedquery:",
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

var (
	llmProviders       = []string{"openai", "mock"}
	embeddingProviders = []string{"openai", "hash"}
	cacheDrivers       = []string{"none", "memory", "redis"}
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if len(c.Backends) == 0 {
		return fmt.Errorf("at least one backend is required")
	}
	for alias := range c.Backends {
		if alias == "" || strings.Contains(alias, ".") {
			return fmt.Errorf("invalid backend alias %q", alias)
		}
		if _, err := c.Backend(alias); err != nil {
			return fmt.Errorf("backend %q: %w", alias, err)
		}
	}

	if len(c.VirtualTables) == 0 {
		return fmt.Errorf("at least one virtual table is required")
	}
	seen := make(map[string]bool, len(c.VirtualTables))
	for _, vt := range c.VirtualTables {
		if vt.Name == "" {
			return fmt.Errorf("virtual table name is required")
		}
		if seen[vt.Name] {
			return fmt.Errorf("duplicate virtual table %q", vt.Name)
		}
		seen[vt.Name] = true

		alias, _, err := SplitSource(vt.Source)
		if err != nil {
			return fmt.Errorf("virtual table %q: %w", vt.Name, err)
		}
		if _, ok := c.Backends[alias]; !ok {
			return fmt.Errorf("virtual table %q references unknown backend %q", vt.Name, alias)
		}
	}

	for _, rel := range c.Relationships {
		for _, end := range []string{rel.From, rel.To} {
			table, _, err := SplitColumnRef(end)
			if err != nil {
				return fmt.Errorf("relationship %s -> %s: %w", rel.From, rel.To, err)
			}
			if !seen[table] {
				return fmt.Errorf("relationship %s -> %s references unknown virtual table %q", rel.From, rel.To, table)
			}
		}
	}

	if c.Selector.TopK < 1 {
		return fmt.Errorf("selector.top_k must be at least 1")
	}
	if c.Retry.MaxRetries < 0 || c.Retry.MaxRetries > 10 {
		return fmt.Errorf("retry.max_retries must be between 0 and 10")
	}
	if c.Federation.FetchLimit < 1 {
		return fmt.Errorf("federation.fetch_limit must be at least 1")
	}

	if !slices.Contains(llmProviders, c.LLM.Provider) {
		return fmt.Errorf("invalid llm provider: %s", c.LLM.Provider)
	}
	if c.LLM.Provider == "openai" && c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key (or OPENAI_API_KEY) is required for the openai provider")
	}
	if !slices.Contains(embeddingProviders, c.Embedding.Provider) {
		return fmt.Errorf("invalid embedding provider: %s", c.Embedding.Provider)
	}
	if c.Embedding.Provider == "openai" && c.Embedding.APIKey == "" {
		return fmt.Errorf("embedding.api_key (or OPENAI_API_KEY) is required for the openai provider")
	}
	if c.Embedding.Dimension < 1 {
		return fmt.Errorf("embedding.dimension must be at least 1")
	}

	if !slices.Contains(cacheDrivers, c.Cache.Driver) {
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}
	return nil
}

// Backend resolves the connection settings for an alias.
func (c *Config) Backend(alias string) (db.Backend, error) {
	bc, ok := c.Backends[alias]
	if !ok {
		return db.Backend{}, fmt.Errorf("unknown backend %q", alias)
	}

	b, err := db.ParseURL(bc.URL)
	if err != nil {
		return db.Backend{}, err
	}
	if bc.Kind != "" {
		kind, err := db.ParseKind(bc.Kind)
		if err != nil {
			return db.Backend{}, err
		}
		if kind != b.Kind {
			return db.Backend{}, fmt.Errorf("kind %s does not match URL scheme %s", kind, b.Kind)
		}
	}
	b.Schema = bc.Schema
	return b, nil
}

// DBBackends resolves every configured backend.
func (c *Config) DBBackends() (map[string]db.Backend, error) {
	out := make(map[string]db.Backend, len(c.Backends))
	for alias := range c.Backends {
		b, err := c.Backend(alias)
		if err != nil {
			return nil, fmt.Errorf("backend %q: %w", alias, err)
		}
		out[alias] = b
	}
	return out, nil
}

// SplitSource splits "<alias>.<physical>" on the first dot.
func SplitSource(source string) (alias, physical string, err error) {
	alias, physical, ok := strings.Cut(source, ".")
	if !ok || alias == "" || physical == "" {
		return "", "", fmt.Errorf("invalid source %q (expected <alias>.<table>)", source)
	}
	return alias, physical, nil
}

// SplitColumnRef splits "<table>.<column>".
func SplitColumnRef(ref string) (table, column string, err error) {
	table, column, ok := strings.Cut(ref, ".")
	if !ok || table == "" || column == "" {
		return "", "", fmt.Errorf("invalid column reference %q (expected <table>.<column>)", ref)
	}
	return table, column, nil
}

func (c *Config) resolveSQLitePaths(configPath string) {
	for alias, bc := range c.Backends {
		if !strings.HasPrefix(bc.URL, "sqlite://") {
			continue
		}
		p := strings.TrimPrefix(bc.URL, "sqlite://")
		if p == "" || p == ":memory:" || strings.HasPrefix(p, "file:") {
			continue
		}
		bc.URL = "sqlite://" + ResolveRelativePath(configPath, p)
		c.Backends[alias] = bc
	}
}

// ResolveRelativePath resolves a path relative to the config file location.
func ResolveRelativePath(configPath, targetPath string) string {
	if filepath.IsAbs(targetPath) {
		return targetPath
	}
	return filepath.Join(filepath.Dir(configPath), targetPath)
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FEDQUERY_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("FEDQUERY_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}

	if v := os.Getenv("FEDQUERY_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("FEDQUERY_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("FEDQUERY_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}

	if v := os.Getenv("FEDQUERY_EMBEDDING_PROVIDER"); v != "" {
		cfg.Embedding.Provider = v
	}
	if v := os.Getenv("FEDQUERY_EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("FEDQUERY_EMBEDDING_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}

	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		if cfg.LLM.APIKey == "" {
			cfg.LLM.APIKey = v
		}
		if cfg.Embedding.APIKey == "" {
			cfg.Embedding.APIKey = v
		}
	}

	if n, ok := envInt("FEDQUERY_TOP_K"); ok {
		cfg.Selector.TopK = n
	}
	if n, ok := envInt("FEDQUERY_MAX_RETRIES"); ok {
		cfg.Retry.MaxRetries = n
	}
	if n, ok := envInt("FEDQUERY_FETCH_LIMIT"); ok {
		cfg.Federation.FetchLimit = n
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.URL = v
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
