// Package config provides configuration loading and structs for the Kotae server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Index      IndexConfig      `yaml:"index"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Continuity ContinuityConfig `yaml:"continuity"`
	Session    SessionConfig    `yaml:"session"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// StorageConfig selects the catalog store.
type StorageConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver       string `yaml:"driver"`
	DatabasePath string `yaml:"database_path"`
	DatabaseURL  string `yaml:"database_url"`
}

// DSN returns the connection string for the configured driver.
func (s *StorageConfig) DSN() string {
	if s.Driver == "postgres" {
		return s.DatabaseURL
	}
	return s.DatabasePath
}

// IndexConfig holds vector index settings.
type IndexConfig struct {
	// Type is "hnsw" or "memory".
	Type               string  `yaml:"type"`
	Path               string  `yaml:"path"`
	M                  int     `yaml:"m"`
	EfConstruction     int     `yaml:"ef_construction"`
	EfSearch           int     `yaml:"ef_search"`
	CapacityMultiplier float64 `yaml:"capacity_multiplier"`
}

// EmbeddingConfig selects and configures the embedder.
type EmbeddingConfig struct {
	// Backend is "onnx", "ollama" or "mock".
	Backend           string `yaml:"backend"`
	ModelPath         string `yaml:"model_path"`
	Model             string `yaml:"model"`
	Dimensions        int    `yaml:"dimensions"`
	MaxTokens         int    `yaml:"max_tokens"`
	CacheSize         int    `yaml:"cache_size"`
	SharedLibraryPath string `yaml:"shared_library_path"`
}

// ID names the embedding model; a persisted index built under another ID is rebuilt.
func (e *EmbeddingConfig) ID() string {
	switch e.Backend {
	case "ollama":
		return fmt.Sprintf("ollama:%s:%d", e.Model, e.Dimensions)
	case "mock":
		return fmt.Sprintf("mock:%d", e.Dimensions)
	default:
		return fmt.Sprintf("onnx:%s:%d", filepath.Base(e.ModelPath), e.Dimensions)
	}
}

// GenerationConfig configures the answer backend.
type GenerationConfig struct {
	URL         string        `yaml:"url"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	TopP        float64       `yaml:"top_p"`
	NumPredict  int           `yaml:"num_predict"`
	Timeout     time.Duration `yaml:"timeout"`
}

// ContinuityConfig holds the grounding thresholds.
type ContinuityConfig struct {
	MatchDistance        float64 `yaml:"match_distance"`
	ContinuitySimilarity float64 `yaml:"continuity_similarity"`
	GenericContext       string  `yaml:"generic_context"`
}

// SessionConfig selects the session store.
type SessionConfig struct {
	// Backend is "memory" or "redis".
	Backend       string        `yaml:"backend"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxHistory    int           `yaml:"max_history"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
}

// CatalogConfig holds catalog import settings.
type CatalogConfig struct {
	// WatchDir is a drop folder; import files placed there are loaded into the catalog.
	WatchDir   string        `yaml:"watch_dir"`
	Extensions []string      `yaml:"extensions"`
	Debounce   time.Duration `yaml:"debounce"`
}

// LogConfig enables a rotating JSON log file next to console output.
type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Index.Path = expandPath(cfg.Index.Path, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	if cfg.Catalog.WatchDir != "" {
		cfg.Catalog.WatchDir = expandPath(cfg.Catalog.WatchDir, configDir)
	}
	if cfg.Log.File != "" {
		cfg.Log.File = expandPath(cfg.Log.File, configDir)
	}

	return &cfg, nil
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		add("server.port %d out of range", c.Server.Port)
	}
	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.DatabasePath == "" {
			add("storage.database_path is required for sqlite")
		}
	case "postgres":
		if c.Storage.DatabaseURL == "" {
			add("storage.database_url is required for postgres")
		}
	default:
		add("unknown storage.driver %q", c.Storage.Driver)
	}
	if c.Index.Type != "hnsw" && c.Index.Type != "memory" {
		add("unknown index.type %q", c.Index.Type)
	}
	if c.Index.CapacityMultiplier < 1 {
		add("index.capacity_multiplier must be at least 1")
	}
	switch c.Embedding.Backend {
	case "onnx", "mock":
	case "ollama":
		if c.Embedding.Model == "" {
			add("embedding.model is required for ollama")
		}
	default:
		add("unknown embedding.backend %q", c.Embedding.Backend)
	}
	if c.Embedding.Dimensions < 1 {
		add("embedding.dimensions must be positive")
	}
	if c.Generation.Model == "" {
		add("generation.model is required")
	}
	if c.Continuity.MatchDistance <= 0 || c.Continuity.MatchDistance > 2 {
		add("continuity.match_distance %.3f outside (0, 2]", c.Continuity.MatchDistance)
	}
	if c.Continuity.ContinuitySimilarity <= 0 || c.Continuity.ContinuitySimilarity > 1 {
		add("continuity.continuity_similarity %.3f outside (0, 1]", c.Continuity.ContinuitySimilarity)
	}
	switch c.Session.Backend {
	case "memory":
	case "redis":
		if c.Session.RedisAddr == "" {
			add("session.redis_addr is required for redis")
		}
	default:
		add("unknown session.backend %q", c.Session.Backend)
	}
	if c.Session.MaxHistory < 1 {
		add("session.max_history must be at least 1")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
