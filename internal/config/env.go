package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads KEY=value pairs from the given .env files (".env" when none)
// into the process environment without overriding variables already set.
// Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides cfg from the environment. lookup is normally os.LookupEnv.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup("DATABASE_URL"); ok && v != "" {
		cfg.Storage.Driver = "postgres"
		cfg.Storage.DatabaseURL = v
	}
	if v, ok := lookup("INDEX_FILE"); ok && v != "" {
		cfg.Index.Path = v
	}
	if v, ok := lookup("EMBEDDING_MODEL"); ok && v != "" {
		if cfg.Embedding.Backend == "onnx" {
			cfg.Embedding.ModelPath = v
		} else {
			cfg.Embedding.Model = v
		}
	}
	if v, ok := lookup("OLLAMA_URL"); ok && v != "" {
		cfg.Generation.URL = v
	}
	if v, ok := lookup("OLLAMA_MODEL"); ok && v != "" {
		cfg.Generation.Model = v
	}
	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	if v, ok := lookup("REDIS_ADDR"); ok && v != "" {
		cfg.Session.Backend = "redis"
		cfg.Session.RedisAddr = v
	}
	if v, ok := lookup("KOTAE_DEBUG"); ok && v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid KOTAE_DEBUG %q: %w", v, err)
		}
		cfg.Debug = debug
	}
	return nil
}
