// Package config provides configuration loading and structs for the kotae server and CLI.
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
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	RAG        RAGConfig        `yaml:"rag"`
	Watch      WatchConfig      `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// StorageConfig selects where artifacts and metadata are kept.
type StorageConfig struct {
	Blob     BlobConfig     `yaml:"blob"`
	Metadata MetadataConfig `yaml:"metadata"`
}

// BlobConfig configures the artifact store. Driver is "fs" or "s3".
type BlobConfig struct {
	Driver    string `yaml:"driver"`
	Root      string `yaml:"root"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
	AccessKey string `yaml:"access_key,omitempty"`
	SecretKey string `yaml:"secret_key,omitempty"`
}

// MetadataConfig configures the collection and transcript database. Driver is "sqlite" or "postgres";
// DSN is a file path for sqlite and a connection string for postgres.
type MetadataConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// EmbeddingConfig holds embedding service settings. Provider is "http" or "mock".
type EmbeddingConfig struct {
	Provider          string        `yaml:"provider"`
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key,omitempty"`
	Model             string        `yaml:"model"`
	Timeout           time.Duration `yaml:"timeout"`
	Concurrency       int           `yaml:"concurrency"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	CacheSize         int           `yaml:"cache_size"`
	Dimensions        int           `yaml:"dimensions"`
}

// GenerationConfig holds answer generation settings. Provider is "openai" (any OpenAI-compatible
// chat endpoint) or "static".
type GenerationConfig struct {
	Provider     string        `yaml:"provider"`
	BaseURL      string        `yaml:"base_url"`
	APIKey       string        `yaml:"api_key,omitempty"`
	Model        string        `yaml:"model"`
	Timeout      time.Duration `yaml:"timeout"`
	StaticAnswer string        `yaml:"static_answer,omitempty"`
}

// RAGConfig holds retrieval and chunking settings.
type RAGConfig struct {
	TopK             int `yaml:"top_k"`
	ChunkSize        int `yaml:"chunk_size"`
	PreviewChunkSize int `yaml:"preview_chunk_size"`
	MinQuoteLength   int `yaml:"min_quote_length"`
}

// WatchConfig holds directory watch settings. New files in Directory are appended to Collection.
type WatchConfig struct {
	Directory  string   `yaml:"directory"`
	Collection string   `yaml:"collection"`
	Owner      string   `yaml:"owner"`
	Extensions []string `yaml:"extensions"`
	Recursive  *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Load reads and parses the config file at path, applies environment overrides, expands paths,
// and applies defaults. An empty path skips the file and uses environment and defaults only.
func Load(path string) (*Config, error) {
	var cfg Config
	configDir := "."
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		configDir = filepath.Dir(path)
	}

	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)

	cfg.Storage.Blob.Root = expandPath(cfg.Storage.Blob.Root, configDir)
	if cfg.Storage.Metadata.Driver == "sqlite" {
		cfg.Storage.Metadata.DSN = expandPath(cfg.Storage.Metadata.DSN, configDir)
	}
	if cfg.Watch.Directory != "" {
		cfg.Watch.Directory = expandPath(cfg.Watch.Directory, configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	switch c.Storage.Blob.Driver {
	case "fs":
	case "s3":
		if c.Storage.Blob.Bucket == "" {
			return fmt.Errorf("storage.blob.bucket is required for the s3 driver")
		}
	default:
		return fmt.Errorf("unknown storage.blob.driver %q", c.Storage.Blob.Driver)
	}
	switch c.Storage.Metadata.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown storage.metadata.driver %q", c.Storage.Metadata.Driver)
	}
	switch c.Embedding.Provider {
	case "http":
		if c.Embedding.BaseURL == "" {
			return fmt.Errorf("embedding.base_url is required for the http provider")
		}
	case "mock":
	default:
		return fmt.Errorf("unknown embedding.provider %q", c.Embedding.Provider)
	}
	switch c.Generation.Provider {
	case "openai", "static":
	default:
		return fmt.Errorf("unknown generation.provider %q", c.Generation.Provider)
	}
	return nil
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

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
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
