package config

import (
	"path/filepath"
	"time"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 10 * time.Minute
	}
	if cfg.Storage.Blob.Driver == "" {
		cfg.Storage.Blob.Driver = "fs"
	}
	if cfg.Storage.Blob.Driver == "fs" && cfg.Storage.Blob.Root == "" {
		cfg.Storage.Blob.Root = "/usr/local/var/kotae/data/blobs"
	}
	if cfg.Storage.Metadata.Driver == "" {
		cfg.Storage.Metadata.Driver = "sqlite"
	}
	if cfg.Storage.Metadata.Driver == "sqlite" && cfg.Storage.Metadata.DSN == "" {
		cfg.Storage.Metadata.DSN = "/usr/local/var/kotae/data/db/kotae.db"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "http"
	}
	if cfg.Embedding.Provider == "http" && cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "http://localhost:8001"
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 30 * time.Second
	}
	if cfg.Embedding.Concurrency == 0 {
		cfg.Embedding.Concurrency = 4
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 1000
	}
	if cfg.Embedding.Provider == "mock" && cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Generation.Provider == "" {
		cfg.Generation.Provider = "openai"
	}
	if cfg.Generation.BaseURL == "" {
		cfg.Generation.BaseURL = "https://api.mistral.ai/v1"
	}
	if cfg.Generation.Model == "" {
		cfg.Generation.Model = "mistral-large-latest"
	}
	if cfg.Generation.Timeout == 0 {
		cfg.Generation.Timeout = 2 * time.Minute
	}
	if cfg.RAG.TopK == 0 {
		cfg.RAG.TopK = 6
	}
	if cfg.RAG.ChunkSize == 0 {
		cfg.RAG.ChunkSize = 8000
	}
	if cfg.RAG.PreviewChunkSize == 0 {
		cfg.RAG.PreviewChunkSize = 4096
	}
	if cfg.RAG.MinQuoteLength == 0 {
		cfg.RAG.MinQuoteLength = 20
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".pdf", ".docx", ".csv", ".png", ".jpg", ".jpeg", ".tiff"}
	}
	if cfg.Watch.Owner == "" {
		cfg.Watch.Owner = "local"
	}
	if cfg.Watch.Directory != "" && cfg.Watch.Collection == "" {
		cfg.Watch.Collection = filepath.Base(filepath.Clean(cfg.Watch.Directory))
	}
	// Recursive defaults to true when a directory is set.
	if cfg.Watch.Directory != "" && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
