package config

import (
	"fmt"
	"strconv"
	"strings"
)

// ApplyEnv overlays environment variables on cfg. lookup is usually os.LookupEnv.
//
// KOTAE_* variables mirror config keys. MISTRAL_KEY, EMBED_SERVER_URL, EMBED_SERVER_PORT,
// AWS_REGION and AWS_S3_BUCKET are honoured for deployments that already set them.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	get := func(keys ...string) (string, bool) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v), true
			}
		}
		return "", false
	}
	var errs []string
	setBool := func(dst *bool, keys ...string) {
		if v, ok := get(keys...); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", keys[0], err))
				return
			}
			*dst = b
		}
	}
	setInt := func(dst *int, keys ...string) {
		if v, ok := get(keys...); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", keys[0], err))
				return
			}
			*dst = n
		}
	}
	setString := func(dst *string, keys ...string) {
		if v, ok := get(keys...); ok {
			*dst = v
		}
	}

	setBool(&cfg.Debug, "KOTAE_DEBUG")
	setString(&cfg.Server.Host, "KOTAE_SERVER_HOST")
	setInt(&cfg.Server.Port, "KOTAE_SERVER_PORT")

	setString(&cfg.Storage.Blob.Driver, "KOTAE_BLOB_DRIVER")
	setString(&cfg.Storage.Blob.Root, "KOTAE_BLOB_ROOT")
	setString(&cfg.Storage.Blob.Bucket, "KOTAE_S3_BUCKET", "AWS_S3_BUCKET")
	setString(&cfg.Storage.Blob.Region, "KOTAE_S3_REGION", "AWS_REGION")
	setString(&cfg.Storage.Blob.Endpoint, "KOTAE_S3_ENDPOINT")
	setString(&cfg.Storage.Blob.AccessKey, "AWS_ACCESS_KEY_ID")
	setString(&cfg.Storage.Blob.SecretKey, "AWS_SECRET_ACCESS_KEY")
	setString(&cfg.Storage.Metadata.Driver, "KOTAE_METADATA_DRIVER")
	setString(&cfg.Storage.Metadata.DSN, "KOTAE_METADATA_DSN")

	setString(&cfg.Embedding.Provider, "KOTAE_EMBEDDING_PROVIDER")
	if v, ok := get("KOTAE_EMBEDDING_URL"); ok {
		cfg.Embedding.BaseURL = v
	} else if v, ok := get("EMBED_SERVER_URL"); ok {
		if port, ok := get("EMBED_SERVER_PORT"); ok {
			v = strings.TrimRight(v, "/") + ":" + port
		}
		cfg.Embedding.BaseURL = v
	}
	setString(&cfg.Embedding.APIKey, "KOTAE_EMBEDDING_API_KEY")

	setString(&cfg.Generation.Provider, "KOTAE_GENERATION_PROVIDER")
	setString(&cfg.Generation.BaseURL, "KOTAE_GENERATION_URL")
	setString(&cfg.Generation.APIKey, "KOTAE_GENERATION_API_KEY", "MISTRAL_KEY")
	setString(&cfg.Generation.Model, "KOTAE_GENERATION_MODEL")

	setInt(&cfg.RAG.TopK, "KOTAE_TOP_K")
	setInt(&cfg.RAG.ChunkSize, "KOTAE_CHUNK_SIZE")

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}
