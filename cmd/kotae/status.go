package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperjump/kotae/internal/blob"
	"github.com/hyperjump/kotae/internal/cli"
)

// statusConfig holds configuration info reported by status.
type statusConfig struct {
	BlobDriver         string `json:"blob_driver"`
	BlobRoot           string `json:"blob_root,omitempty"`
	MetadataDriver     string `json:"metadata_driver"`
	EmbeddingProvider  string `json:"embedding_provider"`
	GenerationProvider string `json:"generation_provider"`
	GenerationModel    string `json:"generation_model,omitempty"`
	TopK               int    `json:"top_k"`
	ChunkSize          int    `json:"chunk_size"`
}

type statusReport struct {
	Collections    int64         `json:"collections"`
	Owned          int           `json:"owned_collections"`
	DiskUsageBytes *int64        `json:"disk_usage_bytes,omitempty"`
	Config         *statusConfig `json:"config"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show storage and configuration status",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := outputFormat()
	if err != nil {
		return err
	}
	return withComponents(func(c *Components) error {
		ctx := context.Background()
		total, err := c.Storage.CountCollections(ctx)
		if err != nil {
			return fmt.Errorf("count collections failed: %w", err)
		}
		owned, err := c.Storage.ListCollections(ctx, ownerFlag)
		if err != nil {
			return fmt.Errorf("list collections failed: %w", err)
		}
		cfg := c.Config
		status := statusReport{
			Collections: total,
			Owned:       len(owned),
			Config: &statusConfig{
				BlobDriver:         cfg.Storage.Blob.Driver,
				MetadataDriver:     cfg.Storage.Metadata.Driver,
				EmbeddingProvider:  cfg.Embedding.Provider,
				GenerationProvider: cfg.Generation.Provider,
				GenerationModel:    cfg.Generation.Model,
				TopK:               cfg.RAG.TopK,
				ChunkSize:          cfg.RAG.ChunkSize,
			},
		}
		var paths []string
		if cfg.Storage.Blob.Driver == "fs" {
			status.Config.BlobRoot = cfg.Storage.Blob.Root
			paths = append(paths, cfg.Storage.Blob.Root)
		}
		if cfg.Storage.Metadata.Driver == "sqlite" {
			paths = append(paths, cfg.Storage.Metadata.DSN)
		}
		if len(paths) > 0 {
			if n, err := blob.DiskUsageBytes(paths...); err == nil {
				status.DiskUsageBytes = &n
			}
		}

		out := cmd.OutOrStdout()
		if format == cli.OutputJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(status)
		}
		fmt.Fprintf(out, "collections:        %d   # across all owners\n", status.Collections)
		fmt.Fprintf(out, "owned_collections:  %d   # for owner %s\n", status.Owned, ownerFlag)
		if status.DiskUsageBytes != nil {
			fmt.Fprintf(out, "disk_usage_bytes:   %d   # blobs + metadata on disk\n", *status.DiskUsageBytes)
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, "# configuration")
		fmt.Fprintf(out, "blob_driver:        %s\n", status.Config.BlobDriver)
		if status.Config.BlobRoot != "" {
			fmt.Fprintf(out, "blob_root:          %s\n", status.Config.BlobRoot)
		}
		fmt.Fprintf(out, "metadata_driver:    %s\n", status.Config.MetadataDriver)
		fmt.Fprintf(out, "embedding_provider: %s\n", status.Config.EmbeddingProvider)
		fmt.Fprintf(out, "generation:         %s %s\n", status.Config.GenerationProvider, status.Config.GenerationModel)
		fmt.Fprintf(out, "top_k:              %d\n", status.Config.TopK)
		fmt.Fprintf(out, "chunk_size:         %d\n", status.Config.ChunkSize)
		return nil
	})
}
