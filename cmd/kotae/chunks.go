package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperjump/kotae/internal/cli"
)

var chunksSize int

var chunksCmd = &cobra.Command{
	Use:   "chunks <collection> <filename>",
	Short: "Preview how a stored document splits into chunks",
	Args:  cobra.ExactArgs(2),
	RunE:  runChunks,
}

func init() {
	chunksCmd.Flags().IntVar(&chunksSize, "size", 0, "chunk size in characters (default: rag.preview_chunk_size)")
	rootCmd.AddCommand(chunksCmd)
}

func runChunks(cmd *cobra.Command, args []string) error {
	format, err := outputFormat()
	if err != nil {
		return err
	}
	return withComponents(func(c *Components) error {
		chunks, err := c.Indexer.PreviewChunks(context.Background(), ownerFlag, args[0], args[1], chunksSize)
		if err != nil {
			return fmt.Errorf("preview chunks failed: %w", err)
		}
		return cli.WriteChunks(cmd.OutOrStdout(), args[1], chunks, format)
	})
}
