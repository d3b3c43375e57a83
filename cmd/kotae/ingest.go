package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/models"
)

var (
	ingestRebuild bool
	ingestExts    []string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <collection> <file-or-directory>...",
	Short: "Add documents to a collection",
	Long: `Extracts, chunks and embeds the given files (directories are walked recursively) and
appends them to the collection, creating it if needed. Files already in the collection are
skipped. With --rebuild the collection is replaced by these files alone.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestRebuild, "rebuild", false, "replace the collection instead of appending")
	ingestCmd.Flags().StringSliceVar(&ingestExts, "ext", nil, "extensions to pick up from directories (default: watch.extensions)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	format, err := outputFormat()
	if err != nil {
		return err
	}
	name := args[0]
	return withComponents(func(c *Components) error {
		exts := ingestExts
		if len(exts) == 0 {
			exts = c.Config.Watch.Extensions
		}
		paths, err := expandPaths(args[1:], exts)
		if err != nil {
			return err
		}
		progress := func(p models.IngestProgress) {
			if format == cli.OutputText && p.Stage == models.StageEmbedding && p.Total > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "\rembedding %d/%d", p.Done, p.Total)
				if p.Done == p.Total {
					fmt.Fprintln(cmd.ErrOrStderr())
				}
			}
		}
		report, err := c.Indexer.IndexFiles(context.Background(), ownerFlag, name, paths, !ingestRebuild, progress)
		if err != nil {
			return fmt.Errorf("ingest failed: %w", err)
		}
		return cli.WriteReport(cmd.OutOrStdout(), report, format)
	})
}

// expandPaths replaces directories in args by the matching files inside them.
func expandPaths(args []string, exts []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to stat path: %w", err)
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		found, err := indexer.CollectFiles(arg, exts)
		if err != nil {
			return nil, err
		}
		paths = append(paths, found...)
	}
	return paths, nil
}
