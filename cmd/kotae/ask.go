package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
)

var (
	askOpen bool
	askTopK int
)

var askCmd = &cobra.Command{
	Use:   "ask <collection> <question>",
	Short: "Ask a question about a collection",
	Long: `Loads the collection, retrieves the chunks most similar to the question and prints the
generated answer with the quotes it was grounded on. The question is all remaining arguments
joined by spaces, so quoting is optional.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askOpen, "open", false, "answer from general knowledge without retrieval")
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 0, "number of chunks to retrieve (default: rag.top_k)")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	format, err := outputFormat()
	if err != nil {
		return err
	}
	req := models.AskRequest{
		Collection: args[0],
		Question:   buildQuestion(args[1:]),
		OpenMode:   askOpen,
		TopK:       askTopK,
	}
	return withComponents(func(c *Components) error {
		ctx := context.Background()
		if !req.OpenMode {
			// Each CLI run starts with no loaded sessions.
			if _, err := c.Indexer.LoadCollection(ctx, ownerFlag, req.Collection); err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					return fmt.Errorf("collection %q not found", req.Collection)
				}
				return fmt.Errorf("load collection failed: %w", err)
			}
		}
		answer, err := c.RAG.Ask(ctx, ownerFlag, req)
		if err != nil {
			return fmt.Errorf("ask failed: %w", err)
		}
		return cli.WriteAnswer(cmd.OutOrStdout(), answer, format)
	})
}

// buildQuestion joins all positional args with spaces so multi-word questions work the same
// with or without shell quoting.
func buildQuestion(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}
