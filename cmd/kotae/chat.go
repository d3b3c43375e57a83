package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperjump/kotae/internal/cli"
)

var chatCmd = &cobra.Command{
	Use:   "chat <collection>",
	Short: "Show a collection's question and answer transcript",
	Args:  cobra.ExactArgs(1),
	RunE:  runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	format, err := outputFormat()
	if err != nil {
		return err
	}
	return withComponents(func(c *Components) error {
		msgs, err := c.RAG.Messages(context.Background(), ownerFlag, args[0])
		if err != nil {
			return fmt.Errorf("load chat failed: %w", err)
		}
		return cli.WriteMessages(cmd.OutOrStdout(), msgs, format)
	})
}
