package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperjump/kotae/internal/cli"
)

var collectionsCmd = &cobra.Command{
	Use:     "collections",
	Aliases: []string{"collection", "coll"},
	Short:   "Manage collections",
}

var collectionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the owner's collections",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := outputFormat()
		if err != nil {
			return err
		}
		return withComponents(func(c *Components) error {
			colls, err := c.Indexer.ListCollections(context.Background(), ownerFlag)
			if err != nil {
				return fmt.Errorf("list collections failed: %w", err)
			}
			return cli.WriteCollections(cmd.OutOrStdout(), colls, format)
		})
	},
}

var collectionsLoadCmd = &cobra.Command{
	Use:   "load <collection>",
	Short: "Load a collection and verify its snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withComponents(func(c *Components) error {
			corp, err := c.Indexer.LoadCollection(context.Background(), ownerFlag, args[0])
			if err != nil {
				return fmt.Errorf("load collection failed: %w", err)
			}
			cmd.Printf("Collection %s: %d chunk(s) from %d file(s)\n", args[0], corp.Size(), len(corp.Filenames()))
			return nil
		})
	},
}

var collectionsDeleteCmd = &cobra.Command{
	Use:   "delete <collection>",
	Short: "Delete a collection, its documents and its transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withComponents(func(c *Components) error {
			if err := c.Indexer.DeleteCollection(context.Background(), ownerFlag, args[0]); err != nil {
				return fmt.Errorf("delete collection failed: %w", err)
			}
			cmd.Printf("Collection deleted: %s\n", args[0])
			return nil
		})
	},
}

var collectionsFilesCmd = &cobra.Command{
	Use:   "files <collection>",
	Short: "List the files in a collection in ingestion order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withComponents(func(c *Components) error {
			files, err := c.Indexer.Files(context.Background(), ownerFlag, args[0])
			if err != nil {
				return fmt.Errorf("list files failed: %w", err)
			}
			out := cmd.OutOrStdout()
			for _, f := range files {
				fmt.Fprintln(out, f)
			}
			return nil
		})
	},
}

func init() {
	collectionsCmd.AddCommand(collectionsListCmd, collectionsLoadCmd, collectionsDeleteCmd, collectionsFilesCmd)
	rootCmd.AddCommand(collectionsCmd)
}
