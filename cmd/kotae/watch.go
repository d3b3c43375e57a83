package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
)

var watchCollection string

var watchCmd = &cobra.Command{
	Use:   "watch [directory]",
	Short: "Append files from a directory to a collection as they appear",
	Long: `Ingests the files already in the directory, then keeps watching it and appends new or
changed files to the collection in batches until interrupted. Defaults come from the watch
section of the config.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchCollection, "collection", "c", "", "target collection (default: watch.collection, else the directory name)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	return withComponents(func(c *Components) error {
		wc := &c.Config.Watch
		if len(args) == 1 {
			abs, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			wc.Directory = abs
			wc.Collection = ""
		}
		if wc.Directory == "" {
			return errors.New("no directory given and watch.directory is not configured")
		}
		if watchCollection != "" {
			wc.Collection = watchCollection
		}
		if wc.Collection == "" {
			wc.Collection = filepath.Base(filepath.Clean(wc.Directory))
		}
		if f := cmd.Flag("owner"); f != nil && f.Changed {
			wc.Owner = ownerFlag
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		w, err := startWatcher(ctx, c)
		if err != nil {
			return err
		}
		defer w.Stop()
		cmd.Printf("Watching %s into collection %s (Ctrl+C to stop)\n", wc.Directory, wc.Collection)
		<-ctx.Done()
		return nil
	})
}
