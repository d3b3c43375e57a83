package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/watcher"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the HTTP server",
	Long: `Starts the HTTP API. When watch.directory is configured, files appearing there are
also appended to watch.collection while the server runs.`,
	Args: cobra.NoArgs,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	return withComponents(func(c *Components) error {
		logger := c.Logger
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if c.Config.Watch.Directory != "" {
			w, err := startWatcher(ctx, c)
			if err != nil {
				return err
			}
			defer w.Stop()
		}

		srv := server.NewServer(c.Indexer, c.RAG, c.Storage, c.Sessions, c.Metrics, c.Config, logger)
		errCh := make(chan error, 1)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}
		logger.Info("Shutting down...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Stop(shutdownCtx)
	})
}

// startWatcher watches the configured directory and appends every delivered batch to the
// configured collection. Files already present are ingested once at startup.
func startWatcher(ctx context.Context, c *Components) (*watcher.Watcher, error) {
	wc := c.Config.Watch
	logger := c.Logger.With(zap.String("collection", wc.Collection), zap.String("owner", wc.Owner))
	onBatch := func(paths []string) {
		report, err := c.Indexer.IndexFiles(ctx, wc.Owner, wc.Collection, paths, true, nil)
		if err != nil {
			logger.Warn("watch ingest failed", zap.Int("files", len(paths)), zap.Error(err))
			return
		}
		logger.Info("watch ingest finished",
			zap.Int("files_added", len(report.Added)),
			zap.Int("files_skipped", len(report.Skipped)),
			zap.Int("index_size", report.IndexSize))
	}
	w := watcher.NewWatcher([]string{wc.Directory}, wc.Extensions, wc.RecursiveOrDefault(), onBatch,
		watcher.WithLogger(logger))
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	w.SyncExistingFiles()
	logger.Info("watching directory", zap.String("directory", wc.Directory))
	return w, nil
}
