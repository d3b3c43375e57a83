package embedding

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds parallel embedding calls when none is configured.
const DefaultConcurrency = 4

// EmbedAll embeds texts with at most concurrency calls in flight and returns the vectors in
// input order. onProgress, if set, is called after each completed call with the number done
// so far; calls are serialized. The first error cancels outstanding calls and is returned.
func EmbedAll(ctx context.Context, e Embedder, texts []string, concurrency int, onProgress func(done, total int)) ([][]float32, error) {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var (
		mu   sync.Mutex
		done int
	)
	for i, text := range texts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			vec, err := e.Embed(gctx, text)
			if err != nil {
				return err
			}
			out[i] = vec
			mu.Lock()
			done++
			if onProgress != nil {
				onProgress(done, len(texts))
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
