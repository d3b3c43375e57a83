// Package indexer turns uploaded documents into a collection: it extracts and chunks text,
// embeds the chunks, appends them to the collection's index and chunk store and publishes
// the result as a new snapshot and session.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/blob"
	"github.com/hyperjump/kotae/internal/corpus"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/metrics"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/session"
	"github.com/hyperjump/kotae/internal/snapshot"
	"github.com/hyperjump/kotae/internal/storage"
)

const (
	// DefaultChunkSize is the ingestion chunk size in characters.
	DefaultChunkSize = 8000
	// DefaultPreviewChunkSize is the chunk size used by PreviewChunks.
	DefaultPreviewChunkSize = 4096
)

// Skip reasons reported in IngestReport.Skipped.
const (
	ReasonAlreadyIndexed  = "already indexed"
	ReasonDuplicate       = "duplicate in batch"
	ReasonInvalidFilename = "invalid filename"
	ReasonUnsupported     = "unsupported format"
	ReasonNoText          = "no text extracted"
	ReasonUnreadable      = "unreadable"
)

// Indexer ingests documents into owner-scoped collections.
type Indexer struct {
	storage     storage.Storage
	blobs       blob.Store
	snapshots   *snapshot.Store
	sessions    *session.Registry
	embedder    embedding.Embedder
	extractor   *extract.Extractor
	chunker     *Chunker
	previewSize int
	concurrency int
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets the logger for ingestion summaries and skipped files.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) {
		if l != nil {
			idx.logger = l
		}
	}
}

// WithMetrics records skipped files, embedding latency and chunk counts on m.
func WithMetrics(m *metrics.Metrics) IndexerOption {
	return func(idx *Indexer) { idx.metrics = m }
}

// WithChunkSize sets the ingestion chunk size. Non-positive sizes fall back to FallbackChunkSize.
func WithChunkSize(n int) IndexerOption {
	return func(idx *Indexer) { idx.chunker = NewChunker(n) }
}

// WithPreviewChunkSize sets the chunk size of the preview paging view; non-positive sizes are ignored.
func WithPreviewChunkSize(n int) IndexerOption {
	return func(idx *Indexer) {
		if n > 0 {
			idx.previewSize = n
		}
	}
}

// WithConcurrency bounds the number of embedding calls in flight per batch.
func WithConcurrency(n int) IndexerOption {
	return func(idx *Indexer) {
		if n > 0 {
			idx.concurrency = n
		}
	}
}

// NewIndexer creates an indexer with the given dependencies.
// extractor may be nil; a default extractor is used then.
func NewIndexer(
	store storage.Storage,
	blobs blob.Store,
	snapshots *snapshot.Store,
	sessions *session.Registry,
	embedder embedding.Embedder,
	extractor *extract.Extractor,
	opts ...IndexerOption,
) *Indexer {
	idx := &Indexer{
		storage:     store,
		blobs:       blobs,
		snapshots:   snapshots,
		sessions:    sessions,
		embedder:    embedder,
		extractor:   extractor,
		chunker:     NewChunker(DefaultChunkSize),
		previewSize: DefaultPreviewChunkSize,
		concurrency: embedding.DefaultConcurrency,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	if idx.extractor == nil {
		idx.extractor = extract.NewExtractor(extract.WithLogger(idx.logger))
	}
	return idx
}

type newFile struct {
	name    string
	content []byte
}

// EmbedFiles ingests files into the named collection. With appendMode the new chunks are added
// after the existing ones; otherwise the collection is rebuilt from these files alone.
// Files already present in the collection, repeated within the batch, unsupported or without
// text are skipped and listed in the report. progress, if set, receives stage changes and one
// update per embedded chunk.
//
// The published collection is never modified in place: the new state is built on a copy and
// saved as a new snapshot generation next to the current one. Only after the metadata row
// points at the new generation is the session swapped, the raw documents stored and the
// replaced generation deleted. Any failure or cancellation before that leaves the previous
// snapshot, metadata, documents and session untouched.
func (idx *Indexer) EmbedFiles(ctx context.Context, owner, name string, files []models.IngestFile, appendMode bool, progress func(models.IngestProgress)) (*models.IngestReport, error) {
	if err := validateNames(owner, name); err != nil {
		return nil, err
	}
	report := func(p models.IngestProgress) {
		if progress != nil {
			progress(p)
		}
	}
	key := session.Key{Owner: owner, Collection: name}
	unlock := idx.sessions.Lock(key)
	defer unlock()

	prev, err := idx.storage.GetCollection(ctx, owner, name)
	if errors.Is(err, storage.ErrNotFound) {
		prev = nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to look up collection: %w", err)
	}
	base, err := idx.baseCorpus(ctx, key, prev, appendMode)
	if err != nil {
		return nil, err
	}

	result := &models.IngestReport{Collection: name, Added: []string{}, Skipped: []models.SkippedFile{}}
	skip := func(filename, reason string) {
		result.Skipped = append(result.Skipped, models.SkippedFile{Filename: filename, Reason: reason})
		idx.metrics.CountSkipped(skipLabel(reason))
		idx.logger.Warn("skipping file", zap.String("collection", name), zap.String("filename", filename), zap.String("reason", reason))
	}

	report(models.IngestProgress{Done: 0, Total: len(files), Stage: models.StageExtracting})
	seen := make(map[string]bool, len(files))
	var pending []newFile
	var chunks []models.Chunk
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		filename := cleanFilename(f.Filename)
		switch {
		case filename == "":
			skip(f.Filename, ReasonInvalidFilename)
		case base.HasFile(filename):
			skip(filename, ReasonAlreadyIndexed)
		case seen[filename]:
			skip(filename, ReasonDuplicate)
		case !extract.Supported(filename):
			skip(filename, ReasonUnsupported)
		default:
			seen[filename] = true
			text, err := idx.extractor.ExtractDetailed(ctx, f.Content, filename)
			if err != nil {
				skip(filename, err.Error())
				break
			}
			if strings.TrimSpace(text) == "" {
				skip(filename, ReasonNoText)
				break
			}
			fc := idx.chunker.Chunk(filename, text)
			pending = append(pending, newFile{name: filename, content: f.Content})
			chunks = append(chunks, fc...)
		}
		report(models.IngestProgress{Done: i + 1, Total: len(files), Stage: models.StageExtracting})
	}

	if len(chunks) == 0 {
		result.IndexSize = base.Size()
		report(models.IngestProgress{Done: 0, Total: 0, Stage: models.StageDone})
		idx.logger.Info("nothing to ingest", zap.String("owner", owner), zap.String("collection", name), zap.Int("skipped", len(result.Skipped)))
		return result, nil
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	start := time.Now()
	report(models.IngestProgress{Done: 0, Total: len(texts), Stage: models.StageEmbedding})
	vectors, err := embedding.EmbedAll(ctx, idx.embedder, texts, idx.concurrency, func(done, total int) {
		report(models.IngestProgress{Done: done, Total: total, Stage: models.StageEmbedding})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunks: %w", err)
	}
	idx.metrics.ObserveEmbedding(time.Since(start))

	next := base.Clone()
	if err := next.Append(chunks, vectors); err != nil {
		return nil, fmt.Errorf("failed to append chunks: %w", err)
	}

	report(models.IngestProgress{Done: 0, Total: len(pending), Stage: models.StageSaving})
	loc, err := idx.snapshots.Save(ctx, next, owner, name)
	if err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}
	coll := &models.Collection{OwnerID: owner, Name: name, IndexKey: loc.IndexKey, ChunksKey: loc.ChunksKey}
	if err := idx.storage.UpsertCollection(ctx, coll); err != nil {
		idx.dropSnapshot(ctx, loc)
		return nil, fmt.Errorf("failed to record collection: %w", err)
	}
	idx.sessions.Swap(key, next)
	idx.metrics.SetSessions(idx.sessions.Len())
	idx.metrics.AddChunks(owner, len(chunks))

	// The collection is committed; the remaining writes finish even if ctx is cancelled.
	committed := context.WithoutCancel(ctx)
	for i, f := range pending {
		if err := idx.blobs.Put(committed, blob.DocumentKey(owner, name, f.name), f.content); err != nil {
			idx.logger.Error("failed to store document", zap.String("collection", name), zap.String("filename", f.name), zap.Error(err))
		}
		report(models.IngestProgress{Done: i + 1, Total: len(pending), Stage: models.StageSaving})
	}
	if !appendMode {
		idx.pruneDocuments(committed, owner, name, next)
	}
	if prev != nil && prev.IndexKey != loc.IndexKey {
		idx.dropSnapshot(committed, snapshot.Location{IndexKey: prev.IndexKey, ChunksKey: prev.ChunksKey})
	}

	for _, f := range pending {
		result.Added = append(result.Added, f.name)
	}
	result.ChunksAdded = len(chunks)
	result.IndexSize = next.Size()
	report(models.IngestProgress{Done: len(texts), Total: len(texts), Stage: models.StageDone})
	idx.logger.Info("collection updated",
		zap.String("owner", owner),
		zap.String("collection", name),
		zap.Bool("append", appendMode),
		zap.Int("files_added", len(result.Added)),
		zap.Int("files_skipped", len(result.Skipped)),
		zap.Int("chunks_added", result.ChunksAdded),
		zap.Int("index_size", result.IndexSize),
		zap.Duration("took", time.Since(start)))
	return result, nil
}

// baseCorpus returns the state new chunks are appended to. The loaded session is preferred;
// otherwise the snapshot recorded in prev is read. No recorded collection starts empty, a
// corrupt snapshot is an error.
func (idx *Indexer) baseCorpus(ctx context.Context, key session.Key, prev *models.Collection, appendMode bool) (*corpus.Corpus, error) {
	if !appendMode || prev == nil {
		return corpus.New(), nil
	}
	if c, ok := idx.sessions.Get(key); ok {
		return c, nil
	}
	c, err := idx.snapshots.Load(ctx, snapshot.Location{IndexKey: prev.IndexKey, ChunksKey: prev.ChunksKey})
	if errors.Is(err, snapshot.ErrSnapshotNotFound) {
		return corpus.New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load existing collection: %w", err)
	}
	return c, nil
}

// dropSnapshot deletes a snapshot generation that is no longer referenced. Failures leave an
// orphan behind and are only logged.
func (idx *Indexer) dropSnapshot(ctx context.Context, loc snapshot.Location) {
	if err := idx.snapshots.Delete(context.WithoutCancel(ctx), loc); err != nil {
		idx.logger.Warn("failed to delete replaced snapshot", zap.String("index_key", loc.IndexKey), zap.Error(err))
	}
}

// pruneDocuments deletes stored documents whose file is no longer part of c.
func (idx *Indexer) pruneDocuments(ctx context.Context, owner, name string, c *corpus.Corpus) {
	keys, err := idx.blobs.List(ctx, blob.DocumentsPrefix(owner, name))
	if err != nil {
		idx.logger.Warn("failed to list documents", zap.String("collection", name), zap.Error(err))
		return
	}
	for _, k := range keys {
		if c.HasFile(path.Base(k)) {
			continue
		}
		if err := idx.blobs.Delete(ctx, k); err != nil {
			idx.logger.Warn("failed to delete stale document", zap.String("key", k), zap.Error(err))
		}
	}
}

// LoadCollection reads a collection's snapshot and makes it the active session for queries.
func (idx *Indexer) LoadCollection(ctx context.Context, owner, name string) (*corpus.Corpus, error) {
	coll, err := idx.storage.GetCollection(ctx, owner, name)
	if err != nil {
		return nil, fmt.Errorf("collection %s: %w", name, err)
	}
	c, err := idx.snapshots.Load(ctx, snapshot.Location{IndexKey: coll.IndexKey, ChunksKey: coll.ChunksKey})
	if err != nil {
		return nil, err
	}
	idx.sessions.Swap(session.Key{Owner: owner, Collection: name}, c)
	idx.metrics.SetSessions(idx.sessions.Len())
	idx.logger.Info("collection loaded", zap.String("owner", owner), zap.String("collection", name), zap.Int("chunks", c.Size()))
	return c, nil
}

// DeleteCollection removes the collection's metadata, transcript, snapshot and raw documents
// and unloads its session.
func (idx *Indexer) DeleteCollection(ctx context.Context, owner, name string) error {
	key := session.Key{Owner: owner, Collection: name}
	unlock := idx.sessions.Lock(key)
	defer unlock()

	coll, err := idx.storage.GetCollection(ctx, owner, name)
	if err != nil {
		return fmt.Errorf("collection %s: %w", name, err)
	}
	if err := idx.snapshots.Delete(ctx, snapshot.Location{IndexKey: coll.IndexKey, ChunksKey: coll.ChunksKey}); err != nil {
		return err
	}
	// Documents plus any snapshot generation an interrupted save left behind.
	keys, err := idx.blobs.List(ctx, blob.CollectionPrefix(owner, name))
	if err != nil {
		return fmt.Errorf("failed to list artifacts: %w", err)
	}
	for _, k := range keys {
		if err := idx.blobs.Delete(ctx, k); err != nil {
			return fmt.Errorf("failed to delete %s: %w", k, err)
		}
	}
	if err := idx.storage.DeleteCollection(ctx, owner, name); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	idx.sessions.Evict(key)
	idx.metrics.SetSessions(idx.sessions.Len())
	idx.logger.Info("collection deleted", zap.String("owner", owner), zap.String("collection", name), zap.Int("artifacts", len(keys)))
	return nil
}

// ListCollections returns the owner's collections.
func (idx *Indexer) ListCollections(ctx context.Context, owner string) ([]*models.Collection, error) {
	return idx.storage.ListCollections(ctx, owner)
}

// Files returns the source filenames in a collection in ingestion order.
func (idx *Indexer) Files(ctx context.Context, owner, name string) ([]string, error) {
	if c, ok := idx.sessions.Get(session.Key{Owner: owner, Collection: name}); ok {
		return c.Filenames(), nil
	}
	coll, err := idx.storage.GetCollection(ctx, owner, name)
	if err != nil {
		return nil, fmt.Errorf("collection %s: %w", name, err)
	}
	c, err := idx.snapshots.Load(ctx, snapshot.Location{IndexKey: coll.IndexKey, ChunksKey: coll.ChunksKey})
	if err != nil {
		return nil, err
	}
	return c.Filenames(), nil
}

// Document returns the raw bytes of an uploaded file.
func (idx *Indexer) Document(ctx context.Context, owner, name, filename string) ([]byte, error) {
	if err := validateNames(owner, name); err != nil {
		return nil, err
	}
	filename = cleanFilename(filename)
	if filename == "" {
		return nil, blob.ErrInvalidKey
	}
	return idx.blobs.Get(ctx, blob.DocumentKey(owner, name, filename))
}

// PreviewChunks re-extracts a stored document and splits it with size (the preview size when
// size is not positive), without touching the collection.
func (idx *Indexer) PreviewChunks(ctx context.Context, owner, name, filename string, size int) ([]models.Chunk, error) {
	data, err := idx.Document(ctx, owner, name, filename)
	if err != nil {
		return nil, err
	}
	text, err := idx.extractor.ExtractDetailed(ctx, data, filename)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		size = idx.previewSize
	}
	chunks := NewChunker(size).Chunk(cleanFilename(filename), text)
	if chunks == nil {
		chunks = []models.Chunk{}
	}
	return chunks, nil
}

// IndexFiles reads the files at paths and ingests them as one batch. Paths that vanished or
// cannot be read are reported as skipped.
func (idx *Indexer) IndexFiles(ctx context.Context, owner, name string, paths []string, appendMode bool, progress func(models.IngestProgress)) (*models.IngestReport, error) {
	files := make([]models.IngestFile, 0, len(paths))
	var unreadable []models.SkippedFile
	for _, p := range paths {
		info, err := os.Stat(p)
		if err == nil && !info.Mode().IsRegular() {
			err = fmt.Errorf("not a regular file")
		}
		var content []byte
		if err == nil {
			content, err = os.ReadFile(p)
		}
		if err != nil {
			idx.logger.Warn("skipping unreadable file", zap.String("path", p), zap.Error(err))
			idx.metrics.CountSkipped(skipLabel(ReasonUnreadable))
			unreadable = append(unreadable, models.SkippedFile{Filename: filepath.Base(p), Reason: ReasonUnreadable})
			continue
		}
		files = append(files, models.IngestFile{Filename: filepath.Base(p), Content: content})
	}
	report, err := idx.EmbedFiles(ctx, owner, name, files, appendMode, progress)
	if err != nil {
		return nil, err
	}
	report.Skipped = append(report.Skipped, unreadable...)
	return report, nil
}

// IndexDirectory walks dir recursively and ingests every regular file whose extension is in
// allowedExts (all supported formats when allowedExts is empty) as one batch.
func (idx *Indexer) IndexDirectory(ctx context.Context, owner, name, dir string, allowedExts []string, appendMode bool, progress func(models.IngestProgress)) (*models.IngestReport, error) {
	paths, err := CollectFiles(dir, allowedExts)
	if err != nil {
		return nil, err
	}
	return idx.IndexFiles(ctx, owner, name, paths, appendMode, progress)
}

// CollectFiles returns the regular files under dir whose extension is in allowedExts (any
// extension when allowedExts is empty), in lexical order.
func CollectFiles(dir string, allowedExts []string) ([]string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return nil, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", absDir)
	}
	var paths []string
	err = filepath.WalkDir(absDir, func(p string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(p))
		if len(allowedExts) > 0 && !extensionAllowed(ext, allowedExts) {
			return nil
		}
		// Resolve symlinks so only regular files are read
		finfo, statErr := os.Stat(p)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		paths = append(paths, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}

// cleanFilename reduces an uploaded name to its last path element, or "" when nothing usable remains.
func cleanFilename(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if blob.ValidateName(base) != nil {
		return ""
	}
	return base
}

func validateNames(owner, name string) error {
	if err := blob.ValidateName(owner); err != nil {
		return fmt.Errorf("owner %q: %w", owner, err)
	}
	if err := blob.ValidateName(name); err != nil {
		return fmt.Errorf("collection %q: %w", name, err)
	}
	return nil
}

// skipLabel keeps metric label cardinality bounded: extraction failures carry the file name.
func skipLabel(reason string) string {
	switch reason {
	case ReasonAlreadyIndexed, ReasonDuplicate, ReasonInvalidFilename, ReasonUnsupported, ReasonNoText, ReasonUnreadable:
		return reason
	default:
		return "extraction failed"
	}
}
