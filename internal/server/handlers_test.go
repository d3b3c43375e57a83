package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/blob"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/generation"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/metrics"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/rag"
	"github.com/hyperjump/kotae/internal/session"
	"github.com/hyperjump/kotae/internal/snapshot"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
)

const foxSentence = "The quick brown fox jumps over the lazy dog near the river bank."

func newTestServer(t *testing.T, gen generation.Generator) http.Handler {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Storage: config.StorageConfig{
			Blob:     config.BlobConfig{Driver: "fs", Root: filepath.Join(dir, "blobs")},
			Metadata: config.MetadataConfig{Driver: "sqlite", DSN: filepath.Join(dir, "kotae.db")},
		},
		Embedding: config.EmbeddingConfig{Provider: "mock"},
	}
	config.ApplyDefaults(cfg)

	store, err := storage.NewSQLiteStorage(cfg.Storage.Metadata.DSN)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	blobs, err := blob.NewFSStore(cfg.Storage.Blob.Root)
	require.NoError(t, err)

	logger := zap.NewNop()
	m := metrics.New()
	sessions := session.NewRegistry()
	embedder := embedding.NewMockEmbedder(16)
	idx := indexer.NewIndexer(store, blobs, snapshot.NewStore(blobs, logger), sessions, embedder, nil,
		indexer.WithChunkSize(600), indexer.WithMetrics(m))
	if gen == nil {
		gen = generation.Static{Answer: `The fox jumps. Evidence: "` + foxSentence[:43] + `"`}
	}
	svc := rag.NewService(sessions, store, embedder, gen, rag.WithMetrics(m))
	return NewServer(idx, svc, store, sessions, m, cfg, logger).Handler()
}

func do(t *testing.T, h http.Handler, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(method, target, body)
	r.Header.Set(OwnerHeader, "alice")
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func upload(t *testing.T, h http.Handler, collection string, appendMode string, files map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		fw, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, _ = fw.Write([]byte(content))
	}
	if appendMode != "" {
		require.NoError(t, mw.WriteField("append", appendMode))
	}
	require.NoError(t, mw.Close())
	return do(t, h, http.MethodPost, "/api/v1/collections/"+collection+"/documents", &buf, mw.FormDataContentType())
}

func lastLine(t *testing.T, body string) string {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(body), "\n")
	return lines[len(lines)-1]
}

func TestHealthAndOwnerHeader(t *testing.T) {
	h := newTestServer(t, nil)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/collections", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestIngestStreamsProgress(t *testing.T) {
	h := newTestServer(t, nil)
	w := upload(t, h, "docs", "false", map[string]string{
		"a.txt": strings.Repeat("a", 1000),
		"b.txt": strings.Repeat("b", 1500),
	})
	require.Equal(t, http.StatusOK, w.Code)

	var progress []string
	sc := bufio.NewScanner(strings.NewReader(w.Body.String()))
	for sc.Scan() {
		if strings.HasPrefix(sc.Text(), "PROGRESS: ") {
			progress = append(progress, sc.Text())
		}
	}
	assert.Len(t, progress, 5)
	assert.Equal(t, "PROGRESS: 5/5", progress[len(progress)-1])

	var report models.IngestReport
	require.NoError(t, json.Unmarshal([]byte(lastLine(t, w.Body.String())), &report))
	assert.Equal(t, 5, report.IndexSize)
	assert.ElementsMatch(t, []string{"a.txt", "b.txt"}, report.Added)

	w = upload(t, h, "docs", "", map[string]string{"a.txt": "again", "c.txt": "new"})
	require.NoError(t, json.Unmarshal([]byte(lastLine(t, w.Body.String())), &report))
	assert.Equal(t, 6, report.IndexSize)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, "a.txt", report.Skipped[0].Filename)
}

func TestIngestBadRequests(t *testing.T) {
	h := newTestServer(t, nil)
	w := do(t, h, http.MethodPost, "/api/v1/collections/docs/documents", strings.NewReader("x"), "text/plain")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = upload(t, h, "docs", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = upload(t, h, "docs", "maybe", map[string]string{"a.txt": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAskFlow(t *testing.T) {
	h := newTestServer(t, nil)

	ask := func(body string) *httptest.ResponseRecorder {
		return do(t, h, http.MethodPost, "/api/v1/ask", strings.NewReader(body), "application/json")
	}

	w := ask(`{"question":"What does the fox do?","collection":"docs"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = upload(t, h, "docs", "false", map[string]string{"fox.txt": foxSentence})
	require.Equal(t, http.StatusOK, w.Code)

	w = ask(`{"question":"What does the fox do?","collection":"docs"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var ans models.Answer
	require.NoError(t, json.NewDecoder(w.Body).Decode(&ans))
	require.Len(t, ans.Evidence, 1)
	assert.Equal(t, "fox.txt", ans.Evidence[0].SourceFilename)
	assert.Equal(t, foxSentence[:43], ans.Evidence[0].QuotedText)

	w = ask(`{"question":"","collection":"docs"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = ask(`not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodGet, "/api/v1/collections/docs/messages", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var msgs struct {
		Messages []models.Message `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&msgs))
	require.Len(t, msgs.Messages, 2)
	assert.Equal(t, models.RoleUser, msgs.Messages[0].Role)
	assert.Equal(t, models.RoleBot, msgs.Messages[1].Role)
}

func TestAskGenerationFailureMapsTo502(t *testing.T) {
	h := newTestServer(t, failingGenerator{})
	upload(t, h, "docs", "false", map[string]string{"fox.txt": foxSentence})
	w := do(t, h, http.MethodPost, "/api/v1/ask", strings.NewReader(`{"question":"q","collection":"docs"}`), "application/json")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "generation service unavailable")
	assert.NotContains(t, w.Body.String(), "upstream exploded")
}

type failingGenerator struct{}

func (failingGenerator) Generate(context.Context, string) (string, error) {
	return "", &generation.ServiceError{Op: "chat completion", Err: errors.New("upstream exploded")}
}

func TestCollectionEndpoints(t *testing.T) {
	h := newTestServer(t, nil)
	upload(t, h, "docs", "false", map[string]string{"fox.txt": foxSentence, "long.txt": strings.Repeat("z", 5000)})

	w := do(t, h, http.MethodGet, "/api/v1/collections", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"docs"`)

	w = do(t, h, http.MethodPost, "/api/v1/collections/docs/load", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var loaded struct {
		Chunks int      `json:"chunks"`
		Files  []string `json:"files"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&loaded))
	assert.Equal(t, 10, loaded.Chunks)
	assert.ElementsMatch(t, []string{"fox.txt", "long.txt"}, loaded.Files)

	w = do(t, h, http.MethodGet, "/api/v1/collections/docs/files", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodGet, "/api/v1/collections/docs/documents/fox.txt", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, foxSentence, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")

	w = do(t, h, http.MethodGet, "/api/v1/collections/docs/chunks?filename=long.txt", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var preview struct {
		Chunks []models.Chunk `json:"chunks"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&preview))
	assert.Len(t, preview.Chunks, 2, "default preview size is 4096")

	w = do(t, h, http.MethodGet, "/api/v1/collections/docs/chunks?filename=long.txt&size=1000", nil, "")
	require.NoError(t, json.NewDecoder(w.Body).Decode(&preview))
	assert.Len(t, preview.Chunks, 5)

	w = do(t, h, http.MethodGet, "/api/v1/collections/docs/chunks", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodGet, "/api/v1/status", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"collections":1`)

	w = do(t, h, http.MethodDelete, "/api/v1/collections/docs", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	w = do(t, h, http.MethodPost, "/api/v1/collections/docs/load", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(t, h, http.MethodGet, "/api/v1/collections/docs/documents/fox.txt", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t, nil)
	upload(t, h, "docs", "false", map[string]string{"fox.txt": foxSentence})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `kotae_chunks_ingested_total{owner="alice"} 1`)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&rag.MissingInputError{Field: "question"}, http.StatusBadRequest},
		{fmt.Errorf("x: %w", blob.ErrInvalidKey), http.StatusBadRequest},
		{fmt.Errorf("received: %w", rag.ErrCollectionNotFound), http.StatusNotFound},
		{fmt.Errorf("collection x: %w", storage.ErrNotFound), http.StatusNotFound},
		{snapshot.ErrSnapshotNotFound, http.StatusNotFound},
		{rag.ErrNoIndexLoaded, http.StatusConflict},
		{&snapshot.CorruptSnapshotError{Reason: "size mismatch"}, http.StatusUnprocessableEntity},
		{&embedding.ServiceError{Op: "embed", Err: context.DeadlineExceeded}, http.StatusGatewayTimeout},
		{&embedding.ServiceError{Op: "embed", Err: errors.New("refused")}, http.StatusBadGateway},
		{&generation.ServiceError{Op: "chat", Err: errors.New("500")}, http.StatusBadGateway},
		{rag.ErrEmptyAnswer, http.StatusBadGateway},
		{&vector.DimensionMismatchError{Expected: 3, Got: 4}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		got, _ := statusFor(tt.err)
		assert.Equal(t, tt.want, got, "%v", tt.err)
	}
}
