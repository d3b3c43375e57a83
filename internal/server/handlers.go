package server

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/blob"
	"github.com/hyperjump/kotae/internal/models"
)

// maxUploadMemory is the part of a multipart upload kept in memory; the rest spills to disk.
const maxUploadMemory = 32 << 20

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req models.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("ask request", zap.String("collection", req.Collection), zap.Bool("open_mode", req.OpenMode))
	answer, err := s.rag.Ask(r.Context(), ownerFrom(r), req)
	if err != nil {
		s.fail(w, "ask failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, answer)
}

func (s *Server) handleListCollections(w http.ResponseWriter, r *http.Request) {
	colls, err := s.indexer.ListCollections(r.Context(), ownerFrom(r))
	if err != nil {
		s.fail(w, "list collections failed", err)
		return
	}
	if colls == nil {
		colls = []*models.Collection{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"collections": colls})
}

func (s *Server) handleLoadCollection(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	c, err := s.indexer.LoadCollection(r.Context(), ownerFrom(r), name)
	if err != nil {
		s.fail(w, "load collection failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"collection": name,
		"chunks":     c.Size(),
		"files":      c.Filenames(),
	})
}

func (s *Server) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	s.logger.Debug("delete collection request", zap.String("collection", name))
	if err := s.indexer.DeleteCollection(r.Context(), ownerFrom(r), name); err != nil {
		s.fail(w, "delete collection failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"collection": name, "status": "deleted"})
}

// handleIngest accepts multipart "files" parts and streams progress as plain text lines:
// "PROGRESS: n/m" per embedded chunk, then a final JSON line with the report, or a line
// starting with "ERROR: " when ingestion failed after the response had begun.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	owner, name := ownerFrom(r), chi.URLParam(r, "name")
	if err := blob.ValidateName(name); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid collection name")
		return
	}
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	appendMode := true
	if v := r.FormValue("append"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "append must be a boolean")
			return
		}
		appendMode = b
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		s.respondError(w, http.StatusBadRequest, "files is required")
		return
	}
	files := make([]models.IngestFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "unreadable upload "+fh.Filename)
			return
		}
		content, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "unreadable upload "+fh.Filename)
			return
		}
		files = append(files, models.IngestFile{Filename: fh.Filename, Content: content})
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	writeLine := func(line string) {
		_, _ = io.WriteString(w, line+"\n")
		if flusher != nil {
			flusher.Flush()
		}
	}

	report, err := s.indexer.EmbedFiles(r.Context(), owner, name, files, appendMode, func(p models.IngestProgress) {
		if p.Stage == models.StageEmbedding && p.Done > 0 {
			writeLine(fmt.Sprintf("PROGRESS: %d/%d", p.Done, p.Total))
		}
	})
	if err != nil {
		_, msg := statusFor(err)
		s.logger.Error("ingestion failed", zap.String("collection", name), zap.Error(err))
		writeLine("ERROR: " + msg)
		return
	}
	data, _ := json.Marshal(report)
	writeLine(string(data))
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	name, filename := chi.URLParam(r, "name"), chi.URLParam(r, "filename")
	data, err := s.indexer.Document(r.Context(), ownerFrom(r), name, filename)
	if err != nil {
		s.fail(w, "get document failed", err)
		return
	}
	ctype := mime.TypeByExtension(filepath.Ext(filename))
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": filename}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	files, err := s.indexer.Files(r.Context(), ownerFrom(r), name)
	if err != nil {
		s.fail(w, "list files failed", err)
		return
	}
	if files == nil {
		files = []string{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"collection": name, "files": files})
}

func (s *Server) handlePreviewChunks(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	filename := r.URL.Query().Get("filename")
	if filename == "" {
		s.respondError(w, http.StatusBadRequest, "filename is required")
		return
	}
	size := 0
	if v := r.URL.Query().Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "size must be an integer")
			return
		}
		size = n
	}
	chunks, err := s.indexer.PreviewChunks(r.Context(), ownerFrom(r), name, filename, size)
	if err != nil {
		s.fail(w, "preview chunks failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"filename": filename, "chunks": chunks})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.rag.Messages(r.Context(), ownerFrom(r), chi.URLParam(r, "name"))
	if err != nil {
		s.fail(w, "list messages failed", err)
		return
	}
	if msgs == nil {
		msgs = []*models.Message{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := ownerFrom(r)
	total, err := s.storage.CountCollections(ctx)
	if err != nil {
		s.fail(w, "status: count collections failed", err)
		return
	}
	loaded := []map[string]interface{}{}
	for _, key := range s.sessions.Keys() {
		if key.Owner != owner {
			continue
		}
		if c, ok := s.sessions.Get(key); ok {
			loaded = append(loaded, map[string]interface{}{"collection": key.Collection, "chunks": c.Size()})
		}
	}
	resp := map[string]interface{}{
		"collections":        total,
		"loaded_collections": loaded,
	}

	cfg := s.config
	configInfo := map[string]interface{}{
		"blob_driver":         cfg.Storage.Blob.Driver,
		"metadata_driver":     cfg.Storage.Metadata.Driver,
		"embedding_provider":  cfg.Embedding.Provider,
		"generation_provider": cfg.Generation.Provider,
		"generation_model":    cfg.Generation.Model,
		"top_k":               cfg.RAG.TopK,
		"chunk_size":          cfg.RAG.ChunkSize,
	}
	var paths []string
	if cfg.Storage.Blob.Driver == "fs" {
		paths = append(paths, cfg.Storage.Blob.Root)
	}
	if cfg.Storage.Metadata.Driver == "sqlite" {
		paths = append(paths, cfg.Storage.Metadata.DSN)
	}
	if len(paths) > 0 {
		if diskBytes, err := blob.DiskUsageBytes(paths...); err == nil {
			resp["disk_usage_bytes"] = diskBytes
		}
	}
	resp["config"] = configInfo
	s.respondJSON(w, http.StatusOK, resp)
}

// fail logs err and writes the mapped status.
func (s *Server) fail(w http.ResponseWriter, msg string, err error) {
	status, text := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(msg, zap.Error(err))
	} else {
		s.logger.Debug(msg, zap.Error(err))
	}
	s.respondError(w, status, text)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
