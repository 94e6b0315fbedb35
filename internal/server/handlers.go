package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/raggy/raggy-go/internal/logging"
	"github.com/raggy/raggy-go/internal/rag"
)

// handleAsk handles POST /api/ask. It runs the full retrieval pipeline and
// returns the answer with citations as JSON.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Question == "" {
		writeError(w, "question is required", http.StatusBadRequest)
		return
	}

	ans, err := s.sys.Answer(r.Context(), req.Question)
	if err != nil {
		s.metrics.askRequestsTotal.WithLabelValues("error").Inc()
		s.writePipelineError(w, r, err)
		return
	}

	outcome := "ok"
	if ans.NoEvidence {
		outcome = "no_evidence"
	}
	s.metrics.askRequestsTotal.WithLabelValues(outcome).Inc()
	s.metrics.askDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	writeJSON(w, http.StatusOK, ans)
}

// handleUpload handles POST /api/documents. The document arrives as a
// multipart form with a single "file" field; the filename becomes the
// document ID.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, "multipart field 'file' is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		writeError(w, "failed to read upload", http.StatusBadRequest)
		return
	}

	name := filepath.Base(header.Filename)
	doc, err := s.sys.Ingest(r.Context(), name, raw)
	if err != nil {
		if errors.Is(err, rag.ErrExtraction) {
			// The record exists and is marked failed; report it to the client.
			writeJSON(w, http.StatusUnprocessableEntity, uploadResponse{
				ID:     doc.ID,
				Status: string(doc.Status),
			})
			return
		}
		s.metrics.ingestTotal.WithLabelValues("error").Inc()
		s.writePipelineError(w, r, err)
		return
	}

	s.metrics.ingestTotal.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusCreated, uploadResponse{
		ID:     doc.ID,
		Status: string(doc.Status),
		Chunks: doc.Chunks,
	})
}

// handleListDocuments handles GET /api/documents.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.sys.Documents(r.Context())
	if err != nil {
		s.writePipelineError(w, r, err)
		return
	}
	size, err := s.sys.IndexSize(r.Context())
	if err != nil {
		s.writePipelineError(w, r, err)
		return
	}
	if docs == nil {
		docs = []*rag.Document{}
	}
	writeJSON(w, http.StatusOK, documentsResponse{Documents: docs, IndexSize: size})
}

// handleGetDocument handles GET /api/documents/{id}.
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.sys.Document(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writePipelineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleDeleteDocument handles DELETE /api/documents/{id}.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.sys.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writePipelineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRebuild handles POST /api/rebuild. The rebuild runs in the
// background; the response says whether it started or one was already
// running.
func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	if s.fetcher == nil {
		writeError(w, "rebuild is not configured on this server", http.StatusNotImplemented)
		return
	}

	// Probe for a running rebuild synchronously so the caller gets an
	// accurate started/already_running answer.
	started := make(chan error, 1)
	go func() {
		// Detached from the request context: the rebuild outlives the response.
		err := s.sys.RebuildAll(context.WithoutCancel(r.Context()), s.fetcher)
		started <- err
		if err != nil && !errors.Is(err, rag.ErrRebuildInProgress) {
			s.log.Error("background rebuild failed", slog.Any("error", err))
		}
	}()

	select {
	case err := <-started:
		if errors.Is(err, rag.ErrRebuildInProgress) {
			s.metrics.rebuildTotal.WithLabelValues("already_running").Inc()
			writeJSON(w, http.StatusConflict, rebuildResponse{Status: "already_running"})
			return
		}
		// Finished (or failed) before we responded; either way it ran.
		s.metrics.rebuildTotal.WithLabelValues("started").Inc()
		writeJSON(w, http.StatusAccepted, rebuildResponse{Status: "started"})
	case <-time.After(50 * time.Millisecond):
		s.metrics.rebuildTotal.WithLabelValues("started").Inc()
		writeJSON(w, http.StatusAccepted, rebuildResponse{Status: "started"})
	}
}

// writePipelineError maps pipeline sentinel errors to HTTP status codes.
func (s *Server) writePipelineError(w http.ResponseWriter, r *http.Request, err error) {
	log := logging.FromContext(r.Context())

	switch {
	case errors.Is(err, rag.ErrDocumentNotFound):
		writeError(w, "document not found", http.StatusNotFound)
	case errors.Is(err, rag.ErrEmbeddingUnavailable),
		errors.Is(err, rag.ErrGenerationUnavailable):
		log.Warn("upstream provider unavailable", slog.Any("error", err))
		writeError(w, "upstream model provider unavailable", http.StatusServiceUnavailable)
	case errors.Is(err, rag.ErrRebuildInProgress):
		writeError(w, "rebuild already running", http.StatusConflict)
	default:
		log.Error("request failed", slog.Any("error", err))
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error body with the given status.
func writeError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, errorResponse{Error: msg})
}
