package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"deepresearch/internal/corpus"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const ingestTimeout = 5 * time.Minute

func (h Handler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes())
	if err := r.ParseMultipartForm(h.cfg.MaxUploadBytes()); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "file_too_large",
			fmt.Sprintf("upload exceeds the %d MB limit", h.cfg.MaxFileSizeMB))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "multipart field 'file' is required")
		return
	}
	defer file.Close()

	originalFilename := filepath.Base(strings.TrimSpace(header.Filename))
	if originalFilename == "" || originalFilename == "." {
		writeError(w, http.StatusBadRequest, "invalid_request", "filename is required")
		return
	}
	if !corpus.SupportedExtension(originalFilename) {
		writeError(w, http.StatusUnsupportedMediaType, "unsupported_file_type",
			fmt.Sprintf("file type of %q is not supported", originalFilename))
		return
	}

	if err := os.MkdirAll(h.cfg.LocalUploadDir, 0o755); err != nil {
		writeError(w, http.StatusInternalServerError, "storage_error", "failed to prepare upload directory")
		return
	}

	storedFilename := uuid.NewString() + strings.ToLower(filepath.Ext(originalFilename))
	storedPath := filepath.Join(h.cfg.LocalUploadDir, storedFilename)

	out, err := os.Create(storedPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storage_error", "failed to store upload")
		return
	}
	written, err := io.Copy(out, file)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(storedPath)
		writeError(w, http.StatusInternalServerError, "storage_error", "failed to store upload")
		return
	}

	doc, err := h.documents.InsertDocument(r.Context(), originalFilename, storedFilename, storedPath, written)
	if err != nil {
		_ = os.Remove(storedPath)
		writeError(w, http.StatusInternalServerError, "db_error", "failed to register document")
		return
	}

	// Ingestion runs detached so the upload response is immediate; the
	// document row carries the status for polling.
	go func(documentID string) {
		ctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
		defer cancel()
		if err := h.ingestor.Ingest(ctx, documentID); err != nil {
			log.Printf("document ingestion failed: document_id=%s err=%v", documentID, err)
		}
	}(doc.ID)

	writeJSON(w, http.StatusAccepted, map[string]any{"document": doc})
}

func (h Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	documents, err := h.documents.ListDocuments(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to list documents")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": documents})
}

func (h Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.documents.GetDocument(r.Context(), chi.URLParam(r, "documentID"))
	if errors.Is(err, corpus.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "document does not exist")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to read document")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document": doc})
}

func (h Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.documents.DeleteDocument(r.Context(), chi.URLParam(r, "documentID"))
	if errors.Is(err, corpus.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "document does not exist")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to delete document")
		return
	}

	if doc.FilePath != "" {
		if err := os.Remove(doc.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Printf("stored file cleanup failed: document_id=%s path=%s err=%v", doc.ID, doc.FilePath, err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h Handler) DocumentStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.documents.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to read stats")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": stats})
}
