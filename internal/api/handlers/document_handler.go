package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"diploma-rag/internal/config"
	"diploma-rag/internal/core"
	"diploma-rag/internal/core/ingestion"
	"diploma-rag/internal/models"
)

type DocumentHandler struct {
	store    core.KnowledgeStore
	ingestor *ingestion.Ingestor
	cfg      *config.Config
}

func NewDocumentHandler(store core.KnowledgeStore, ingestor *ingestion.Ingestor, cfg *config.Config) *DocumentHandler {
	return &DocumentHandler{store: store, ingestor: ingestor, cfg: cfg}
}

// ProcessFile handles the multipart upload and runs the whole ingestion as
// one request-scoped operation: the response reports whether the document is
// queryable.
func (h *DocumentHandler) ProcessFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(h.cfg.MaxFileBytes + (1 << 20)); err != nil {
		http.Error(w, "invalid multipart request", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "no file uploaded", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "could not read uploaded file", http.StatusBadRequest)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	kb, err := h.ingestor.Ingest(r.Context(), header.Filename, contentType, data)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ingestion.ErrFileTooLarge) ||
			errors.Is(err, ingestion.ErrUnsupportedExt) ||
			errors.Is(err, ingestion.ErrNoContent) {
			status = http.StatusBadRequest
		}
		log.Error().Err(err).Str("file", header.Filename).Msg("ingestion failed")
		http.Error(w, fmt.Sprintf("file processing failed: %v", err), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"message":           "file added into the knowledge base",
		"knowledge_base_id": kb.ID,
		"chunks":            len(kb.VectorIDs),
	})
}

// ListKnowledgeBase returns the bookkeeping entries without their vector id
// lists.
func (h *DocumentHandler) ListKnowledgeBase(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.ListKnowledgeBases(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []models.KnowledgeBase{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"knowledge_base_list": entries,
	})
}

// DeleteKnowledgeBase removes an entry and exactly the vector records it
// produced.
func (h *DocumentHandler) DeleteKnowledgeBase(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.ingestor.Delete(r.Context(), id); err != nil {
		if errors.Is(err, ingestion.ErrEntryNotFound) {
			http.Error(w, "knowledge base entry not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("knowledge_base_id", id).Msg("delete failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "knowledge base entry deleted",
	})
}
