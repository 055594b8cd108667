package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/quarryhq/quarry/internal/log"
	"github.com/quarryhq/quarry/internal/rag"
)

// indexHandler serves indexing and document administration.
type indexHandler struct {
	service *rag.Service
	logger  log.Logger
}

// indexDocument handles POST /api/index/{doc_id}. The force query parameter
// re-embeds chunks even when their content hash is already indexed.
func (h *indexHandler) indexDocument(w http.ResponseWriter, r *http.Request) {
	documentID, err := uuid.Parse(r.PathValue("doc_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid document id", h.logger)
		return
	}
	force := r.URL.Query().Get("force") == "true"

	summary, err := h.service.IndexDocument(r.Context(), documentID, force)
	if err != nil {
		h.logger.Error("indexing failed", "document_id", documentID, "error", err)
		writeError(w, http.StatusInternalServerError, "index_failed", "indexing failed", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, summary, h.logger)
}

// indexAll handles POST /api/index.
func (h *indexHandler) indexAll(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"

	summary, err := h.service.IndexAll(r.Context(), force)
	if err != nil {
		h.logger.Error("indexing all documents failed", "error", err)
		writeError(w, http.StatusInternalServerError, "index_failed", "indexing failed", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, summary, h.logger)
}

// deleteDocument handles DELETE /api/documents/{doc_id}.
func (h *indexHandler) deleteDocument(w http.ResponseWriter, r *http.Request) {
	documentID, err := uuid.Parse(r.PathValue("doc_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid document id", h.logger)
		return
	}

	if err := h.service.DeleteDocument(r.Context(), documentID); err != nil {
		h.logger.Error("deleting document failed", "document_id", documentID, "error", err)
		writeError(w, http.StatusNotFound, "not_found", "document not found", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":      "deleted",
		"document_id": documentID.String(),
	}, h.logger)
}

// clearCache handles POST /api/cache/clear.
func (h *indexHandler) clearCache(w http.ResponseWriter, _ *http.Request) {
	h.service.ClearCache()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"}, h.logger)
}

// stats handles GET /api/stats.
func (h *indexHandler) stats(w http.ResponseWriter, r *http.Request) {
	embeddings, err := h.service.EmbeddingCount(r.Context())
	if err != nil {
		h.logger.Error("reading embedding count", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "stats unavailable", h.logger)
		return
	}
	chunkEntries, contextEntries := h.service.CacheSizes()

	writeJSON(w, http.StatusOK, map[string]any{
		"embeddings":            embeddings,
		"chunks_cache_entries":  chunkEntries,
		"context_cache_entries": contextEntries,
	}, h.logger)
}
