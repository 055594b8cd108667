package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/quarryhq/quarry/internal/log"
	"github.com/quarryhq/quarry/internal/rag"
)

// Request validation bounds, mirrored in the CLI flags.
const (
	maxTopK            = 50
	minContextChars    = 100
	maxContextChars    = 50000
	maxRequestBodySize = 64 * 1024
)

// queryRequest is the body of POST /api/query.
type queryRequest struct {
	Query           string   `json:"query"`
	TopK            int      `json:"top_k"`
	MaxContextChars int      `json:"max_context_chars"`
	DocumentIDs     []string `json:"document_ids,omitempty"`
}

// queryResponse is the answer-ready retrieval payload.
type queryResponse struct {
	Context    string          `json:"context"`
	Citations  []rag.Citation  `json:"citations"`
	Candidates []rag.Candidate `json:"candidates"`
	Cached     bool            `json:"cached"`
	ElapsedMS  int64           `json:"elapsed_ms"`
}

// queryHandler serves retrieval and context assembly.
type queryHandler struct {
	service *rag.Service
	logger  log.Logger
}

// query handles POST /api/query.
func (h *queryHandler) query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error(), h.logger)
		return
	}

	if rag.NormalizeQuery(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "query must not be empty", h.logger)
		return
	}
	if req.TopK < 0 || req.TopK > maxTopK {
		writeError(w, http.StatusBadRequest, "invalid_request",
			fmt.Sprintf("top_k must be between 1 and %d", maxTopK), h.logger)
		return
	}
	if req.MaxContextChars != 0 && (req.MaxContextChars < minContextChars || req.MaxContextChars > maxContextChars) {
		writeError(w, http.StatusBadRequest, "invalid_request",
			fmt.Sprintf("max_context_chars must be between %d and %d", minContextChars, maxContextChars), h.logger)
		return
	}

	documentIDs, err := parseDocumentIDs(req.DocumentIDs)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error(), h.logger)
		return
	}

	result, err := h.service.Query(r.Context(), req.Query, req.TopK, req.MaxContextChars, documentIDs)
	if err != nil {
		if errors.Is(err, rag.ErrRetrievalUnavailable) {
			h.logger.Error("retrieval unavailable", "error", err)
			writeError(w, http.StatusServiceUnavailable, "retrieval_unavailable",
				"retrieval backend unavailable", h.logger)
			return
		}
		h.logger.Error("query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "query failed", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{
		Context:    result.Context,
		Citations:  result.Citations,
		Candidates: result.Candidates,
		Cached:     result.Cached,
		ElapsedMS:  result.ElapsedMS,
	}, h.logger)
}

// decodeJSON decodes a request body with a size cap and strict field checking.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxRequestBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decoding request body: %w", err)
	}
	return nil
}

// parseDocumentIDs converts string document ids to UUIDs, rejecting the
// request on the first malformed id.
func parseDocumentIDs(raw []string) ([]uuid.UUID, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid document id %q", s)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
