package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quarryhq/quarry/internal/log"
	"github.com/quarryhq/quarry/internal/store"
)

// Retrieval defaults.
const (
	DefaultTopK          = 6
	DefaultSearchTimeout = 10 * time.Second
)

// QueryEmbedder embeds a single query string. embedding.Adapter satisfies
// this through Embed with a one-element slice; the narrower interface keeps
// test doubles small.
type QueryEmbedder interface {
	Embed(ctx context.Context, texts []string, batchSize int) ([][]float32, error)
}

// VectorSearcher performs similarity search. store.Vectors satisfies this.
type VectorSearcher interface {
	Search(ctx context.Context, vector []float32, limit int, documentIDs []uuid.UUID) ([]store.Hit, error)
}

// Candidate is one retrieved chunk with its similarity and final rank.
// Rank is 1-based and assigned after deterministic ordering.
type Candidate struct {
	DocumentID uuid.UUID `json:"document_id"`
	ChunkID    int       `json:"chunk_id"`
	Text       string    `json:"text"`
	PageNumber *int      `json:"page_number,omitempty"`
	Similarity float32   `json:"similarity"`
	Rank       int       `json:"rank"`
}

// Retriever answers top-k similarity queries against the vector store.
//
// Results for a given (query, top_k, filter) are deterministic: ties are
// broken by chunk id then document id, and similarities are clamped to
// [0, 1]. Identical lookups within the cache window are served from an LRU
// cache without touching the embedding model or the database.
type Retriever struct {
	embedder QueryEmbedder
	vectors  VectorSearcher
	cache    *Cache
	timeout  time.Duration
	logger   log.Logger
}

// NewRetriever creates a Retriever. A nil cache disables caching; a
// non-positive timeout falls back to DefaultSearchTimeout.
func NewRetriever(embedder QueryEmbedder, vectors VectorSearcher, cache *Cache, timeout time.Duration, logger log.Logger) *Retriever {
	if timeout <= 0 {
		timeout = DefaultSearchTimeout
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Retriever{
		embedder: embedder,
		vectors:  vectors,
		cache:    cache,
		timeout:  timeout,
		logger:   logger,
	}
}

// Retrieve returns the topK most similar chunks to the query, optionally
// restricted to the given documents. An empty or whitespace-only query and a
// query matching nothing both return an empty slice without error. Embedding
// or search failures surface as ErrRetrievalUnavailable.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int, documentIDs []uuid.UUID) ([]Candidate, error) {
	normalized := NormalizeQuery(query)
	if normalized == "" {
		return []Candidate{}, nil
	}
	if topK < 1 {
		topK = DefaultTopK
	}

	key := "chunks:" + CacheKey(normalized, topK, 0, documentIDs)
	if r.cache != nil {
		if cached, ok := r.cache.Get(key); ok {
			r.logger.Debug("retrieval cache hit", "key", key)
			return cached.([]Candidate), nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	vectors, err := r.embedder.Embed(ctx, []string{normalized}, 1)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding query: %w", ErrRetrievalUnavailable, err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: embedder returned %d vectors for one query", ErrRetrievalUnavailable, len(vectors))
	}

	hits, err := r.vectors.Search(ctx, vectors[0], topK, documentIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRetrievalUnavailable, err)
	}

	candidates := rankHits(hits)

	if r.cache != nil {
		r.cache.Put(key, candidates)
	}

	r.logger.Debug("retrieval completed",
		"query_chars", len(normalized), "top_k", topK, "results", len(candidates))
	return candidates, nil
}

// rankHits orders hits deterministically and assigns 1-based ranks.
// Similarity descending, then chunk id ascending, then document id ascending,
// so equal-similarity results never reorder between identical queries.
func rankHits(hits []store.Hit) []Candidate {
	candidates := make([]Candidate, 0, len(hits))
	for _, h := range hits {
		candidates = append(candidates, Candidate{
			DocumentID: h.DocumentID,
			ChunkID:    h.ChunkID,
			Text:       h.Text,
			PageNumber: h.PageNumber,
			Similarity: clampSimilarity(h.Similarity),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		if candidates[i].ChunkID != candidates[j].ChunkID {
			return candidates[i].ChunkID < candidates[j].ChunkID
		}
		return candidates[i].DocumentID.String() < candidates[j].DocumentID.String()
	})

	for i := range candidates {
		candidates[i].Rank = i + 1
	}
	return candidates
}

// clampSimilarity bounds a cosine-derived score to [0, 1]. Floating point in
// the distance computation can land slightly outside the range.
func clampSimilarity(s float32) float32 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// NormalizeQuery trims the query and collapses internal whitespace runs to
// single spaces, so semantically identical queries share one cache entry.
func NormalizeQuery(query string) string {
	return strings.Join(strings.Fields(query), " ")
}

// CacheKey derives a stable cache key from the full request shape. Document
// filters are sorted so the order callers pass them in does not matter.
// maxContextChars is zero for candidate-list keys. Candidate keys hash the
// normalized query; context keys hash the query as given, since the verbatim
// question is part of the cached assembly.
func CacheKey(query string, topK, maxContextChars int, documentIDs []uuid.UUID) string {
	filters := make([]string, 0, len(documentIDs))
	for _, id := range documentIDs {
		filters = append(filters, id.String())
	}
	sort.Strings(filters)

	raw := fmt.Sprintf("%s|%d|%d|%s", query, topK, maxContextChars, strings.Join(filters, ","))
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])[:16]
}
