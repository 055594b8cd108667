package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quarryhq/quarry/internal/log"
)

// ChunkStore is the relational side of the service's storage.
// store.Chunks satisfies this.
type ChunkStore interface {
	ChunkSource
	DeleteDocument(ctx context.Context, documentID uuid.UUID) error
}

// VectorStore is the vector side of the service's storage.
// store.Vectors satisfies this.
type VectorStore interface {
	VectorIndex
	VectorSearcher
	DeleteByDocument(ctx context.Context, documentID uuid.UUID) (int64, error)
	Count(ctx context.Context) (int64, error)
}

// ServiceConfig carries the tunables for a Service.
type ServiceConfig struct {
	InitialBatchSize int
	MinBatchSize     int
	MaxBatchSize     int
	TopK             int
	MaxContextChars  int
	CacheCapacity    int
	SearchTimeout    time.Duration
}

// QueryResult is the full answer-ready payload for one query.
type QueryResult struct {
	Context    string      `json:"context"`
	Citations  []Citation  `json:"citations"`
	Candidates []Candidate `json:"candidates"`
	Cached     bool        `json:"cached"`
	ElapsedMS  int64       `json:"elapsed_ms"`
}

// Service is the facade over indexing, retrieval and context assembly.
//
// It keeps two LRU caches with disjoint key namespaces: the retriever caches
// raw candidate lists, the service caches fully assembled contexts. A context
// cache hit therefore skips retrieval entirely; a context miss can still hit
// the cheaper candidate cache.
type Service struct {
	indexer      *Indexer
	retriever    *Retriever
	assembler    *Assembler
	chunks       ChunkStore
	vectors      VectorStore
	chunksCache  *Cache
	contextCache *Cache
	cfg          ServiceConfig
	logger       log.Logger
}

// NewService wires a Service from its stores and embedder. Zero config
// fields fall back to the package defaults.
func NewService(chunks ChunkStore, vectors VectorStore, embedder Embedder, cfg ServiceConfig, logger log.Logger) *Service {
	if cfg.TopK < 1 {
		cfg.TopK = DefaultTopK
	}
	if cfg.MaxContextChars < 1 {
		cfg.MaxContextChars = DefaultMaxContextChars
	}
	if cfg.CacheCapacity < 1 {
		cfg.CacheCapacity = DefaultCacheCapacity
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = DefaultSearchTimeout
	}
	if logger == nil {
		logger = log.NewNop()
	}

	chunksCache := NewCache(cfg.CacheCapacity)
	contextCache := NewCache(cfg.CacheCapacity)

	return &Service{
		indexer: NewIndexer(chunks, vectors, embedder, IndexerConfig{
			InitialBatchSize: cfg.InitialBatchSize,
			MinBatchSize:     cfg.MinBatchSize,
			MaxBatchSize:     cfg.MaxBatchSize,
		}, logger),
		retriever:    NewRetriever(embedder, vectors, chunksCache, cfg.SearchTimeout, logger),
		assembler:    NewAssembler(cfg.MaxContextChars),
		chunks:       chunks,
		vectors:      vectors,
		chunksCache:  chunksCache,
		contextCache: contextCache,
		cfg:          cfg,
		logger:       logger,
	}
}

// IndexDocument embeds and persists all chunks of one document, skipping
// chunks whose content is already indexed unless force is set.
func (s *Service) IndexDocument(ctx context.Context, documentID uuid.UUID, force bool) (*IndexSummary, error) {
	summary, err := s.indexer.IndexDocument(ctx, documentID, !force)
	if err != nil {
		return nil, err
	}
	if summary.ChunksIndexed > 0 {
		s.invalidateCaches()
	}
	return summary, nil
}

// IndexAll indexes every document that has chunks.
func (s *Service) IndexAll(ctx context.Context, force bool) (*IndexSummary, error) {
	summary, err := s.indexer.IndexAll(ctx, !force)
	if err != nil {
		return nil, err
	}
	if summary.ChunksIndexed > 0 {
		s.invalidateCaches()
	}
	return summary, nil
}

// Query retrieves the most relevant chunks for a query and assembles them
// into a citation-tagged context block. topK and maxChars override the
// service defaults when positive; documentIDs optionally restricts the
// search. Identical requests are served from the context cache.
//
// The question appears verbatim in the assembled block, so the context cache
// keys on the query as given; the retriever normalizes internally, letting
// whitespace variants of one question still share a candidate cache entry.
func (s *Service) Query(ctx context.Context, query string, topK, maxChars int, documentIDs []uuid.UUID) (*QueryResult, error) {
	start := time.Now()
	if topK < 1 {
		topK = s.cfg.TopK
	}
	if maxChars < 1 {
		maxChars = s.cfg.MaxContextChars
	}

	key := "context:" + CacheKey(query, topK, maxChars, documentIDs)
	if cached, ok := s.contextCache.Get(key); ok {
		result := cached.(QueryResult)
		result.Cached = true
		result.ElapsedMS = time.Since(start).Milliseconds()
		s.logger.Debug("context cache hit", "key", key)
		return &result, nil
	}

	candidates, err := s.retriever.Retrieve(ctx, query, topK, documentIDs)
	if err != nil {
		return nil, err
	}

	assembly := s.assembler.Assemble(query, candidates, maxChars)

	result := QueryResult{
		Context:    assembly.Context,
		Citations:  assembly.Citations,
		Candidates: candidates,
	}
	s.contextCache.Put(key, result)

	result.ElapsedMS = time.Since(start).Milliseconds()
	s.logger.Info("query served",
		"query_chars", len(query),
		"top_k", topK,
		"sources", len(result.Citations),
		"context_chars", len(result.Context),
		"elapsed_ms", result.ElapsedMS)
	return &result, nil
}

// DeleteDocument removes a document with its chunks and embeddings, then
// invalidates the result caches so stale hits cannot reference it.
func (s *Service) DeleteDocument(ctx context.Context, documentID uuid.UUID) error {
	removed, err := s.vectors.DeleteByDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("deleting embeddings for %s: %w", documentID, err)
	}
	if err := s.chunks.DeleteDocument(ctx, documentID); err != nil {
		return err
	}

	s.invalidateCaches()
	s.logger.Info("document deleted", "document_id", documentID, "embeddings_removed", removed)
	return nil
}

// ClearCache drops both result caches.
func (s *Service) ClearCache() {
	s.invalidateCaches()
	s.logger.Info("result caches cleared")
}

// CacheSizes reports the entry counts of the candidate and context caches.
func (s *Service) CacheSizes() (chunks, contexts int) {
	return s.chunksCache.Len(), s.contextCache.Len()
}

// EmbeddingCount reports the number of indexed embeddings. Used by the
// readiness probe.
func (s *Service) EmbeddingCount(ctx context.Context) (int64, error) {
	return s.vectors.Count(ctx)
}

func (s *Service) invalidateCaches() {
	s.chunksCache.Clear()
	s.contextCache.Clear()
}
