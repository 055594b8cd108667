package rag

// indexer.go brings the vector store into sync with relational chunk records.
//
// Provides functionality to:
//   - Embed all unindexed chunks of a document (or of every document)
//   - Adapt batch size downward when the embedding call reports resource
//     exhaustion, down to a configured floor
//   - Skip chunks whose content hash is already indexed
//   - Report per-chunk failures without aborting the run

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/quarryhq/quarry/internal/embedding"
	"github.com/quarryhq/quarry/internal/log"
	"github.com/quarryhq/quarry/internal/store"
)

// Default batch sizing. The initial size is deliberately small to bound peak
// memory of the embedding model; the floor stops the halving loop and the
// ceiling caps what configuration can request.
const (
	DefaultInitialBatchSize = 6
	DefaultMinBatchSize     = 2
	DefaultMaxBatchSize     = 8
)

// ChunkSource lists relational chunk records for indexing.
// Interfaces are defined by the consumer; store.Chunks satisfies this.
type ChunkSource interface {
	// ListByDocument returns a document's chunks ordered by chunk id
	ListByDocument(ctx context.Context, documentID uuid.UUID) ([]store.Chunk, error)

	// DocumentIDs returns the ids of all documents with chunks
	DocumentIDs(ctx context.Context) ([]uuid.UUID, error)
}

// VectorIndex persists embedding records. store.Vectors satisfies this.
type VectorIndex interface {
	// Upsert inserts or replaces one embedding record
	Upsert(ctx context.Context, rec store.Record) error

	// ExistingHashes returns indexed chunk hashes for a document
	ExistingHashes(ctx context.Context, documentID uuid.UUID) (map[int]string, error)
}

// Embedder generates one normalized vector per input text.
// embedding.Adapter satisfies this.
type Embedder interface {
	Embed(ctx context.Context, texts []string, batchSize int) ([][]float32, error)
}

// IndexError identifies a chunk that failed to index, with enough identity
// for a targeted re-index.
type IndexError struct {
	DocumentID uuid.UUID `json:"document_id"`
	ChunkID    int       `json:"chunk_id"`
	Reason     string    `json:"reason"`
}

// IndexSummary reports the outcome of one indexing run.
// A run never fails wholesale because of individual chunks; inspect Errors
// and ChunksFailed instead.
type IndexSummary struct {
	ChunksIndexed    int          `json:"chunks_indexed"`
	ChunksSkipped    int          `json:"chunks_skipped"`
	ChunksFailed     int          `json:"chunks_failed"`
	BatchesProcessed int          `json:"batches_processed"`
	ElapsedSeconds   float64      `json:"elapsed_seconds"`
	EmbeddingSeconds float64      `json:"embedding_seconds"`
	PersistSeconds   float64      `json:"persist_seconds"`
	PeakMemoryMB     float64      `json:"peak_memory_mb"`
	Errors           []IndexError `json:"errors,omitempty"`
}

// merge folds another summary into this one (used by IndexAll).
func (s *IndexSummary) merge(other IndexSummary) {
	s.ChunksIndexed += other.ChunksIndexed
	s.ChunksSkipped += other.ChunksSkipped
	s.ChunksFailed += other.ChunksFailed
	s.BatchesProcessed += other.BatchesProcessed
	s.EmbeddingSeconds += other.EmbeddingSeconds
	s.PersistSeconds += other.PersistSeconds
	s.PeakMemoryMB = max(s.PeakMemoryMB, other.PeakMemoryMB)
	s.Errors = append(s.Errors, other.Errors...)
}

// IndexerConfig controls batch sizing for embedding runs.
type IndexerConfig struct {
	InitialBatchSize int
	MinBatchSize     int
	MaxBatchSize     int
}

// Indexer drives batch embedding of chunk records into the vector store.
//
// Batches run sequentially against the embedding model, never concurrently,
// so peak memory stays bounded and predictable. Distinct documents may be
// indexed concurrently only when the embedder and vector store are safe for
// concurrent use.
type Indexer struct {
	chunks   ChunkSource
	vectors  VectorIndex
	embedder Embedder
	cfg      IndexerConfig
	logger   log.Logger
}

// NewIndexer creates an Indexer with the given dependencies.
// Zero config fields fall back to the package defaults.
func NewIndexer(chunks ChunkSource, vectors VectorIndex, embedder Embedder, cfg IndexerConfig, logger log.Logger) *Indexer {
	if cfg.InitialBatchSize < 1 {
		cfg.InitialBatchSize = DefaultInitialBatchSize
	}
	if cfg.MinBatchSize < 1 {
		cfg.MinBatchSize = DefaultMinBatchSize
	}
	if cfg.MaxBatchSize < 1 {
		cfg.MaxBatchSize = max(DefaultMaxBatchSize, cfg.InitialBatchSize)
	}
	if cfg.InitialBatchSize > cfg.MaxBatchSize {
		cfg.InitialBatchSize = cfg.MaxBatchSize
	}
	if cfg.MinBatchSize > cfg.InitialBatchSize {
		cfg.MinBatchSize = cfg.InitialBatchSize
	}
	if logger == nil {
		logger = log.NewNop()
	}

	return &Indexer{
		chunks:   chunks,
		vectors:  vectors,
		embedder: embedder,
		cfg:      cfg,
		logger:   logger,
	}
}

// IndexDocument embeds and persists all chunks of one document.
//
// When skipExisting is true, chunks whose (document, chunk, content hash)
// already exist in the vector store are excluded before batching. Chunk and
// batch failures are recorded in the summary; only inability to list the
// document's chunks is returned as an error.
func (idx *Indexer) IndexDocument(ctx context.Context, documentID uuid.UUID, skipExisting bool) (*IndexSummary, error) {
	start := time.Now()
	summary := &IndexSummary{}

	chunks, err := idx.chunks.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("listing chunks for %s: %w", documentID, err)
	}
	if len(chunks) == 0 {
		idx.logger.Warn("no chunks found for document", "document_id", documentID)
		summary.ElapsedSeconds = time.Since(start).Seconds()
		return summary, nil
	}

	pending := chunks
	if skipExisting {
		pending = idx.filterExisting(ctx, documentID, chunks, summary)
	}
	if len(pending) == 0 {
		idx.logger.Info("all chunks already indexed", "document_id", documentID, "chunks", len(chunks))
		summary.ElapsedSeconds = time.Since(start).Seconds()
		return summary, nil
	}

	idx.logger.Info("indexing chunks",
		"document_id", documentID,
		"chunks", len(pending),
		"batch_size", idx.cfg.InitialBatchSize)

	// Batch size adapts downward across the run: once a batch had to shrink,
	// later batches keep the smaller embedding size.
	batchSize := idx.cfg.InitialBatchSize

	for begin := 0; begin < len(pending); begin += idx.cfg.InitialBatchSize {
		end := min(begin+idx.cfg.InitialBatchSize, len(pending))
		batch := pending[begin:end]

		summary.PeakMemoryMB = max(summary.PeakMemoryMB, currentMemoryMB())

		vectors, usedSize, embedTime, err := idx.embedBatch(ctx, batch, batchSize)
		summary.EmbeddingSeconds += embedTime
		batchSize = usedSize
		if err != nil {
			for _, ch := range batch {
				summary.ChunksFailed++
				summary.Errors = append(summary.Errors, IndexError{
					DocumentID: documentID,
					ChunkID:    ch.ChunkID,
					Reason:     err.Error(),
				})
			}
			idx.logger.Error("batch failed, continuing with next",
				"document_id", documentID,
				"batch_start", batch[0].ChunkID,
				"error", err)
			continue
		}

		summary.PeakMemoryMB = max(summary.PeakMemoryMB, currentMemoryMB())

		persistStart := time.Now()
		idx.persistBatch(ctx, documentID, batch, vectors, summary)
		summary.PersistSeconds += time.Since(persistStart).Seconds()
		summary.BatchesProcessed++
	}

	summary.ElapsedSeconds = time.Since(start).Seconds()
	idx.logger.Info("indexing completed",
		"document_id", documentID,
		"indexed", summary.ChunksIndexed,
		"skipped", summary.ChunksSkipped,
		"failed", summary.ChunksFailed,
		"batches", summary.BatchesProcessed,
		"elapsed_seconds", summary.ElapsedSeconds,
		"peak_memory_mb", summary.PeakMemoryMB)

	return summary, nil
}

// IndexAll runs IndexDocument over every document with chunks and merges the
// summaries. A document whose chunks cannot even be listed is recorded as a
// single error entry rather than aborting the remaining documents.
func (idx *Indexer) IndexAll(ctx context.Context, skipExisting bool) (*IndexSummary, error) {
	start := time.Now()

	ids, err := idx.chunks.DocumentIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing document ids: %w", err)
	}

	total := &IndexSummary{}
	for _, id := range ids {
		summary, err := idx.IndexDocument(ctx, id, skipExisting)
		if err != nil {
			total.Errors = append(total.Errors, IndexError{
				DocumentID: id,
				ChunkID:    -1,
				Reason:     err.Error(),
			})
			continue
		}
		total.merge(*summary)
	}

	total.ElapsedSeconds = time.Since(start).Seconds()
	return total, nil
}

// embedBatch embeds one batch of chunks, halving the embedding batch size on
// resource exhaustion until the floor is reached. Returns the vectors, the
// batch size in effect after any shrinking, and the embedding time spent.
func (idx *Indexer) embedBatch(ctx context.Context, batch []store.Chunk, batchSize int) ([][]float32, int, float64, error) {
	texts := make([]string, len(batch))
	for i, ch := range batch {
		texts[i] = ch.Text
	}

	var elapsed float64
	for {
		attempt := time.Now()
		vectors, err := idx.embedder.Embed(ctx, texts, batchSize)
		elapsed += time.Since(attempt).Seconds()

		if err == nil {
			if len(vectors) != len(batch) {
				return nil, batchSize, elapsed, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(batch))
			}
			return vectors, batchSize, elapsed, nil
		}

		if !embedding.IsResourceExhausted(err) {
			return nil, batchSize, elapsed, err
		}
		if batchSize <= idx.cfg.MinBatchSize {
			return nil, batchSize, elapsed,
				fmt.Errorf("resource exhaustion at minimum batch size %d: %w", idx.cfg.MinBatchSize, err)
		}

		next := max(idx.cfg.MinBatchSize, batchSize/2)
		idx.logger.Warn("embedding resource exhaustion, shrinking batch size",
			"from", batchSize, "to", next)
		batchSize = next
	}
}

// persistBatch upserts one batch of embedding records. Individual upsert
// failures are recorded per chunk; already-computed embeddings for the rest
// of the batch are still persisted.
func (idx *Indexer) persistBatch(ctx context.Context, documentID uuid.UUID, batch []store.Chunk, vectors [][]float32, summary *IndexSummary) {
	for i, ch := range batch {
		rec := store.Record{
			DocumentID:  documentID,
			ChunkID:     ch.ChunkID,
			Vector:      vectors[i],
			ContentHash: HashChunkText(ch.Text),
			PageNumber:  ch.PageNumber,
			StartChar:   ch.StartChar,
			EndChar:     ch.EndChar,
		}

		if err := idx.vectors.Upsert(ctx, rec); err != nil {
			summary.ChunksFailed++
			summary.Errors = append(summary.Errors, IndexError{
				DocumentID: documentID,
				ChunkID:    ch.ChunkID,
				Reason:     fmt.Sprintf("persisting embedding: %v", err),
			})
			continue
		}
		summary.ChunksIndexed++
	}
}

// filterExisting drops chunks whose content hash is already indexed.
// Failure to read existing hashes degrades to indexing everything; skipping
// is an optimization, not a correctness requirement (upserts are idempotent).
func (idx *Indexer) filterExisting(ctx context.Context, documentID uuid.UUID, chunks []store.Chunk, summary *IndexSummary) []store.Chunk {
	existing, err := idx.vectors.ExistingHashes(ctx, documentID)
	if err != nil {
		idx.logger.Warn("could not check existing embeddings", "document_id", documentID, "error", err)
		return chunks
	}
	if len(existing) == 0 {
		return chunks
	}

	pending := make([]store.Chunk, 0, len(chunks))
	for _, ch := range chunks {
		if hash, ok := existing[ch.ChunkID]; ok && hash == HashChunkText(ch.Text) {
			summary.ChunksSkipped++
			continue
		}
		pending = append(pending, ch)
	}

	if summary.ChunksSkipped > 0 {
		idx.logger.Info("skipping already indexed chunks",
			"document_id", documentID, "skipped", summary.ChunksSkipped)
	}
	return pending
}

// HashChunkText computes the stable content hash used for change and
// duplicate detection. Truncated SHA-256, hex encoded.
func HashChunkText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:8])
}

// currentMemoryMB reports the heap in use by this process in megabytes.
func currentMemoryMB() float64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return float64(m.HeapInuse) / 1024 / 1024
}
