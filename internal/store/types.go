package store

import "github.com/google/uuid"

// Chunk is one immutable unit of document text from the relational store.
// The core only ever reads chunks; ingestion owns their lifecycle.
type Chunk struct {
	DocumentID uuid.UUID
	ChunkID    int // sequence number, unique within a document
	Text       string
	StartChar  int
	EndChar    int
	PageNumber *int // nil when the source format has no pages
	TokenCount *int // estimate from ingestion, may be nil
}

// Record is one embedding row derived from a chunk.
// At most one record exists per (DocumentID, ChunkID).
type Record struct {
	DocumentID  uuid.UUID
	ChunkID     int
	Vector      []float32 // fixed dimensionality, L2-normalized
	ContentHash string    // stable hash of the chunk text
	PageNumber  *int
	StartChar   int
	EndChar     int
}

// Hit is a nearest-neighbor search result joined with its chunk text.
type Hit struct {
	DocumentID uuid.UUID
	ChunkID    int
	Text       string
	PageNumber *int
	Similarity float32 // cosine similarity
}
