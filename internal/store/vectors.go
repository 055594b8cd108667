// Package store implements PostgreSQL-backed persistence for quarry:
// read-only access to ingested chunks and a pgvector nearest-neighbor index
// over their embeddings.
//
// Both stores depend on a small consumer-defined DB interface satisfied by
// *pgxpool.Pool, so tests can substitute fakes without a database.
package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/quarryhq/quarry/internal/log"
)

// DB is the subset of pgx pool operations the stores need.
// *pgxpool.Pool satisfies it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Vectors persists embedding records and serves cosine similarity search.
// It is safe for concurrent use; reads tolerate concurrent writes with
// eventually-consistent visibility.
type Vectors struct {
	db     DB
	logger log.Logger
}

// NewVectors creates a vector store over the given database handle.
func NewVectors(db DB, logger log.Logger) *Vectors {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Vectors{db: db, logger: logger}
}

// Upsert inserts or replaces the embedding record for (DocumentID, ChunkID).
// Replaying the same record is a no-op apart from refreshing the row.
func (v *Vectors) Upsert(ctx context.Context, rec Record) error {
	const q = `
		INSERT INTO embeddings (document_id, chunk_id, embedding, content_hash, page_number, start_char, end_char)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (document_id, chunk_id) DO UPDATE SET
			embedding    = EXCLUDED.embedding,
			content_hash = EXCLUDED.content_hash,
			page_number  = EXCLUDED.page_number,
			start_char   = EXCLUDED.start_char,
			end_char     = EXCLUDED.end_char`

	_, err := v.db.Exec(ctx, q,
		rec.DocumentID,
		rec.ChunkID,
		pgvector.NewVector(rec.Vector),
		rec.ContentHash,
		rec.PageNumber,
		rec.StartChar,
		rec.EndChar,
	)
	if err != nil {
		return fmt.Errorf("upserting embedding %s/%d: %w", rec.DocumentID, rec.ChunkID, err)
	}

	return nil
}

// Search returns up to limit nearest neighbors of vector by cosine distance,
// joined with chunk text. An empty documentIDs slice searches all documents.
//
// Rows come back ordered by ascending distance with chunk id as a secondary
// key; the retriever re-sorts for its full deterministic ordering.
func (v *Vectors) Search(ctx context.Context, vector []float32, limit int, documentIDs []uuid.UUID) ([]Hit, error) {
	if limit < 1 {
		return nil, fmt.Errorf("search limit must be positive, got %d", limit)
	}

	query := `
		SELECT e.document_id, e.chunk_id, c.text, e.page_number,
		       1 - (e.embedding <=> $1) AS similarity
		FROM embeddings e
		JOIN chunks c ON c.document_id = e.document_id AND c.chunk_id = e.chunk_id`
	args := []any{pgvector.NewVector(vector)}

	if len(documentIDs) > 0 {
		query += ` WHERE e.document_id = ANY($2)
		ORDER BY e.embedding <=> $1, e.chunk_id
		LIMIT $3`
		args = append(args, documentIDs, limit)
	} else {
		query += `
		ORDER BY e.embedding <=> $1, e.chunk_id
		LIMIT $2`
		args = append(args, limit)
	}

	rows, err := v.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("searching embeddings: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		var similarity float64
		if err := rows.Scan(&h.DocumentID, &h.ChunkID, &h.Text, &h.PageNumber, &similarity); err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}
		h.Similarity = float32(similarity)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search rows: %w", err)
	}

	return hits, nil
}

// ExistingHashes returns content hashes of already-indexed chunks for a
// document, keyed by chunk id. Used for skip-existing duplicate avoidance.
func (v *Vectors) ExistingHashes(ctx context.Context, documentID uuid.UUID) (map[int]string, error) {
	const q = `SELECT chunk_id, content_hash FROM embeddings WHERE document_id = $1`

	rows, err := v.db.Query(ctx, q, documentID)
	if err != nil {
		return nil, fmt.Errorf("listing existing embeddings for %s: %w", documentID, err)
	}
	defer rows.Close()

	hashes := make(map[int]string)
	for rows.Next() {
		var chunkID int
		var hash string
		if err := rows.Scan(&chunkID, &hash); err != nil {
			return nil, fmt.Errorf("scanning embedding row: %w", err)
		}
		hashes[chunkID] = hash
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating embedding rows: %w", err)
	}

	return hashes, nil
}

// DeleteByDocument removes every embedding record for a document and reports
// how many rows were removed.
func (v *Vectors) DeleteByDocument(ctx context.Context, documentID uuid.UUID) (int64, error) {
	tag, err := v.db.Exec(ctx, `DELETE FROM embeddings WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, fmt.Errorf("deleting embeddings for %s: %w", documentID, err)
	}

	v.logger.Debug("deleted embeddings", "document_id", documentID, "rows", tag.RowsAffected())
	return tag.RowsAffected(), nil
}

// Count returns the total number of embedding records.
func (v *Vectors) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := v.db.QueryRow(ctx, `SELECT count(*) FROM embeddings`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting embeddings: %w", err)
	}
	return count, nil
}
