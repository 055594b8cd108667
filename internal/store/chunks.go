package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/quarryhq/quarry/internal/log"
)

// Chunks provides read access to the relational chunk records produced by
// ingestion, plus the relational half of document deletion. Chunk text is
// never mutated here.
type Chunks struct {
	db     DB
	logger log.Logger
}

// NewChunks creates a chunk store over the given database handle.
func NewChunks(db DB, logger log.Logger) *Chunks {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Chunks{db: db, logger: logger}
}

// ListByDocument returns all chunks of a document ordered by chunk id.
func (c *Chunks) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]Chunk, error) {
	const q = `
		SELECT document_id, chunk_id, text, start_char, end_char, page_number, token_count
		FROM chunks
		WHERE document_id = $1
		ORDER BY chunk_id`

	rows, err := c.db.Query(ctx, q, documentID)
	if err != nil {
		return nil, fmt.Errorf("listing chunks for %s: %w", documentID, err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var ch Chunk
		if err := rows.Scan(&ch.DocumentID, &ch.ChunkID, &ch.Text, &ch.StartChar,
			&ch.EndChar, &ch.PageNumber, &ch.TokenCount); err != nil {
			return nil, fmt.Errorf("scanning chunk row: %w", err)
		}
		chunks = append(chunks, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunk rows: %w", err)
	}

	return chunks, nil
}

// DocumentIDs returns the ids of all documents that have chunks,
// ordered by id for stable iteration.
func (c *Chunks) DocumentIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := c.db.Query(ctx, `SELECT DISTINCT document_id FROM chunks ORDER BY document_id`)
	if err != nil {
		return nil, fmt.Errorf("listing document ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning document id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating document ids: %w", err)
	}

	return ids, nil
}

// DeleteDocument removes a document row; chunks and embeddings follow via
// ON DELETE CASCADE. The two stores stay independently recoverable because
// embeddings can always be regenerated from chunk text.
func (c *Chunks) DeleteDocument(ctx context.Context, documentID uuid.UUID) error {
	tag, err := c.db.Exec(ctx, `DELETE FROM documents WHERE doc_id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("deleting document %s: %w", documentID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s not found", documentID)
	}

	c.logger.Debug("deleted document", "document_id", documentID)
	return nil
}
