package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/quarryhq/quarry/internal/store"
)

// mockSearcher implements VectorSearcher, returning canned hits.
type mockSearcher struct {
	hits        []store.Hit
	searchErr   error
	callCount   int
	lastLimit   int
	lastFilters []uuid.UUID
}

func (m *mockSearcher) Search(_ context.Context, _ []float32, limit int, documentIDs []uuid.UUID) ([]store.Hit, error) {
	m.callCount++
	m.lastLimit = limit
	m.lastFilters = documentIDs
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return m.hits, nil
}

func TestRetrieveOrdersBySimilarityThenChunkID(t *testing.T) {
	docA := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	docB := uuid.MustParse("22222222-2222-2222-2222-222222222222")

	searcher := &mockSearcher{hits: []store.Hit{
		{DocumentID: docA, ChunkID: 5, Text: "e", Similarity: 0.7},
		{DocumentID: docB, ChunkID: 2, Text: "b", Similarity: 0.9},
		{DocumentID: docA, ChunkID: 9, Text: "a", Similarity: 0.9},
		{DocumentID: docB, ChunkID: 9, Text: "c", Similarity: 0.9},
	}}
	r := NewRetriever(&mockBatchEmbedder{}, searcher, nil, 0, nil)

	got, err := r.Retrieve(context.Background(), "what is quarry", 4, nil)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	// 0.9 group first, ties by chunk id asc then document id asc
	wantOrder := []struct {
		doc   uuid.UUID
		chunk int
	}{
		{docB, 2},
		{docA, 9},
		{docB, 9},
		{docA, 5},
	}
	if len(got) != len(wantOrder) {
		t.Fatalf("got %d candidates, want %d", len(got), len(wantOrder))
	}
	for i, want := range wantOrder {
		if got[i].DocumentID != want.doc || got[i].ChunkID != want.chunk {
			t.Errorf("position %d: got doc %s chunk %d, want doc %s chunk %d",
				i, got[i].DocumentID, got[i].ChunkID, want.doc, want.chunk)
		}
		if got[i].Rank != i+1 {
			t.Errorf("position %d: Rank = %d, want %d", i, got[i].Rank, i+1)
		}
	}
}

func TestRetrieveClampsSimilarity(t *testing.T) {
	searcher := &mockSearcher{hits: []store.Hit{
		{DocumentID: uuid.New(), ChunkID: 0, Similarity: 1.02},
		{DocumentID: uuid.New(), ChunkID: 1, Similarity: -0.05},
	}}
	r := NewRetriever(&mockBatchEmbedder{}, searcher, nil, 0, nil)

	got, err := r.Retrieve(context.Background(), "q", 2, nil)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if got[0].Similarity != 1 {
		t.Errorf("Similarity = %v, want clamped to 1", got[0].Similarity)
	}
	if got[1].Similarity != 0 {
		t.Errorf("Similarity = %v, want clamped to 0", got[1].Similarity)
	}
}

func TestRetrieveEmptyQueryShortCircuits(t *testing.T) {
	searcher := &mockSearcher{}
	embedder := &mockBatchEmbedder{}
	r := NewRetriever(embedder, searcher, NewCache(8), 0, nil)

	for _, query := range []string{"", "   ", "\t\n"} {
		got, err := r.Retrieve(context.Background(), query, 5, nil)
		if err != nil {
			t.Fatalf("Retrieve(%q): %v", query, err)
		}
		if len(got) != 0 {
			t.Errorf("Retrieve(%q) returned %d candidates, want 0", query, len(got))
		}
	}
	if embedder.callCount != 0 {
		t.Errorf("embedder called %d times for empty queries, want 0", embedder.callCount)
	}
	if searcher.callCount != 0 {
		t.Errorf("searcher called %d times for empty queries, want 0", searcher.callCount)
	}
}

func TestRetrieveCachesResults(t *testing.T) {
	searcher := &mockSearcher{hits: []store.Hit{
		{DocumentID: uuid.New(), ChunkID: 0, Text: "x", Similarity: 0.8},
	}}
	embedder := &mockBatchEmbedder{}
	r := NewRetriever(embedder, searcher, NewCache(8), 0, nil)

	first, err := r.Retrieve(context.Background(), "hello world", 3, nil)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	// Same query with different surrounding whitespace must hit the cache
	second, err := r.Retrieve(context.Background(), "  hello   world ", 3, nil)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	if searcher.callCount != 1 {
		t.Errorf("searcher called %d times, want 1 (second call cached)", searcher.callCount)
	}
	if len(first) != len(second) {
		t.Errorf("cached result differs: %d vs %d candidates", len(first), len(second))
	}

	// Different top_k is a different cache entry
	if _, err := r.Retrieve(context.Background(), "hello world", 5, nil); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if searcher.callCount != 2 {
		t.Errorf("searcher called %d times, want 2 (different top_k misses)", searcher.callCount)
	}
}

func TestRetrieveDocumentFilterOrderInsensitiveCacheKey(t *testing.T) {
	docA := uuid.New()
	docB := uuid.New()
	searcher := &mockSearcher{}
	r := NewRetriever(&mockBatchEmbedder{}, searcher, NewCache(8), 0, nil)

	if _, err := r.Retrieve(context.Background(), "q", 3, []uuid.UUID{docA, docB}); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if _, err := r.Retrieve(context.Background(), "q", 3, []uuid.UUID{docB, docA}); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	if searcher.callCount != 1 {
		t.Errorf("searcher called %d times, want 1 (filter order must not matter)", searcher.callCount)
	}
}

func TestRetrieveSearchFailure(t *testing.T) {
	searcher := &mockSearcher{searchErr: errors.New("connection reset")}
	r := NewRetriever(&mockBatchEmbedder{}, searcher, nil, 0, nil)

	_, err := r.Retrieve(context.Background(), "q", 3, nil)
	if !errors.Is(err, ErrRetrievalUnavailable) {
		t.Errorf("err = %v, want ErrRetrievalUnavailable", err)
	}
}

func TestRetrieveEmbedFailure(t *testing.T) {
	embedder := &mockBatchEmbedder{embedErr: errors.New("model offline")}
	r := NewRetriever(embedder, &mockSearcher{}, nil, 0, nil)

	_, err := r.Retrieve(context.Background(), "q", 3, nil)
	if !errors.Is(err, ErrRetrievalUnavailable) {
		t.Errorf("err = %v, want ErrRetrievalUnavailable", err)
	}
}

func TestNormalizeQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"hello", "hello"},
		{"  hello  world  ", "hello world"},
		{"a\tb\nc", "a b c"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		if got := NormalizeQuery(tt.in); got != tt.want {
			t.Errorf("NormalizeQuery(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
