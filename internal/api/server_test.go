package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/goleak"

	"github.com/quarryhq/quarry/internal/log"
	"github.com/quarryhq/quarry/internal/rag"
	"github.com/quarryhq/quarry/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// ============================================================================
// Fakes
// ============================================================================

// fakeChunkStore implements rag.ChunkStore over a map.
type fakeChunkStore struct {
	chunks map[uuid.UUID][]store.Chunk
}

func (f *fakeChunkStore) ListByDocument(_ context.Context, id uuid.UUID) ([]store.Chunk, error) {
	return f.chunks[id], nil
}

func (f *fakeChunkStore) DocumentIDs(_ context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for id := range f.chunks {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeChunkStore) DeleteDocument(_ context.Context, id uuid.UUID) error {
	if _, ok := f.chunks[id]; !ok {
		return fmt.Errorf("document %s not found", id)
	}
	delete(f.chunks, id)
	return nil
}

// fakeVectorStore implements rag.VectorStore with canned search hits.
type fakeVectorStore struct {
	hits      []store.Hit
	searchErr error
}

func (f *fakeVectorStore) Upsert(_ context.Context, _ store.Record) error { return nil }

func (f *fakeVectorStore) ExistingHashes(_ context.Context, _ uuid.UUID) (map[int]string, error) {
	return nil, nil
}

func (f *fakeVectorStore) Search(_ context.Context, _ []float32, limit int, _ []uuid.UUID) ([]store.Hit, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if limit < len(f.hits) {
		return f.hits[:limit], nil
	}
	return f.hits, nil
}

func (f *fakeVectorStore) DeleteByDocument(_ context.Context, _ uuid.UUID) (int64, error) {
	return 0, nil
}

func (f *fakeVectorStore) Count(_ context.Context) (int64, error) { return int64(len(f.hits)), nil }

// fakeEmbedder implements rag.Embedder.
type fakeEmbedder struct {
	embedErr error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string, _ int) ([][]float32, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0, 0}
	}
	return vectors, nil
}

func newTestServer(t *testing.T, vectors *fakeVectorStore, embedder *fakeEmbedder) *Server {
	t.Helper()
	chunks := &fakeChunkStore{chunks: map[uuid.UUID][]store.Chunk{}}
	service := rag.NewService(chunks, vectors, embedder, rag.ServiceConfig{}, nil)

	srv, err := NewServer(ServerConfig{Service: service, RateLimit: 1000, RateBurst: 1000})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

// ============================================================================
// Query endpoint
// ============================================================================

func TestQueryEndpoint(t *testing.T) {
	docID := uuid.New()
	vectors := &fakeVectorStore{hits: []store.Hit{
		{DocumentID: docID, ChunkID: 0, Text: "Quarry stores vectors.", Similarity: 0.9},
	}}
	srv := newTestServer(t, vectors, &fakeEmbedder{})

	rec := doJSON(t, srv, http.MethodPost, "/api/query", `{"query":"what is quarry"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body)
	}

	var resp queryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshaling response: %v", err)
	}
	if !strings.Contains(resp.Context, "Quarry stores vectors.") {
		t.Error("response context missing chunk text")
	}
	if len(resp.Citations) != 1 {
		t.Errorf("len(Citations) = %d, want 1", len(resp.Citations))
	}
}

func TestQueryEndpointValidation(t *testing.T) {
	srv := newTestServer(t, &fakeVectorStore{}, &fakeEmbedder{})

	tests := []struct {
		name string
		body string
	}{
		{"empty body", `{}`},
		{"blank query", `{"query":"   "}`},
		{"top_k too large", `{"query":"q","top_k":100}`},
		{"context budget too small", `{"query":"q","max_context_chars":10}`},
		{"bad document id", `{"query":"q","document_ids":["nope"]}`},
		{"unknown field", `{"query":"q","unknown":true}`},
		{"malformed json", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, srv, http.MethodPost, "/api/query", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400; body: %s", rec.Code, rec.Body)
			}
		})
	}
}

func TestQueryEndpointRetrievalUnavailable(t *testing.T) {
	srv := newTestServer(t, &fakeVectorStore{}, &fakeEmbedder{embedErr: fmt.Errorf("model offline")})

	rec := doJSON(t, srv, http.MethodPost, "/api/query", `{"query":"q"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503; body: %s", rec.Code, rec.Body)
	}

	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshaling error body: %v", err)
	}
	if body.Error != "retrieval_unavailable" {
		t.Errorf("error code = %q, want retrieval_unavailable", body.Error)
	}
}

// ============================================================================
// Index and document endpoints
// ============================================================================

func TestIndexEndpointInvalidID(t *testing.T) {
	srv := newTestServer(t, &fakeVectorStore{}, &fakeEmbedder{})

	rec := doJSON(t, srv, http.MethodPost, "/api/index/not-a-uuid", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestIndexAllEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeVectorStore{}, &fakeEmbedder{})

	rec := doJSON(t, srv, http.MethodPost, "/api/index", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body)
	}

	var summary rag.IndexSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("unmarshaling summary: %v", err)
	}
}

func TestDeleteDocumentEndpointNotFound(t *testing.T) {
	srv := newTestServer(t, &fakeVectorStore{}, &fakeEmbedder{})

	rec := doJSON(t, srv, http.MethodDelete, "/api/documents/"+uuid.NewString(), "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestCacheClearEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeVectorStore{}, &fakeEmbedder{})

	rec := doJSON(t, srv, http.MethodPost, "/api/cache/clear", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "cleared") {
		t.Errorf("body = %s, want cleared status", rec.Body)
	}
}

func TestStatsEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeVectorStore{}, &fakeEmbedder{})

	rec := doJSON(t, srv, http.MethodGet, "/api/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body)
	}
}

// ============================================================================
// Health probes and middleware
// ============================================================================

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t, &fakeVectorStore{}, &fakeEmbedder{})

	rec := doJSON(t, srv, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Errorf("/health status = %d, want 200", rec.Code)
	}

	// Nil pool degrades to ready
	rec = doJSON(t, srv, http.MethodGet, "/ready", "")
	if rec.Code != http.StatusOK {
		t.Errorf("/ready status = %d, want 200", rec.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	srv := newTestServer(t, &fakeVectorStore{}, &fakeEmbedder{})

	rec := doJSON(t, srv, http.MethodGet, "/api/unknown", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestSecurityHeadersSet(t *testing.T) {
	srv := newTestServer(t, &fakeVectorStore{}, &fakeEmbedder{})

	rec := doJSON(t, srv, http.MethodPost, "/api/cache/clear", "")
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := rec.Header().Get("X-Request-ID"); got == "" {
		t.Error("X-Request-ID header missing")
	}
}

func TestRateLimiting(t *testing.T) {
	chunks := &fakeChunkStore{chunks: map[uuid.UUID][]store.Chunk{}}
	service := rag.NewService(chunks, &fakeVectorStore{}, &fakeEmbedder{}, rag.ServiceConfig{}, nil)

	srv, err := NewServer(ServerConfig{Service: service, RateLimit: 0.001, RateBurst: 2})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	// Burst of 2 allows two requests, the third must be limited
	var lastCode int
	for i := 0; i < 3; i++ {
		rec := doJSON(t, srv, http.MethodPost, "/api/cache/clear", "")
		lastCode = rec.Code
	}
	if lastCode != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", lastCode)
	}

	// Health probes bypass the limiter
	rec := doJSON(t, srv, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Errorf("/health status = %d, want 200 despite rate limit", rec.Code)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	logger := log.NewNop()
	panicking := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
	handler := recoveryMiddleware(logger)(panicking)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}
