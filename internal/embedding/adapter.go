// Package embedding wraps a Genkit ai.Embedder behind a batch-oriented
// adapter that produces L2-normalized vectors.
//
// Normalized vectors make dot product equal cosine similarity, which is what
// the vector store's cosine operators assume. The adapter is stateless apart
// from the underlying model handle and is safe for concurrent use when the
// wrapped embedder is.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/firebase/genkit/go/ai"

	"github.com/quarryhq/quarry/internal/log"
)

var (
	// ErrModelUnavailable indicates the embedding model could not be resolved
	// at startup. Fatal at process init; never retried per call.
	ErrModelUnavailable = errors.New("embedding model unavailable")

	// ErrResourceExhausted classifies provider failures caused by memory or
	// quota exhaustion. Callers may retry with a smaller batch.
	ErrResourceExhausted = errors.New("embedding resource exhausted")
)

// resourceExhaustionMarkers are substrings that identify a provider error as
// recoverable by shrinking the batch. Providers report this condition in
// different shapes (allocation failure, killed worker, quota), so matching is
// on the message rather than a concrete error type.
var resourceExhaustionMarkers = []string{
	"out of memory",
	"oom",
	"resource exhausted",
	"resource_exhausted",
	"insufficient memory",
}

// Adapter generates embeddings for batches of text via a Genkit ai.Embedder.
type Adapter struct {
	embedder ai.Embedder
	logger   log.Logger
}

// NewAdapter creates an Adapter around the given embedder.
// Returns ErrModelUnavailable when the provider registered no embedder,
// so callers can fail fast at startup.
func NewAdapter(embedder ai.Embedder, logger log.Logger) (*Adapter, error) {
	if embedder == nil {
		return nil, ErrModelUnavailable
	}
	if logger == nil {
		logger = log.NewNop()
	}

	return &Adapter{
		embedder: embedder,
		logger:   logger,
	}, nil
}

// Embed returns one L2-normalized vector per input text, preserving order.
// Inputs are sent to the provider in windows of batchSize. Provider errors
// that look like memory/quota exhaustion are wrapped in ErrResourceExhausted.
func (a *Adapter) Embed(ctx context.Context, texts []string, batchSize int) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if batchSize < 1 {
		batchSize = 1
	}

	vectors := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))
		window := texts[start:end]

		input := make([]*ai.Document, len(window))
		for i, text := range window {
			input[i] = ai.DocumentFromText(text, nil)
		}

		resp, err := a.embedder.Embed(ctx, &ai.EmbedRequest{Input: input})
		if err != nil {
			if classifyResourceExhaustion(err) {
				return nil, fmt.Errorf("%w: %v", ErrResourceExhausted, err)
			}
			return nil, fmt.Errorf("embedding batch [%d:%d]: %w", start, end, err)
		}

		if len(resp.Embeddings) != len(window) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d inputs",
				len(resp.Embeddings), len(window))
		}

		for i, emb := range resp.Embeddings {
			if emb == nil || len(emb.Embedding) == 0 {
				return nil, fmt.Errorf("empty embedding for input %d", start+i)
			}
			vectors = append(vectors, normalize(emb.Embedding))
		}
	}

	a.logger.Debug("generated embeddings", "count", len(vectors), "batch_size", batchSize)
	return vectors, nil
}

// IsResourceExhausted reports whether err was classified as a recoverable
// resource-exhaustion failure.
func IsResourceExhausted(err error) bool {
	return errors.Is(err, ErrResourceExhausted)
}

// classifyResourceExhaustion matches raw provider errors against known
// exhaustion markers.
func classifyResourceExhaustion(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range resourceExhaustionMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// normalize scales v to unit L2 norm. Zero vectors are returned unchanged
// since there is no direction to preserve.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}

	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
