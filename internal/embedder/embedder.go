package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Common errors. Callers branch on these with errors.Is: ErrUnavailable marks
// a dependency-down condition worth retrying, ErrInvalidInput and
// ErrDimensionMismatch do not go away on retry.
var (
	ErrUnavailable       = errors.New("embedding provider unavailable")
	ErrInvalidInput      = errors.New("invalid embedding input")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrUnknownProvider   = errors.New("unknown embedding provider")
)

// Embedder maps batches of texts to fixed-dimension vectors. Implementations
// must return one vector per input text, in input order, all of Dimension()
// length, and must be side-effect-free per call.
type Embedder interface {
	// EmbedBatch generates embeddings for the given texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the fixed vector dimension for this provider.
	Dimension() int

	// Model returns the embedding model identifier.
	Model() string

	// Close releases any resources held by the embedder.
	Close() error
}

// ValidateBatch rejects empty batches and empty texts before any provider
// call is attempted.
func ValidateBatch(texts []string) error {
	if len(texts) == 0 {
		return fmt.Errorf("%w: no texts provided", ErrInvalidInput)
	}
	for i, text := range texts {
		if text == "" {
			return fmt.Errorf("%w: text at index %d is empty", ErrInvalidInput, i)
		}
	}
	return nil
}

// ComputeHash computes the SHA-256 hash of text, used as the cache key.
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// cachedEmbedder wraps an Embedder with an LRU cache keyed by content hash.
// Batch calls only reach the underlying provider for cache misses; results
// are reassembled in input order.
type cachedEmbedder struct {
	inner Embedder
	cache *lru.Cache[string, []float32]
}

// WithCache wraps emb with an LRU embedding cache of the given capacity.
func WithCache(emb Embedder, size int) (Embedder, error) {
	if size <= 0 {
		return emb, nil
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &cachedEmbedder{inner: emb, cache: cache}, nil
}

func (c *cachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ValidateBatch(texts); err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int

	for i, text := range texts {
		if vec, ok := c.cache.Get(ComputeHash(text)); ok {
			// Copy so caller mutations cannot poison the cache.
			cp := make([]float32, len(vec))
			copy(cp, vec)
			vectors[i] = cp
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) > 0 {
		fresh, err := c.inner.EmbedBatch(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		if len(fresh) != len(missTexts) {
			return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrUnavailable, len(fresh), len(missTexts))
		}
		for j, vec := range fresh {
			// The cache keeps its own copy; the returned slice stays the
			// caller's to mutate.
			cp := make([]float32, len(vec))
			copy(cp, vec)
			c.cache.Add(ComputeHash(missTexts[j]), cp)
			vectors[missIdx[j]] = vec
		}
	}

	return vectors, nil
}

func (c *cachedEmbedder) Dimension() int { return c.inner.Dimension() }
func (c *cachedEmbedder) Model() string  { return c.inner.Model() }

func (c *cachedEmbedder) Close() error {
	c.cache.Purge()
	return c.inner.Close()
}
