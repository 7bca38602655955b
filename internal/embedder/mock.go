package embedder

import (
	"context"
	"crypto/sha256"
	"math"
)

// MockProvider produces deterministic vectors derived from the text's hash,
// normalized to unit length. Identical texts embed identically, which is
// enough for ranking and idempotency tests without a model.
type MockProvider struct {
	dimension int
}

// NewMockProvider creates a deterministic in-process embedder.
func NewMockProvider(dimension int) *MockProvider {
	if dimension <= 0 {
		dimension = 384
	}
	return &MockProvider{dimension: dimension}
}

func (m *MockProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ValidateBatch(texts); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = m.embedOne(text)
	}
	return vectors, nil
}

// embedOne stretches the 32-byte digest across the full dimension by
// re-hashing with a counter, then normalizes.
func (m *MockProvider) embedOne(text string) []float32 {
	vec := make([]float32, m.dimension)
	var counter byte
	digest := sha256.Sum256([]byte(text))
	for i := 0; i < m.dimension; i++ {
		j := i % len(digest)
		if i > 0 && j == 0 {
			counter++
			digest = sha256.Sum256(append([]byte(text), counter))
		}
		vec[i] = float32(digest[j])/255.0 - 0.5
	}
	return Normalize(vec)
}

func (m *MockProvider) Dimension() int { return m.dimension }
func (m *MockProvider) Model() string  { return "mock-embeddings" }
func (m *MockProvider) Close() error   { return nil }

// Normalize scales a vector to unit length. Zero vectors pass through.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, val := range v {
		out[i] = val / norm
	}
	return out
}
