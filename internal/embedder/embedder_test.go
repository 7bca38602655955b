package embedder

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codemem/codemem/internal/config"
)

func TestValidateBatch(t *testing.T) {
	assert.Error(t, ValidateBatch(nil))
	assert.Error(t, ValidateBatch([]string{}))
	assert.Error(t, ValidateBatch([]string{"ok", ""}))
	assert.NoError(t, ValidateBatch([]string{"one", "two"}))
}

func TestMockProvider_Deterministic(t *testing.T) {
	m := NewMockProvider(384)
	ctx := context.Background()

	a, err := m.EmbedBatch(ctx, []string{"func main() {}"})
	require.NoError(t, err)
	b, err := m.EmbedBatch(ctx, []string{"func main() {}"})
	require.NoError(t, err)

	assert.Equal(t, a[0], b[0])
	assert.Len(t, a[0], 384)
}

func TestMockProvider_UnitNorm(t *testing.T) {
	m := NewMockProvider(64)
	vecs, err := m.EmbedBatch(context.Background(), []string{"some text"})
	require.NoError(t, err)

	var sum float64
	for _, v := range vecs[0] {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-4)
}

func TestMockProvider_OrderPreserved(t *testing.T) {
	m := NewMockProvider(32)
	ctx := context.Background()

	texts := []string{"alpha", "beta", "gamma"}
	batch, err := m.EmbedBatch(ctx, texts)
	require.NoError(t, err)
	require.Len(t, batch, 3)

	for i, text := range texts {
		single, err := m.EmbedBatch(ctx, []string{text})
		require.NoError(t, err)
		assert.Equal(t, single[0], batch[i], "vector %d out of order", i)
	}
}

// countingEmbedder tracks how many texts reached the underlying provider.
type countingEmbedder struct {
	inner Embedder
	seen  int
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.seen += len(texts)
	return c.inner.EmbedBatch(ctx, texts)
}

func (c *countingEmbedder) Dimension() int { return c.inner.Dimension() }
func (c *countingEmbedder) Model() string  { return c.inner.Model() }
func (c *countingEmbedder) Close() error   { return c.inner.Close() }

func TestWithCache_SkipsRepeatTexts(t *testing.T) {
	counter := &countingEmbedder{inner: NewMockProvider(16)}
	cached, err := WithCache(counter, 100)
	require.NoError(t, err)

	ctx := context.Background()
	first, err := cached.EmbedBatch(ctx, []string{"x", "y"})
	require.NoError(t, err)
	assert.Equal(t, 2, counter.seen)

	second, err := cached.EmbedBatch(ctx, []string{"x", "y", "z"})
	require.NoError(t, err)
	assert.Equal(t, 3, counter.seen, "only the miss should reach the provider")
	assert.Equal(t, first[0], second[0])
	assert.Equal(t, first[1], second[1])
}

func TestWithCache_CallerMutationsDoNotPoisonCache(t *testing.T) {
	cached, err := WithCache(NewMockProvider(16), 100)
	require.NoError(t, err)

	ctx := context.Background()
	first, err := cached.EmbedBatch(ctx, []string{"stable"})
	require.NoError(t, err)

	want := make([]float32, len(first[0]))
	copy(want, first[0])

	// Clobber both a fresh miss and a cache hit; neither slice is the
	// cache's own.
	for i := range first[0] {
		first[0][i] = -1
	}
	second, err := cached.EmbedBatch(ctx, []string{"stable"})
	require.NoError(t, err)
	assert.Equal(t, want, second[0])

	for i := range second[0] {
		second[0][i] = -2
	}
	third, err := cached.EmbedBatch(ctx, []string{"stable"})
	require.NoError(t, err)
	assert.Equal(t, want, third[0])
}

func TestWithCache_ZeroSizePassthrough(t *testing.T) {
	m := NewMockProvider(16)
	emb, err := WithCache(m, 0)
	require.NoError(t, err)
	assert.Equal(t, Embedder(m), emb)
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(config.EmbeddingConfig{Provider: "quantum", Dimension: 384})
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestNew_Mock(t *testing.T) {
	emb, err := New(config.EmbeddingConfig{Provider: "mock", Dimension: 128, CacheSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 128, emb.Dimension())
	assert.Equal(t, "mock-embeddings", emb.Model())
}

func TestNewScriptProvider_Validation(t *testing.T) {
	_, err := NewScriptProvider("", "m", 384, time.Second)
	assert.Error(t, err)

	_, err = NewScriptProvider("/usr/local/bin/embed.py", "m", 0, time.Second)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

// writeScript drops an executable shell stub standing in for the embedding
// script so subprocess plumbing is exercised without a model.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "embed.sh")
	require.NoError(t, os.WriteFile(path, []byte(body), 0755))
	return path
}

func TestScriptProvider_ParsesOutput(t *testing.T) {
	script := writeScript(t, `#!/bin/sh
cat > /dev/null
echo '{"embeddings": [[0.1, 0.2, 0.3], [0.4, 0.5, 0.6]], "model": "stub", "dimension": 3}'
`)

	p, err := NewScriptProvider(script, "stub", 3, 5*time.Second)
	require.NoError(t, err)
	p.interpreter = "/bin/sh"

	vecs, err := p.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.InDelta(t, 0.1, float64(vecs[0][0]), 1e-6)
	assert.InDelta(t, 0.6, float64(vecs[1][2]), 1e-6)
}

func TestScriptProvider_DimensionMismatchFatal(t *testing.T) {
	script := writeScript(t, `#!/bin/sh
cat > /dev/null
echo '{"embeddings": [[0.1, 0.2]], "model": "stub", "dimension": 2}'
`)

	p, err := NewScriptProvider(script, "stub", 3, 5*time.Second)
	require.NoError(t, err)
	p.interpreter = "/bin/sh"

	_, err = p.EmbedBatch(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.NotErrorIs(t, err, ErrUnavailable)
}

func TestScriptProvider_FailureIsUnavailable(t *testing.T) {
	script := writeScript(t, `#!/bin/sh
cat > /dev/null
echo '{"error": "sentence-transformers not installed"}' >&2
exit 1
`)

	p, err := NewScriptProvider(script, "stub", 3, 5*time.Second)
	require.NoError(t, err)
	p.interpreter = "/bin/sh"

	_, err = p.EmbedBatch(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestScriptProvider_TimeoutIsUnavailable(t *testing.T) {
	script := writeScript(t, `#!/bin/sh
sleep 30
`)

	p, err := NewScriptProvider(script, "stub", 3, 100*time.Millisecond)
	require.NoError(t, err)
	p.interpreter = "/bin/sh"

	start := time.Now()
	_, err = p.EmbedBatch(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Less(t, time.Since(start), 5*time.Second)
}
