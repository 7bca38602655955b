package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeDeserializeVector(t *testing.T) {
	vector := []float32{0.1, -0.5, 3.25, 0}

	blob := SerializeVector(vector)
	assert.Len(t, blob, len(vector)*4)

	restored := DeserializeVector(blob)
	assert.Equal(t, vector, restored)
}

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}

	assert.InDelta(t, 1.0, CosineSimilarity(a, a), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity(a, b), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity(a, []float32{-1, 0, 0}), 1e-9)
}

func TestCosineSimilarity_Degenerate(t *testing.T) {
	assert.Zero(t, CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}))
	assert.Zero(t, CosineSimilarity([]float32{0, 0, 0}, []float32{1, 2, 3}))
}

func TestSearch_RanksByDescendingSimilarity(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	project, err := store.UpsertProject(ctx, "/proj", "proj")
	require.NoError(t, err)

	// Identical vector, close vector, orthogonal vector
	err = store.UpsertChunks(ctx, []*Chunk{
		makeChunk(project.ID, "exact.go", 0, "exact match", []float32{1, 0, 0}),
		makeChunk(project.ID, "close.go", 0, "close match", []float32{0.9, 0.1, 0}),
		makeChunk(project.ID, "far.go", 0, "unrelated", []float32{0, 0, 1}),
	})
	require.NoError(t, err)

	hits, err := store.Search(ctx, &project.ID, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2, "orthogonal chunk must fall below the threshold")

	assert.Equal(t, "exact.go", hits[0].FilePath)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-6)
	assert.Equal(t, "close.go", hits[1].FilePath)
	assert.Greater(t, hits[0].Similarity, hits[1].Similarity)
}

func TestSearch_ThresholdIsStrict(t *testing.T) {
	store, err := New(":memory:", 0.99)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	project, err := store.UpsertProject(ctx, "/proj", "proj")
	require.NoError(t, err)

	err = store.UpsertChunks(ctx, []*Chunk{
		makeChunk(project.ID, "a.go", 0, "a", []float32{1, 0, 0}),
		makeChunk(project.ID, "b.go", 0, "b", []float32{0.9, 0.1, 0}),
	})
	require.NoError(t, err)

	hits, err := store.Search(ctx, &project.ID, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a.go", hits[0].FilePath)
}

func TestSearch_LimitCapsResults(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	project, err := store.UpsertProject(ctx, "/proj", "proj")
	require.NoError(t, err)

	chunks := make([]*Chunk, 0, 5)
	for i := 0; i < 5; i++ {
		chunks = append(chunks, makeChunk(project.ID, "a.go", i, "content", []float32{1, 0, 0}))
	}
	require.NoError(t, store.UpsertChunks(ctx, chunks))

	hits, err := store.Search(ctx, &project.ID, []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	assert.Len(t, hits, 3)
}

func TestSearch_ZeroLimit(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	hits, err := store.Search(context.Background(), nil, []float32{1, 0, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearch_ProjectIsolation(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	alpha, err := store.UpsertProject(ctx, "/alpha", "alpha")
	require.NoError(t, err)
	beta, err := store.UpsertProject(ctx, "/beta", "beta")
	require.NoError(t, err)

	err = store.UpsertChunks(ctx, []*Chunk{
		makeChunk(alpha.ID, "a.go", 0, "alpha content", []float32{1, 0, 0}),
		makeChunk(beta.ID, "b.go", 0, "beta content", []float32{1, 0, 0}),
	})
	require.NoError(t, err)

	hits, err := store.Search(ctx, &alpha.ID, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "/alpha", hits[0].ProjectPath)
	assert.Equal(t, "a.go", hits[0].FilePath)
}

func TestSearch_NilProjectSearchesEverything(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	alpha, err := store.UpsertProject(ctx, "/alpha", "alpha")
	require.NoError(t, err)
	beta, err := store.UpsertProject(ctx, "/beta", "beta")
	require.NoError(t, err)

	err = store.UpsertChunks(ctx, []*Chunk{
		makeChunk(alpha.ID, "a.go", 0, "alpha content", []float32{1, 0, 0}),
		makeChunk(beta.ID, "b.go", 0, "beta content", []float32{1, 0, 0}),
	})
	require.NoError(t, err)

	hits, err := store.Search(ctx, nil, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestSearch_DimensionMismatchSkipped(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	project, err := store.UpsertProject(ctx, "/proj", "proj")
	require.NoError(t, err)

	err = store.UpsertChunks(ctx, []*Chunk{
		makeChunk(project.ID, "short.go", 0, "short vector", []float32{1, 0}),
		makeChunk(project.ID, "full.go", 0, "full vector", []float32{1, 0, 0}),
	})
	require.NoError(t, err)

	hits, err := store.Search(ctx, &project.ID, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "full.go", hits[0].FilePath)
}
