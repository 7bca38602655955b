package indexer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codemem/codemem/internal/config"
	"github.com/codemem/codemem/internal/embedder"
	"github.com/codemem/codemem/internal/storage"
	"github.com/codemem/codemem/pkg/types"
)

func testConfig() config.IndexingConfig {
	return config.IndexingConfig{
		ChunkBudget: config.DefaultChunkBudget,
		BatchSize:   4,
		Extensions:  []string{".go", ".md"},
		DenyDirs:    []string{"node_modules", "vendor"},
	}
}

func setupIndexer(t *testing.T, emb embedder.Embedder) (*Indexer, *storage.SQLiteStore) {
	t.Helper()
	store, err := storage.New(":memory:", storage.DefaultSimilarityThreshold)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	if emb == nil {
		emb = embedder.NewMockProvider(64)
	}
	return New(store, emb, testConfig(), nil), store
}

func writeProjectFile(t *testing.T, root, relPath, content string) {
	t.Helper()
	path := filepath.Join(root, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestIndex_PathNotFound(t *testing.T) {
	idx, _ := setupIndexer(t, nil)

	_, err := idx.Index(context.Background(), IndexRequest{Path: "/no/such/dir"})
	assert.ErrorIs(t, err, ErrPathNotFound)

	// A file is not an acceptable root either
	file := filepath.Join(t.TempDir(), "main.go")
	require.NoError(t, os.WriteFile(file, []byte("package main"), 0644))
	_, err = idx.Index(context.Background(), IndexRequest{Path: file})
	assert.ErrorIs(t, err, ErrPathNotFound)
}

func TestIndex_ProcessesProjectTree(t *testing.T) {
	idx, store := setupIndexer(t, nil)

	root := t.TempDir()
	writeProjectFile(t, root, "main.go", "package main\n\nfunc main() {}\n")
	writeProjectFile(t, root, "pkg/util.go", "package pkg\n\nfunc Helper() {}\n")
	writeProjectFile(t, root, "README.md", "# demo\n")

	result, err := idx.Index(context.Background(), IndexRequest{Path: root})
	require.NoError(t, err)

	assert.Equal(t, types.StatusSuccess, result.Status)
	assert.Equal(t, 3, result.FilesProcessed)
	assert.Zero(t, result.FilesSkipped)
	assert.Greater(t, result.ChunksIndexed, 0)

	project, err := store.GetProject(context.Background(), result.ProjectPath)
	require.NoError(t, err)
	count, err := store.CountChunks(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(result.ChunksIndexed), count)
}

func TestIndex_ShortCircuitsWhenAlreadyIndexed(t *testing.T) {
	idx, _ := setupIndexer(t, nil)

	root := t.TempDir()
	writeProjectFile(t, root, "main.go", "package main\n")

	first, err := idx.Index(context.Background(), IndexRequest{Path: root})
	require.NoError(t, err)
	require.Greater(t, first.ChunksIndexed, 0)

	second, err := idx.Index(context.Background(), IndexRequest{Path: root})
	require.NoError(t, err)
	assert.Equal(t, types.StatusSuccess, second.Status)
	assert.Zero(t, second.FilesProcessed)
	assert.Zero(t, second.ChunksIndexed)
	assert.Contains(t, second.Message, "already indexed")
}

func TestIndex_ForceReindexes(t *testing.T) {
	idx, store := setupIndexer(t, nil)

	root := t.TempDir()
	writeProjectFile(t, root, "main.go", "package main\n")

	first, err := idx.Index(context.Background(), IndexRequest{Path: root})
	require.NoError(t, err)

	forced, err := idx.Index(context.Background(), IndexRequest{Path: root, Force: true})
	require.NoError(t, err)
	assert.Equal(t, 1, forced.FilesProcessed)
	assert.Equal(t, first.ChunksIndexed, forced.ChunksIndexed)

	project, err := store.GetProject(context.Background(), forced.ProjectPath)
	require.NoError(t, err)
	count, err := store.CountChunks(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(forced.ChunksIndexed), count)
}

func TestIndex_SkipsDenyDirsAndHiddenEntries(t *testing.T) {
	idx, _ := setupIndexer(t, nil)

	root := t.TempDir()
	writeProjectFile(t, root, "main.go", "package main\n")
	writeProjectFile(t, root, "node_modules/dep/index.go", "package dep\n")
	writeProjectFile(t, root, ".git/hooks/hook.go", "package hooks\n")
	writeProjectFile(t, root, ".hidden.go", "package hidden\n")
	writeProjectFile(t, root, "binary.exe", "not source")

	result, err := idx.Index(context.Background(), IndexRequest{Path: root})
	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesProcessed)
}

func TestIndex_EmptyFileYieldsNoChunks(t *testing.T) {
	idx, _ := setupIndexer(t, nil)

	root := t.TempDir()
	writeProjectFile(t, root, "empty.go", "")

	result, err := idx.Index(context.Background(), IndexRequest{Path: root})
	require.NoError(t, err)
	assert.Equal(t, types.StatusSuccess, result.Status)
	assert.Equal(t, 1, result.FilesProcessed)
	assert.Zero(t, result.ChunksIndexed)
}

func TestIndex_NewlineOnlyFileIndexes(t *testing.T) {
	idx, store := setupIndexer(t, nil)

	root := t.TempDir()
	writeProjectFile(t, root, "blank.go", "\n\n")

	result, err := idx.Index(context.Background(), IndexRequest{Path: root})
	require.NoError(t, err)
	assert.Equal(t, types.StatusSuccess, result.Status)
	assert.Equal(t, 1, result.FilesProcessed)
	assert.Zero(t, result.FilesSkipped)
	assert.Equal(t, 1, result.ChunksIndexed)

	project, err := store.GetProject(context.Background(), result.ProjectPath)
	require.NoError(t, err)
	count, err := store.CountChunks(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestIndex_BlankOnlyChunkIsEmbedded(t *testing.T) {
	idx, store := setupIndexer(t, nil)

	// Each long line exceeds the chunk budget on its own, so the blank line
	// between them lands in a chunk by itself with empty content.
	root := t.TempDir()
	long := strings.Repeat("x", 2500)
	writeProjectFile(t, root, "wide.go", long+"\n\n"+long)

	result, err := idx.Index(context.Background(), IndexRequest{Path: root})
	require.NoError(t, err)
	assert.Equal(t, types.StatusSuccess, result.Status)
	assert.Equal(t, 1, result.FilesProcessed)
	assert.Equal(t, 3, result.ChunksIndexed)

	project, err := store.GetProject(context.Background(), result.ProjectPath)
	require.NoError(t, err)
	count, err := store.CountChunks(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

// poisonEmbedder fails any batch containing the marker text, standing in
// for a provider that chokes on one file
type poisonEmbedder struct {
	embedder.Embedder
	marker string
}

func (p *poisonEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	for _, text := range texts {
		if strings.Contains(text, p.marker) {
			return nil, embedder.ErrUnavailable
		}
	}
	return p.Embedder.EmbedBatch(ctx, texts)
}

func TestIndex_FileFailureDowngradesToPartial(t *testing.T) {
	emb := &poisonEmbedder{Embedder: embedder.NewMockProvider(64), marker: "POISON"}
	idx, _ := setupIndexer(t, emb)

	root := t.TempDir()
	writeProjectFile(t, root, "good.go", "package good\n")
	writeProjectFile(t, root, "bad.go", "package bad // POISON\n")

	result, err := idx.Index(context.Background(), IndexRequest{Path: root})
	require.NoError(t, err, "a single bad file must not abort the run")

	assert.Equal(t, types.StatusPartial, result.Status)
	assert.Equal(t, 1, result.FilesProcessed)
	assert.Equal(t, 1, result.FilesSkipped)
	assert.Contains(t, result.Message, "bad.go")
}

func TestIndex_ConcurrentRunRejected(t *testing.T) {
	idx, _ := setupIndexer(t, nil)

	root := t.TempDir()
	writeProjectFile(t, root, "main.go", "package main\n")

	require.True(t, idx.lock.TryAcquire())
	defer idx.lock.Release()

	_, err := idx.Index(context.Background(), IndexRequest{Path: root})
	assert.ErrorIs(t, err, ErrIndexInProgress)
}

func TestIndex_CustomProjectName(t *testing.T) {
	idx, store := setupIndexer(t, nil)

	root := t.TempDir()
	writeProjectFile(t, root, "main.go", "package main\n")

	result, err := idx.Index(context.Background(), IndexRequest{Path: root, Name: "my-service"})
	require.NoError(t, err)

	project, err := store.GetProject(context.Background(), result.ProjectPath)
	require.NoError(t, err)
	assert.Equal(t, "my-service", project.Name)
}

func TestIndexLock(t *testing.T) {
	var lock IndexLock
	assert.True(t, lock.TryAcquire())
	assert.False(t, lock.TryAcquire())
	lock.Release()
	assert.True(t, lock.TryAcquire())
}

func TestIndex_WalkErrorsAreRecorded(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("directory permissions are not enforced for root")
	}

	idx, _ := setupIndexer(t, nil)

	root := t.TempDir()
	writeProjectFile(t, root, "main.go", "package main\n")
	sealed := filepath.Join(root, "sealed")
	require.NoError(t, os.MkdirAll(sealed, 0755))
	require.NoError(t, os.Chmod(sealed, 0000))
	t.Cleanup(func() { _ = os.Chmod(sealed, 0755) })

	result, err := idx.Index(context.Background(), IndexRequest{Path: root})
	require.NoError(t, err)
	assert.Equal(t, types.StatusPartial, result.Status)
	assert.Equal(t, 1, result.FilesProcessed)
	assert.Equal(t, 1, result.FilesSkipped)
	assert.Contains(t, result.Message, "sealed")
}
