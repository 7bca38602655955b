package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/codemem/codemem/internal/chunker"
	"github.com/codemem/codemem/internal/config"
	"github.com/codemem/codemem/internal/embedder"
	"github.com/codemem/codemem/internal/storage"
	"github.com/codemem/codemem/pkg/types"
)

var (
	// ErrPathNotFound is returned when the requested root does not exist or
	// is not a directory. The store is never touched in that case.
	ErrPathNotFound = errors.New("path not found")
	// ErrIndexInProgress is returned when an indexing run is already active
	ErrIndexInProgress = errors.New("indexing already in progress")
)

// Indexer coordinates the indexing pipeline: discover -> chunk -> embed -> store
type Indexer struct {
	chunker  *chunker.Chunker
	embedder embedder.Embedder
	store    storage.Store
	log      *zap.Logger

	batchSize  int
	extensions map[string]bool
	denyDirs   map[string]bool

	lock IndexLock
}

// IndexRequest describes one indexing run
type IndexRequest struct {
	Path  string // Project root, canonicalized before use
	Name  string // Display name; defaults to the root's base name
	Force bool   // Drop existing chunks and re-embed everything
}

// New creates an Indexer over the given store and embedding provider
func New(store storage.Store, emb embedder.Embedder, cfg config.IndexingConfig, log *zap.Logger) *Indexer {
	if log == nil {
		log = zap.NewNop()
	}

	extensions := make(map[string]bool, len(cfg.Extensions))
	for _, ext := range cfg.Extensions {
		extensions[strings.ToLower(ext)] = true
	}
	denyDirs := make(map[string]bool, len(cfg.DenyDirs))
	for _, dir := range cfg.DenyDirs {
		denyDirs[dir] = true
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = config.DefaultBatchSize
	}

	return &Indexer{
		chunker:    chunker.New(cfg.ChunkBudget),
		embedder:   emb,
		store:      store,
		log:        log,
		batchSize:  batchSize,
		extensions: extensions,
		denyDirs:   denyDirs,
	}
}

// Index indexes the project rooted at req.Path. Individual file failures are
// recorded and skipped; the run itself only fails on missing roots, a
// concurrent run, or a store that cannot register the project.
func (idx *Indexer) Index(ctx context.Context, req IndexRequest) (*types.IndexResult, error) {
	info, err := os.Stat(req.Path)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrPathNotFound, req.Path)
	}

	rootPath, err := canonicalPath(req.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrPathNotFound, req.Path)
	}

	if !idx.lock.TryAcquire() {
		return nil, ErrIndexInProgress
	}
	defer idx.lock.Release()

	name := req.Name
	if name == "" {
		name = filepath.Base(rootPath)
	}

	startTime := time.Now()

	project, err := idx.store.UpsertProject(ctx, rootPath, name)
	if err != nil {
		return nil, fmt.Errorf("failed to register project: %w", err)
	}

	existing, err := idx.store.CountChunks(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}

	// Already indexed and not forced: report and do no work
	if existing > 0 && !req.Force {
		return &types.IndexResult{
			ProjectPath: rootPath,
			Status:      types.StatusSuccess,
			Message:     fmt.Sprintf("already indexed (%d chunks); use force to re-index", existing),
			Duration:    time.Since(startTime),
		}, nil
	}

	if req.Force && existing > 0 {
		removed, err := idx.store.DeleteChunksByFilePattern(ctx, project.ID, "%")
		if err != nil {
			return nil, fmt.Errorf("failed to clear existing chunks: %w", err)
		}
		idx.log.Info("cleared existing chunks for re-index",
			zap.String("project", rootPath),
			zap.Int64("removed", removed))
	}

	files, walkErrs := idx.discoverFiles(rootPath)

	var (
		processed    atomic.Int64
		chunksStored atomic.Int64
		skipped      atomic.Int64
	)

	var mu sync.Mutex
	errMessages := make([]string, 0)
	errMessages = append(errMessages, walkErrs...)
	skipped.Add(int64(len(walkErrs)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.batchSize)

	for _, relPath := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			count, err := idx.indexFile(gctx, project, rootPath, relPath)
			if err != nil {
				skipped.Add(1)
				mu.Lock()
				errMessages = append(errMessages, fmt.Sprintf("%s: %v", relPath, err))
				mu.Unlock()
				idx.log.Warn("skipping file",
					zap.String("file", relPath),
					zap.Error(err))
				return nil
			}

			processed.Add(1)
			chunksStored.Add(count)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &types.IndexResult{
		ProjectPath:    rootPath,
		FilesProcessed: int(processed.Load()),
		ChunksIndexed:  int(chunksStored.Load()),
		FilesSkipped:   int(skipped.Load()),
		Duration:       time.Since(startTime),
		Status:         types.StatusSuccess,
	}
	if len(errMessages) > 0 {
		result.Status = types.StatusPartial
		result.Message = errMessages[0]
	}

	idx.log.Info("indexing complete",
		zap.String("project", rootPath),
		zap.Int("files", result.FilesProcessed),
		zap.Int("chunks", result.ChunksIndexed),
		zap.Int("skipped", result.FilesSkipped),
		zap.Duration("duration", result.Duration),
		zap.String("status", string(result.Status)))

	return result, nil
}

// indexFile runs one file through the pipeline and returns the number of
// chunks stored for it
func (idx *Indexer) indexFile(ctx context.Context, project *storage.Project, rootPath, relPath string) (int64, error) {
	content, err := os.ReadFile(filepath.Join(rootPath, relPath))
	if err != nil {
		return 0, err
	}

	chunks := idx.chunker.ChunkFile(relPath, string(content))
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
		// A chunk holding a single blank line has empty content, which
		// providers reject; embed a newline in its place. The stored chunk
		// keeps its exact content.
		if texts[i] == "" {
			texts[i] = "\n"
		}
	}

	vectors, err := idx.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, err
	}

	model := idx.embedder.Model()
	records := make([]*storage.Chunk, len(chunks))
	for i, chunk := range chunks {
		records[i] = &storage.Chunk{
			ProjectID:   project.ID,
			FilePath:    chunk.FilePath,
			ChunkIndex:  chunk.Index,
			Content:     chunk.Content,
			ContentHash: chunk.ContentHash,
			StartLine:   chunk.StartLine,
			EndLine:     chunk.EndLine,
			Embedding:   vectors[i],
			Model:       model,
			Metadata:    chunk.Metadata,
		}
	}

	if err := idx.store.UpsertChunks(ctx, records); err != nil {
		return 0, err
	}
	return int64(len(records)), nil
}

// discoverFiles walks the tree iteratively and returns indexable files as
// root-relative paths, plus one message per directory that could not be
// read. An unreadable directory never aborts the walk.
func (idx *Indexer) discoverFiles(rootPath string) ([]string, []string) {
	files := make([]string, 0, 256)
	walkErrs := make([]string, 0)

	stack := []string{rootPath}
	for len(stack) > 0 {
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := os.ReadDir(dir)
		if err != nil {
			walkErrs = append(walkErrs, fmt.Sprintf("%s: %v", dir, err))
			continue
		}

		for _, entry := range entries {
			name := entry.Name()
			if strings.HasPrefix(name, ".") {
				continue
			}

			if entry.IsDir() {
				if idx.denyDirs[name] {
					continue
				}
				stack = append(stack, filepath.Join(dir, name))
				continue
			}

			if !idx.extensions[strings.ToLower(filepath.Ext(name))] {
				continue
			}

			relPath, err := filepath.Rel(rootPath, filepath.Join(dir, name))
			if err != nil {
				walkErrs = append(walkErrs, fmt.Sprintf("%s: %v", name, err))
				continue
			}
			files = append(files, relPath)
		}
	}

	sort.Strings(files)
	return files, walkErrs
}

// canonicalPath resolves a root to its absolute, symlink-free form so the
// same directory always maps to the same project row
func canonicalPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	return resolved, nil
}
