package searcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/codemem/codemem/internal/config"
	"github.com/codemem/codemem/internal/embedder"
	"github.com/codemem/codemem/internal/storage"
	"github.com/codemem/codemem/pkg/types"
)

// ErrInvalidQuery is returned for empty or whitespace-only queries, before
// any embedding call is made
var ErrInvalidQuery = errors.New("invalid query")

// DefaultCacheTTL bounds how long a cached search response stays valid
const DefaultCacheTTL = 1 * time.Hour

// defaultCacheEntries caps the query cache when no size is configured
const defaultCacheEntries = 1000

// SearchRequest describes one semantic search
type SearchRequest struct {
	Query       string
	ProjectPath string // Empty scope searches every indexed project
	Limit       int
}

// SearchResponse contains ranked results and search metadata
type SearchResponse struct {
	Results      []types.SearchResult
	TotalResults int
	Model        string
	Duration     time.Duration
	CacheHit     bool
}

// cacheEntry represents a cached search response with expiration time
type cacheEntry struct {
	response  *SearchResponse
	expiresAt time.Time
}

// Searcher answers natural-language queries against the vector store
type Searcher struct {
	store    storage.Store
	embedder embedder.Embedder
	log      *zap.Logger

	defaultLimit int
	maxLimit     int
	cacheTTL     time.Duration

	cache   *lru.Cache[[32]byte, *cacheEntry]
	cacheMu sync.RWMutex
}

// New creates a Searcher over the given store and embedding provider
func New(store storage.Store, emb embedder.Embedder, cfg config.SearchConfig, log *zap.Logger) (*Searcher, error) {
	if log == nil {
		log = zap.NewNop()
	}

	cacheSize := cfg.CacheSize
	if cacheSize <= 0 {
		cacheSize = defaultCacheEntries
	}
	cache, err := lru.New[[32]byte, *cacheEntry](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create query cache: %w", err)
	}

	defaultLimit := cfg.DefaultLimit
	if defaultLimit <= 0 {
		defaultLimit = config.DefaultSearchLimit
	}
	maxLimit := cfg.MaxLimit
	if maxLimit <= 0 {
		maxLimit = config.MaxSearchLimit
	}

	return &Searcher{
		store:        store,
		embedder:     emb,
		log:          log,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
		cacheTTL:     DefaultCacheTTL,
		cache:        cache,
	}, nil
}

// Search embeds the query and returns chunks ranked by cosine similarity.
// A project scope restricts results to that project; storage.ErrNotFound is
// returned when the scoped project was never indexed.
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	startTime := time.Now()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is empty", ErrInvalidQuery)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}

	// Resolve scope before embedding so an unknown project fails fast
	var projectID *int64
	scope := ""
	if req.ProjectPath != "" {
		project, err := s.store.GetProject(ctx, canonicalScope(req.ProjectPath))
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, fmt.Errorf("%w: project %s", storage.ErrNotFound, req.ProjectPath)
			}
			return nil, err
		}
		projectID = &project.ID
		scope = project.Path
	}

	hash := queryHash(query, scope, limit)
	if cached := s.checkCache(hash); cached != nil {
		cached.CacheHit = true
		cached.Duration = time.Since(startTime)
		return cached, nil
	}

	vectors, err := s.embedder.EmbedBatch(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := s.store.Search(ctx, projectID, vectors[0], limit)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	results := make([]types.SearchResult, len(hits))
	for i, hit := range hits {
		results[i] = types.SearchResult{
			ProjectPath: hit.ProjectPath,
			FilePath:    hit.FilePath,
			StartLine:   hit.StartLine,
			EndLine:     hit.EndLine,
			Content:     hit.Content,
			Similarity:  hit.Similarity,
			Rank:        i + 1,
			Metadata:    hit.Metadata,
		}
	}

	response := &SearchResponse{
		Results:      results,
		TotalResults: len(results),
		Model:        s.embedder.Model(),
		Duration:     time.Since(startTime),
	}

	s.storeInCache(hash, response)

	s.log.Debug("search complete",
		zap.String("scope", scope),
		zap.Int("results", len(results)),
		zap.Duration("duration", response.Duration))

	return response, nil
}

// InvalidateCache drops every cached response. Called after indexing or
// project deletion so stale results never outlive the data they rank.
func (s *Searcher) InvalidateCache() {
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
}

// queryHash derives the cache key from everything that shapes a response
func queryHash(query, scope string, limit int) [32]byte {
	return sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", query, scope, limit)))
}

// checkCache returns a copy of a live cache entry, nil on miss or expiry
func (s *Searcher) checkCache(hash [32]byte) *SearchResponse {
	now := time.Now()

	s.cacheMu.RLock()
	entry, found := s.cache.Get(hash)
	if !found {
		s.cacheMu.RUnlock()
		return nil
	}

	if now.After(entry.expiresAt) {
		s.cacheMu.RUnlock()
		s.cacheMu.Lock()
		s.cache.Remove(hash)
		s.cacheMu.Unlock()
		return nil
	}

	response := copySearchResponse(entry.response)
	s.cacheMu.RUnlock()
	return response
}

// storeInCache saves a deep copy so callers cannot mutate cached results
func (s *Searcher) storeInCache(hash [32]byte, response *SearchResponse) {
	entry := &cacheEntry{
		response:  copySearchResponse(response),
		expiresAt: time.Now().Add(s.cacheTTL),
	}

	s.cacheMu.Lock()
	s.cache.Add(hash, entry)
	s.cacheMu.Unlock()
}

// copySearchResponse creates a deep copy of a SearchResponse
func copySearchResponse(src *SearchResponse) *SearchResponse {
	if src == nil {
		return nil
	}

	dst := &SearchResponse{
		Results:      make([]types.SearchResult, len(src.Results)),
		TotalResults: src.TotalResults,
		Model:        src.Model,
		Duration:     src.Duration,
		CacheHit:     src.CacheHit,
	}
	for i, result := range src.Results {
		dst.Results[i] = result
		if result.Metadata != nil {
			metadata := make(map[string]string, len(result.Metadata))
			for k, v := range result.Metadata {
				metadata[k] = v
			}
			dst.Results[i].Metadata = metadata
		}
	}
	return dst
}

// canonicalScope resolves a scope path the same way indexing does, falling
// back to the cleaned absolute form when the directory no longer exists
func canonicalScope(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}
