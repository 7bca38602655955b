package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/codemem/codemem/internal/config"
	"github.com/codemem/codemem/internal/embedder"
	"github.com/codemem/codemem/internal/indexer"
	"github.com/codemem/codemem/internal/searcher"
	"github.com/codemem/codemem/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "codemem"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
	// DBFileName is the SQLite file created under the configured directory
	DBFileName = "codemem.db"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	store    storage.Store
	embedder embedder.Embedder
	indexer  *indexer.Indexer
	searcher *searcher.Searcher
	log      *zap.Logger
}

// NewServer wires the store, embedding provider, and orchestrators from
// configuration and registers the tool handlers
func NewServer(cfg *config.Config, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}

	if err := os.MkdirAll(cfg.DBPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	dbFile := filepath.Join(cfg.DBPath, DBFileName)

	store, err := storage.New(dbFile, cfg.Search.Threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// One embedder instance backs both orchestrators, so embeddings cached
	// during indexing also serve query-time lookups
	emb, err := embedder.New(cfg.Embedding)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	idx := indexer.New(store, emb, cfg.Indexing, log)

	srch, err := searcher.New(store, emb, cfg.Search, log)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize searcher: %w", err)
	}

	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
	)

	s := &Server{
		mcp:      mcpServer,
		store:    store,
		embedder: emb,
		indexer:  idx,
		searcher: srch,
		log:      log,
	}

	s.registerTools()
	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	defer s.close()
	s.log.Info("serving on stdio",
		zap.String("name", ServerName),
		zap.String("version", ServerVersion),
		zap.String("model", s.embedder.Model()))
	return server.ServeStdio(s.mcp)
}

func (s *Server) close() {
	if err := s.embedder.Close(); err != nil {
		s.log.Warn("failed to close embedder", zap.Error(err))
	}
	if err := s.store.Close(); err != nil {
		s.log.Warn("failed to close store", zap.Error(err))
	}
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(indexProjectTool(), s.handleIndexProject)
	s.mcp.AddTool(searchTool(), s.handleSearch)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
	s.mcp.AddTool(deleteProjectTool(), s.handleDeleteProject)
}
