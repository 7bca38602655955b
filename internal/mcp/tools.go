package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/codemem/codemem/internal/embedder"
	"github.com/codemem/codemem/internal/indexer"
	"github.com/codemem/codemem/internal/searcher"
	"github.com/codemem/codemem/internal/storage"
)

// MCP error codes
const (
	ErrorCodeInvalidParams        = -32602 // Invalid method parameters
	ErrorCodeInternalError        = -32603 // Internal JSON-RPC error
	ErrorCodePathNotFound         = -32001 // Root path missing or not a directory
	ErrorCodeProjectNotFound      = -32002 // Project was never indexed
	ErrorCodeIndexingInProgress   = -32003 // Another indexing run is active
	ErrorCodeInvalidQuery         = -32004 // Query is empty or whitespace
	ErrorCodeEmbeddingUnavailable = -32005 // Embedding provider failed
	ErrorCodeStoreUnavailable     = -32006 // Database unreachable or transaction failed
)

// handleIndexProject handles the index_project tool invocation
func (s *Server) handleIndexProject(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}
	if !filepath.IsAbs(path) {
		return nil, newMCPError(ErrorCodeInvalidParams, "path must be absolute", map[string]interface{}{
			"param": "path",
			"value": path,
		})
	}

	name := getStringDefault(args, "name", "")
	force := getBoolDefault(args, "force", false)

	result, err := s.indexer.Index(ctx, indexer.IndexRequest{
		Path:  path,
		Name:  name,
		Force: force,
	})
	if err != nil {
		return nil, mapError(err, "indexing failed")
	}

	// Cached rankings are stale once the index changes
	s.searcher.InvalidateCache()

	response := map[string]interface{}{
		"project_path":    result.ProjectPath,
		"files_processed": result.FilesProcessed,
		"chunks_indexed":  result.ChunksIndexed,
		"files_skipped":   result.FilesSkipped,
		"duration_ms":     result.Duration.Milliseconds(),
		"status":          string(result.Status),
	}
	if result.Message != "" {
		response["message"] = result.Message
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearch handles the search tool invocation
func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidQuery, "query parameter is required", map[string]interface{}{
			"param":  "query",
			"reason": "missing",
		})
	}

	projectPath := getStringDefault(args, "project_path", "")
	limit := getIntDefault(args, "limit", 0)

	response, err := s.searcher.Search(ctx, searcher.SearchRequest{
		Query:       query,
		ProjectPath: projectPath,
		Limit:       limit,
	})
	if err != nil {
		return nil, mapError(err, "search failed")
	}

	results := make([]map[string]interface{}, len(response.Results))
	for i, result := range response.Results {
		entry := map[string]interface{}{
			"rank":         result.Rank,
			"project_path": result.ProjectPath,
			"file_path":    result.FilePath,
			"start_line":   result.StartLine,
			"end_line":     result.EndLine,
			"similarity":   result.Similarity,
			"content":      result.Content,
		}
		if len(result.Metadata) > 0 {
			entry["metadata"] = result.Metadata
		}
		results[i] = entry
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"results":       results,
		"total_results": response.TotalResults,
		"model":         response.Model,
		"duration_ms":   response.Duration.Milliseconds(),
		"cache_hit":     response.CacheHit,
	})), nil
}

// handleGetStatus handles the get_status tool invocation. Without a path it
// lists every indexed project; with a path it reports that project's
// statistics.
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})

	path := getStringDefault(args, "path", "")
	if path == "" {
		return s.listProjects(ctx)
	}

	status, err := s.store.GetProjectStatus(ctx, canonicalPath(path))
	if errors.Is(err, storage.ErrNotFound) {
		return mcp.NewToolResultText(formatJSON(map[string]interface{}{
			"indexed": false,
			"path":    path,
			"message": "project not indexed; use the index_project tool first",
		})), nil
	}
	if err != nil {
		return nil, mapError(err, "failed to read project status")
	}

	response := map[string]interface{}{
		"indexed": true,
		"project": map[string]interface{}{
			"path":       status.Project.Path,
			"name":       status.Project.Name,
			"created_at": status.Project.CreatedAt.Format(time.RFC3339),
		},
		"document_count": status.DocumentCount,
		"storage_bytes":  status.StorageBytes,
	}
	if status.LastIndexedAt != nil {
		response["last_indexed_at"] = status.LastIndexedAt.Format(time.RFC3339)
	} else {
		response["last_indexed_at"] = nil
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// listProjects reports every indexed project with its chunk count
func (s *Server) listProjects(ctx context.Context) (*mcp.CallToolResult, error) {
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		return nil, mapError(err, "failed to list projects")
	}

	entries := make([]map[string]interface{}, len(projects))
	for i, project := range projects {
		count, err := s.store.CountChunks(ctx, project.ID)
		if err != nil {
			return nil, mapError(err, "failed to count chunks")
		}
		entries[i] = map[string]interface{}{
			"path":           project.Path,
			"name":           project.Name,
			"document_count": count,
		}
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"projects": entries,
		"total":    len(entries),
	})), nil
}

// handleDeleteProject handles the delete_project tool invocation
func (s *Server) handleDeleteProject(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}

	deleted, err := s.store.DeleteProject(ctx, canonicalPath(path))
	if err != nil {
		return nil, mapError(err, "failed to delete project")
	}

	if deleted {
		s.searcher.InvalidateCache()
		s.log.Info("project deleted", zap.String("path", path))
	}

	response := map[string]interface{}{
		"deleted": deleted,
		"path":    path,
	}
	if !deleted {
		response["message"] = "project was not indexed"
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// mapError translates sentinel errors from the orchestrators into MCP
// error codes
func mapError(err error, message string) error {
	code := ErrorCodeInternalError
	switch {
	case errors.Is(err, searcher.ErrInvalidQuery):
		code = ErrorCodeInvalidQuery
	case errors.Is(err, indexer.ErrPathNotFound):
		code = ErrorCodePathNotFound
	case errors.Is(err, indexer.ErrIndexInProgress):
		code = ErrorCodeIndexingInProgress
	case errors.Is(err, storage.ErrNotFound):
		code = ErrorCodeProjectNotFound
	case errors.Is(err, embedder.ErrUnavailable):
		code = ErrorCodeEmbeddingUnavailable
	case errors.Is(err, storage.ErrUnavailable):
		code = ErrorCodeStoreUnavailable
	}
	return newMCPError(code, message, map[string]interface{}{
		"error": err.Error(),
	})
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// canonicalPath resolves lookups the same way indexing stored them,
// falling back to the cleaned absolute form for paths that no longer exist
func canonicalPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}
