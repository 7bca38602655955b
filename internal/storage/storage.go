package storage

import (
	"context"
	"time"
)

// Store defines the interface for persisting projects, chunks, and their
// embeddings, and for vector similarity search over them
type Store interface {
	// Project operations
	UpsertProject(ctx context.Context, path, name string) (*Project, error)
	GetProject(ctx context.Context, path string) (*Project, error)
	ListProjects(ctx context.Context) ([]*Project, error)
	DeleteProject(ctx context.Context, path string) (bool, error)

	// Chunk operations
	UpsertChunks(ctx context.Context, chunks []*Chunk) error
	DeleteChunksByFilePattern(ctx context.Context, projectID int64, pattern string) (int64, error)
	CountChunks(ctx context.Context, projectID int64) (int64, error)

	// Search operations
	Search(ctx context.Context, projectID *int64, vector []float32, limit int) ([]SearchHit, error)

	// Status operations
	GetProjectStatus(ctx context.Context, path string) (*ProjectStatus, error)

	// Database operations
	Close() error
}

// Project represents an indexed codebase
type Project struct {
	ID        int64
	Path      string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Chunk represents an embedded code section. A chunk is identified by
// (project_id, file_path, chunk_index); re-upserting the same identity
// replaces content, hash, and embedding in place.
type Chunk struct {
	ID          int64
	ProjectID   int64
	FilePath    string // Relative to project root
	ChunkIndex  int
	Content     string
	ContentHash string // Hex SHA-256 of the chunk content
	StartLine   int
	EndLine     int
	Embedding   []float32
	Model       string
	Metadata    map[string]string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SearchHit is a chunk matched by vector similarity search
type SearchHit struct {
	ChunkID     int64
	ProjectID   int64
	ProjectPath string
	FilePath    string
	StartLine   int
	EndLine     int
	Content     string
	Metadata    map[string]string
	Similarity  float64
}

// ProjectStatus contains statistics about an indexed project
type ProjectStatus struct {
	Project       *Project
	DocumentCount int64
	LastIndexedAt *time.Time // nil when nothing has been indexed yet
	StorageBytes  int64
}
