package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrUnavailable is returned when the database cannot be reached or a
	// transaction fails to commit
	ErrUnavailable = errors.New("storage unavailable")
)

// DefaultSimilarityThreshold is the minimum cosine similarity a chunk must
// strictly exceed to appear in search results.
const DefaultSimilarityThreshold = 0.7

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db        *sql.DB
	threshold float64
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// New creates a SQLite-backed store at dbPath and applies pending
// migrations. threshold is the similarity floor for Search; values <= 0
// fall back to DefaultSimilarityThreshold.
func New(dbPath string, threshold float64) (*SQLiteStore, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	return &SQLiteStore{db: db, threshold: threshold}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// querier returns the DB querier
func (s *SQLiteStore) querier() querier {
	return s.db
}

// Project operations

// upsertProjectWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) upsertProjectWithQuerier(ctx context.Context, q querier, path, name string) (*Project, error) {
	query := `
		INSERT INTO projects (path, name, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			name = excluded.name,
			updated_at = excluded.updated_at
		RETURNING id, created_at, updated_at
	`
	now := time.Now()
	project := &Project{Path: path, Name: name}
	err := q.QueryRowContext(ctx, query, path, name, now, now).
		Scan(&project.ID, &project.CreatedAt, &project.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert project: %w", err)
	}
	return project, nil
}

func (s *SQLiteStore) UpsertProject(ctx context.Context, path, name string) (*Project, error) {
	return s.upsertProjectWithQuerier(ctx, s.querier(), path, name)
}

// getProjectWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) getProjectWithQuerier(ctx context.Context, q querier, path string) (*Project, error) {
	query := `
		SELECT id, path, name, created_at, updated_at
		FROM projects
		WHERE path = ?
	`
	var project Project
	err := q.QueryRowContext(ctx, query, path).Scan(
		&project.ID, &project.Path, &project.Name,
		&project.CreatedAt, &project.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &project, nil
}

func (s *SQLiteStore) GetProject(ctx context.Context, path string) (*Project, error) {
	return s.getProjectWithQuerier(ctx, s.querier(), path)
}

// listProjectsWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) listProjectsWithQuerier(ctx context.Context, q querier) ([]*Project, error) {
	query := `
		SELECT id, path, name, created_at, updated_at
		FROM projects
		ORDER BY path
	`
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	projects := make([]*Project, 0)
	for rows.Next() {
		var project Project
		err := rows.Scan(
			&project.ID, &project.Path, &project.Name,
			&project.CreatedAt, &project.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		projects = append(projects, &project)
	}
	return projects, rows.Err()
}

func (s *SQLiteStore) ListProjects(ctx context.Context) ([]*Project, error) {
	return s.listProjectsWithQuerier(ctx, s.querier())
}

// DeleteProject removes a project by canonical path. Chunks cascade via the
// foreign key. The bool reports whether a project row actually existed.
func (s *SQLiteStore) DeleteProject(ctx context.Context, path string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE path = ?`, path)
	if err != nil {
		return false, fmt.Errorf("failed to delete project: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Chunk operations

// upsertChunkWithQuerier is the internal implementation that uses a querier.
// Conflict on (project_id, file_path, chunk_index) replaces the chunk in
// place, keeping created_at from the original row.
func (s *SQLiteStore) upsertChunkWithQuerier(ctx context.Context, q querier, chunk *Chunk) error {
	metadata, err := marshalMetadata(chunk.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode chunk metadata: %w", err)
	}

	query := `
		INSERT INTO chunks (
			project_id, file_path, chunk_index, content, content_hash,
			start_line, end_line, embedding, model, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, file_path, chunk_index) DO UPDATE SET
			content = excluded.content,
			content_hash = excluded.content_hash,
			start_line = excluded.start_line,
			end_line = excluded.end_line,
			embedding = excluded.embedding,
			model = excluded.model,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
		RETURNING id
	`
	now := time.Now()
	err = q.QueryRowContext(ctx, query,
		chunk.ProjectID, chunk.FilePath, chunk.ChunkIndex,
		chunk.Content, chunk.ContentHash, chunk.StartLine, chunk.EndLine,
		serializeVector(chunk.Embedding), chunk.Model, metadata, now, now,
	).Scan(&chunk.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert chunk: %w", err)
	}

	chunk.UpdatedAt = now
	return nil
}

// UpsertChunks writes a batch of chunks in a single transaction. Either
// every chunk lands or none does.
func (s *SQLiteStore) UpsertChunks(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	for _, chunk := range chunks {
		if err := s.upsertChunkWithQuerier(ctx, tx, chunk); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// DeleteChunksByFilePattern removes chunks whose file_path matches a SQL
// LIKE pattern. Pattern "%" clears the whole project.
func (s *SQLiteStore) DeleteChunksByFilePattern(ctx context.Context, projectID int64, pattern string) (int64, error) {
	query := `DELETE FROM chunks WHERE project_id = ? AND file_path LIKE ?`
	result, err := s.db.ExecContext(ctx, query, projectID, pattern)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks: %w", err)
	}
	return result.RowsAffected()
}

// countChunksWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) countChunksWithQuerier(ctx context.Context, q querier, projectID int64) (int64, error) {
	var count int64
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE project_id = ?`, projectID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *SQLiteStore) CountChunks(ctx context.Context, projectID int64) (int64, error) {
	return s.countChunksWithQuerier(ctx, s.querier(), projectID)
}

// Search operations

func (s *SQLiteStore) Search(ctx context.Context, projectID *int64, vector []float32, limit int) ([]SearchHit, error) {
	return searchVector(ctx, s.db, projectID, vector, limit, s.threshold)
}

// Status operations

// GetProjectStatus returns indexing statistics for the project at path.
// LastIndexedAt is nil while the project has no chunks.
func (s *SQLiteStore) GetProjectStatus(ctx context.Context, path string) (*ProjectStatus, error) {
	project, err := s.GetProject(ctx, path)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(LENGTH(content) + LENGTH(embedding) + COALESCE(LENGTH(metadata), 0)), 0)
		FROM chunks
		WHERE project_id = ?
	`
	var count int64
	var storageBytes int64
	err = s.db.QueryRowContext(ctx, query, project.ID).Scan(&count, &storageBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to read project status: %w", err)
	}

	status := &ProjectStatus{
		Project:       project,
		DocumentCount: count,
		StorageBytes:  storageBytes,
	}

	// Aggregates lose the column's declared type, so the newest timestamp
	// is read from the column directly
	var lastIndexed time.Time
	err = s.db.QueryRowContext(ctx,
		`SELECT updated_at FROM chunks WHERE project_id = ? ORDER BY updated_at DESC LIMIT 1`,
		project.ID).Scan(&lastIndexed)
	if err == nil {
		status.LastIndexedAt = &lastIndexed
	} else if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to read project status: %w", err)
	}

	return status, nil
}

// marshalMetadata encodes chunk metadata as JSON text, NULL when empty
func marshalMetadata(metadata map[string]string) (interface{}, error) {
	if len(metadata) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// unmarshalMetadata decodes the JSON metadata column, tolerating NULL
func unmarshalMetadata(raw sql.NullString) (map[string]string, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var metadata map[string]string
	if err := json.Unmarshal([]byte(raw.String), &metadata); err != nil {
		return nil, err
	}
	return metadata, nil
}
