package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// searchVector performs cosine similarity search over chunk embeddings.
// Only chunks whose similarity strictly exceeds threshold are returned,
// ranked descending, capped at limit. A nil projectID searches every
// project.
func searchVector(ctx context.Context, db *sql.DB, projectID *int64, queryVector []float32, limit int, threshold float64) ([]SearchHit, error) {
	if limit <= 0 {
		return []SearchHit{}, nil
	}
	// Use SQL-based search when sqlite-vec is available, otherwise rank in Go
	if VectorExtensionAvailable {
		return searchVectorOptimized(ctx, db, projectID, queryVector, limit, threshold)
	}
	return searchVectorFallback(ctx, db, projectID, queryVector, limit, threshold)
}

const searchSelectColumns = `
	c.id, c.project_id, p.path, c.file_path, c.start_line, c.end_line,
	c.content, c.metadata`

// searchVectorOptimized uses the sqlite-vec extension to compute distance at
// the database layer. vec_distance_cosine returns distance (lower is
// better); similarity is 1 - distance.
func searchVectorOptimized(ctx context.Context, db *sql.DB, projectID *int64, queryVector []float32, limit int, threshold float64) ([]SearchHit, error) {
	queryVectorBlob := serializeVector(queryVector)

	query := `
		SELECT` + searchSelectColumns + `,
			1.0 - vec_distance_cosine(c.embedding, ?) AS similarity
		FROM chunks c
		INNER JOIN projects p ON c.project_id = p.id
		WHERE (1.0 - vec_distance_cosine(c.embedding, ?)) > ?
	`
	args := []interface{}{queryVectorBlob, queryVectorBlob, threshold}

	if projectID != nil {
		query += " AND c.project_id = ?"
		args = append(args, *projectID)
	}

	query += " ORDER BY similarity DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	hits := make([]SearchHit, 0, limit)
	for rows.Next() {
		hit, err := scanSearchHit(rows)
		if err != nil {
			return nil, err
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// searchVectorFallback loads candidate embeddings and computes cosine
// similarity in Go. Used by purego builds without the sqlite-vec extension.
func searchVectorFallback(ctx context.Context, db *sql.DB, projectID *int64, queryVector []float32, limit int, threshold float64) ([]SearchHit, error) {
	query := `
		SELECT` + searchSelectColumns + `,
			c.embedding
		FROM chunks c
		INNER JOIN projects p ON c.project_id = p.id
	`
	args := []interface{}{}
	if projectID != nil {
		query += " WHERE c.project_id = ?"
		args = append(args, *projectID)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	hits := make([]SearchHit, 0, 256)
	for rows.Next() {
		var hit SearchHit
		var metadata sql.NullString
		var vectorBlob []byte
		err := rows.Scan(
			&hit.ChunkID, &hit.ProjectID, &hit.ProjectPath, &hit.FilePath,
			&hit.StartLine, &hit.EndLine, &hit.Content, &metadata, &vectorBlob,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}

		vector := deserializeVector(vectorBlob)
		if len(vector) != len(queryVector) {
			continue // Dimension mismatch, skip
		}

		similarity := cosineSimilarity(queryVector, vector)
		if similarity <= threshold {
			continue
		}

		hit.Similarity = similarity
		if hit.Metadata, err = unmarshalMetadata(metadata); err != nil {
			return nil, fmt.Errorf("failed to decode chunk metadata: %w", err)
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(hits, func(i, j int) bool {
		return hits[i].Similarity > hits[j].Similarity
	})

	if limit < len(hits) {
		hits = hits[:limit]
	}
	return hits, nil
}

// scanSearchHit reads one result row with a trailing similarity column
// computed in SQL
func scanSearchHit(rows *sql.Rows) (SearchHit, error) {
	var hit SearchHit
	var metadata sql.NullString

	err := rows.Scan(
		&hit.ChunkID, &hit.ProjectID, &hit.ProjectPath, &hit.FilePath,
		&hit.StartLine, &hit.EndLine, &hit.Content, &metadata,
		&hit.Similarity,
	)
	if err != nil {
		return SearchHit{}, fmt.Errorf("failed to scan result: %w", err)
	}

	if hit.Metadata, err = unmarshalMetadata(metadata); err != nil {
		return SearchHit{}, fmt.Errorf("failed to decode chunk metadata: %w", err)
	}
	return hit, nil
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i] * b[i])
		normA += float64(a[i] * a[i])
		normB += float64(b[i] * b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// SerializeVector is an exported helper for testing
func SerializeVector(vector []float32) []byte {
	return serializeVector(vector)
}

// DeserializeVector is an exported helper for testing
func DeserializeVector(blob []byte) []float32 {
	return deserializeVector(blob)
}

// CosineSimilarity is an exported helper for testing
func CosineSimilarity(a, b []float32) float64 {
	return cosineSimilarity(a, b)
}
