// Package storage persists projects and their embedded chunks in SQLite and
// answers cosine similarity queries over them.
//
// # Schema
//
// Two tables, migrated through semver-ordered migrations:
//
//	projects  id, path (unique canonical root), name, timestamps
//	chunks    id, project_id (FK, cascade), file_path, chunk_index,
//	          content, content_hash, start_line, end_line,
//	          embedding (little-endian float32 blob), model,
//	          metadata (JSON), timestamps
//
// A chunk's identity is (project_id, file_path, chunk_index). Upserting the
// same identity replaces content, hash, and embedding in place, which makes
// re-indexing idempotent: unchanged files rewrite identical rows, changed
// files overwrite stale ones. UpsertChunks writes a whole batch inside one
// transaction so a file's chunks land together or not at all.
//
// # Search
//
// Search ranks chunks by cosine similarity to a query vector, keeps only
// hits whose similarity strictly exceeds the configured threshold, and
// returns the top hits with project path, file location, and content
// attached. Scope is a single project or, with a nil project ID, the whole
// database. Projects never see each other's chunks when scoped.
//
// # Build modes
//
// Two interchangeable SQLite drivers are selected by build tags:
//
//	sqlite_vec (CGO)  github.com/mattn/go-sqlite3 with the sqlite-vec
//	                  extension; distance is computed in SQL
//	purego (default)  modernc.org/sqlite; candidates are loaded and ranked
//	                  in Go
//
// Both modes store vectors in the same blob format, so a database created
// under one mode opens cleanly under the other.
//
// # Errors
//
// Lookups for absent entities return ErrNotFound. Connection and
// transaction failures wrap ErrUnavailable so callers can report the store
// as down rather than the data as missing.
package storage
