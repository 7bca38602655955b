// Package chunker divides raw file content into line-addressable chunks for
// embedding and search, and computes per-chunk content fingerprints.
//
// Chunk boundaries always fall on line boundaries; a file's chunks partition
// its lines exactly once each, in order. Sizing uses a token-equivalent
// estimate of ceil(chars/4) against a configurable budget (default 500). A
// single line longer than the budget is emitted as its own chunk rather than
// split mid-line.
//
// Content hashes are SHA-256 over the chunk text and serve as the identity
// and change-detection key for incremental reindexing: a chunk whose hash is
// unchanged upserts to a no-op.
package chunker
