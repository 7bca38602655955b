// Package embedder maps batches of texts to fixed-dimension vectors behind a
// single Embedder port, so the orchestrators never care whether vectors come
// from a local subprocess, a remote API, or a test double.
//
// Providers:
//   - script: spawns an external embedding script per batch, exchanging JSON
//     over stdin/stdout, with a per-call timeout
//   - openai: HTTP batch endpoint with exponential-backoff retry
//   - mock: deterministic hash-derived unit vectors for tests
//
// All providers guarantee one vector per input text, in input order, at the
// configured dimension. Provider failures surface as ErrUnavailable so
// callers can distinguish "dependency down" from bad input; a dimension that
// disagrees with the store schema is ErrDimensionMismatch and is never
// retried.
//
// WithCache adds an LRU cache keyed by content hash: re-indexing unchanged
// content skips the provider entirely.
package embedder
