// Package searcher turns natural-language queries into ranked chunk
// results.
//
// A search embeds the query with the same provider that indexed the
// corpus, delegates similarity ranking to the store, and maps hits into
// result rows carrying project path, file location, line range, content,
// similarity, and 1-based rank. The response also names the embedding
// model so callers can tell which vector space produced the ranking.
//
// Validation happens before any embedding work: an empty or
// whitespace-only query is ErrInvalidQuery, and a project scope that was
// never indexed surfaces storage.ErrNotFound. Limits default and clamp to
// the configured bounds.
//
// Responses are cached in an LRU keyed by SHA-256 of (query, scope,
// limit) with a TTL. Entries are deep-copied on both store and read so a
// caller can never mutate what a later caller receives. InvalidateCache
// drops the whole cache and is called after indexing or deletion.
package searcher
