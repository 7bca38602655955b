// Package types defines the shared domain types for the indexing and
// retrieval engine: content chunks produced by the chunker, results returned
// by indexing runs, and ranked search hits.
//
// These types carry no behavior beyond validation and token estimation; the
// orchestrators in internal/ own all control flow.
package types
