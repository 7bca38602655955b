// Package indexer walks a project tree, chunks each source file, embeds the
// chunks, and writes them to the store as one transactional batch per file.
//
// # Pipeline
//
// An indexing run proceeds in phases:
//
//  1. Validate: the root must exist and be a directory, otherwise
//     ErrPathNotFound and the store is never touched. The path is then
//     canonicalized (absolute, symlinks resolved) so one directory maps to
//     exactly one project row.
//  2. Register: the project is upserted by canonical path.
//  3. Short-circuit: a project that already has chunks is left alone unless
//     the run is forced; a forced run clears every chunk first and
//     re-embeds from scratch.
//  4. Discover: an iterative, stack-based walk collects files whose
//     extension is in the allow-set, skipping dot-prefixed names and the
//     deny-set of dependency and build directories. Directories that cannot
//     be read are recorded as errors, not silently dropped.
//  5. Process: files fan out through a bounded errgroup. Each file is read,
//     chunked, embedded in a single batch call, and stored in a single
//     transaction, so a file's chunks land together or not at all.
//
// # Failure isolation
//
// A file that cannot be read, embedded, or stored is skipped and its error
// recorded; the run continues. Any recorded error (file or walk) downgrades
// the run's status from success to partial, and the first message is
// surfaced in the result. Only a missing root, a concurrent run on the same
// Indexer, or a store failure during project registration aborts the run
// outright.
package indexer
