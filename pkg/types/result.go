package types

import "time"

// IndexStatus is the outcome classification of an indexing run.
type IndexStatus string

const (
	// StatusSuccess means every discovered file was indexed without error.
	StatusSuccess IndexStatus = "success"
	// StatusPartial means the run completed but one or more files failed.
	StatusPartial IndexStatus = "partial"
)

// IndexResult is the structured outcome of one indexing run. Indexing always
// returns a result, even when individual files failed.
type IndexResult struct {
	ProjectPath    string
	FilesProcessed int
	ChunksIndexed  int
	FilesSkipped   int
	Duration       time.Duration
	Status         IndexStatus
	Message        string // first error encountered, if any
}

// SearchResult is a single ranked hit from a similarity search.
type SearchResult struct {
	ProjectPath string
	FilePath    string // relative to the project root
	StartLine   int
	EndLine     int
	Content     string
	Similarity  float64 // 1 - cosine distance, in [0,1]
	Rank        int     // 1-based position in the result set
	Metadata    map[string]string
}
