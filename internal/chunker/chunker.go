package chunker

import (
	"path/filepath"
	"strings"

	"github.com/codemem/codemem/pkg/types"
)

// DefaultChunkBudget is the target maximum token-equivalent count per chunk.
const DefaultChunkBudget = 500

// Chunker splits raw file content into bounded-size, line-addressable chunks.
type Chunker struct {
	budget int
}

// New creates a Chunker with the given token budget per chunk. A non-positive
// budget falls back to DefaultChunkBudget.
func New(budget int) *Chunker {
	if budget <= 0 {
		budget = DefaultChunkBudget
	}
	return &Chunker{budget: budget}
}

// Budget returns the configured token budget.
func (c *Chunker) Budget() int {
	return c.budget
}

// ChunkFile splits file content into chunks and fills in per-chunk identity:
// relative path, 0-based index, content hash, token count, and metadata.
// Empty content yields no chunks.
func (c *Chunker) ChunkFile(relPath, content string) []types.Chunk {
	chunks := Split(content, c.budget)

	fileName := filepath.Base(relPath)
	fileExt := filepath.Ext(relPath)

	for i := range chunks {
		chunks[i].FilePath = relPath
		chunks[i].Index = i
		chunks[i].ComputeContentHash()
		chunks[i].ComputeTokenCount()
		chunks[i].Metadata = map[string]string{
			"file_name": fileName,
			"file_ext":  fileExt,
		}
	}
	return chunks
}

// Split divides content into contiguous line-bounded chunks whose estimated
// token counts stay within budget. Line ranges are 1-based inclusive and
// partition the file's lines in order with no gaps or overlaps. A chunk
// closes once appending the next line would push it past the budget, unless
// the chunk is still empty: a single line is never force-split, however long.
func Split(content string, budget int) []types.Chunk {
	if content == "" {
		return nil
	}
	if budget <= 0 {
		budget = DefaultChunkBudget
	}

	lines := strings.Split(content, "\n")
	// A trailing newline produces a phantom final element, not a line.
	if len(lines) > 1 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	var chunks []types.Chunk
	var current strings.Builder
	startLine := 1
	// Number of lines accumulated so far. Emptiness is tracked by line count,
	// not content length: a chunk holding one blank line has zero-length
	// content but is not empty.
	chunkLines := 0

	flush := func(endLine int) {
		chunks = append(chunks, types.Chunk{
			Content:   current.String(),
			StartLine: startLine,
			EndLine:   endLine,
		})
		current.Reset()
		chunkLines = 0
		startLine = endLine + 1
	}

	for i, line := range lines {
		candidate := current.Len() + len(line)
		if chunkLines > 0 {
			candidate++ // joining newline
		}

		if chunkLines > 0 && tokensFor(candidate) > budget {
			flush(i) // lines are 0-based, so the previous line number is i
		}

		if chunkLines > 0 {
			current.WriteByte('\n')
		}
		current.WriteString(line)
		chunkLines++
	}

	flush(len(lines))
	return chunks
}

// tokensFor estimates tokens for a character count as ceil(n/4).
func tokensFor(chars int) int {
	return (chars + types.TokensPerChar - 1) / types.TokensPerChar
}
