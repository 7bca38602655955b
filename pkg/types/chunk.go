package types

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// TokensPerChar is the heuristic divisor for estimating token counts (chars/4).
const TokensPerChar = 4

// Chunk is a contiguous, line-bounded slice of a source file. It is the unit
// of embedding and retrieval.
type Chunk struct {
	// Location
	FilePath  string // relative to the project root
	Index     int    // 0-based position within the file
	StartLine int    // 1-based, inclusive
	EndLine   int    // 1-based, inclusive

	// Content
	Content     string
	ContentHash string // hex-encoded SHA-256 of Content
	TokenCount  int

	// Metadata carries free-form attributes (at minimum file_name, file_ext).
	Metadata map[string]string
}

// ComputeContentHash fills in the SHA-256 fingerprint of the chunk content.
func (c *Chunk) ComputeContentHash() string {
	h := sha256.Sum256([]byte(c.Content))
	c.ContentHash = hex.EncodeToString(h[:])
	return c.ContentHash
}

// ComputeTokenCount estimates the number of tokens in the chunk content.
func (c *Chunk) ComputeTokenCount() int {
	c.TokenCount = EstimateTokens(c.Content)
	return c.TokenCount
}

// EstimateTokens estimates the token count of text as ceil(len/4).
func EstimateTokens(text string) int {
	return (len(text) + TokensPerChar - 1) / TokensPerChar
}

// Validate checks structural invariants of the chunk.
func (c *Chunk) Validate() error {
	if c.Content == "" {
		return errors.New("chunk content cannot be empty")
	}
	if c.StartLine <= 0 || c.EndLine <= 0 {
		return errors.New("line numbers must be positive")
	}
	if c.StartLine > c.EndLine {
		return errors.New("start line must be before or equal to end line")
	}
	if c.Index < 0 {
		return errors.New("chunk index cannot be negative")
	}
	return nil
}
