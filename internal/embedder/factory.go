package embedder

import (
	"fmt"
	"strings"

	"github.com/codemem/codemem/internal/config"
)

// Provider names accepted by New.
const (
	ProviderScript = "script"
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

// New creates an embedder from explicit configuration and wraps it with the
// configured LRU cache. The dimension in cfg must match the vector store's
// schema; providers enforce it per response.
func New(cfg config.EmbeddingConfig) (Embedder, error) {
	var (
		emb Embedder
		err error
	)

	switch strings.ToLower(cfg.Provider) {
	case ProviderScript:
		emb, err = NewScriptProvider(cfg.ScriptPath, cfg.Model, cfg.Dimension, cfg.Timeout)
	case ProviderOpenAI:
		emb, err = NewOpenAIProvider(cfg.APIKey, cfg.Model, cfg.Dimension)
	case ProviderMock:
		emb = NewMockProvider(cfg.Dimension)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	return WithCache(emb, cfg.CacheSize)
}
