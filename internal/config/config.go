// Package config provides the explicit configuration for the indexing and
// retrieval engine. Orchestrators receive a Config at construction time;
// nothing reads the environment mid-operation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when a field is unset.
const (
	DefaultChunkBudget     = 500 // token-equivalent units per chunk
	DefaultBatchSize       = 10  // files processed concurrently per batch
	DefaultEmbedTimeout    = 60 * time.Second
	DefaultDimension       = 384
	DefaultModel           = "all-MiniLM-L6-v2"
	DefaultCacheSize       = 10000
	DefaultSearchThreshold = 0.7
	DefaultSearchLimit     = 5
	MaxSearchLimit         = 100
)

// Config holds all configuration for the engine.
type Config struct {
	// DBPath is the directory holding the SQLite database.
	DBPath string `yaml:"db_path"`

	Embedding EmbeddingConfig `yaml:"embedding"`
	Indexing  IndexingConfig  `yaml:"indexing"`
	Search    SearchConfig    `yaml:"search"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string        `yaml:"provider"` // script, openai, mock
	Model      string        `yaml:"model"`
	Dimension  int           `yaml:"dimension"`
	ScriptPath string        `yaml:"script_path"` // script provider only
	APIKey     string        `yaml:"-"`           // never persisted
	Timeout    time.Duration `yaml:"timeout"`
	CacheSize  int           `yaml:"cache_size"`
}

// IndexingConfig holds file selection and chunking settings.
type IndexingConfig struct {
	ChunkBudget int      `yaml:"chunk_budget"` // token-equivalent units
	BatchSize   int      `yaml:"batch_size"`
	Extensions  []string `yaml:"extensions"` // file extension allow-set
	DenyDirs    []string `yaml:"deny_dirs"`  // directory name deny-set
}

// SearchConfig holds query-time settings.
type SearchConfig struct {
	DefaultLimit int     `yaml:"default_limit"`
	MaxLimit     int     `yaml:"max_limit"`
	Threshold    float64 `yaml:"threshold"` // minimum similarity, 0 disables
	CacheSize    int     `yaml:"cache_size"`
}

// DefaultExtensions is the allow-set of source-code file extensions.
var DefaultExtensions = []string{
	".go", ".py", ".js", ".jsx", ".ts", ".tsx", ".java", ".c", ".h",
	".cpp", ".hpp", ".cc", ".cs", ".rb", ".rs", ".php", ".swift", ".kt",
	".scala", ".sh", ".sql", ".md", ".yaml", ".yml", ".json", ".toml",
}

// DefaultDenyDirs is the deny-set of build, dependency, cache and VCS
// directory names skipped during discovery. Hidden directories are always
// skipped regardless of this list.
var DefaultDenyDirs = []string{
	"node_modules", "vendor", "dist", "build", "target", "out",
	"__pycache__", "venv", "env", "coverage", "tmp",
}

// Default returns a Config with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills in zero-valued fields.
func ApplyDefaults(cfg *Config) {
	if cfg.DBPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.DBPath = filepath.Join(home, ".codemem")
		} else {
			cfg.DBPath = ".codemem"
		}
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "script"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = DefaultModel
	}
	if cfg.Embedding.Dimension <= 0 {
		cfg.Embedding.Dimension = DefaultDimension
	}
	if cfg.Embedding.Timeout <= 0 {
		cfg.Embedding.Timeout = DefaultEmbedTimeout
	}
	if cfg.Embedding.CacheSize <= 0 {
		cfg.Embedding.CacheSize = DefaultCacheSize
	}
	if cfg.Indexing.ChunkBudget <= 0 {
		cfg.Indexing.ChunkBudget = DefaultChunkBudget
	}
	if cfg.Indexing.BatchSize <= 0 {
		cfg.Indexing.BatchSize = DefaultBatchSize
	}
	if len(cfg.Indexing.Extensions) == 0 {
		cfg.Indexing.Extensions = append([]string(nil), DefaultExtensions...)
	}
	if len(cfg.Indexing.DenyDirs) == 0 {
		cfg.Indexing.DenyDirs = append([]string(nil), DefaultDenyDirs...)
	}
	if cfg.Search.DefaultLimit <= 0 {
		cfg.Search.DefaultLimit = DefaultSearchLimit
	}
	if cfg.Search.MaxLimit <= 0 {
		cfg.Search.MaxLimit = MaxSearchLimit
	}
	if cfg.Search.Threshold == 0 {
		cfg.Search.Threshold = DefaultSearchThreshold
	}
	if cfg.Search.CacheSize <= 0 {
		cfg.Search.CacheSize = 1000
	}
}

// Load reads and parses the YAML config file at path and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	return &cfg, nil
}

// FromEnv builds a Config from environment variables, then applies defaults.
// Recognized variables: CODEMEM_DB_PATH, CODEMEM_EMBEDDING_PROVIDER,
// CODEMEM_EMBEDDING_MODEL, CODEMEM_EMBEDDING_DIMENSION,
// CODEMEM_EMBEDDING_SCRIPT, CODEMEM_CHUNK_BUDGET, OPENAI_API_KEY.
func FromEnv() *Config {
	cfg := &Config{
		DBPath: os.Getenv("CODEMEM_DB_PATH"),
		Embedding: EmbeddingConfig{
			Provider:   os.Getenv("CODEMEM_EMBEDDING_PROVIDER"),
			Model:      os.Getenv("CODEMEM_EMBEDDING_MODEL"),
			ScriptPath: os.Getenv("CODEMEM_EMBEDDING_SCRIPT"),
			APIKey:     os.Getenv("OPENAI_API_KEY"),
		},
	}
	if v := os.Getenv("CODEMEM_EMBEDDING_DIMENSION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Embedding.Dimension = n
		}
	}
	if v := os.Getenv("CODEMEM_CHUNK_BUDGET"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Indexing.ChunkBudget = n
		}
	}
	ApplyDefaults(cfg)
	return cfg
}
