package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultScriptTimeout bounds a single subprocess embedding call. A hung
// model load must fail the call, not stall the indexing pipeline.
const DefaultScriptTimeout = 60 * time.Second

// ScriptProvider generates embeddings by invoking an external script as a
// subprocess per batch. The script receives {"texts": [...]} as JSON on
// stdin, the model name as its first argument, and prints
// {"embeddings": [[...]], "model": "...", "dimension": N} on stdout.
// Errors are reported as JSON on stderr with a non-zero exit.
type ScriptProvider struct {
	scriptPath  string
	interpreter string
	model       string
	dimension   int
	timeout     time.Duration
}

// scriptResponse is the subprocess stdout contract.
type scriptResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Model      string      `json:"model"`
	Dimension  int         `json:"dimension"`
	Error      string      `json:"error"`
}

// NewScriptProvider creates a subprocess-backed embedder. dimension is the
// vector size the store schema is configured for; a response with a different
// dimension is a fatal configuration error, not a retryable one.
func NewScriptProvider(scriptPath, model string, dimension int, timeout time.Duration) (*ScriptProvider, error) {
	if scriptPath == "" {
		return nil, fmt.Errorf("%w: script path not configured", ErrUnknownProvider)
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive", ErrDimensionMismatch)
	}
	if timeout <= 0 {
		timeout = DefaultScriptTimeout
	}
	return &ScriptProvider{
		scriptPath:  scriptPath,
		interpreter: "python3",
		model:       model,
		dimension:   dimension,
		timeout:     timeout,
	}, nil
}

func (p *ScriptProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ValidateBatch(texts); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	input, err := json.Marshal(map[string][]string{"texts": texts})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	cmd := exec.CommandContext(ctx, p.interpreter, p.scriptPath, p.model)
	cmd.Stdin = bytes.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Children of the script can inherit the stdout pipe and keep Wait
	// blocked past the deadline; WaitDelay forces it to return.
	cmd.WaitDelay = time.Second

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: embedding call timed out after %s", ErrUnavailable, p.timeout)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, msg)
	}

	var resp scriptResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("%w: invalid script output: %v", ErrUnavailable, err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, resp.Error)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrUnavailable, len(resp.Embeddings), len(texts))
	}
	for i, vec := range resp.Embeddings {
		if len(vec) != p.dimension {
			return nil, fmt.Errorf("%w: embedding %d has dimension %d, store expects %d",
				ErrDimensionMismatch, i, len(vec), p.dimension)
		}
	}

	return resp.Embeddings, nil
}

func (p *ScriptProvider) Dimension() int { return p.dimension }
func (p *ScriptProvider) Model() string  { return p.model }
func (p *ScriptProvider) Close() error   { return nil }
