// Package llmengine implements the local causal-LM engine. It owns at
// most one loaded model instance, resolves its path against the model
// store, and tracks idle time for the server's background unload monitor.
package llmengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/mhesketh/srag-ml/internal/modelstore"
	"github.com/mhesketh/srag-ml/internal/port/mlruntime"
)

// ErrModelUnavailable is returned when no model path can be resolved and
// no download is possible.
var ErrModelUnavailable = errors.New("llmengine: model unavailable")

// ErrBackendError wraps any failure raised by the underlying runtime.
var ErrBackendError = errors.New("llmengine: backend error")

// memoryEstimateMB is the fixed best-effort resident size reported while a
// model is loaded; the underlying runtime exposes no real accounting.
const memoryEstimateMB = 1500.0

// Engine owns zero or one loaded CausalLMRuntime instance.
type Engine struct {
	factory mlruntime.CausalLMFactory
	logger  *slog.Logger

	modelsDir     string
	modelFilename string
	modelURL      string
	modelSHA256   string
	contextSize   int
	threadHint    int

	now func() time.Time // for testing

	mu        sync.Mutex
	runtime   mlruntime.CausalLMRuntime
	modelPath string
	lastUsed  time.Time
}

// Config carries the launch-time parameters needed to resolve and
// instantiate the local model.
type Config struct {
	ModelsDir     string
	ModelFilename string
	ModelURL      string
	ModelSHA256   string
	ContextSize   int
	ThreadHint    int
}

// New returns an unloaded Engine.
func New(factory mlruntime.CausalLMFactory, logger *slog.Logger, cfg Config) *Engine {
	return &Engine{
		factory:       factory,
		logger:        logger,
		modelsDir:     cfg.ModelsDir,
		modelFilename: cfg.ModelFilename,
		modelURL:      cfg.ModelURL,
		modelSHA256:   cfg.ModelSHA256,
		contextSize:   cfg.ContextSize,
		threadHint:    cfg.ThreadHint,
		now:           time.Now,
	}
}

// IsLoaded reports whether a runtime instance is currently held.
func (e *Engine) IsLoaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runtime != nil
}

// Load resolves a model path (path if non-empty, else the configured
// models_dir/model_filename), downloading it via the model store if
// absent, then instantiates the runtime. Calling Load while already
// loaded only refreshes last_used_ts.
func (e *Engine) Load(ctx context.Context, path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.runtime != nil {
		e.lastUsed = e.now()
		return nil
	}

	resolved := path
	if resolved == "" {
		if e.modelsDir == "" {
			return ErrModelUnavailable
		}
		resolved = filepath.Join(e.modelsDir, e.modelFilename)
	}

	if !modelstore.Exists(filepath.Dir(resolved), filepath.Base(resolved)) {
		if e.modelURL == "" {
			return ErrModelUnavailable
		}
		downloaded, err := modelstore.Download(ctx, e.logger, filepath.Dir(resolved), filepath.Base(resolved), e.modelURL, e.modelSHA256)
		if err != nil {
			return err
		}
		resolved = downloaded
	}

	rt, err := e.factory(resolved, e.contextSize, e.threadHint)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendError, err)
	}

	e.runtime = rt
	e.modelPath = resolved
	e.lastUsed = e.now()
	return nil
}

// Generate ensures the model is loaded, refreshes last_used_ts, and
// delegates to the runtime as a single user-role chat turn.
func (e *Engine) Generate(ctx context.Context, prompt string, maxTokens int, temperature float64, stop []string) (string, int, error) {
	if err := e.Load(ctx, ""); err != nil {
		return "", 0, err
	}

	e.mu.Lock()
	rt := e.runtime
	e.lastUsed = e.now()
	e.mu.Unlock()

	resp, err := rt.Chat(ctx, []mlruntime.ChatMessage{{Role: "user", Content: prompt}}, maxTokens, temperature, stop)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrBackendError, err)
	}

	text := ""
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Message.Content
	}
	tokens := 0
	if resp.Usage != nil {
		tokens = resp.Usage.TotalTokens
	}
	return text, tokens, nil
}

// Unload drops the runtime instance and clears the resolved model path.
func (e *Engine) Unload() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.runtime == nil {
		return nil
	}
	err := e.runtime.Close()
	e.runtime = nil
	e.modelPath = ""
	return err
}

// IdleSeconds returns 0 if never used, else the time since last use.
func (e *Engine) IdleSeconds() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.runtime == nil || e.lastUsed.IsZero() {
		return 0
	}
	return e.now().Sub(e.lastUsed).Seconds()
}

// MemoryEstimateMB returns a fixed best-effort estimate while loaded, or
// nil otherwise.
func (e *Engine) MemoryEstimateMB() *float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.runtime == nil {
		return nil
	}
	v := memoryEstimateMB
	return &v
}
