// Package embedder provides a lazy-loaded text embedding adapter
// over an mlruntime.EmbeddingRuntime.
package embedder

import (
	"context"
	"fmt"
	"sync"

	"github.com/mhesketh/srag-ml/internal/port/mlruntime"
)

// ModelName is the fixed embedding model this adapter instantiates.
const ModelName = "BAAI/bge-small-en-v1.5"

// Dimension is the fixed output vector length for ModelName.
const Dimension = 384

// Embedder owns zero or one loaded EmbeddingRuntime instance.
type Embedder struct {
	factory  mlruntime.EmbeddingFactory
	cacheDir string

	mu      sync.Mutex
	runtime mlruntime.EmbeddingRuntime
}

// New returns an unloaded Embedder that will use factory to instantiate
// its runtime on first Load/Embed.
func New(factory mlruntime.EmbeddingFactory, cacheDir string) *Embedder {
	return &Embedder{factory: factory, cacheDir: cacheDir}
}

// IsLoaded reports whether a runtime instance is currently held.
func (e *Embedder) IsLoaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runtime != nil
}

// Load instantiates the underlying runtime if not already loaded. Calling
// Load on an already-loaded Embedder is a no-op.
func (e *Embedder) Load(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.runtime != nil {
		return nil
	}
	rt, err := e.factory(ModelName, e.cacheDir)
	if err != nil {
		return fmt.Errorf("embedder: load: %w", err)
	}
	e.runtime = rt
	return nil
}

// Unload releases the runtime. A subsequent Embed reloads it.
func (e *Embedder) Unload() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.runtime == nil {
		return nil
	}
	err := e.runtime.Close()
	e.runtime = nil
	return err
}

// Embed loads the runtime if needed and returns exactly one vector per
// input text, in input order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.Load(ctx); err != nil {
		return nil, err
	}
	e.mu.Lock()
	rt := e.runtime
	e.mu.Unlock()

	vectors, err := rt.Encode(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedder: encode: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedder: runtime returned %d vectors for %d inputs", len(vectors), len(texts))
	}
	return vectors, nil
}
