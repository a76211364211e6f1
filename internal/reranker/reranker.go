// Package reranker provides a lazy-loaded cross-encoder adapter
// over an mlruntime.CrossEncoderRuntime.
package reranker

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mhesketh/srag-ml/internal/port/mlruntime"
)

// ModelName is the fixed cross-encoder model this adapter instantiates.
const ModelName = "Xenova/ms-marco-MiniLM-L-6-v2"

// Result pairs a document's position in the original input with its score.
type Result struct {
	Index int
	Score float32
}

// Reranker owns zero or one loaded CrossEncoderRuntime instance.
type Reranker struct {
	factory  mlruntime.CrossEncoderFactory
	cacheDir string

	mu      sync.Mutex
	runtime mlruntime.CrossEncoderRuntime
}

// New returns an unloaded Reranker that will use factory to instantiate
// its runtime on first Load/Rerank.
func New(factory mlruntime.CrossEncoderFactory, cacheDir string) *Reranker {
	return &Reranker{factory: factory, cacheDir: cacheDir}
}

// IsLoaded reports whether a runtime instance is currently held.
func (r *Reranker) IsLoaded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runtime != nil
}

// Load instantiates the underlying runtime if not already loaded.
func (r *Reranker) Load(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.runtime != nil {
		return nil
	}
	rt, err := r.factory(ModelName, r.cacheDir)
	if err != nil {
		return fmt.Errorf("reranker: load: %w", err)
	}
	r.runtime = rt
	return nil
}

// Unload releases the runtime. A subsequent Rerank reloads it.
func (r *Reranker) Unload() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.runtime == nil {
		return nil
	}
	err := r.runtime.Close()
	r.runtime = nil
	return err
}

// Rerank loads the runtime if needed, scores every document against query,
// and returns the top topK pairs sorted by score descending, ties broken
// by ascending original index. topK larger than len(docs) clamps silently.
func (r *Reranker) Rerank(ctx context.Context, query string, docs []string, topK int) ([]Result, error) {
	if err := r.Load(ctx); err != nil {
		return nil, err
	}
	r.mu.Lock()
	rt := r.runtime
	r.mu.Unlock()

	scores, err := rt.Rerank(ctx, query, docs)
	if err != nil {
		return nil, fmt.Errorf("reranker: rerank: %w", err)
	}
	if len(scores) != len(docs) {
		return nil, fmt.Errorf("reranker: runtime returned %d scores for %d documents", len(scores), len(docs))
	}

	results := make([]Result, len(docs))
	for i, s := range scores {
		results[i] = Result{Index: i, Score: s}
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Index < results[j].Index
	})

	if topK > len(results) {
		topK = len(results)
	}
	if topK < 0 {
		topK = 0
	}
	return results[:topK], nil
}
