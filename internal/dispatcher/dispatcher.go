// Package dispatcher implements the RPC method table, argument
// validation, and response shaping. It does not own the socket or
// connection lifecycle — that is the server package's job.
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/mhesketh/srag-ml/internal/config"
	"github.com/mhesketh/srag-ml/internal/embedder"
	"github.com/mhesketh/srag-ml/internal/generation"
	"github.com/mhesketh/srag-ml/internal/llmengine"
	"github.com/mhesketh/srag-ml/internal/reranker"
)

const (
	maxEmbedTexts      = 64
	defaultMaxTokens   = 1024
	minMaxTokens       = 1
	maxMaxTokens       = 32768
	defaultTemperature = 0.1
	minTemperature     = 0.0
	maxTemperature     = 2.0
	defaultTopK        = 10

	embedderMemoryMB = 90.0
	rerankerMemoryMB = 100.0
)

// ErrBadArgs marks every argument-validation failure. Wrap it with a
// human-readable message via badArgs.
var ErrBadArgs = errors.New("dispatcher: bad arguments")

type argError struct{ msg string }

func (e *argError) Error() string        { return e.msg }
func (e *argError) Is(target error) bool { return target == ErrBadArgs }

func badArgs(msg string) error { return &argError{msg: msg} }

// RedactionCounter exposes the external API client's process-lifetime
// redaction count, read-only, for model_status.
type RedactionCounter interface {
	TotalRedactions() int64
}

// Dispatcher routes one decoded request to its handler and shapes the
// result. Callers are responsible for JSON decode/encode of the request
// envelope; Dispatch works on already-parsed method/params.
type Dispatcher struct {
	Embedder    *embedder.Embedder
	Reranker    *reranker.Reranker
	LLM         *llmengine.Engine // nil when configured for an external provider
	Router      *generation.Router
	APIProvider config.Provider
	APIClient   RedactionCounter // nil when provider is local

	// Shutdown is invoked by the shutdown RPC to flip the server's
	// running flag. It must not block.
	Shutdown func()

	// mu serializes every handler that touches a model handle (embed,
	// generate, rerank, load_model, unload_model). The server's idle
	// monitor must acquire the same mutex before calling Engine.Unload
	// to avoid racing a concurrent generate.
	mu sync.Mutex
}

// Mutex returns the model-handle mutex so the idle monitor can acquire it
// around background unloads.
func (d *Dispatcher) Mutex() *sync.Mutex { return &d.mu }

// Dispatch executes method with the given raw JSON params and returns the
// result to embed in a successful response. Any returned error is mapped
// by the caller to the wire error taxonomy.
func (d *Dispatcher) Dispatch(ctx context.Context, method string, params json.RawMessage) (any, error) {
	switch method {
	case "ping":
		return map[string]string{"status": "ok"}, nil
	case "embed":
		return d.handleEmbed(ctx, params)
	case "generate":
		return d.handleGenerate(ctx, params)
	case "rerank":
		return d.handleRerank(ctx, params)
	case "load_model":
		return d.handleLoadModel(ctx, params)
	case "unload_model":
		return d.handleUnloadModel(ctx, params)
	case "model_status":
		return d.handleModelStatus(), nil
	case "shutdown":
		if d.Shutdown != nil {
			d.Shutdown()
		}
		return map[string]string{"status": "shutting_down"}, nil
	default:
		return nil, badArgs("Unknown method")
	}
}

type embedParams struct {
	Texts []string `json:"texts"`
}

func (d *Dispatcher) handleEmbed(ctx context.Context, raw json.RawMessage) (any, error) {
	var p embedParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, badArgs("Invalid embed params")
	}
	if len(p.Texts) == 0 {
		return nil, badArgs("texts must be non-empty")
	}
	if len(p.Texts) > maxEmbedTexts {
		return nil, badArgs("texts exceeds maximum batch size of 64")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	vectors, err := d.Embedder.Embed(ctx, p.Texts)
	if err != nil {
		return nil, err
	}
	return map[string]any{"vectors": vectors}, nil
}

type generateParams struct {
	Prompt string `json:"prompt"`
	// Raw so that a non-numeric value coerces to the default instead of
	// failing the whole request.
	MaxTokens   json.RawMessage `json:"max_tokens"`
	Temperature json.RawMessage `json:"temperature"`
	Stop        []string        `json:"stop"`
}

// numberParam decodes raw as a JSON number; ok is false when raw is
// absent or not numeric.
func numberParam(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	return v, true
}

func (d *Dispatcher) handleGenerate(ctx context.Context, raw json.RawMessage) (any, error) {
	var p generateParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, badArgs("Invalid generate params")
	}
	if p.Prompt == "" {
		return nil, badArgs("prompt must be non-empty")
	}

	maxTokens := defaultMaxTokens
	if v, ok := numberParam(p.MaxTokens); ok && v >= minMaxTokens && v <= maxMaxTokens {
		maxTokens = int(v)
	}

	temperature := defaultTemperature
	if v, ok := numberParam(p.Temperature); ok && v >= minTemperature && v <= maxTemperature {
		temperature = v
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	text, tokensUsed, err := d.Router.Generate(ctx, p.Prompt, maxTokens, temperature, p.Stop)
	if err != nil {
		return nil, err
	}
	return map[string]any{"text": text, "tokens_used": tokensUsed}, nil
}

type rerankParams struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopK      *int     `json:"top_k"`
}

func (d *Dispatcher) handleRerank(ctx context.Context, raw json.RawMessage) (any, error) {
	var p rerankParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, badArgs("Invalid rerank params")
	}
	if p.Query == "" {
		return nil, badArgs("query must be non-empty")
	}
	if len(p.Documents) == 0 {
		return nil, badArgs("documents must be non-empty")
	}

	topK := defaultTopK
	if p.TopK != nil {
		topK = *p.TopK
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	results, err := d.Reranker.Rerank(ctx, p.Query, p.Documents, topK)
	if err != nil {
		return nil, err
	}

	pairs := make([][2]any, len(results))
	for i, r := range results {
		pairs[i] = [2]any{r.Index, r.Score}
	}
	return map[string]any{"results": pairs}, nil
}

type modelTypeParams struct {
	Type string  `json:"type"`
	Path *string `json:"path"`
}

func (d *Dispatcher) handleLoadModel(ctx context.Context, raw json.RawMessage) (any, error) {
	var p modelTypeParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, badArgs("Invalid load_model params")
	}
	if p.Type == "" {
		p.Type = "embedder"
	}

	switch p.Type {
	case "llm":
		if d.LLM == nil {
			return nil, badArgs("Local LLM not available")
		}
		path := ""
		if p.Path != nil {
			path = *p.Path
		}
		d.mu.Lock()
		defer d.mu.Unlock()
		if err := d.LLM.Load(ctx, path); err != nil {
			return nil, err
		}
	case "embedder":
		d.mu.Lock()
		defer d.mu.Unlock()
		if err := d.Embedder.Load(ctx); err != nil {
			return nil, err
		}
	default:
		return nil, badArgs("Unknown model type")
	}
	return map[string]string{"status": "loaded"}, nil
}

func (d *Dispatcher) handleUnloadModel(_ context.Context, raw json.RawMessage) (any, error) {
	var p modelTypeParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, badArgs("Invalid unload_model params")
	}
	if p.Type == "" {
		p.Type = "llm"
	}

	switch p.Type {
	case "llm":
		if d.LLM == nil {
			// No-op when the server is configured for an external provider:
			// there is no local LLM to unload, and unlike load_model this
			// isn't a caller error.
			return map[string]string{"status": "unloaded"}, nil
		}
		d.mu.Lock()
		defer d.mu.Unlock()
		if err := d.LLM.Unload(); err != nil {
			return nil, err
		}
	case "embedder":
		d.mu.Lock()
		defer d.mu.Unlock()
		if err := d.Embedder.Unload(); err != nil {
			return nil, err
		}
	default:
		return nil, badArgs("Unknown model type")
	}
	return map[string]string{"status": "unloaded"}, nil
}

func (d *Dispatcher) handleModelStatus() any {
	status := map[string]any{
		"embedder_loaded": d.Embedder.IsLoaded(),
		"reranker_loaded": d.Reranker.IsLoaded(),
		"llm_loaded":      d.LLM != nil && d.LLM.IsLoaded(),
		"api_provider":    string(d.APIProvider),
		"api_redactions":  int64(0),
	}
	if d.Embedder.IsLoaded() {
		status["embedder_memory_mb"] = embedderMemoryMB
	}
	if d.Reranker.IsLoaded() {
		status["reranker_memory_mb"] = rerankerMemoryMB
	}
	if d.LLM != nil {
		if mb := d.LLM.MemoryEstimateMB(); mb != nil {
			status["process_memory_mb"] = *mb
		}
	}
	if d.APIClient != nil {
		status["api_redactions"] = d.APIClient.TotalRedactions()
	}
	return status
}
