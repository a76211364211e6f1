// Package mlruntime defines the collaborator interfaces for the native
// embedding, cross-encoder, and causal-LM libraries the adapters wrap. No
// implementation lives here: a real deployment links a concrete adapter
// (e.g. a cgo binding or an out-of-process runtime) built against these
// interfaces, constructed on demand rather than through a global registry.
package mlruntime

import "context"

// EmbeddingRuntime encodes text into fixed-dimension vectors.
type EmbeddingRuntime interface {
	// Encode returns one vector per text, in input order.
	Encode(ctx context.Context, texts []string) ([][]float32, error)
	// Close releases any native resources held by the runtime.
	Close() error
}

// EmbeddingFactory constructs an EmbeddingRuntime for a given model name.
// cacheDir is passed through unmodified; an empty string lets the runtime
// pick its own default.
type EmbeddingFactory func(modelName, cacheDir string) (EmbeddingRuntime, error)

// CrossEncoderRuntime scores a query against a set of candidate documents.
type CrossEncoderRuntime interface {
	// Rerank returns one score per document, in input order.
	Rerank(ctx context.Context, query string, docs []string) ([]float32, error)
	Close() error
}

// CrossEncoderFactory constructs a CrossEncoderRuntime for a given model name.
type CrossEncoderFactory func(modelName, cacheDir string) (CrossEncoderRuntime, error)

// ChatMessage is one turn in a causal-LM chat request.
type ChatMessage struct {
	Role    string
	Content string
}

// ChatUsage carries token accounting when the runtime reports it.
type ChatUsage struct {
	TotalTokens int
}

// ChatChoice is a single completion candidate.
type ChatChoice struct {
	Message ChatMessage
}

// ChatResponse is the causal-LM runtime's reply shape.
type ChatResponse struct {
	Choices []ChatChoice
	Usage   *ChatUsage
}

// CausalLMRuntime wraps one loaded local language model.
type CausalLMRuntime interface {
	Chat(ctx context.Context, messages []ChatMessage, maxTokens int, temperature float64, stop []string) (ChatResponse, error)
	Close() error
}

// CausalLMFactory instantiates a CausalLMRuntime from a model file on disk.
// threadHint of 0 means "auto".
type CausalLMFactory func(path string, contextSize, threadHint int) (CausalLMRuntime, error)
