package runtimeadapter

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/mhesketh/srag-ml/internal/port/mlruntime"
)

// ollamaRuntime dispatches chat completions to a local Ollama daemon. The
// model tag is derived from the GGUF filename modelstore resolved; it is
// the operator's responsibility to have imported that file into Ollama
// (e.g. `ollama create <tag> -f Modelfile`) before first use.
type ollamaRuntime struct {
	client      *api.Client
	model       string
	contextSize int
	threadHint  int
}

// NewCausalLMRuntime returns an mlruntime.CausalLMFactory that talks to
// the Ollama daemon reachable via OLLAMA_HOST (or its default,
// http://127.0.0.1:11434). contextSize and threadHint are passed through
// as generation options on every request.
func NewCausalLMRuntime() mlruntime.CausalLMFactory {
	return func(path string, contextSize, threadHint int) (mlruntime.CausalLMRuntime, error) {
		client, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("runtimeadapter: ollama client: %w", err)
		}
		return &ollamaRuntime{client: client, model: modelTagFromPath(path), contextSize: contextSize, threadHint: threadHint}, nil
	}
}

// modelTagFromPath derives the Ollama tag from the resolved GGUF filename:
// the lowercased basename without extension.
func modelTagFromPath(path string) string {
	base := filepath.Base(path)
	return strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))
}

func (r *ollamaRuntime) Chat(ctx context.Context, messages []mlruntime.ChatMessage, maxTokens int, temperature float64, stop []string) (mlruntime.ChatResponse, error) {
	apiMessages := make([]api.Message, len(messages))
	for i, m := range messages {
		apiMessages[i] = api.Message{Role: m.Role, Content: m.Content}
	}

	options := map[string]any{
		"num_predict": maxTokens,
		"temperature": temperature,
		"stop":        stop,
	}
	if r.contextSize > 0 {
		options["num_ctx"] = r.contextSize
	}
	if r.threadHint > 0 {
		options["num_thread"] = r.threadHint
	}

	stream := false
	req := &api.ChatRequest{
		Model:    r.model,
		Messages: apiMessages,
		Stream:   &stream,
		Options:  options,
	}

	var reply api.ChatResponse
	err := r.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		reply = resp
		return nil
	})
	if err != nil {
		return mlruntime.ChatResponse{}, fmt.Errorf("runtimeadapter: ollama chat: %w", err)
	}

	usage := &mlruntime.ChatUsage{TotalTokens: reply.EvalCount + reply.PromptEvalCount}
	return mlruntime.ChatResponse{
		Choices: []mlruntime.ChatChoice{{Message: mlruntime.ChatMessage{Role: reply.Message.Role, Content: reply.Message.Content}}},
		Usage:   usage,
	}, nil
}

func (r *ollamaRuntime) Close() error { return nil }
