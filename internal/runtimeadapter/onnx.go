// Package runtimeadapter provides the concrete bindings for the
// collaborator interfaces in internal/port/mlruntime: ONNX Runtime for the
// embedding and cross-encoder models, and a local Ollama daemon for the
// causal-LM engine. Neither binding is part of the protocol or lifecycle
// contract itself — swapping either out means only changing the factory
// passed to embedder.New / reranker.New / llmengine.New.
package runtimeadapter

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/mhesketh/srag-ml/internal/port/mlruntime"
)

var ortInitOnce sync.Once
var ortInitErr error

func ensureEnvironment() error {
	ortInitOnce.Do(func() {
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// onnxEmbedder wraps a single ONNX Runtime session that maps tokenized
// text to fixed-length embedding vectors.
type onnxEmbedder struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	dim     int
}

// NewEmbeddingRuntime returns an mlruntime.EmbeddingFactory backed by the
// ONNX export of the embedding model at cacheDir/<modelName-slug>.onnx.
func NewEmbeddingRuntime(dim int) mlruntime.EmbeddingFactory {
	return func(modelName, cacheDir string) (mlruntime.EmbeddingRuntime, error) {
		if err := ensureEnvironment(); err != nil {
			return nil, fmt.Errorf("runtimeadapter: onnx init: %w", err)
		}
		path := onnxModelPath(cacheDir, modelName)

		inputShape := ort.NewShape(1, maxSequenceLength)
		inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
		if err != nil {
			return nil, fmt.Errorf("runtimeadapter: input tensor: %w", err)
		}
		outputShape := ort.NewShape(1, int64(dim))
		outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
		if err != nil {
			_ = inputTensor.Destroy()
			return nil, fmt.Errorf("runtimeadapter: output tensor: %w", err)
		}

		session, err := ort.NewAdvancedSession(path,
			[]string{"input_ids"}, []string{"sentence_embedding"},
			[]ort.Value{inputTensor}, []ort.Value{outputTensor}, nil)
		if err != nil {
			_ = inputTensor.Destroy()
			_ = outputTensor.Destroy()
			return nil, fmt.Errorf("runtimeadapter: load onnx session %s: %w", path, err)
		}

		return &onnxEmbedder{session: session, input: inputTensor, output: outputTensor, dim: dim}, nil
	}
}

const maxSequenceLength = 256

func onnxModelPath(cacheDir, modelName string) string {
	slug := filepath.Base(modelName)
	return filepath.Join(cacheDir, slug+".onnx")
}

func (e *onnxEmbedder) Encode(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		tokenIDs(text, e.input.GetData())
		if err := e.session.Run(); err != nil {
			return nil, fmt.Errorf("runtimeadapter: onnx run: %w", err)
		}
		vec := make([]float32, e.dim)
		copy(vec, e.output.GetData())
		vectors[i] = vec
	}
	return vectors, nil
}

func (e *onnxEmbedder) Close() error {
	_ = e.input.Destroy()
	_ = e.output.Destroy()
	return e.session.Destroy()
}

// onnxCrossEncoder wraps an ONNX cross-encoder session scoring a single
// (query, document) pair per Rerank invocation.
type onnxCrossEncoder struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

// NewCrossEncoderRuntime returns an mlruntime.CrossEncoderFactory backed
// by the ONNX export of the cross-encoder model.
func NewCrossEncoderRuntime() mlruntime.CrossEncoderFactory {
	return func(modelName, cacheDir string) (mlruntime.CrossEncoderRuntime, error) {
		if err := ensureEnvironment(); err != nil {
			return nil, fmt.Errorf("runtimeadapter: onnx init: %w", err)
		}
		path := onnxModelPath(cacheDir, modelName)

		inputShape := ort.NewShape(1, maxSequenceLength)
		inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
		if err != nil {
			return nil, fmt.Errorf("runtimeadapter: input tensor: %w", err)
		}
		outputShape := ort.NewShape(1, 1)
		outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
		if err != nil {
			_ = inputTensor.Destroy()
			return nil, fmt.Errorf("runtimeadapter: output tensor: %w", err)
		}

		session, err := ort.NewAdvancedSession(path,
			[]string{"input_ids"}, []string{"logits"},
			[]ort.Value{inputTensor}, []ort.Value{outputTensor}, nil)
		if err != nil {
			_ = inputTensor.Destroy()
			_ = outputTensor.Destroy()
			return nil, fmt.Errorf("runtimeadapter: load onnx session %s: %w", path, err)
		}

		return &onnxCrossEncoder{session: session, input: inputTensor, output: outputTensor}, nil
	}
}

func (c *onnxCrossEncoder) Rerank(_ context.Context, query string, docs []string) ([]float32, error) {
	scores := make([]float32, len(docs))
	for i, doc := range docs {
		pairTokenIDs(query, doc, c.input.GetData())
		if err := c.session.Run(); err != nil {
			return nil, fmt.Errorf("runtimeadapter: onnx run: %w", err)
		}
		scores[i] = c.output.GetData()[0]
	}
	return scores, nil
}

func (c *onnxCrossEncoder) Close() error {
	_ = c.input.Destroy()
	_ = c.output.Destroy()
	return c.session.Destroy()
}

// tokenIDs and pairTokenIDs fill buf with a fixed-width tokenization of
// their input. The real tokenizer vocabulary ships alongside the ONNX
// export; wiring it in is deployment-specific and out of scope here.
func tokenIDs(text string, buf []float32) {
	fillNaive(text, buf)
}

func pairTokenIDs(query, doc string, buf []float32) {
	fillNaive(query+"\x00"+doc, buf)
}

func fillNaive(s string, buf []float32) {
	for i := range buf {
		if i < len(s) {
			buf[i] = float32(s[i])
		} else {
			buf[i] = 0
		}
	}
}
