package reranker_test

import (
	"context"
	"testing"

	"github.com/mhesketh/srag-ml/internal/port/mlruntime"
	"github.com/mhesketh/srag-ml/internal/reranker"
)

type fakeRuntime struct {
	scores []float32
}

func (f *fakeRuntime) Rerank(_ context.Context, query string, docs []string) ([]float32, error) {
	return f.scores, nil
}

func (f *fakeRuntime) Close() error { return nil }

func factoryFor(rt *fakeRuntime) mlruntime.CrossEncoderFactory {
	return func(modelName, cacheDir string) (mlruntime.CrossEncoderRuntime, error) {
		return rt, nil
	}
}

func TestRerank_SortedDescendingWithIndexTiebreak(t *testing.T) {
	rt := &fakeRuntime{scores: []float32{0.2, 0.9, 0.9, 0.1}}
	rr := reranker.New(factoryFor(rt), "")

	results, err := rr.Rerank(context.Background(), "q", []string{"a", "b", "c", "d"}, 10)
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	want := []reranker.Result{{Index: 1, Score: 0.9}, {Index: 2, Score: 0.9}, {Index: 0, Score: 0.2}, {Index: 3, Score: 0.1}}
	if len(results) != len(want) {
		t.Fatalf("got %d results, want %d", len(results), len(want))
	}
	for i := range want {
		if results[i] != want[i] {
			t.Errorf("result[%d] = %+v, want %+v", i, results[i], want[i])
		}
	}
}

func TestRerank_TopKClampsSilently(t *testing.T) {
	rt := &fakeRuntime{scores: []float32{0.5, 0.1}}
	rr := reranker.New(factoryFor(rt), "")

	results, err := rr.Rerank(context.Background(), "q", []string{"a", "b"}, 10)
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
}

func TestRerank_TopKSmallerThanDocs(t *testing.T) {
	rt := &fakeRuntime{scores: []float32{0.1, 0.9, 0.5}}
	rr := reranker.New(factoryFor(rt), "")

	results, err := rr.Rerank(context.Background(), "q", []string{"a", "b", "c"}, 1)
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if len(results) != 1 || results[0].Index != 1 {
		t.Fatalf("got %+v, want single result index 1", results)
	}
}
