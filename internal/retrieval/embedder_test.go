package retrieval

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

// fakeEmbedClient returns a deterministic vector per text.
type fakeEmbedClient struct {
	calls atomic.Int32
	fail  bool
}

func (f *fakeEmbedClient) Embed(ctx context.Context, model, text string) ([]float32, error) {
	f.calls.Add(1)
	if f.fail {
		return nil, errors.New("embed backend down")
	}
	return []float32{float32(len(text)), 1}, nil
}

func TestEmbed(t *testing.T) {
	client := &fakeEmbedClient{}
	e := NewEmbedder(client, "nomic-embed-text")

	vec, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if vec[0] != 5 {
		t.Errorf("vec[0] = %f, want 5", vec[0])
	}
}

func TestEmbedBatch(t *testing.T) {
	client := &fakeEmbedClient{}
	e := NewEmbedder(client, "nomic-embed-text")

	texts := []string{"a", "bb", "ccc"}
	vecs, err := e.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("got %d vectors, want 3", len(vecs))
	}
	// Order must match input order despite concurrency.
	for i, text := range texts {
		if vecs[i][0] != float32(len(text)) {
			t.Errorf("vecs[%d][0] = %f, want %d", i, vecs[i][0], len(text))
		}
	}
	if got := client.calls.Load(); got != 3 {
		t.Errorf("embed calls = %d, want 3", got)
	}
}

func TestEmbedBatch_Empty(t *testing.T) {
	e := NewEmbedder(&fakeEmbedClient{}, "m")
	vecs, err := e.EmbedBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if vecs != nil {
		t.Errorf("got %v, want nil", vecs)
	}
}

func TestEmbedBatch_Error(t *testing.T) {
	e := NewEmbedder(&fakeEmbedClient{fail: true}, "m")
	if _, err := e.EmbedBatch(context.Background(), []string{"x"}); err == nil {
		t.Error("expected error from failing client")
	}
}
