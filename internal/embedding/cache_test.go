package embedding

import (
	"context"
	"errors"
	"testing"
)

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	c := newLRU[string, int](2)
	if _, ok := c.get("a"); ok {
		t.Fatal("expected miss")
	}
	c.put("a", 1)
	c.put("b", 2)
	c.get("a")
	c.put("c", 3)
	if _, ok := c.get("b"); ok {
		t.Error("expected b to be evicted")
	}
	if v, ok := c.get("a"); !ok || v != 1 {
		t.Errorf("a: got %d, %v", v, ok)
	}
	c.put("a", 10)
	if v, _ := c.get("a"); v != 10 {
		t.Errorf("overwrite: got %d", v)
	}
	if c.len() != 2 {
		t.Errorf("len=%d", c.len())
	}
}

func TestCached_ReturnsCopies(t *testing.T) {
	e := NewCached(NewMockEmbedder(4), 4).(*Cached)
	ctx := context.Background()
	first, _ := e.Embed(ctx, "q")
	want := first[0]
	first[0] = 42
	second, _ := e.Embed(ctx, "q")
	if second[0] != want {
		t.Errorf("cached vector was mutated through a returned slice: %v", second[0])
	}
	if e.Len() != 1 {
		t.Errorf("Len=%d", e.Len())
	}
}

type countingEmbedder struct {
	MockEmbedder
	calls int
	fail  bool
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	if c.fail {
		return nil, &ServiceError{Op: "embed", Err: errors.New("down")}
	}
	return c.MockEmbedder.Embed(ctx, text)
}

func TestCached_HitsSkipInnerEmbedder(t *testing.T) {
	inner := &countingEmbedder{MockEmbedder: *NewMockEmbedder(4)}
	e := NewCached(inner, 10)
	ctx := context.Background()
	first, err := e.Embed(ctx, "query")
	if err != nil {
		t.Fatal(err)
	}
	second, _ := e.Embed(ctx, "query")
	if inner.calls != 1 {
		t.Errorf("inner called %d times", inner.calls)
	}
	if first[0] != second[0] {
		t.Error("cached vector differs")
	}
	if e.Dimensions() != 4 {
		t.Errorf("Dimensions=%d", e.Dimensions())
	}
}

func TestCached_ErrorsNotCached(t *testing.T) {
	inner := &countingEmbedder{MockEmbedder: *NewMockEmbedder(4), fail: true}
	e := NewCached(inner, 10)
	for i := 0; i < 2; i++ {
		if _, err := e.Embed(context.Background(), "q"); !errors.Is(err, ErrEmbeddingService) {
			t.Fatalf("expected service error, got %v", err)
		}
	}
	if inner.calls != 2 {
		t.Errorf("inner called %d times", inner.calls)
	}
}

func TestNewCached_ZeroCapacity(t *testing.T) {
	inner := NewMockEmbedder(4)
	if NewCached(inner, 0) != Embedder(inner) {
		t.Error("zero capacity should return the embedder unchanged")
	}
}

func TestMockEmbedder_Deterministic(t *testing.T) {
	e := NewMockEmbedder(8)
	a, _ := e.Embed(context.Background(), "same text")
	b, _ := e.Embed(context.Background(), "same text")
	c, _ := e.Embed(context.Background(), "other text")
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("same text produced different vectors")
		}
	}
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
		}
	}
	if same {
		t.Error("different texts produced identical vectors")
	}
}
