package embedding

import (
	"context"
	"math"
	"testing"
)

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func TestMockEmbedder_Deterministic(t *testing.T) {
	e := NewMockEmbedder(64)
	ctx := context.Background()
	a, _ := e.Embed(ctx, "sativa strain energizing")
	b, _ := e.Embed(ctx, "sativa strain energizing")
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embedding differs at %d", i)
		}
	}
	if n := math.Sqrt(dot(a, a)); math.Abs(n-1) > 1e-5 {
		t.Errorf("norm = %f, want 1", n)
	}
}

func TestMockEmbedder_SharedWordsAreCloser(t *testing.T) {
	e := NewMockEmbedder(256)
	ctx := context.Background()
	item, _ := e.Embed(ctx, "hybrid strain thc 20% relaxing")
	related, _ := e.Embed(ctx, "something relaxing hybrid")
	unrelated, _ := e.Embed(ctx, "delivery hours on sunday")
	if dot(item, related) <= dot(item, unrelated) {
		t.Errorf("related similarity %f should exceed unrelated %f", dot(item, related), dot(item, unrelated))
	}
}

func TestMockEmbedder_Empty(t *testing.T) {
	e := NewMockEmbedder(0)
	if e.Dimensions() != 384 {
		t.Errorf("default dimensions = %d", e.Dimensions())
	}
	v, err := e.Embed(context.Background(), "   ")
	if err != nil || v[0] != 1 {
		t.Errorf("empty text embedding = %v, %v", v[:2], err)
	}
}
