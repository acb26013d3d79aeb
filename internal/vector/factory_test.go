package vector

import (
	"context"
	"testing"
)

func TestNewVectorIndex_Memory(t *testing.T) {
	idx, err := NewVectorIndex("memory", 3, Params{})
	if err != nil {
		t.Fatalf("NewVectorIndex(memory): %v", err)
	}
	defer idx.Close()

	ctx := context.Background()
	err = idx.Add(ctx, []string{"a"}, [][]float32{{1, 0, 0}})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if idx.Size() != 1 {
		t.Errorf("Size=%d, want 1", idx.Size())
	}
	if idx.Type() != "memory" {
		t.Errorf("Type=%s", idx.Type())
	}
}

func TestNewVectorIndex_Empty(t *testing.T) {
	// Empty string defaults to hnsw
	idx, err := NewVectorIndex("", 3, Params{})
	if err != nil {
		t.Fatalf("NewVectorIndex(''): %v", err)
	}
	defer idx.Close()

	if idx.Size() != 0 {
		t.Errorf("Size=%d, want 0", idx.Size())
	}
	if idx.Type() != "hnsw" {
		t.Errorf("Type=%s, want hnsw", idx.Type())
	}
}

func TestNewVectorIndex_Unknown(t *testing.T) {
	_, err := NewVectorIndex("faiss", 3, Params{})
	if err == nil {
		t.Error("expected error for unknown index type")
	}
}

func TestNewVectorIndex_InvalidDimension(t *testing.T) {
	for _, typ := range []string{"memory", "hnsw"} {
		if _, err := NewVectorIndex(typ, 0, Params{}); err == nil {
			t.Errorf("%s: expected error for zero dimension", typ)
		}
	}
}
