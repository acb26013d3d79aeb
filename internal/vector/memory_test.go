package vector

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestMemoryIndex_AddSearch(t *testing.T) {
	idx, err := NewMemoryIndex(3, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	ctx := context.Background()

	vecs := [][]float32{
		{1, 0, 0},
		{0.9, 0.1, 0},
		{0, 1, 0},
	}
	ids := []string{"a", "b", "c"}
	if err := idx.Add(ctx, ids, vecs); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 3 {
		t.Errorf("Size=%d", idx.Size())
	}

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "a" || results[1].ID != "b" {
		t.Errorf("order = %s,%s, want a,b", results[0].ID, results[1].ID)
	}
	if results[0].Distance > 1e-6 {
		t.Errorf("distance to identical vector = %f, want 0", results[0].Distance)
	}
	if results[0].Distance > results[1].Distance {
		t.Error("results must be ordered by ascending distance")
	}
}

func TestMemoryIndex_DuplicateAndCapacity(t *testing.T) {
	idx, _ := NewMemoryIndex(2, 2)
	ctx := context.Background()
	if err := idx.Add(ctx, []string{"x"}, [][]float32{{1, 0}}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Add(ctx, []string{"x"}, [][]float32{{0, 1}}); err == nil {
		t.Error("expected duplicate id error")
	}
	err := idx.Add(ctx, []string{"y", "z"}, [][]float32{{0, 1}, {1, 1}})
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("expected ErrCapacityExceeded, got %v", err)
	}
	if idx.Size() != 1 {
		t.Errorf("failed Add must not change size, got %d", idx.Size())
	}
}

func TestMemoryIndex_SaveLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.bin")
	idx, _ := NewMemoryIndex(2, 4)
	_ = idx.Add(ctx, []string{"x", "y"}, [][]float32{{1, 0}, {0, 1}})
	if err := idx.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, _ := NewMemoryIndex(2, 0)
	if err := loaded.Load(path); err != nil {
		t.Fatal(err)
	}
	if loaded.Size() != 2 || loaded.Capacity() != 4 {
		t.Errorf("Size=%d Capacity=%d", loaded.Size(), loaded.Capacity())
	}
	vec, ok := loaded.Vector("y")
	if !ok || vec[1] != 1 {
		t.Errorf("Vector(y) = %v, %v", vec, ok)
	}
}

func TestMemoryIndex_LoadMissingFailsClosed(t *testing.T) {
	idx, _ := NewMemoryIndex(2, 0)
	err := idx.Load(filepath.Join(t.TempDir(), "nope.bin"))
	if !errors.Is(err, ErrRebuildRequired) || !errors.Is(err, ErrIndexMissing) {
		t.Errorf("expected missing index to require rebuild, got %v", err)
	}
}
