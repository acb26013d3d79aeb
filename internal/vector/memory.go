package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryIndex is an exact index that scans every vector on each query.
// Suitable for tests and small catalogs.
type MemoryIndex struct {
	dimensions int
	capacity   int
	ids        []string
	vectors    [][]float32
	positions  map[string]int
	mu         sync.RWMutex
}

// NewMemoryIndex creates an exact index with the given dimension. A capacity
// of zero means unbounded.
func NewMemoryIndex(dimensions, capacity int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	if capacity < 0 {
		capacity = 0
	}
	return &MemoryIndex{
		dimensions: dimensions,
		capacity:   capacity,
		ids:        make([]string, 0, capacity),
		vectors:    make([][]float32, 0, capacity),
		positions:  make(map[string]int, capacity),
	}, nil
}

// Type returns the index type identifier.
func (m *MemoryIndex) Type() string {
	return string(IndexTypeMemory)
}

// Add appends vectors with the given IDs. IDs must be unique within the index.
func (m *MemoryIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.capacity > 0 && len(m.ids)+len(ids) > m.capacity {
		return fmt.Errorf("%w: %d + %d > %d", ErrCapacityExceeded, len(m.ids), len(ids), m.capacity)
	}
	for i, id := range ids {
		if len(vectors[i]) != m.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vectors[i]), m.dimensions)
		}
		if _, dup := m.positions[id]; dup {
			return fmt.Errorf("duplicate vector id %q", id)
		}
	}
	for i, id := range ids {
		vec := make([]float32, m.dimensions)
		copy(vec, vectors[i])
		m.positions[id] = len(m.ids)
		m.ids = append(m.ids, id)
		m.vectors = append(m.vectors, vec)
	}
	return nil
}

// Search returns the k vectors closest to query by cosine distance.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), m.dimensions)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 || len(m.ids) == 0 {
		return nil, nil
	}
	return exactSearch(query, m.ids, m.vectors, k), nil
}

// exactSearch ranks every vector by cosine distance to query. Ties keep insertion order.
func exactSearch(query []float32, ids []string, vectors [][]float32, k int) []*VectorResult {
	results := make([]*VectorResult, len(ids))
	for i, vec := range vectors {
		results[i] = &VectorResult{ID: ids[i], Distance: CosineDistance(query, vec)}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if k > len(results) {
		k = len(results)
	}
	return results[:k]
}

// Vector returns the stored vector for id.
func (m *MemoryIndex) Vector(id string) ([]float32, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pos, ok := m.positions[id]
	if !ok {
		return nil, false
	}
	return m.vectors[pos], true
}

// Save persists the index to path. The directory is created if needed.
func (m *MemoryIndex) Save(path string) error {
	if path == "" {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return writeIndexFile(path, &fileContents{
		Header: Header{
			Type:       m.Type(),
			Dimensions: m.dimensions,
			Capacity:   m.capacity,
		},
		IDs:     m.ids,
		Vectors: m.vectors,
	})
}

// Load replaces the in-memory contents with the index persisted at path.
// A missing, corrupt or incompatible file returns an error wrapping
// ErrRebuildRequired and leaves the index unchanged.
func (m *MemoryIndex) Load(path string) error {
	c, err := readIndexFile(path)
	if err != nil {
		return err
	}
	if err := checkCompatible(c, m.Type(), m.dimensions); err != nil {
		return err
	}
	positions := make(map[string]int, len(c.IDs))
	for i, id := range c.IDs {
		if _, dup := positions[id]; dup {
			return fmt.Errorf("%w: duplicate id %q", ErrIndexCorrupt, id)
		}
		positions[id] = i
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = c.IDs
	m.vectors = c.Vectors
	m.positions = positions
	if c.Capacity > m.capacity {
		m.capacity = c.Capacity
	}
	return nil
}

// Size returns the number of vectors in the index.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids)
}

// Capacity returns the maximum number of vectors, 0 when unbounded.
func (m *MemoryIndex) Capacity() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.capacity
}

// Dimensions returns the vector dimension.
func (m *MemoryIndex) Dimensions() int {
	return m.dimensions
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}
