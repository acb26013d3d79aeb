package vector

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWIndex is an approximate index backed by a hierarchical navigable small
// world graph. Graph keys are insertion positions; ids and vectors are kept
// alongside so hits can be mapped back and distances reported exactly.
type HNSWIndex struct {
	graph      *hnsw.Graph[int]
	params     Params
	dimensions int
	ids        []string
	vectors    [][]float32
	positions  map[string]int
	mu         sync.RWMutex
}

// NewHNSWIndex creates an empty HNSW index. Zero-valued params fall back to DefaultParams.
func NewHNSWIndex(dimensions int, params Params) (*HNSWIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	params = params.withDefaults()
	return &HNSWIndex{
		graph:      newGraph(params),
		params:     params,
		dimensions: dimensions,
		ids:        make([]string, 0, params.Capacity),
		vectors:    make([][]float32, 0, params.Capacity),
		positions:  make(map[string]int, params.Capacity),
	}, nil
}

func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.M <= 0 {
		p.M = d.M
	}
	if p.EfConstruction <= 0 {
		p.EfConstruction = d.EfConstruction
	}
	if p.EfSearch <= 0 {
		p.EfSearch = d.EfSearch
	}
	if p.Capacity < 0 {
		p.Capacity = 0
	}
	return p
}

func newGraph(p Params) *hnsw.Graph[int] {
	g := hnsw.NewGraph[int]()
	g.M = p.M
	g.EfSearch = p.EfSearch
	g.Distance = hnsw.CosineDistance
	return g
}

// Type returns the index type identifier.
func (h *HNSWIndex) Type() string {
	return string(IndexTypeHNSW)
}

// Add inserts vectors with the given IDs into the graph.
func (h *HNSWIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.params.Capacity > 0 && len(h.ids)+len(ids) > h.params.Capacity {
		return fmt.Errorf("%w: %d + %d > %d", ErrCapacityExceeded, len(h.ids), len(ids), h.params.Capacity)
	}
	seen := make(map[string]struct{}, len(ids))
	for i, id := range ids {
		if len(vectors[i]) != h.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vectors[i]), h.dimensions)
		}
		if _, dup := h.positions[id]; dup {
			return fmt.Errorf("duplicate vector id %q", id)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("duplicate vector id %q", id)
		}
		seen[id] = struct{}{}
	}

	nodes := make([]hnsw.Node[int], len(ids))
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		vec := make([]float32, h.dimensions)
		copy(vec, vectors[i])
		pos := len(h.ids)
		h.positions[id] = pos
		h.ids = append(h.ids, id)
		h.vectors = append(h.vectors, vec)
		nodes[i] = hnsw.MakeNode(pos, vec)
	}
	h.graph.EfSearch = h.params.EfConstruction
	h.graph.Add(nodes...)
	h.graph.EfSearch = h.params.EfSearch
	return nil
}

// Search returns up to k approximate nearest neighbours of query. When k
// covers the whole index or exceeds the search beam, an exact scan is used.
func (h *HNSWIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	if len(query) != h.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), h.dimensions)
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if k <= 0 || len(h.ids) == 0 {
		return nil, nil
	}
	if k >= len(h.ids) || k > h.params.EfSearch {
		return exactSearch(query, h.ids, h.vectors, k), nil
	}

	nodes := h.graph.Search(query, k)
	results := make([]*VectorResult, 0, len(nodes))
	for _, n := range nodes {
		if n.Key < 0 || n.Key >= len(h.ids) {
			continue
		}
		results = append(results, &VectorResult{
			ID:       h.ids[n.Key],
			Distance: CosineDistance(query, h.vectors[n.Key]),
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	return results, nil
}

// Vector returns the stored vector for id.
func (h *HNSWIndex) Vector(id string) ([]float32, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	pos, ok := h.positions[id]
	if !ok {
		return nil, false
	}
	return h.vectors[pos], true
}

// Save persists ids, vectors and the exported graph to path.
func (h *HNSWIndex) Save(path string) error {
	if path == "" {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	var graph bytes.Buffer
	if len(h.ids) > 0 {
		if err := h.graph.Export(&graph); err != nil {
			return fmt.Errorf("export graph: %w", err)
		}
	}
	return writeIndexFile(path, &fileContents{
		Header: Header{
			Type:       h.Type(),
			Dimensions: h.dimensions,
			Capacity:   h.params.Capacity,
		},
		IDs:     h.ids,
		Vectors: h.vectors,
		Payload: graph.Bytes(),
	})
}

// Load replaces the index with the one persisted at path. A missing, corrupt
// or incompatible file returns an error wrapping ErrRebuildRequired and leaves
// the index unchanged.
func (h *HNSWIndex) Load(path string) error {
	c, err := readIndexFile(path)
	if err != nil {
		return err
	}
	if err := checkCompatible(c, h.Type(), h.dimensions); err != nil {
		return err
	}
	positions := make(map[string]int, len(c.IDs))
	for i, id := range c.IDs {
		if _, dup := positions[id]; dup {
			return fmt.Errorf("%w: duplicate id %q", ErrIndexCorrupt, id)
		}
		positions[id] = i
	}

	params := h.params
	if c.Capacity > params.Capacity {
		params.Capacity = c.Capacity
	}
	g := newGraph(params)
	if len(c.IDs) > 0 {
		if err := g.Import(bytes.NewReader(c.Payload)); err != nil {
			return fmt.Errorf("%w: import graph: %v", ErrIndexCorrupt, err)
		}
		if g.Len() != len(c.IDs) {
			return fmt.Errorf("%w: graph holds %d nodes, file lists %d ids", ErrIndexCorrupt, g.Len(), len(c.IDs))
		}
		g.EfSearch = params.EfSearch
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.graph = g
	h.params = params
	h.ids = c.IDs
	h.vectors = c.Vectors
	h.positions = positions
	return nil
}

// Size returns the number of vectors in the index.
func (h *HNSWIndex) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.ids)
}

// Capacity returns the maximum number of vectors, 0 when unbounded.
func (h *HNSWIndex) Capacity() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.params.Capacity
}

// Dimensions returns the vector dimension.
func (h *HNSWIndex) Dimensions() int {
	return h.dimensions
}

// Close is a no-op; searches already holding the index may still complete.
func (h *HNSWIndex) Close() error {
	return nil
}
