package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
)

// Generation is one complete build of the index: the catalog items, their
// vectors and the ANN structure, built together and never mutated after
// construction.
type Generation struct {
	id      uint64
	items   []models.CatalogItem
	vectors [][]float32
	byID    map[string]int
	index   vector.VectorIndex
	source  string
	builtAt time.Time
}

// Generation sources.
const (
	SourceBuilt  = "built"
	SourceLoaded = "loaded"
)

// Hit is a search result resolved to its catalog item.
type Hit struct {
	Item     models.CatalogItem
	Distance float64
}

// newGeneration checks len(items) == len(vectors) == index.Size() and builds the id map.
func newGeneration(id uint64, items []models.CatalogItem, vectors [][]float32, idx vector.VectorIndex, source string, builtAt time.Time) (*Generation, error) {
	if len(items) != len(vectors) || len(items) != idx.Size() {
		return nil, fmt.Errorf("inconsistent generation: %d items, %d vectors, %d indexed", len(items), len(vectors), idx.Size())
	}
	byID := make(map[string]int, len(items))
	for i, item := range items {
		if _, dup := byID[item.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateItem, item.ID)
		}
		byID[item.ID] = i
	}
	return &Generation{
		id:      id,
		items:   items,
		vectors: vectors,
		byID:    byID,
		index:   idx,
		source:  source,
		builtAt: builtAt,
	}, nil
}

// ID is the generation number, increasing with every build or load.
func (g *Generation) ID() uint64 { return g.id }

// Size returns the number of items.
func (g *Generation) Size() int { return len(g.items) }

// Source reports whether the generation was built or loaded from disk.
func (g *Generation) Source() string { return g.source }

// BuiltAt is when the index was built (for loaded generations, the original build time).
func (g *Generation) BuiltAt() time.Time { return g.builtAt }

// Items returns a copy of the generation's items in catalog order.
func (g *Generation) Items() []models.CatalogItem {
	out := make([]models.CatalogItem, len(g.items))
	copy(out, g.items)
	return out
}

// Lookup returns the item with id and its vector.
func (g *Generation) Lookup(id string) (models.CatalogItem, []float32, bool) {
	pos, ok := g.byID[id]
	if !ok {
		return models.CatalogItem{}, nil, false
	}
	return g.items[pos], g.vectors[pos], true
}

// Search returns the k items closest to query, closest first. k is clamped to [1, Size()].
func (g *Generation) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if len(query) != g.index.Dimensions() {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", ErrDimensionMismatch, len(query), g.index.Dimensions())
	}
	if k < 1 {
		k = 1
	}
	if k > len(g.items) {
		k = len(g.items)
	}
	results, err := g.index.Search(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		pos, ok := g.byID[r.ID]
		if !ok {
			continue
		}
		hits = append(hits, Hit{Item: g.items[pos], Distance: r.Distance})
	}
	return hits, nil
}
