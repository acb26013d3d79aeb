// Package indexer owns the catalog vector index. It builds index generations
// from catalog snapshots, persists and reloads them, and swaps the active
// generation atomically so searches never see a partially built index.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
)

var (
	// ErrEmptyCatalog is returned when a build is attempted on an empty snapshot.
	ErrEmptyCatalog = errors.New("catalog is empty")
	// ErrIndexNotReady is returned when no generation is active.
	ErrIndexNotReady = errors.New("index not ready")
	// ErrItemNotFound is returned by Lookup for ids absent from the active generation.
	ErrItemNotFound = errors.New("item not in active index")
	// ErrDuplicateItem is returned when a snapshot repeats an item id.
	ErrDuplicateItem = errors.New("duplicate catalog item id")
	// ErrDimensionMismatch is returned when vectors disagree on dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// CatalogSource supplies catalog snapshots.
type CatalogSource interface {
	ListItems(ctx context.Context) ([]models.CatalogItem, error)
}

// Options configures a Manager.
type Options struct {
	// IndexType is "hnsw" or "memory".
	IndexType string
	// IndexPath is where the index is persisted; empty disables persistence.
	IndexPath string
	Params    vector.Params
	// CapacityMultiplier sizes the index at this multiple of the item count.
	CapacityMultiplier float64
	// EmbedderID names the embedding model; a persisted index built with a
	// different embedder is rebuilt.
	EmbedderID string
}

// Manager owns the active index generation.
type Manager struct {
	catalog  CatalogSource
	embedder embedding.Embedder
	opts     Options
	logger   *zap.Logger

	active    atomic.Pointer[Generation]
	nextID    atomic.Uint64
	refreshMu sync.Mutex
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager creates a manager with no active generation. Call Open or
// Refresh before searching.
func NewManager(catalog CatalogSource, embedder embedding.Embedder, opts Options, options ...ManagerOption) *Manager {
	if opts.CapacityMultiplier < 1 {
		opts.CapacityMultiplier = 2
	}
	if opts.IndexType == "" {
		opts.IndexType = string(vector.IndexTypeHNSW)
	}
	m := &Manager{
		catalog:  catalog,
		embedder: embedder,
		opts:     opts,
		logger:   zap.NewNop(),
	}
	for _, o := range options {
		o(m)
	}
	return m
}

// Build embeds every item of snapshot and constructs a new generation. It
// does not activate it. The index is persisted when an index path is set.
func (m *Manager) Build(ctx context.Context, snapshot []models.CatalogItem) (*Generation, error) {
	if len(snapshot) == 0 {
		return nil, ErrEmptyCatalog
	}
	start := time.Now()
	items := make([]models.CatalogItem, len(snapshot))
	copy(items, snapshot)
	ids := make([]string, len(items))
	texts := make([]string, len(items))
	seen := make(map[string]struct{}, len(items))
	for i, item := range items {
		if _, dup := seen[item.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateItem, item.ID)
		}
		seen[item.ID] = struct{}{}
		ids[i] = item.ID
		texts[i] = Normalize(item.Description)
	}

	vectors, err := m.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed catalog: %w", err)
	}
	if len(vectors) != len(items) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d items", len(vectors), len(items))
	}
	dims := m.embedder.Dimensions()
	for i, v := range vectors {
		if len(v) != dims {
			return nil, fmt.Errorf("%w: item %s has %d dimensions, expected %d", ErrDimensionMismatch, ids[i], len(v), dims)
		}
	}

	params := m.opts.Params
	params.Capacity = int(math.Ceil(float64(len(items)) * m.opts.CapacityMultiplier))
	idx, err := vector.NewVectorIndex(m.opts.IndexType, dims, params)
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	if err := idx.Add(ctx, ids, vectors); err != nil {
		return nil, fmt.Errorf("add vectors: %w", err)
	}
	builtAt := time.Now().UTC()
	gen, err := newGeneration(m.nextID.Add(1), items, vectors, idx, SourceBuilt, builtAt)
	if err != nil {
		return nil, err
	}

	if m.opts.IndexPath != "" {
		if err := idx.Save(m.opts.IndexPath); err != nil {
			return nil, fmt.Errorf("persist index: %w", err)
		}
		err := writeManifest(m.opts.IndexPath, &manifest{
			Version:     manifestVersion,
			Count:       len(items),
			Fingerprint: fingerprint(items),
			Embedder:    m.opts.EmbedderID,
			Dimensions:  dims,
			IndexType:   idx.Type(),
			BuiltAt:     builtAt,
		})
		if err != nil {
			return nil, fmt.Errorf("persist index: %w", err)
		}
	}
	m.logger.Info("index built",
		zap.Uint64("generation", gen.ID()),
		zap.Int("items", len(items)),
		zap.Int("capacity", params.Capacity),
		zap.String("type", idx.Type()),
		zap.Duration("took", time.Since(start)))
	return gen, nil
}

// Load reads the index persisted at path and pairs it with snapshot. The
// expected element count is len(snapshot). A missing, corrupt or stale
// index returns an error wrapping vector.ErrRebuildRequired; a stale index
// is never returned.
func (m *Manager) Load(ctx context.Context, path string, snapshot []models.CatalogItem) (*Generation, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: no index path configured", vector.ErrIndexMissing)
	}
	man, err := readManifest(path)
	if err != nil {
		return nil, err
	}
	if man.Count != len(snapshot) {
		return nil, fmt.Errorf("%w: manifest has %d, catalog has %d", vector.ErrCountMismatch, man.Count, len(snapshot))
	}
	if man.Embedder != m.opts.EmbedderID || man.Dimensions != m.embedder.Dimensions() {
		return nil, fmt.Errorf("%w: built with %s/%d, configured %s/%d", vector.ErrIndexIncompatible,
			man.Embedder, man.Dimensions, m.opts.EmbedderID, m.embedder.Dimensions())
	}
	if man.Fingerprint != fingerprint(snapshot) {
		return nil, fmt.Errorf("%w: catalog contents changed since build", vector.ErrIndexIncompatible)
	}

	idx, err := vector.Open(path, m.opts.IndexType, m.embedder.Dimensions(), len(snapshot), m.opts.Params)
	if err != nil {
		return nil, err
	}
	items := make([]models.CatalogItem, len(snapshot))
	copy(items, snapshot)
	vectors := make([][]float32, len(items))
	for i, item := range items {
		v, ok := idx.Vector(item.ID)
		if !ok {
			return nil, fmt.Errorf("%w: item %s missing from index", vector.ErrIndexIncompatible, item.ID)
		}
		vectors[i] = v
	}
	gen, err := newGeneration(m.nextID.Add(1), items, vectors, idx, SourceLoaded, man.BuiltAt)
	if err != nil {
		return nil, err
	}
	m.logger.Info("index loaded",
		zap.Uint64("generation", gen.ID()),
		zap.Int("items", len(items)),
		zap.String("path", path))
	return gen, nil
}

// Open activates the persisted index if it matches the current catalog and
// otherwise builds a new one. An empty or unreachable catalog is an error.
func (m *Manager) Open(ctx context.Context) (*Generation, error) {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	snapshot, err := m.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	gen, err := m.Load(ctx, m.opts.IndexPath, snapshot)
	if err != nil {
		if !errors.Is(err, vector.ErrRebuildRequired) {
			return nil, fmt.Errorf("load index: %w", err)
		}
		m.logger.Info("rebuilding index", zap.String("reason", err.Error()))
		if gen, err = m.Build(ctx, snapshot); err != nil {
			return nil, err
		}
	}
	m.swap(gen)
	return gen, nil
}

// Refresh builds a new generation from the latest catalog snapshot and
// activates it, returning the item count. Searches keep using the previous
// generation until the swap; on error the previous generation stays active.
func (m *Manager) Refresh(ctx context.Context) (int, error) {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	snapshot, err := m.snapshot(ctx)
	if err != nil {
		return 0, err
	}
	gen, err := m.Build(ctx, snapshot)
	if err != nil {
		return 0, err
	}
	m.swap(gen)
	return gen.Size(), nil
}

func (m *Manager) snapshot(ctx context.Context) ([]models.CatalogItem, error) {
	items, err := m.catalog.ListItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot catalog: %w", err)
	}
	if len(items) == 0 {
		return nil, ErrEmptyCatalog
	}
	return items, nil
}

func (m *Manager) swap(gen *Generation) {
	old := m.active.Swap(gen)
	fields := []zap.Field{zap.Uint64("generation", gen.ID()), zap.Int("items", gen.Size())}
	if old != nil {
		fields = append(fields, zap.Uint64("previous", old.ID()))
	}
	m.logger.Info("index generation activated", fields...)
}

// Active returns the active generation, or nil before the first Open/Refresh.
func (m *Manager) Active() *Generation {
	return m.active.Load()
}

// Ready reports whether a generation is active.
func (m *Manager) Ready() bool {
	return m.active.Load() != nil
}

// Search returns the k items closest to query from the active generation.
func (m *Manager) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	gen := m.active.Load()
	if gen == nil {
		return nil, ErrIndexNotReady
	}
	return gen.Search(ctx, query, k)
}

// EmbedQuery normalizes text the same way catalog descriptions are
// normalized and embeds it.
func (m *Manager) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	v, err := m.embedder.Embed(ctx, Normalize(text))
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return v, nil
}

// SearchText embeds text and searches the active generation.
func (m *Manager) SearchText(ctx context.Context, text string, k int) ([]Hit, error) {
	if !m.Ready() {
		return nil, ErrIndexNotReady
	}
	v, err := m.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	return m.Search(ctx, v, k)
}

// Lookup returns the item with id and its vector from the active generation.
func (m *Manager) Lookup(id string) (models.CatalogItem, []float32, error) {
	gen := m.active.Load()
	if gen == nil {
		return models.CatalogItem{}, nil, ErrIndexNotReady
	}
	item, vec, ok := gen.Lookup(id)
	if !ok {
		return models.CatalogItem{}, nil, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	return item, vec, nil
}

// Stats describes the active generation.
type Stats struct {
	Ready      bool      `json:"ready"`
	Generation uint64    `json:"generation"`
	Items      int       `json:"items"`
	Capacity   int       `json:"capacity"`
	Dimensions int       `json:"dimensions"`
	IndexType  string    `json:"index_type"`
	Source     string    `json:"source,omitempty"`
	BuiltAt    time.Time `json:"built_at,omitempty"`
	IndexPath  string    `json:"index_path,omitempty"`
}

// Stats returns a description of the active generation.
func (m *Manager) Stats() Stats {
	s := Stats{IndexType: m.opts.IndexType, IndexPath: m.opts.IndexPath}
	gen := m.active.Load()
	if gen == nil {
		return s
	}
	s.Ready = true
	s.Generation = gen.ID()
	s.Items = gen.Size()
	s.Capacity = gen.index.Capacity()
	s.Dimensions = gen.index.Dimensions()
	s.IndexType = gen.index.Type()
	s.Source = gen.Source()
	s.BuiltAt = gen.BuiltAt()
	return s
}
