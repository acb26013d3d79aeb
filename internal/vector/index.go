// Package vector provides the vector indexes behind catalog retrieval.
package vector

import (
	"context"
	"errors"
)

// VectorIndex stores item vectors and answers nearest-neighbour queries by cosine distance.
type VectorIndex interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	// Search returns at most k hits ordered by ascending distance (closest first).
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	// Vector returns the stored vector for id.
	Vector(id string) ([]float32, bool)
	Save(path string) error
	Load(path string) error
	Size() int
	Capacity() int
	Dimensions() int
	Type() string
	Close() error
}

// VectorResult is a single search hit.
type VectorResult struct {
	ID       string
	Distance float64 // cosine distance, 0 is identical
}

// Params configures index construction.
type Params struct {
	// M is the maximum neighbour fan-out per graph node.
	M int
	// EfConstruction is the candidate list size used while inserting.
	EfConstruction int
	// EfSearch is the candidate list size used while querying.
	EfSearch int
	// Capacity is the number of vectors the index accepts before Add fails.
	Capacity int
}

// DefaultParams returns the construction parameters used when none are configured.
func DefaultParams() Params {
	return Params{M: 16, EfConstruction: 200, EfSearch: 50}
}

var (
	// ErrRebuildRequired is returned by Load and Open when the persisted index
	// cannot be served and must be rebuilt from the catalog.
	ErrRebuildRequired = errors.New("vector index must be rebuilt")
	// ErrIndexMissing is returned when no persisted index exists.
	ErrIndexMissing = rebuildError("index file not found")
	// ErrIndexCorrupt is returned when the persisted index cannot be decoded.
	ErrIndexCorrupt = rebuildError("index file corrupt")
	// ErrIndexIncompatible is returned when the persisted index was written with
	// a different index type or dimension.
	ErrIndexIncompatible = rebuildError("index file incompatible")
	// ErrCountMismatch is returned when the persisted element count differs from the expected count.
	ErrCountMismatch = rebuildError("index element count mismatch")
	// ErrCapacityExceeded is returned by Add when the index is full.
	ErrCapacityExceeded = errors.New("vector index capacity exceeded")
)

type rebuildErr struct{ msg string }

func rebuildError(msg string) error { return &rebuildErr{msg: msg} }

func (e *rebuildErr) Error() string { return e.msg }

func (e *rebuildErr) Unwrap() error { return ErrRebuildRequired }
