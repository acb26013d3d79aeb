package vector

import "fmt"

// IndexType represents the type of vector index to use.
type IndexType string

const (
	// IndexTypeHNSW uses an approximate HNSW graph. Default for serving.
	IndexTypeHNSW IndexType = "hnsw"
	// IndexTypeMemory uses an exact linear scan. Good for small catalogs (<10k items).
	IndexTypeMemory IndexType = "memory"
)

// NewVectorIndex creates a vector index of the specified type.
// Supported types: "hnsw" (default), "memory".
func NewVectorIndex(indexType string, dimensions int, params Params) (VectorIndex, error) {
	switch IndexType(indexType) {
	case IndexTypeHNSW, "":
		return NewHNSWIndex(dimensions, params)
	case IndexTypeMemory:
		return NewMemoryIndex(dimensions, params.Capacity)
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: hnsw, memory)", indexType)
	}
}
