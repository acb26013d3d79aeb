package indexer

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
)

const manifestVersion = 1

// manifest sits next to the index file and records what the index was built
// from, so a catalog or embedder change is detected even when the item count
// is unchanged.
type manifest struct {
	Version     int       `json:"version"`
	Count       int       `json:"count"`
	Fingerprint string    `json:"fingerprint"`
	Embedder    string    `json:"embedder"`
	Dimensions  int       `json:"dimensions"`
	IndexType   string    `json:"index_type"`
	BuiltAt     time.Time `json:"built_at"`
}

func manifestPath(indexPath string) string {
	return indexPath + ".manifest.json"
}

// fingerprint hashes ids and normalized descriptions in catalog order.
func fingerprint(items []models.CatalogItem) string {
	h := sha256.New()
	for _, item := range items {
		h.Write([]byte(item.ID))
		h.Write([]byte{0})
		h.Write([]byte(Normalize(item.Description)))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeManifest(indexPath string, m *manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	path := manifestPath(indexPath)
	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename manifest: %w", err)
	}
	return nil
}

// readManifest returns an error wrapping vector.ErrRebuildRequired when the
// manifest is missing or unreadable.
func readManifest(indexPath string) (*manifest, error) {
	data, err := os.ReadFile(manifestPath(indexPath))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: manifest not found", vector.ErrIndexMissing)
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: manifest: %v", vector.ErrIndexCorrupt, err)
	}
	if m.Version != manifestVersion {
		return nil, fmt.Errorf("%w: manifest version %d", vector.ErrIndexIncompatible, m.Version)
	}
	return &m, nil
}
