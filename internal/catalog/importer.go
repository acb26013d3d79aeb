// Package catalog reads catalog files (JSON, YAML, Excel) into catalog items
// and loads them into the catalog store.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/hyperjump/kotae/internal/models"
)

// SupportedExtensions lists the file types Parse understands.
var SupportedExtensions = []string{".json", ".yaml", ".yml", ".xlsx"}

// Supported reports whether path has an importable extension.
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range SupportedExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

// Store is where imported items are written.
type Store interface {
	UpsertItems(ctx context.Context, items []models.CatalogItem) (int, error)
}

// Importer loads catalog files into a Store.
type Importer struct {
	store  Store
	logger *zap.Logger
}

// NewImporter creates an importer writing to store.
func NewImporter(store Store, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{store: store, logger: logger}
}

// Import parses the file at path and upserts its items. It returns the number of items written.
func (im *Importer) Import(ctx context.Context, path string) (int, error) {
	items, err := ParseFile(path)
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, fmt.Errorf("%s: no catalog items", path)
	}
	n, err := im.store.UpsertItems(ctx, items)
	if err != nil {
		return 0, fmt.Errorf("import %s: %w", path, err)
	}
	im.logger.Info("catalog imported", zap.String("path", path), zap.Int("items", n))
	return n, nil
}

// ParseFile reads the file at path and returns its items.
func ParseFile(path string) ([]models.CatalogItem, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	items, err := Parse(content, strings.ToLower(filepath.Ext(path)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return items, nil
}

// Parse decodes content according to ext (with leading dot) and validates every item.
func Parse(content []byte, ext string) ([]models.CatalogItem, error) {
	var (
		items []models.CatalogItem
		err   error
	)
	switch ext {
	case ".json":
		items, err = parseJSON(content)
	case ".yaml", ".yml":
		items, err = parseYAML(content)
	case ".xlsx":
		items, err = parseExcel(content)
	default:
		return nil, fmt.Errorf("unsupported catalog format %q", ext)
	}
	if err != nil {
		return nil, err
	}
	for i := range items {
		if err := items[i].Validate(); err != nil {
			return nil, fmt.Errorf("item %d: %w", i+1, err)
		}
	}
	return items, nil
}

// jsonItem accepts "id" or "_id", as a string, a number or {"$oid": "..."}.
type jsonItem struct {
	ID          json.RawMessage `json:"id"`
	MongoID     json.RawMessage `json:"_id"`
	Description string          `json:"description"`
}

func parseJSON(content []byte) ([]models.CatalogItem, error) {
	content = bytes.TrimSpace(content)
	var raw []jsonItem
	if len(content) > 0 && content[0] == '{' {
		var wrapped struct {
			Items []jsonItem `json:"items"`
		}
		if err := json.Unmarshal(content, &wrapped); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
		raw = wrapped.Items
	} else if err := json.Unmarshal(content, &raw); err != nil {
		return nil, fmt.Errorf("decode JSON: %w", err)
	}

	items := make([]models.CatalogItem, 0, len(raw))
	for i, r := range raw {
		idField := r.ID
		if len(idField) == 0 {
			idField = r.MongoID
		}
		id, err := jsonID(idField)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i+1, err)
		}
		items = append(items, models.CatalogItem{ID: id, Description: r.Description})
	}
	return items, nil
}

func jsonID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	var oid struct {
		OID string `json:"$oid"`
	}
	if err := json.Unmarshal(raw, &oid); err == nil && oid.OID != "" {
		return oid.OID, nil
	}
	return "", fmt.Errorf("unsupported id %s", string(raw))
}

type yamlItem struct {
	ID          string `yaml:"id"`
	MongoID     string `yaml:"_id"`
	Description string `yaml:"description"`
}

func parseYAML(content []byte) ([]models.CatalogItem, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(content, &node); err != nil {
		return nil, fmt.Errorf("decode YAML: %w", err)
	}
	var raw []yamlItem
	if len(node.Content) > 0 && node.Content[0].Kind == yaml.MappingNode {
		var wrapped struct {
			Items []yamlItem `yaml:"items"`
		}
		if err := node.Decode(&wrapped); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
		raw = wrapped.Items
	} else if err := node.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode YAML: %w", err)
	}

	items := make([]models.CatalogItem, 0, len(raw))
	for _, r := range raw {
		id := r.ID
		if id == "" {
			id = r.MongoID
		}
		items = append(items, models.CatalogItem{ID: id, Description: r.Description})
	}
	return items, nil
}

// parseExcel reads the first sheet. The first row is a header naming the
// "id" (or "_id") and "description" columns; blank rows are skipped.
func parseExcel(content []byte) ([]models.CatalogItem, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("get rows for sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	idCol, descCol := -1, -1
	for i, h := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "id", "_id":
			idCol = i
		case "description":
			descCol = i
		}
	}
	if idCol < 0 || descCol < 0 {
		return nil, fmt.Errorf("sheet %q: header must have id and description columns", sheets[0])
	}

	cell := func(row []string, col int) string {
		if col < len(row) {
			return strings.TrimSpace(row[col])
		}
		return ""
	}
	items := make([]models.CatalogItem, 0, len(rows)-1)
	for r, row := range rows[1:] {
		id, desc := cell(row, idCol), cell(row, descCol)
		if id == "" && desc == "" {
			continue
		}
		if id == "" {
			return nil, fmt.Errorf("sheet %q row %d: missing id", sheets[0], r+2)
		}
		items = append(items, models.CatalogItem{ID: id, Description: desc})
	}
	return items, nil
}
