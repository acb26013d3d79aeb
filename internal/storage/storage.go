// Package storage persists the product catalog that index generations are built from.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/kotae/internal/models"
)

// ErrItemNotFound is returned when a catalog item does not exist.
var ErrItemNotFound = errors.New("catalog item not found")

// CatalogStore is the document store holding catalog items.
type CatalogStore interface {
	// ListItems returns every item in insertion order.
	ListItems(ctx context.Context) ([]models.CatalogItem, error)
	GetItem(ctx context.Context, id string) (*models.CatalogItem, error)
	// UpsertItems inserts or replaces items in one transaction and returns how many were written.
	UpsertItems(ctx context.Context, items []models.CatalogItem) (int, error)
	DeleteItem(ctx context.Context, id string) error
	CountItems(ctx context.Context) (int64, error)
	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error
	Close() error
}

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open returns the catalog store for driver. For sqlite, dsn is a file path;
// for postgres, a connection string.
func Open(ctx context.Context, driver, dsn string) (CatalogStore, error) {
	switch driver {
	case DriverSQLite, "":
		return NewSQLiteStorage(dsn)
	case DriverPostgres:
		return NewPostgresStorage(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s (supported: sqlite, postgres)", driver)
	}
}

// validateItems checks every item and rejects repeated ids within one batch.
func validateItems(items []models.CatalogItem) error {
	seen := make(map[string]struct{}, len(items))
	for i := range items {
		if err := items[i].Validate(); err != nil {
			return err
		}
		if _, dup := seen[items[i].ID]; dup {
			return fmt.Errorf("duplicate catalog item id in batch: %s", items[i].ID)
		}
		seen[items[i].ID] = struct{}{}
	}
	return nil
}
