package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hyperjump/kotae/internal/models"
)

// PostgresStorage implements CatalogStore on PostgreSQL.
type PostgresStorage struct {
	db *pgxpool.Pool
}

// NewPostgresStorage connects to dsn, verifies the connection and creates the schema.
func NewPostgresStorage(ctx context.Context, dsn string) (*PostgresStorage, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres connection string is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS catalog_items (
			seq BIGSERIAL,
			id TEXT PRIMARY KEY,
			description TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &PostgresStorage{db: pool}, nil
}

// ListItems returns all items ordered by first insertion.
func (s *PostgresStorage) ListItems(ctx context.Context) ([]models.CatalogItem, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, description, created_at, updated_at
		FROM catalog_items
		ORDER BY seq
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]models.CatalogItem, 0)
	for rows.Next() {
		var item models.CatalogItem
		if err := rows.Scan(&item.ID, &item.Description, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetItem returns an item by ID.
func (s *PostgresStorage) GetItem(ctx context.Context, id string) (*models.CatalogItem, error) {
	var item models.CatalogItem
	err := s.db.QueryRow(ctx, `
		SELECT id, description, created_at, updated_at
		FROM catalog_items
		WHERE id = $1
	`, id).Scan(&item.ID, &item.Description, &item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// UpsertItems inserts new items and replaces the description of existing ones.
func (s *PostgresStorage) UpsertItems(ctx context.Context, items []models.CatalogItem) (int, error) {
	if err := validateItems(items); err != nil {
		return 0, err
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for _, item := range items {
		batch.Queue(`
			INSERT INTO catalog_items (id, description, created_at, updated_at)
			VALUES ($1, $2, $3, $3)
			ON CONFLICT (id) DO UPDATE SET description = EXCLUDED.description, updated_at = EXCLUDED.updated_at
		`, item.ID, item.Description, now)
	}
	br := tx.SendBatch(ctx, batch)
	for _, item := range items {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return 0, fmt.Errorf("upsert item %s: %w", item.ID, err)
		}
	}
	if err := br.Close(); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return len(items), nil
}

// DeleteItem removes an item by ID.
func (s *PostgresStorage) DeleteItem(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM catalog_items WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	return nil
}

// CountItems returns the number of items.
func (s *PostgresStorage) CountItems(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM catalog_items`).Scan(&n)
	return n, err
}

// Ping verifies the pool can reach the server.
func (s *PostgresStorage) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the pool.
func (s *PostgresStorage) Close() error {
	s.db.Close()
	return nil
}
