// Package models defines the data structures shared by the catalog, index, session and API layers.
package models

import (
	"fmt"
	"strings"
	"time"
)

// CatalogItem is one entry of the product catalog.
type CatalogItem struct {
	ID          string    `json:"id" db:"id" yaml:"id"`
	Description string    `json:"description" db:"description" yaml:"description"`
	CreatedAt   time.Time `json:"created_at,omitempty" db:"created_at" yaml:"-"`
	UpdatedAt   time.Time `json:"updated_at,omitempty" db:"updated_at" yaml:"-"`
}

// Ref returns a copy of the item carrying only identity and description.
func (c CatalogItem) Ref() *CatalogItem {
	return &CatalogItem{ID: c.ID, Description: c.Description}
}

// Validate trims the item and rejects empty ids or descriptions.
func (c *CatalogItem) Validate() error {
	c.ID = strings.TrimSpace(c.ID)
	c.Description = strings.TrimSpace(c.Description)
	if c.ID == "" {
		return fmt.Errorf("catalog item id cannot be empty")
	}
	if c.Description == "" {
		return fmt.Errorf("catalog item %s: description cannot be empty", c.ID)
	}
	return nil
}

// ItemSummary is the grounding item as reported to API clients.
type ItemSummary struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}
