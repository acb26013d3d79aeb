package indexer

import (
	"context"
	"fmt"
	"testing"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
)

func benchCatalog(n int) *staticCatalog {
	items := make([]models.CatalogItem, n)
	for i := range items {
		items[i] = models.CatalogItem{
			ID:          fmt.Sprintf("p%d", i),
			Description: fmt.Sprintf("Product %d, batch %d, strength %d mg", i, i%17, i%50),
		}
	}
	return &staticCatalog{items: items}
}

func benchManager(b *testing.B, indexType string, n int) *Manager {
	b.Helper()
	m := NewManager(benchCatalog(n), embedding.NewMockEmbedder(384), Options{
		IndexType:  indexType,
		Params:     vector.DefaultParams(),
		EmbedderID: "mock:384",
	})
	if _, err := m.Refresh(context.Background()); err != nil {
		b.Fatal(err)
	}
	return m
}

func benchmarkSearchText(b *testing.B, indexType string) {
	m := benchManager(b, indexType, 1000)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := m.SearchText(ctx, "product strength 20 mg", 3); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkManager_SearchText_HNSW(b *testing.B) {
	benchmarkSearchText(b, "hnsw")
}

func BenchmarkManager_SearchText_Memory(b *testing.B) {
	benchmarkSearchText(b, "memory")
}

func BenchmarkManager_Lookup(b *testing.B) {
	m := benchManager(b, "memory", 1000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := m.Lookup("p500"); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkManager_Refresh(b *testing.B) {
	m := benchManager(b, "hnsw", 200)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := m.Refresh(ctx); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkNormalize(b *testing.B) {
	text := "Sativa strain - THC 15 % - energizing, Hybrid   blend"
	for i := 0; i < b.N; i++ {
		_ = Normalize(text)
	}
}
