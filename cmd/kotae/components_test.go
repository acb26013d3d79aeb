package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
)

// ollamaServer answers /api/tags with the given model names.
func ollamaServer(t *testing.T, tags string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(tags))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.DatabasePath = filepath.Join(dir, "catalog.db")
	cfg.Index.Path = filepath.Join(dir, "catalog.idx")
	cfg.Embedding.ModelPath = filepath.Join(dir, "missing.onnx")
	return cfg
}

func TestNewEmbedder_MissingONNXModelFails(t *testing.T) {
	cfg := testConfig(t)
	e, _, err := newEmbedder(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	assert.Nil(t, e)
}

func TestNewEmbedder_Ollama(t *testing.T) {
	t.Run("missing model fails", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Embedding.Backend = "ollama"
		cfg.Generation.URL = ollamaServer(t, `{"models":[{"name":"llama3:latest"}]}`).URL
		_, _, err := newEmbedder(context.Background(), cfg, zap.NewNop())
		assert.Error(t, err)
	})
	t.Run("pulled model is accepted", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Embedding.Backend = "ollama"
		cfg.Embedding.Dimensions = 768
		cfg.Generation.URL = ollamaServer(t, `{"models":[{"name":"nomic-embed-text:latest"}]}`).URL
		e, id, err := newEmbedder(context.Background(), cfg, zap.NewNop())
		require.NoError(t, err)
		defer e.Close()
		assert.Equal(t, "ollama:nomic-embed-text:768", id)
	})
}

func TestNewEmbedder_ExplicitMock(t *testing.T) {
	cfg := testConfig(t)
	cfg.Embedding.Backend = "mock"
	cfg.Embedding.Dimensions = 64
	e, id, err := newEmbedder(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer e.Close()
	assert.Equal(t, "mock:64", id)
	assert.Equal(t, 64, e.Dimensions())
}

func TestInitializeComponents_MissingEmbeddingModelIsFatal(t *testing.T) {
	cfg := testConfig(t)
	_, err := initializeComponents(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestInitializeComponents_SeedsEmptyCatalogFromDropFolder(t *testing.T) {
	cfg := testConfig(t)
	cfg.Embedding.Backend = "mock"
	cfg.Embedding.Dimensions = 64
	cfg.Generation.URL = ollamaServer(t, `{"models":[{"name":"llama3:latest"}]}`).URL
	cfg.Catalog.WatchDir = t.TempDir()
	items := `[{"id":"p1","description":"hybrid strain thc 20% relaxing"},
{"id":"p2","description":"sativa strain thc 15% energizing"}]`
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Catalog.WatchDir, "catalog.json"), []byte(items), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Catalog.WatchDir, "broken.json"), []byte("{"), 0644))

	c, err := initializeComponents(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer c.Close()

	assert.True(t, c.Index.Ready())
	assert.Equal(t, 2, c.Index.Stats().Items)
	count, err := c.Storage.CountItems(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestInitializeComponents_EmptyCatalogWithoutDropFolderFails(t *testing.T) {
	cfg := testConfig(t)
	cfg.Embedding.Backend = "mock"
	cfg.Embedding.Dimensions = 64
	cfg.Generation.URL = ollamaServer(t, `{"models":[]}`).URL
	_, err := initializeComponents(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}
