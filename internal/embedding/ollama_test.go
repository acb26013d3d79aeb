package embedding

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kotae/internal/ollama"
)

func TestOllamaEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/embeddings":
			_, _ = w.Write([]byte(`{"embedding":[3,4]}`))
		case "/api/tags":
			_, _ = w.Write([]byte(`{"models":[{"name":"nomic-embed-text:latest"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	e, err := NewOllamaEmbedder(ollama.NewClient(srv.URL), "nomic-embed-text", 2)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, e.CheckModel(ctx))
	v, err := e.Embed(ctx, "hello")
	require.NoError(t, err)
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)
	assert.InDelta(t, 1.0, math.Hypot(float64(v[0]), float64(v[1])), 1e-6)
}

func TestOllamaEmbedder_DimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embedding":[1,2,3]}`))
	}))
	defer srv.Close()

	e, err := NewOllamaEmbedder(ollama.NewClient(srv.URL), "m", 2)
	require.NoError(t, err)
	_, err = e.Embed(context.Background(), "hello")
	assert.Error(t, err)
}

func TestOllamaEmbedder_MissingModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"models":[]}`))
	}))
	defer srv.Close()

	e, _ := NewOllamaEmbedder(ollama.NewClient(srv.URL), "nomic-embed-text", 2)
	assert.Error(t, e.CheckModel(context.Background()))
}
