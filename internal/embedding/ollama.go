package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/kotae/internal/ollama"
	"github.com/hyperjump/kotae/internal/vector"
)

// OllamaEmbedder requests embeddings from an Ollama server.
type OllamaEmbedder struct {
	client     *ollama.Client
	model      string
	dimensions int
}

// NewOllamaEmbedder returns an embedder for model. Every returned vector must
// have exactly dimensions entries.
func NewOllamaEmbedder(client *ollama.Client, model string, dimensions int) (*OllamaEmbedder, error) {
	if model == "" {
		return nil, fmt.Errorf("ollama embedding model is required")
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("ollama embedding dimensions must be positive")
	}
	return &OllamaEmbedder{client: client, model: model, dimensions: dimensions}, nil
}

// CheckModel fails when the embedding model is not available on the server.
func (e *OllamaEmbedder) CheckModel(ctx context.Context) error {
	ok, err := e.client.HasModel(ctx, e.model)
	if err != nil {
		return fmt.Errorf("list ollama models: %w", err)
	}
	if !ok {
		return fmt.Errorf("embedding model %q not found on %s", e.model, e.client.BaseURL())
	}
	return nil
}

// Embed returns the unit-length embedding of text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	raw, err := e.client.Embeddings(ctx, e.model, text)
	if err != nil {
		return nil, err
	}
	if len(raw) != e.dimensions {
		return nil, fmt.Errorf("model %s returned %d dimensions, expected %d", e.model, len(raw), e.dimensions)
	}
	emb := make([]float32, len(raw))
	for i, v := range raw {
		emb[i] = float32(v)
	}
	vector.NormalizeL2(emb)
	return emb, nil
}

// EmbedBatch calls Embed for each text.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, e, texts)
}

// Dimensions returns the embedding dimension.
func (e *OllamaEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op.
func (e *OllamaEmbedder) Close() error {
	return nil
}
