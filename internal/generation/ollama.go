package generation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hyperjump/kotae/internal/ollama"
)

// Sampling defaults.
const (
	DefaultTemperature = 0.7
	DefaultTopP        = 0.9
	DefaultNumPredict  = 300
)

// OllamaOptions configures an OllamaGenerator.
type OllamaOptions struct {
	Model       string
	Temperature float64
	TopP        float64
	NumPredict  int
}

// OllamaGenerator answers with a model served by Ollama.
type OllamaGenerator struct {
	client *ollama.Client
	opts   OllamaOptions
}

// NewOllamaGenerator creates a generator; zero sampling options take the defaults.
func NewOllamaGenerator(client *ollama.Client, opts OllamaOptions) (*OllamaGenerator, error) {
	if client == nil {
		return nil, fmt.Errorf("ollama client is required")
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("generation model is required")
	}
	if opts.Temperature == 0 {
		opts.Temperature = DefaultTemperature
	}
	if opts.TopP == 0 {
		opts.TopP = DefaultTopP
	}
	if opts.NumPredict == 0 {
		opts.NumPredict = DefaultNumPredict
	}
	return &OllamaGenerator{client: client, opts: opts}, nil
}

// Model returns the model name.
func (g *OllamaGenerator) Model() string {
	return g.opts.Model
}

// Generate implements Generator.
func (g *OllamaGenerator) Generate(ctx context.Context, p Prompt) (*Result, error) {
	start := time.Now()
	resp, err := g.client.Generate(ctx, ollama.GenerateRequest{
		Model:  g.opts.Model,
		Prompt: p.Render(),
		Options: ollama.Options{
			Temperature: g.opts.Temperature,
			TopP:        g.opts.TopP,
			NumPredict:  g.opts.NumPredict,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	answer := strings.TrimSpace(resp.Response)
	if answer == "" {
		return nil, fmt.Errorf("%w: empty response from %s", ErrBackendUnavailable, g.opts.Model)
	}
	model := resp.Model
	if model == "" {
		model = g.opts.Model
	}
	return &Result{
		Answer:           answer,
		Model:            model,
		ResponseTime:     time.Since(start),
		PromptTokens:     resp.PromptEvalCount,
		CompletionTokens: resp.EvalCount,
		LoadDuration:     time.Duration(resp.LoadDuration),
		TotalDuration:    time.Duration(resp.TotalDuration),
	}, nil
}

// Ping implements Generator.
func (g *OllamaGenerator) Ping(ctx context.Context) error {
	ok, err := g.client.HasModel(ctx, g.opts.Model)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if !ok {
		return fmt.Errorf("model %s is not available at %s", g.opts.Model, g.client.BaseURL())
	}
	return nil
}
