// Package generation turns a grounded prompt into an answer using a language
// model backend.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hyperjump/kotae/internal/models"
)

// ErrBackendUnavailable wraps transport and server failures of the backend.
var ErrBackendUnavailable = errors.New("generation backend unavailable")

// DefaultGenericContext grounds answers when no catalog item matches.
const DefaultGenericContext = "You are an AI assistant that answers questions about catalog products."

// Prompt is the input to one answer.
type Prompt struct {
	// Context is the grounding item's description, or the generic context.
	Context  string
	History  []models.Exchange
	Question string
}

// Render lays the prompt out as plain text for the model.
func (p Prompt) Render() string {
	var b strings.Builder
	b.WriteString("Product Context: ")
	b.WriteString(p.Context)
	b.WriteString("\n\n")
	if len(p.History) > 0 {
		b.WriteString("Previous conversation:\n")
		for _, ex := range p.History {
			fmt.Fprintf(&b, "Q: %s\nA: %s\n", ex.Question, ex.Answer)
		}
		b.WriteString("\n")
	}
	b.WriteString("Question: ")
	b.WriteString(p.Question)
	b.WriteString("\n\nAnswer:")
	return b.String()
}

// Result is a generated answer with backend statistics.
type Result struct {
	Answer           string
	Model            string
	ResponseTime     time.Duration
	PromptTokens     int
	CompletionTokens int
	LoadDuration     time.Duration
	TotalDuration    time.Duration
}

// Stats converts the result into the API's model statistics.
func (r *Result) Stats() models.ModelStats {
	return models.ModelStats{
		Model:               r.Model,
		ResponseTimeSeconds: r.ResponseTime.Seconds(),
		PromptTokens:        r.PromptTokens,
		CompletionTokens:    r.CompletionTokens,
		LoadSeconds:         r.LoadDuration.Seconds(),
		TotalSeconds:        r.TotalDuration.Seconds(),
	}
}

// Generator produces answers.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (*Result, error)
	// Ping checks the backend is reachable and serves the model.
	Ping(ctx context.Context) error
	Model() string
}
