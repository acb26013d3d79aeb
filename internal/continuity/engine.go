// Package continuity decides which catalog item grounds each answer in a
// conversation. A session either has no context or holds one grounding item;
// every question either keeps that item, switches to a better match or
// establishes a first match.
package continuity

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
)

// Default thresholds.
const (
	DefaultMatchDistance        = 0.4
	DefaultContinuitySimilarity = 0.75
)

// State is the grounding state of a session.
type State int

const (
	NoContext State = iota
	HasContext
)

func (s State) String() string {
	if s == HasContext {
		return "has_context"
	}
	return "no_context"
}

// Reasons reported in a Decision.
const (
	ReasonContinuity    = "continuity"
	ReasonMatched       = "matched"
	ReasonNoMatch       = "no_match"
	ReasonKeptNoBetter  = "kept_no_better_match"
	ReasonOrphanCleared = "orphan_cleared"
	ReasonEmbedError    = "embed_error"
	ReasonLookupError   = "lookup_error"
	ReasonSearchError   = "search_error"
)

// Index is the part of the index manager the engine needs.
type Index interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Search(ctx context.Context, query []float32, k int) ([]indexer.Hit, error)
	Lookup(id string) (models.CatalogItem, []float32, error)
}

// Config holds the two thresholds.
type Config struct {
	// MatchDistance is the cosine distance a search hit must be below to
	// become the grounding item.
	MatchDistance float64
	// ContinuitySimilarity is the cosine similarity to the current item at
	// or above which the item is kept without searching.
	ContinuitySimilarity float64
}

// Decision is the outcome of one Resolve call.
type Decision struct {
	// Item grounds the answer; nil means the generic context is used.
	Item    *models.CatalogItem
	State   State
	Changed bool
	// Searched reports whether the index was queried.
	Searched bool
	// Similarity of the question to the previous item, when one was compared.
	Similarity float64
	// Distance of the best search hit, when a search returned one.
	Distance float64
	Reason   string
}

// Engine runs the continuity state machine. It holds no per-session state.
type Engine struct {
	index  Index
	cfg    Config
	logger *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an engine; zero thresholds take the defaults.
func NewEngine(index Index, cfg Config, opts ...Option) *Engine {
	if cfg.MatchDistance <= 0 {
		cfg.MatchDistance = DefaultMatchDistance
	}
	if cfg.ContinuitySimilarity <= 0 {
		cfg.ContinuitySimilarity = DefaultContinuitySimilarity
	}
	e := &Engine{index: index, cfg: cfg, logger: zap.NewNop()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Config returns the thresholds in use.
func (e *Engine) Config() Config {
	return e.cfg
}

// Resolve picks the grounding item for question given the session's current
// item. It never fails: embedding, lookup and search faults keep the current
// item and are logged.
func (e *Engine) Resolve(ctx context.Context, sessionID string, current *models.CatalogItem, question string) Decision {
	keep := func(reason string) Decision {
		d := Decision{Item: current, Reason: reason}
		if current != nil {
			d.State = HasContext
		}
		return d
	}

	q, err := e.index.EmbedQuery(ctx, question)
	if err != nil {
		e.fault(sessionID, current, ReasonEmbedError, err)
		return keep(ReasonEmbedError)
	}

	orphaned := false
	similarity := 0.0
	if current != nil {
		indexed, vec, err := e.index.Lookup(current.ID)
		switch {
		case errors.Is(err, indexer.ErrItemNotFound):
			orphaned = true
			e.logger.Info("grounding item no longer indexed",
				zap.String("session_id", sessionID), zap.String("item_id", current.ID))
		case err != nil:
			e.fault(sessionID, current, ReasonLookupError, err)
			return keep(ReasonLookupError)
		default:
			// Ground on the indexed copy; its description may have been edited.
			current = &indexed
			similarity = vector.CosineSimilarity(q, vec)
			if similarity >= e.cfg.ContinuitySimilarity {
				d := keep(ReasonContinuity)
				d.Similarity = similarity
				return d
			}
		}
	}

	hits, err := e.index.Search(ctx, q, 1)
	if err != nil {
		e.fault(sessionID, current, ReasonSearchError, err)
		d := keep(ReasonSearchError)
		d.Similarity = similarity
		return d
	}

	if len(hits) > 0 && hits[0].Distance < e.cfg.MatchDistance {
		item := hits[0].Item
		d := Decision{
			Item:       &item,
			State:      HasContext,
			Changed:    current == nil || current.ID != item.ID,
			Searched:   true,
			Similarity: similarity,
			Distance:   hits[0].Distance,
			Reason:     ReasonMatched,
		}
		e.logger.Debug("grounding resolved",
			zap.String("session_id", sessionID),
			zap.String("item_id", item.ID),
			zap.Float64("distance", d.Distance),
			zap.Bool("changed", d.Changed))
		return d
	}

	d := Decision{Searched: true, Similarity: similarity, Reason: ReasonNoMatch}
	if len(hits) > 0 {
		d.Distance = hits[0].Distance
	}
	switch {
	case current != nil && !orphaned:
		d.Item = current
		d.State = HasContext
		d.Reason = ReasonKeptNoBetter
	case orphaned:
		d.Reason = ReasonOrphanCleared
	}
	return d
}

func (e *Engine) fault(sessionID string, current *models.CatalogItem, reason string, err error) {
	fields := []zap.Field{zap.String("session_id", sessionID), zap.String("reason", reason), zap.Error(err)}
	if current != nil {
		fields = append(fields, zap.String("item_id", current.ID))
	}
	e.logger.Warn("continuity evaluation failed, keeping context", fields...)
}
