// Package session keeps per-conversation state: the grounding item, a short
// rolling history of answered questions and the last activity time.
package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
)

// Defaults for Options.
const (
	DefaultTimeout       = 30 * time.Minute
	DefaultMaxHistory    = 5
	DefaultSweepInterval = time.Minute
)

// State is one session. Values returned by a Store are copies.
type State struct {
	ID           string              `json:"id"`
	Item         *models.CatalogItem `json:"item,omitempty"`
	History      []models.Exchange   `json:"history"`
	CreatedAt    time.Time           `json:"created_at"`
	LastActivity time.Time           `json:"last_activity"`
}

func newState(id string, now time.Time) State {
	return State{ID: id, History: []models.Exchange{}, CreatedAt: now, LastActivity: now}
}

func (s State) clone() *State {
	c := s
	if s.Item != nil {
		c.Item = s.Item.Ref()
	}
	c.History = append([]models.Exchange(nil), s.History...)
	return &c
}

// record appends an exchange, trims history to max and moves the grounding.
func (s *State) record(item *models.CatalogItem, question, answer string, now time.Time, max int) {
	s.History = append(s.History, models.Exchange{Question: question, Answer: answer, Timestamp: now})
	if over := len(s.History) - max; over > 0 {
		s.History = append([]models.Exchange(nil), s.History[over:]...)
	}
	if item != nil {
		s.Item = item.Ref()
	} else {
		s.Item = nil
	}
	s.LastActivity = now
}

// Store holds session state shared by concurrent requests.
type Store interface {
	// GetOrCreate returns the session, refreshing its last activity, or a
	// fresh empty one when id is unknown or expired.
	GetOrCreate(ctx context.Context, id string) (*State, error)
	// RecordExchange appends an answered question and sets the grounding item.
	RecordExchange(ctx context.Context, id string, item *models.CatalogItem, question, answer string) error
	// EvictExpired removes sessions idle longer than the timeout.
	EvictExpired(ctx context.Context) (int, error)
	// Count returns the number of live sessions.
	Count(ctx context.Context) (int, error)
	Close() error
}

// Options configures a Store.
type Options struct {
	Timeout    time.Duration
	MaxHistory int
	// SweepInterval bounds how often an access triggers a full eviction sweep.
	SweepInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxHistory < 1 {
		o.MaxHistory = DefaultMaxHistory
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = DefaultSweepInterval
	}
	return o
}

type settings struct {
	logger *zap.Logger
	now    func() time.Time
}

// Option configures optional Store dependencies.
type Option func(*settings)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

func applyOptions(options []Option) settings {
	s := settings{logger: zap.NewNop(), now: time.Now}
	for _, o := range options {
		o(&s)
	}
	return s
}
