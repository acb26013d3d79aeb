// Package qa answers catalog questions within a conversation: it resolves the
// session, picks the grounding item, asks the generation backend and records
// the exchange.
package qa

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/continuity"
	"github.com/hyperjump/kotae/internal/generation"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/session"
)

// ErrEmptyQuestion is returned when the question is blank.
var ErrEmptyQuestion = errors.New("question cannot be empty")

// AskError is a failed Ask that already has a session. Clients retry with SessionID.
type AskError struct {
	SessionID string
	Err       error
}

func (e *AskError) Error() string {
	return fmt.Sprintf("session %s: %v", e.SessionID, e.Err)
}

func (e *AskError) Unwrap() error {
	return e.Err
}

// Resolver picks the grounding item for a question.
type Resolver interface {
	Resolve(ctx context.Context, sessionID string, current *models.CatalogItem, question string) continuity.Decision
}

// Service answers questions.
type Service struct {
	sessions       session.Store
	resolver       Resolver
	generator      generation.Generator
	genericContext string
	logger         *zap.Logger
	newID          func() string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithGenericContext sets the context used when no item grounds an answer.
func WithGenericContext(text string) Option {
	return func(s *Service) {
		if strings.TrimSpace(text) != "" {
			s.genericContext = text
		}
	}
}

// WithIDGenerator replaces the session id generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewService wires the session store, resolver and generator.
func NewService(sessions session.Store, resolver Resolver, generator generation.Generator, opts ...Option) *Service {
	s := &Service{
		sessions:       sessions,
		resolver:       resolver,
		generator:      generator,
		genericContext: generation.DefaultGenericContext,
		logger:         zap.NewNop(),
		newID:          uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Ask answers question in the session sessionID, starting a new session when
// sessionID is empty. The exchange is recorded only after an answer is produced.
func (s *Service) Ask(ctx context.Context, question, sessionID string) (*models.AskResponse, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		sessionID = s.newID()
	}

	st, err := s.sessions.GetOrCreate(ctx, sessionID)
	if err != nil {
		return nil, &AskError{SessionID: sessionID, Err: fmt.Errorf("load session: %w", err)}
	}

	d := s.resolver.Resolve(ctx, sessionID, st.Item, question)

	prompt := generation.Prompt{
		Context:  s.genericContext,
		History:  st.History,
		Question: question,
	}
	if d.Item != nil {
		prompt.Context = d.Item.Description
	}

	res, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		s.logger.Error("generation failed",
			zap.String("session_id", sessionID),
			zap.String("model", s.generator.Model()),
			zap.Error(err))
		return nil, &AskError{SessionID: sessionID, Err: err}
	}

	if err := s.sessions.RecordExchange(ctx, sessionID, d.Item, question, res.Answer); err != nil {
		s.logger.Warn("failed to record exchange", zap.String("session_id", sessionID), zap.Error(err))
	}

	resp := &models.AskResponse{
		SessionID:      sessionID,
		Question:       question,
		Answer:         res.Answer,
		ContextChanged: d.Changed,
		ModelStats:     res.Stats(),
	}
	if d.Item != nil {
		resp.Item = &models.ItemSummary{ID: d.Item.ID, Description: d.Item.Description}
	}

	fields := []zap.Field{
		zap.String("session_id", sessionID),
		zap.Bool("context_changed", d.Changed),
		zap.String("reason", d.Reason),
		zap.Bool("searched", d.Searched),
	}
	if d.Item != nil {
		fields = append(fields, zap.String("item_id", d.Item.ID))
	}
	s.logger.Info("question answered", fields...)
	return resp, nil
}
