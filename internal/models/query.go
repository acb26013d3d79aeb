package models

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	// DefaultSearchK is the number of hits returned when none is requested.
	DefaultSearchK = 3
	// MaxSearchK caps the number of hits per search.
	MaxSearchK = 20
	// MaxQueryLength is the longest accepted search text, in characters.
	MaxQueryLength = 500
)

var validate = validator.New()

// SearchQuery is a similarity search over the catalog.
type SearchQuery struct {
	Query string `json:"query" validate:"required,max=500"`
	K     int    `json:"k" validate:"gte=0"`
}

// Validate trims the query, checks it and applies defaults: K defaults to
// DefaultSearchK and is capped at MaxSearchK.
func (q *SearchQuery) Validate() error {
	q.Query = strings.TrimSpace(q.Query)
	if err := validate.Struct(q); err != nil {
		return fieldError(err)
	}
	if q.K == 0 {
		q.K = DefaultSearchK
	}
	if q.K > MaxSearchK {
		q.K = MaxSearchK
	}
	return nil
}

// AskRequest is one question within an optional session.
type AskRequest struct {
	Question  string `json:"q" validate:"required"`
	SessionID string `json:"session_id,omitempty" validate:"omitempty,max=128"`
}

// Validate trims the request and checks required fields.
func (r *AskRequest) Validate() error {
	r.Question = strings.TrimSpace(r.Question)
	r.SessionID = strings.TrimSpace(r.SessionID)
	if err := validate.Struct(r); err != nil {
		return fieldError(err)
	}
	return nil
}

// fieldError turns validator output into a short client-facing message.
func fieldError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s cannot be empty", strings.ToLower(fe.Field()))
	case "max":
		return fmt.Errorf("%s is too long (max %s characters)", strings.ToLower(fe.Field()), fe.Param())
	default:
		return fmt.Errorf("%s is invalid", strings.ToLower(fe.Field()))
	}
}
