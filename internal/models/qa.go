package models

import "time"

// Exchange is one answered question in a session's history.
type Exchange struct {
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Timestamp time.Time `json:"timestamp"`
}

// ModelStats describes the generation call behind an answer.
type ModelStats struct {
	Model               string  `json:"model"`
	ResponseTimeSeconds float64 `json:"response_time_seconds"`
	PromptTokens        int     `json:"prompt_tokens,omitempty"`
	CompletionTokens    int     `json:"completion_tokens,omitempty"`
	LoadSeconds         float64 `json:"load_seconds,omitempty"`
	TotalSeconds        float64 `json:"total_seconds,omitempty"`
}

// AskResponse is the answer to an AskRequest.
type AskResponse struct {
	SessionID      string       `json:"session_id"`
	Question       string       `json:"question"`
	Answer         string       `json:"answer"`
	ContextChanged bool         `json:"context_changed"`
	Item           *ItemSummary `json:"product,omitempty"`
	ModelStats     ModelStats   `json:"model_stats"`
}
