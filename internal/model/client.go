// Package model talks to the hosted language/vision model.
package model

import (
	"context"
	"errors"
)

// Sentinel errors returned by Client implementations.
var (
	ErrRateLimited    = errors.New("model: rate limited by provider")
	ErrAuthFailed     = errors.New("model: authentication failed")
	ErrInvalidRequest = errors.New("model: invalid request")
	ErrUnavailable    = errors.New("model: provider unavailable")
	ErrEmptyResponse  = errors.New("model: empty response")
)

// Prompt is one completion request.
type Prompt struct {
	System      string
	User        string
	ImageURLs   []string
	MaxTokens   int
	Temperature float64
	// JSON asks the provider for a JSON object response when it supports it.
	JSON bool
}

// Completion is the text the model returned.
type Completion struct {
	Content      string
	Model        string
	FinishReason string
	Usage        Usage
}

type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
}

// Client produces one completion per call. Implementations must honour ctx
// cancellation and must not retry.
type Client interface {
	Complete(ctx context.Context, p Prompt) (Completion, error)
}
