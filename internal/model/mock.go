package model

import (
	"context"
	"sync"
	"time"
)

// Mock is a scripted Client for tests and local runs without a provider key.
type Mock struct {
	mu        sync.Mutex
	calls     []Prompt
	latency   time.Duration
	staticErr error
	reply     func(Prompt) (string, error)
}

var _ Client = (*Mock)(nil)

// MockOption configures a Mock.
type MockOption func(*Mock)

// WithReply answers every call with content.
func WithReply(content string) MockOption {
	return func(m *Mock) { m.reply = func(Prompt) (string, error) { return content, nil } }
}

// WithReplyFunc computes the answer from the prompt.
func WithReplyFunc(fn func(Prompt) (string, error)) MockOption {
	return func(m *Mock) { m.reply = fn }
}

// WithError makes every call fail with err.
func WithError(err error) MockOption {
	return func(m *Mock) { m.staticErr = err }
}

// WithLatency delays each call, respecting ctx.
func WithLatency(d time.Duration) MockOption {
	return func(m *Mock) { m.latency = d }
}

func NewMock(opts ...MockOption) *Mock {
	m := &Mock{reply: func(Prompt) (string, error) { return "{}", nil }}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Mock) Complete(ctx context.Context, p Prompt) (Completion, error) {
	m.mu.Lock()
	m.calls = append(m.calls, p)
	m.mu.Unlock()

	if m.latency > 0 {
		select {
		case <-time.After(m.latency):
		case <-ctx.Done():
			return Completion{}, ctx.Err()
		}
	}
	if m.staticErr != nil {
		return Completion{}, m.staticErr
	}
	content, err := m.reply(p)
	if err != nil {
		return Completion{}, err
	}
	return Completion{Content: content, Model: "mock", FinishReason: "stop"}, nil
}

// Calls returns the prompts received so far.
func (m *Mock) Calls() []Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Prompt(nil), m.calls...)
}
