package model

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAI_CompleteWithImage(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"gpt-4o-mini","choices":[{"message":{"content":"{\"name\":\"apple\"}"},"finish_reason":"stop"}],"usage":{"total_tokens":42}}`))
	}))
	defer srv.Close()

	c := NewOpenAI("sk-test", "gpt-4o-mini", WithBaseURL(srv.URL))
	out, err := c.Complete(context.Background(), Prompt{
		System:    "sys",
		User:      "what is this",
		ImageURLs: []string{"https://cdn.example/meal.jpg"},
		JSON:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"name":"apple"}`, out.Content)
	assert.Equal(t, int64(42), out.Usage.TotalTokens)

	msgs := got["messages"].([]any)
	require.Len(t, msgs, 2)
	user := msgs[1].(map[string]any)
	parts := user["content"].([]any)
	require.Len(t, parts, 2)
	assert.Equal(t, "image_url", parts[1].(map[string]any)["type"])
	assert.Equal(t, map[string]any{"type": "json_object"}, got["response_format"])
}

func TestOpenAI_MapsHTTPErrors(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusUnauthorized, ErrAuthFailed},
		{http.StatusBadRequest, ErrInvalidRequest},
		{http.StatusInternalServerError, ErrUnavailable},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			_, err := NewOpenAI("k", "m", WithBaseURL(srv.URL)).Complete(context.Background(), Prompt{User: "x"})
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestOpenAI_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewOpenAI("k", "m", WithBaseURL(srv.URL)).Complete(context.Background(), Prompt{User: "x"})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestOpenAI_DeadlineSurfacesAsContextError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewOpenAI("k", "m", WithBaseURL(srv.URL)).Complete(ctx, Prompt{User: "x"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
