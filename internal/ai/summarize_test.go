package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/content-curator/internal/config"
	"github.com/content-curator/internal/models"
	"github.com/content-curator/pkg/logger"
	"github.com/content-curator/pkg/ratelimit"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.AIConfig{APIKey: "test-key", Model: "claude-sonnet-4-20250514", MaxTokens: 100}
	return NewClient(cfg, ratelimit.Unlimited(), logger.Nop(),
		option.WithBaseURL(srv.URL),
		option.WithMaxRetries(0),
	)
}

func TestSummarizer_Enrich(t *testing.T) {
	var gotModel string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))

		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotModel, _ = body["model"].(string)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "msg_01",
			"type": "message",
			"role": "assistant",
			"model": "claude-sonnet-4-20250514",
			"content": [{"type": "text", "text": "  A quick tour of Go generics.  "}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 42, "output_tokens": 9}
		}`)
	})

	item := models.Item{"id": "v1", "title": "Generics", "description": "Type params explained"}
	require.NoError(t, NewSummarizer(client).Enrich(context.Background(), models.PlatformYouTube, item))

	assert.Equal(t, "A quick tour of Go generics.", item["summary"])
	assert.Equal(t, "claude-sonnet-4-20250514", gotModel)
}

func TestSummarizer_EnrichError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`)
	})

	item := models.Item{"id": "v1", "title": "Generics"}
	err := NewSummarizer(client).Enrich(context.Background(), models.PlatformYouTube, item)
	require.Error(t, err)
	assert.False(t, item.Has("summary"))
}
