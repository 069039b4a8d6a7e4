// ABOUTME: Tests for the OpenAI client against httptest servers
// ABOUTME: Covers completions, tool calls, embeddings and retry behavior

package openai

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bosar/bosar-gateway/internal/config"
	"github.com/bosar/bosar-gateway/internal/responder"
	"github.com/bosar/bosar-gateway/internal/store"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(config.OpenAIConfig{
		APIKey:        "sk-test",
		BaseURL:       srv.URL,
		EmbedModel:    "text-embedding-ada-002",
		MaxConcurrent: 2,
		Timeout:       5 * time.Second,
	}, slog.Default())
}

func TestAvailable(t *testing.T) {
	withKey := NewClient(config.OpenAIConfig{APIKey: "sk", MaxConcurrent: 1, Timeout: time.Second}, slog.Default())
	assert.True(t, withKey.Available())

	without := NewClient(config.OpenAIConfig{MaxConcurrent: 1, Timeout: time.Second}, slog.Default())
	assert.False(t, without.Available())

	_, err := without.Embed(context.Background(), "text")
	require.Error(t, err)
}

func TestComplete_Text(t *testing.T) {
	var gotReq chatRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "Refunds take 5 days."}},
			},
		})
	})

	completion, err := client.Complete(context.Background(), responder.CompletionRequest{
		Model:       "gpt-4o-mini",
		Temperature: 0.4,
		MaxTokens:   500,
		Messages: []responder.ChatMessage{
			{Role: responder.ChatRoleSystem, Content: "be brief"},
			{Role: responder.ChatRoleUser, Content: "refund time?"},
		},
		Tools: []store.Tool{{Name: "request_human_agent"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Refunds take 5 days.", completion.Text)
	assert.Nil(t, completion.ToolCall)

	assert.Equal(t, "gpt-4o-mini", gotReq.Model)
	assert.Equal(t, 500, gotReq.MaxTokens)
	require.Len(t, gotReq.Tools, 1)
	assert.Equal(t, "function", gotReq.Tools[0].Type)
	assert.Equal(t, "request_human_agent", gotReq.Tools[0].Function.Name)
}

func TestComplete_ToolCall(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{
					"content": "",
					"tool_calls": []map[string]any{
						{"function": map[string]any{
							"name":      "request_human_agent",
							"arguments": `{"user_reason": "billing dispute"}`,
						}},
					},
				}},
			},
		})
	})

	completion, err := client.Complete(context.Background(), responder.CompletionRequest{Model: "gpt-4o-mini"})
	require.NoError(t, err)
	require.NotNil(t, completion.ToolCall)
	assert.Equal(t, "request_human_agent", completion.ToolCall.Name)
	assert.Equal(t, "billing dispute", completion.ToolCall.Arguments["user_reason"])
}

func TestComplete_NoChoices(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	})

	_, err := client.Complete(context.Background(), responder.CompletionRequest{Model: "gpt-4o-mini"})
	require.Error(t, err)
}

func TestEmbed(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)

		var req embeddingsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-ada-002", req.Model)
		assert.Equal(t, []string{"hello"}, req.Input)

		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"embedding": []float64{0.1, 0.2, 0.3}},
			},
		})
	})

	vec, err := client.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestRetry_RecoverableThenSuccess(t *testing.T) {
	var calls int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float64{1}}},
		})
	})

	vec, err := client.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, vec)
	assert.Equal(t, 2, calls)
}

func TestRetry_ClientErrorFailsFast(t *testing.T) {
	var calls int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	})

	_, err := client.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
