package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/priyam-jain-2002/vibemarket/pkg/anthropic"
)

func TestNewClient_RequiresKey(t *testing.T) {
	t.Parallel()
	_, err := NewClient(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key is required")
}

func TestClient_CreateMessage(t *testing.T) {
	t.Parallel()
	var body chatRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":    "chatcmpl-1",
			"model": "gpt-4o-mini",
			"choices": []map[string]any{{
				"message":       map[string]any{"role": "assistant", "content": `{"urgency":"HIGH"}`},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{
				"prompt_tokens":         1000,
				"completion_tokens":     40,
				"prompt_tokens_details": map[string]any{"cached_tokens": 600},
			},
		})
	}))
	defer ts.Close()

	c, err := NewClient(Config{APIKey: "sk-test", BaseURL: ts.URL + "/v1/"})
	require.NoError(t, err)

	temp := 0.0
	resp, err := c.CreateMessage(context.Background(), anthropic.MessageRequest{
		Model:       "gpt-4o-mini",
		MaxTokens:   256,
		System:      anthropic.CachedSystem("You score leads."),
		Messages:    []anthropic.Message{{Role: "user", Content: "Lead text"}},
		Temperature: &temp,
	})
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", body.Model)
	assert.Equal(t, int64(256), body.MaxTokens)
	require.NotNil(t, body.Temperature)
	assert.Zero(t, *body.Temperature, "zero temperature is still sent")
	require.Len(t, body.Messages, 2)
	assert.Equal(t, chatMessage{Role: "system", Content: "You score leads."}, body.Messages[0])
	assert.Equal(t, chatMessage{Role: "user", Content: "Lead text"}, body.Messages[1])

	assert.Equal(t, "chatcmpl-1", resp.ID)
	assert.Equal(t, `{"urgency":"HIGH"}`, resp.Text())
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, int64(400), resp.Usage.InputTokens)
	assert.Equal(t, int64(600), resp.Usage.CacheReadInputTokens)
	assert.Equal(t, int64(40), resp.Usage.OutputTokens)
}

func TestClient_CreateMessage_Truncated(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message":       map[string]any{"role": "assistant", "content": `{"urg`},
				"finish_reason": "length",
			}},
		})
	}))
	defer ts.Close()

	c, err := NewClient(Config{APIKey: "k", BaseURL: ts.URL})
	require.NoError(t, err)
	resp, err := c.CreateMessage(context.Background(), anthropic.MessageRequest{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "max_tokens", resp.StopReason)
}

func TestClient_CreateMessage_ErrorStatus(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		status    int
		header    string
		body      string
		wantMsg   string
		wantAfter time.Duration
	}{
		{
			name:      "rate limited",
			status:    http.StatusTooManyRequests,
			header:    "4",
			body:      `{"error":{"message":"Rate limit reached","type":"requests"}}`,
			wantMsg:   "Rate limit reached",
			wantAfter: 4 * time.Second,
		},
		{name: "gateway", status: http.StatusBadGateway, body: "upstream down", wantMsg: "upstream down"},
		{name: "bad request", status: http.StatusBadRequest, body: `{"error":{"message":"bad model"}}`, wantMsg: "bad model"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				if tt.header != "" {
					w.Header().Set("Retry-After", tt.header)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			c, err := NewClient(Config{APIKey: "k", BaseURL: ts.URL})
			require.NoError(t, err)
			_, err = c.CreateMessage(context.Background(), anthropic.MessageRequest{Model: "m"})
			require.Error(t, err)
			assert.Equal(t, tt.status, anthropic.StatusCode(err))
			assert.Equal(t, tt.wantAfter, anthropic.RetryAfter(err))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestClient_CreateMessage_NoChoices(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer ts.Close()

	c, err := NewClient(Config{APIKey: "k", BaseURL: ts.URL})
	require.NoError(t, err)
	_, err = c.CreateMessage(context.Background(), anthropic.MessageRequest{Model: "m"})
	require.Error(t, err)
	assert.Zero(t, anthropic.StatusCode(err))
}

func TestToChatMessages(t *testing.T) {
	t.Parallel()
	got := toChatMessages(anthropic.MessageRequest{Messages: []anthropic.Message{
		{Role: "user", Content: "q"},
		{Role: "assistant", Content: "{"},
		{Role: "tool", Content: "x"},
	}})
	require.Len(t, got, 3)
	assert.Equal(t, "user", got[0].Role)
	assert.Equal(t, "assistant", got[1].Role)
	assert.Equal(t, "user", got[2].Role)
}
