// Package openai adapts the OpenAI chat completions API, and services that
// speak it (Gemini's OpenAI endpoint, vLLM, Azure), to anthropic.Client.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/priyam-jain-2002/vibemarket/pkg/anthropic"
)

// Default configuration values.
const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultTimeout = 120 * time.Second
)

// Config holds connection settings.
type Config struct {
	APIKey string
	// BaseURL defaults to DefaultBaseURL.
	BaseURL    string
	HTTPClient *http.Client
}

type client struct {
	hc      *http.Client
	baseURL string
	apiKey  string
}

// NewClient returns an anthropic.Client backed by /chat/completions.
func NewClient(cfg Config) (anthropic.Client, error) {
	if cfg.APIKey == "" {
		return nil, eris.New("openai: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &client{
		hc:      cfg.HTTPClient,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
	}, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int64         `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens        int64 `json:"prompt_tokens"`
		CompletionTokens    int64 `json:"completion_tokens"`
		PromptTokensDetails struct {
			CachedTokens int64 `json:"cached_tokens"`
		} `json:"prompt_tokens_details"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (c *client) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	body := chatRequest{
		Model:       req.Model,
		Messages:    toChatMessages(req),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, eris.Wrap(err, "openai: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "openai: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "openai: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "openai: read response")
	}

	var chat chatResponse
	decodeErr := json.Unmarshal(raw, &chat)
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(raw))
		if decodeErr == nil && chat.Error != nil {
			msg = chat.Error.Message
		}
		return nil, eris.Wrap(&anthropic.APIError{
			Provider:   "openai",
			StatusCode: resp.StatusCode,
			RetryAfter: anthropic.ParseRetryAfter(resp.Header.Get("Retry-After")),
			Message:    msg,
		}, "openai: create message")
	}
	if decodeErr != nil {
		return nil, eris.Wrap(decodeErr, "openai: decode response")
	}
	if len(chat.Choices) == 0 {
		return nil, eris.New("openai: no choices returned")
	}

	choice := chat.Choices[0]
	cached := chat.Usage.PromptTokensDetails.CachedTokens
	return &anthropic.MessageResponse{
		ID:         chat.ID,
		Model:      chat.Model,
		Content:    []anthropic.ContentBlock{{Type: "text", Text: choice.Message.Content}},
		StopReason: stopReason(choice.FinishReason),
		Usage: anthropic.TokenUsage{
			InputTokens:          max(chat.Usage.PromptTokens-cached, 0),
			OutputTokens:         chat.Usage.CompletionTokens,
			CacheReadInputTokens: cached,
		},
	}, nil
}

func toChatMessages(req anthropic.MessageRequest) []chatMessage {
	out := make([]chatMessage, 0, len(req.Messages)+1)
	if system := anthropic.SystemText(req.System); system != "" {
		out = append(out, chatMessage{Role: "system", Content: system})
	}
	for _, m := range req.Messages {
		role := m.Role
		if role != "assistant" {
			role = "user"
		}
		out = append(out, chatMessage{Role: role, Content: m.Content})
	}
	return out
}

// stopReason maps finish_reason onto the Messages API vocabulary.
func stopReason(finish string) string {
	switch finish {
	case "length":
		return "max_tokens"
	case "stop":
		return "end_turn"
	default:
		return finish
	}
}
