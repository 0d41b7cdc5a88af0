// Package ollama adapts a local Ollama server's /api/chat endpoint to
// anthropic.Client.
package ollama

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
	DefaultBaseURL = "http://localhost:11434"
	DefaultNumCtx  = 8192
	DefaultTimeout = 120 * time.Second
)

// Config holds connection settings.
type Config struct {
	BaseURL string
	// NumCtx is the context window requested per call. Lead prompts overflow
	// Ollama's small built-in default.
	NumCtx     int
	HTTPClient *http.Client
}

type client struct {
	hc      *http.Client
	baseURL string
	numCtx  int
}

// NewClient returns an anthropic.Client backed by Ollama. Local models are
// not metered, so responses carry token counts but no cache usage.
func NewClient(cfg Config) anthropic.Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.NumCtx <= 0 {
		cfg.NumCtx = DefaultNumCtx
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &client{
		hc:      cfg.HTTPClient,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		numCtx:  cfg.NumCtx,
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  *options      `json:"options,omitempty"`
}

type options struct {
	NumPredict  int64    `json:"num_predict,omitempty"`
	NumCtx      int      `json:"num_ctx,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Model           string      `json:"model"`
	CreatedAt       string      `json:"created_at"`
	Message         chatMessage `json:"message"`
	Done            bool        `json:"done"`
	DoneReason      string      `json:"done_reason"`
	PromptEvalCount int64       `json:"prompt_eval_count"`
	EvalCount       int64       `json:"eval_count"`
	Error           string      `json:"error"`
}

func (c *client) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	messages := make([]chatMessage, 0, len(req.Messages)+1)
	if system := anthropic.SystemText(req.System); system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	for _, m := range req.Messages {
		messages = append(messages, chatMessage{Role: m.Role, Content: m.Content})
	}

	payload, err := json.Marshal(chatRequest{
		Model:    req.Model,
		Messages: messages,
		Options: &options{
			NumPredict:  req.MaxTokens,
			NumCtx:      c.numCtx,
			Temperature: req.Temperature,
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "ollama: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "ollama: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "ollama: send request (is `ollama serve` running?)")
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "ollama: read response")
	}

	var chat chatResponse
	decodeErr := json.Unmarshal(raw, &chat)
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(raw))
		if decodeErr == nil && chat.Error != "" {
			msg = chat.Error
		}
		return nil, eris.Wrap(&anthropic.APIError{
			Provider:   "ollama",
			StatusCode: resp.StatusCode,
			Message:    msg,
		}, "ollama: create message")
	}
	if decodeErr != nil {
		return nil, eris.Wrap(decodeErr, "ollama: decode response")
	}
	if chat.Error != "" {
		return nil, eris.Errorf("ollama: %s", chat.Error)
	}

	stop := "end_turn"
	if chat.DoneReason == "length" {
		stop = "max_tokens"
	}
	return &anthropic.MessageResponse{
		Model:      chat.Model,
		Content:    []anthropic.ContentBlock{{Type: "text", Text: chat.Message.Content}},
		StopReason: stop,
		Usage: anthropic.TokenUsage{
			InputTokens:  chat.PromptEvalCount,
			OutputTokens: chat.EvalCount,
		},
	}, nil
}
