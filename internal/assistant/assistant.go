// Package assistant provides the AI support chat: an OpenRouter-compatible
// completions client and per-user conversation history kept in Redis.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/tidwall/gjson"
)

const (
	defaultBaseURL = "https://openrouter.ai/api/v1"
	defaultModel   = "deepseek/deepseek-r1:free"

	// fallbackReply is returned when the provider answers with an
	// unexpected shape instead of a completion.
	fallbackReply = "Sorry, I couldn't generate a response at this time."
)

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client talks to an OpenRouter-compatible chat-completions API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	referer    string
	title      string
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL. Used by tests and self-hosted
// gateways.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithModel selects the completion model.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithAttribution sets the HTTP-Referer and X-Title headers OpenRouter
// uses for app attribution.
func WithAttribution(referer, title string) Option {
	return func(c *Client) {
		c.referer = referer
		c.title = title
	}
}

// NewClient creates an assistant client. The http.Client should carry an
// explicit timeout; completions are the slowest outbound calls this
// process makes.
func NewClient(httpClient *http.Client, apiKey string, logger *slog.Logger, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		httpClient: httpClient,
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		model:      defaultModel,
		logger:     logger,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Complete sends the conversation and returns the assistant's reply text.
// A well-formed provider response with no usable completion yields the
// fallback reply rather than an error: the support chat degrades, it does
// not break.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"model":    c.model,
		"messages": messages,
	})
	if err != nil {
		return "", fmt.Errorf("marshalling completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating completion request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	if c.referer != "" {
		req.Header.Set("HTTP-Referer", c.referer)
	}

	if c.title != "" {
		req.Header.Set("X-Title", c.title)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending completion request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading completion response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("completion API returned status %d: %s", resp.StatusCode, gjson.GetBytes(body, "error.message").String())
	}

	content := gjson.GetBytes(body, "choices.0.message.content")
	if !content.Exists() || content.String() == "" {
		c.logger.Warn("completion response had no content",
			slog.String("model", c.model),
		)

		return fallbackReply, nil
	}

	return content.String(), nil
}
