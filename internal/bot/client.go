// Package bot implements the Telegram front end: a minimal Bot API
// client, the long-poll loop, and the command handlers that glue chat
// input to the backend services.
package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const defaultAPIBaseURL = "https://api.telegram.org"

// Client is a minimal Telegram Bot API client covering the methods this
// bot needs. It deliberately uses a plain http.Client: Telegram traffic
// must never pass through the backend signing transport.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewClient creates a Bot API client. baseURL "" selects the public API.
func NewClient(httpClient *http.Client, baseURL, token string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}

	if baseURL == "" {
		baseURL = defaultAPIBaseURL
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
	}
}

// Update is one entry from getUpdates.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

// Message is an incoming or outgoing chat message (subset).
type Message struct {
	MessageID int64  `json:"message_id"`
	Date      int64  `json:"date,omitempty"`
	Chat      *Chat  `json:"chat,omitempty"`
	From      *User  `json:"from,omitempty"`
	Text      string `json:"text,omitempty"`
}

// Chat identifies a conversation.
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type,omitempty"`
}

// User is a Telegram account.
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot,omitempty"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
}

// GetMe returns the bot's own account, verifying the token in passing.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var me User
	if err := c.call(ctx, "getMe", nil, &me); err != nil {
		return nil, err
	}

	return &me, nil
}

// GetUpdates long-polls for updates past offset and returns them with
// the next offset to poll from.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, int64, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	secs := int(timeout.Seconds())
	if secs < 1 {
		secs = 1
	}

	params := map[string]any{"timeout": secs}
	if offset > 0 {
		params["offset"] = offset
	}

	// The request context outlives the poll window slightly so Telegram
	// can close the long poll cleanly on its side.
	reqCtx, cancel := context.WithTimeout(ctx, timeout+5*time.Second)
	defer cancel()

	var updates []Update
	if err := c.call(reqCtx, "getUpdates", params, &updates); err != nil {
		return nil, offset, err
	}

	next := offset
	for _, u := range updates {
		if u.UpdateID >= next {
			next = u.UpdateID + 1
		}
	}

	return updates, next, nil
}

// SendMessage sends an HTML-formatted message to a chat.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	params := map[string]any{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	}

	return c.call(ctx, "sendMessage", params, nil)
}

// SendChatAction shows a status indicator ("typing") in the chat.
func (c *Client) SendChatAction(ctx context.Context, chatID int64, action string) error {
	params := map[string]any{
		"chat_id": chatID,
		"action":  action,
	}

	return c.call(ctx, "sendChatAction", params, nil)
}

// call posts a Bot API method and decodes its result envelope.
func (c *Client) call(ctx context.Context, method string, params map[string]any, result any) error {
	var reader io.Reader

	if params != nil {
		payload, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshalling %s request: %w", method, err)
		}

		reader = bytes.NewReader(payload)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reader)
	if err != nil {
		return fmt.Errorf("creating %s request: %w", method, err)
	}

	if params != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s response: %w", method, err)
	}

	var api apiResponse
	if err := json.Unmarshal(raw, &api); err != nil {
		return fmt.Errorf("decoding %s response (status %d): %w", method, resp.StatusCode, err)
	}

	if !api.OK {
		return fmt.Errorf("%s failed: %d %s", method, api.ErrorCode, api.Description)
	}

	if result != nil && len(api.Result) > 0 {
		if err := json.Unmarshal(api.Result, result); err != nil {
			return fmt.Errorf("decoding %s result: %w", method, err)
		}
	}

	return nil
}

// isPollTimeout reports whether a getUpdates error is just the long poll
// running out, which is routine and not worth logging above debug.
func isPollTimeout(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error

	return errors.As(err, &netErr) && netErr.Timeout()
}
