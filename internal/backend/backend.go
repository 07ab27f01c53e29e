// Package backend implements REST clients for the trusted backend: auth
// token lifecycle, user management and the product catalog. All clients
// share one *http.Client; signing is the transport's job, so nothing here
// knows about signatures.
//
// Responses arrive in a uniform envelope:
//
//	{"success": bool, "data": ..., "message": "...", "errors": {...}}
//
// A response with success=false becomes a *APIError. An absent success
// field counts as success.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// APIError is a backend-reported failure: the envelope's message plus any
// per-field validation errors. Retrieve it with errors.As to distinguish
// an explicit rejection from a transport failure.
type APIError struct {
	StatusCode int
	Message    string
	Errors     map[string][]string
}

func (e *APIError) Error() string {
	if len(e.Errors) == 0 {
		return e.Message
	}

	return fmt.Sprintf("%s (%d field errors)", e.Message, len(e.Errors))
}

// Details returns the field errors as "field: message" lines in stable
// order, for rendering back to the user.
func (e *APIError) Details() []string {
	fields := make([]string, 0, len(e.Errors))
	for field := range e.Errors {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var lines []string
	for _, field := range fields {
		for _, msg := range e.Errors[field] {
			lines = append(lines, field+": "+msg)
		}
	}

	return lines
}

// envelope is the backend's uniform response wrapper. Success is a
// pointer so an absent field reads as success, matching the backend's
// convention for bare payloads.
type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Errors  fieldErrors     `json:"errors"`
}

// fieldErrors tolerates both {"field": ["msg"]} and {"field": "msg"}
// shapes the backend emits depending on the validation layer.
type fieldErrors map[string][]string

func (f *fieldErrors) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := make(map[string][]string, len(raw))
	for field, value := range raw {
		var list []string
		if err := json.Unmarshal(value, &list); err == nil {
			out[field] = list
			continue
		}

		var single string
		if err := json.Unmarshal(value, &single); err == nil {
			out[field] = []string{single}
			continue
		}

		out[field] = []string{string(value)}
	}

	*f = out

	return nil
}

// caller is the shared request core for the typed clients.
type caller struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

func newCaller(httpClient *http.Client, baseURL string, logger *slog.Logger) caller {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if logger == nil {
		logger = slog.Default()
	}

	return caller{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/") + "/",
		logger:     logger,
	}
}

// do sends a request and decodes the envelope's data field into out.
// body is JSON-marshalled when non-nil; bearer, when set, becomes an
// Authorization header; query is appended to the endpoint URL.
func (c caller) do(ctx context.Context, method, endpoint string, query url.Values, body, out any, bearer string) error {
	var reader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshalling request body: %w", err)
		}

		reader = bytes.NewReader(payload)
	}

	fullURL := c.baseURL + strings.TrimPrefix(endpoint, "/")
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request to %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response from %s: %w", endpoint, err)
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return fmt.Errorf("%s returned status %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(respBody)))
		}

		return fmt.Errorf("decoding response from %s: %w", endpoint, err)
	}

	if (env.Success != nil && !*env.Success) || resp.StatusCode >= http.StatusBadRequest {
		message := env.Message
		if message == "" {
			message = "unknown error"
		}

		c.logger.Debug("backend rejected request",
			slog.String("endpoint", endpoint),
			slog.Int("status", resp.StatusCode),
			slog.String("message", message),
		)

		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    message,
			Errors:     env.Errors,
		}
	}

	if out == nil {
		return nil
	}

	if len(env.Data) == 0 {
		return nil
	}

	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decoding data from %s: %w", endpoint, err)
	}

	return nil
}
