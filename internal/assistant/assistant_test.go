package assistant

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestComplete_ExtractsReply(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello there"}}]}`))
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.Client(), "key-123", testLogger(),
		WithBaseURL(srv.URL), WithModel("test/model"))

	reply, err := c.Complete(context.Background(), []Message{
		{Role: "system", Content: "be helpful"},
		{Role: "user", Content: "hi"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello there", reply)
	assert.Equal(t, "Bearer key-123", gotAuth)
	assert.Equal(t, "test/model", gotBody["model"])
}

func TestComplete_MissingContentFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.Client(), "k", testLogger(), WithBaseURL(srv.URL))

	reply, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, fallbackReply, reply)
}

func TestComplete_ErrorStatusSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.Client(), "k", testLogger(), WithBaseURL(srv.URL))

	_, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "rate limited")
}

func TestComplete_AttributionHeaders(t *testing.T) {
	var referer, title string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		referer = r.Header.Get("HTTP-Referer")
		title = r.Header.Get("X-Title")
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.Client(), "k", testLogger(),
		WithBaseURL(srv.URL), WithAttribution("https://shop.example", "Shop Bot"))

	_, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example", referer)
	assert.Equal(t, "Shop Bot", title)
}
