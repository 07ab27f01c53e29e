package assistant

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHistory(t *testing.T, max int) (*History, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewHistory(client, max), mr
}

func TestHistory_EmptyForUnknownPrincipal(t *testing.T) {
	h, _ := testHistory(t, 10)

	messages, err := h.Messages(context.Background(), "42")
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestHistory_AppendAndReadBack(t *testing.T) {
	h, _ := testHistory(t, 10)
	ctx := context.Background()

	require.NoError(t, h.Append(ctx, "42", Message{Role: "user", Content: "hi"}))
	require.NoError(t, h.Append(ctx, "42", Message{Role: "assistant", Content: "hello"}))

	messages, err := h.Messages(ctx, "42")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "hi", messages[0].Content)
	assert.Equal(t, "hello", messages[1].Content)
}

func TestHistory_TrimsOldestTurns(t *testing.T) {
	h, _ := testHistory(t, 3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, h.Append(ctx, "42", Message{
			Role:    "user",
			Content: fmt.Sprintf("m%d", i),
		}))
	}

	messages, err := h.Messages(ctx, "42")
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "m2", messages[0].Content)
	assert.Equal(t, "m4", messages[2].Content)
}

func TestHistory_TrimPinsSystemPrompt(t *testing.T) {
	h, _ := testHistory(t, 3)
	ctx := context.Background()

	require.NoError(t, h.Append(ctx, "42", Message{Role: "system", Content: "be helpful"}))
	for i := 0; i < 5; i++ {
		require.NoError(t, h.Append(ctx, "42", Message{
			Role:    "user",
			Content: fmt.Sprintf("m%d", i),
		}))
	}

	messages, err := h.Messages(ctx, "42")
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "system", messages[0].Role)
	assert.Equal(t, "m3", messages[1].Content)
	assert.Equal(t, "m4", messages[2].Content)
}

func TestHistory_ExpirySet(t *testing.T) {
	h, mr := testHistory(t, 10)

	require.NoError(t, h.Append(context.Background(), "42", Message{Role: "user", Content: "hi"}))

	assert.Equal(t, 7*24*time.Hour, mr.TTL("user:42:conversation_history"))
}

func TestHistory_Clear(t *testing.T) {
	h, mr := testHistory(t, 10)
	ctx := context.Background()

	require.NoError(t, h.Append(ctx, "42", Message{Role: "user", Content: "hi"}))
	require.NoError(t, h.Clear(ctx, "42"))

	assert.False(t, mr.Exists("user:42:conversation_history"))
}

func TestHistory_CorruptRecordReadsAsEmpty(t *testing.T) {
	h, mr := testHistory(t, 10)

	mr.Set("user:42:conversation_history", "not json")

	messages, err := h.Messages(context.Background(), "42")
	require.NoError(t, err)
	assert.Empty(t, messages)
}
