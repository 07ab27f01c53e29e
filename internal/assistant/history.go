package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// defaultMaxMessages bounds a stored conversation. Older turns are
	// evicted first; a leading system prompt is pinned.
	defaultMaxMessages = 10

	historyExpiry = 7 * 24 * time.Hour
)

// History keeps per-user conversation history in Redis with bounded-list
// eviction and a fixed expiry, so abandoned conversations age out on
// their own.
type History struct {
	rdb *redis.Client
	max int
}

// NewHistory creates a history over an existing Redis client. maxMessages
// <= 0 selects the default bound.
func NewHistory(rdb *redis.Client, maxMessages int) *History {
	if maxMessages <= 0 {
		maxMessages = defaultMaxMessages
	}

	return &History{rdb: rdb, max: maxMessages}
}

func historyKey(principal string) string {
	return "user:" + principal + ":conversation_history"
}

// Messages returns the stored conversation, oldest first. A missing or
// unreadable record reads as an empty conversation.
func (h *History) Messages(ctx context.Context, principal string) ([]Message, error) {
	raw, err := h.rdb.Get(ctx, historyKey(principal)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("reading conversation history: %w", err)
	}

	var messages []Message
	if err := json.Unmarshal([]byte(raw), &messages); err != nil {
		return nil, nil
	}

	return messages, nil
}

// Append adds a message, trimming the conversation to the bound. When
// the first stored message is a system prompt it is pinned: trimming
// drops the oldest user/assistant turns instead.
func (h *History) Append(ctx context.Context, principal string, msg Message) error {
	messages, err := h.Messages(ctx, principal)
	if err != nil {
		return err
	}

	messages = append(messages, msg)
	messages = trim(messages, h.max)

	payload, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("marshalling conversation history: %w", err)
	}

	if err := h.rdb.Set(ctx, historyKey(principal), payload, historyExpiry).Err(); err != nil {
		return fmt.Errorf("writing conversation history: %w", err)
	}

	return nil
}

// Clear forgets the principal's conversation.
func (h *History) Clear(ctx context.Context, principal string) error {
	return h.rdb.Del(ctx, historyKey(principal)).Err()
}

func trim(messages []Message, max int) []Message {
	if len(messages) <= max {
		return messages
	}

	var system *Message
	if messages[0].Role == "system" {
		system = &messages[0]
		messages = messages[1:]
	}

	keep := max
	if system != nil {
		keep--
	}

	messages = messages[len(messages)-keep:]

	if system != nil {
		messages = append([]Message{*system}, messages...)
	}

	return messages
}
