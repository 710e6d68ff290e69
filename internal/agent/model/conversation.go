package model

import (
	"context"
)

// ConversationStore is the sole source of multi-turn memory. Implementations
// must apply Merge atomically per thread id and never expose one thread's
// state to another.
type ConversationStore interface {
	// Get returns the state for a thread, or an empty state if the thread is unknown.
	Get(ctx context.Context, threadID string) (*ConversationState, error)

	// Merge applies a partial update to the persisted state and returns the result.
	Merge(ctx context.Context, threadID string, update Update) (*ConversationState, error)

	// Delete evicts the thread.
	Delete(ctx context.Context, threadID string) error
}
