package chat

import (
	"context"
	"errors"
)

var (
	ErrThreadNotFound  = errors.New("thread not found")
	ErrMessageNotFound = errors.New("message not found")
)

// Store persists threads and their messages. Deleting a thread deletes its
// messages. ListMessages returns messages in creation order.
type Store interface {
	CreateThread(ctx context.Context, thread Thread) (Thread, error)
	GetThread(ctx context.Context, threadID string) (Thread, error)
	ListThreads(ctx context.Context) ([]ThreadSummary, error)
	UpdateThread(ctx context.Context, thread Thread) (Thread, error)
	DeleteThread(ctx context.Context, threadID string) error

	CreateMessage(ctx context.Context, message Message) (Message, error)
	GetMessage(ctx context.Context, messageID string) (Message, error)
	UpdateMessage(ctx context.Context, message Message) (Message, error)
	DeleteMessage(ctx context.Context, messageID string) error
	ListMessages(ctx context.Context, threadID string) ([]Message, error)
	CountMessages(ctx context.Context, threadID string) (int, error)

	Ping(ctx context.Context) error
}

// MergeMetadata copies src into dst, allocating dst when needed.
func MergeMetadata(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
