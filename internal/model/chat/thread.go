package chat

import "time"

// DefaultThreadName is used when a thread is created without a name.
const DefaultThreadName = "Untitled Thread"

// Thread groups the messages of one conversation.
type Thread struct {
	ID        string         `json:"id"`
	Name      string         `json:"thread_name"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_on"`
	EditedAt  time.Time      `json:"edited_on"`
}

// ThreadSummary is a listing row; LatestMessage is nil for empty threads.
type ThreadSummary struct {
	Thread
	LatestMessage *time.Time `json:"latest_message"`
}
