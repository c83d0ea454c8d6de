package chat

import "time"

// Message is one entry of a thread. Body and metadata stay mutable until the
// message is deleted.
type Message struct {
	ID        string         `json:"id"`
	ThreadID  string         `json:"thread_id"`
	Sender    string         `json:"sender"`
	Kind      string         `json:"type"`
	Body      string         `json:"message"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_on"`
	EditedAt  time.Time      `json:"edited_on"`
}

// Sender and kind used for replies written by the assistant.
const (
	AssistantSender = "Assistant"
	AssistantKind   = "assistant"
)

// MetadataErrorKey records a failed turn on the assistant message.
const MetadataErrorKey = "error"
