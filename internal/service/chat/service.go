package chat

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zhouzirui/design-desk/backend/internal/model/chat"
)

// Service is the in-memory chat.Store, used for tests and STORAGE_DRIVER=memory.
type Service struct {
	mu       sync.RWMutex
	threads  map[string]chat.Thread
	messages map[string][]chat.Message
	owners   map[string]string
	now      func() time.Time
}

var _ chat.Store = (*Service)(nil)

// NewService bootstraps an empty in-memory store.
func NewService() *Service {
	return &Service{
		threads:  make(map[string]chat.Thread),
		messages: make(map[string][]chat.Message),
		owners:   make(map[string]string),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateThread provisions a thread, assigning its identifier.
func (s *Service) CreateThread(_ context.Context, thread chat.Thread) (chat.Thread, error) {
	now := s.now()
	thread.ID = uuid.NewString()
	if thread.Name == "" {
		thread.Name = chat.DefaultThreadName
	}
	thread.Metadata = chat.MergeMetadata(nil, thread.Metadata)
	thread.CreatedAt = now
	thread.EditedAt = now

	s.mu.Lock()
	s.threads[thread.ID] = thread
	s.messages[thread.ID] = make([]chat.Message, 0, 16)
	s.mu.Unlock()

	return thread, nil
}

// GetThread retrieves a thread by identifier.
func (s *Service) GetThread(_ context.Context, threadID string) (chat.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	thread, ok := s.threads[threadID]
	if !ok {
		return chat.Thread{}, chat.ErrThreadNotFound
	}
	return copyThread(thread), nil
}

// ListThreads returns threads with the most recently active first.
func (s *Service) ListThreads(_ context.Context) ([]chat.ThreadSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]chat.ThreadSummary, 0, len(s.threads))
	for id, thread := range s.threads {
		summary := chat.ThreadSummary{Thread: copyThread(thread)}
		for _, msg := range s.messages[id] {
			created := msg.CreatedAt
			if summary.LatestMessage == nil || created.After(*summary.LatestMessage) {
				summary.LatestMessage = &created
			}
		}
		out = append(out, summary)
	}

	sort.SliceStable(out, func(i, j int) bool {
		li, lj := out[i].LatestMessage, out[j].LatestMessage
		switch {
		case li != nil && lj != nil && !li.Equal(*lj):
			return li.After(*lj)
		case li != nil && lj == nil:
			return true
		case li == nil && lj != nil:
			return false
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// UpdateThread replaces the thread's name and metadata.
func (s *Service) UpdateThread(_ context.Context, thread chat.Thread) (chat.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.threads[thread.ID]
	if !ok {
		return chat.Thread{}, chat.ErrThreadNotFound
	}
	current.Name = thread.Name
	current.Metadata = chat.MergeMetadata(nil, thread.Metadata)
	current.EditedAt = s.now()
	s.threads[thread.ID] = current
	return copyThread(current), nil
}

// DeleteThread removes a thread and all of its messages.
func (s *Service) DeleteThread(_ context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.threads[threadID]; !ok {
		return chat.ErrThreadNotFound
	}
	for _, msg := range s.messages[threadID] {
		delete(s.owners, msg.ID)
	}
	delete(s.messages, threadID)
	delete(s.threads, threadID)
	return nil
}

// CreateMessage appends a message to the thread history.
func (s *Service) CreateMessage(_ context.Context, message chat.Message) (chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.threads[message.ThreadID]; !ok {
		return chat.Message{}, chat.ErrThreadNotFound
	}

	now := s.now()
	message.ID = uuid.NewString()
	message.Metadata = chat.MergeMetadata(nil, message.Metadata)
	message.CreatedAt = now
	message.EditedAt = now

	s.messages[message.ThreadID] = append(s.messages[message.ThreadID], message)
	s.owners[message.ID] = message.ThreadID
	return copyMessage(message), nil
}

// GetMessage retrieves a message by identifier.
func (s *Service) GetMessage(_ context.Context, messageID string) (chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, threadID, ok := s.locate(messageID)
	if !ok {
		return chat.Message{}, chat.ErrMessageNotFound
	}
	return copyMessage(s.messages[threadID][idx]), nil
}

// UpdateMessage overwrites sender, kind, body and metadata in place.
func (s *Service) UpdateMessage(_ context.Context, message chat.Message) (chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, threadID, ok := s.locate(message.ID)
	if !ok {
		return chat.Message{}, chat.ErrMessageNotFound
	}
	current := s.messages[threadID][idx]
	current.Sender = message.Sender
	current.Kind = message.Kind
	current.Body = message.Body
	current.Metadata = chat.MergeMetadata(nil, message.Metadata)
	current.EditedAt = s.now()
	s.messages[threadID][idx] = current
	return copyMessage(current), nil
}

// DeleteMessage removes a single message.
func (s *Service) DeleteMessage(_ context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, threadID, ok := s.locate(messageID)
	if !ok {
		return chat.ErrMessageNotFound
	}
	list := s.messages[threadID]
	s.messages[threadID] = append(list[:idx:idx], list[idx+1:]...)
	delete(s.owners, messageID)
	return nil
}

// ListMessages returns stored messages for the thread in creation order.
func (s *Service) ListMessages(_ context.Context, threadID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages, ok := s.messages[threadID]
	if !ok {
		return nil, chat.ErrThreadNotFound
	}

	copied := make([]chat.Message, len(messages))
	for i, msg := range messages {
		copied[i] = copyMessage(msg)
	}
	return copied, nil
}

// CountMessages reports how many messages the thread holds.
func (s *Service) CountMessages(_ context.Context, threadID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages, ok := s.messages[threadID]
	if !ok {
		return 0, chat.ErrThreadNotFound
	}
	return len(messages), nil
}

// Ping always succeeds for the in-memory store.
func (s *Service) Ping(context.Context) error { return nil }

func (s *Service) locate(messageID string) (int, string, bool) {
	threadID, ok := s.owners[messageID]
	if !ok {
		return 0, "", false
	}
	for i, msg := range s.messages[threadID] {
		if msg.ID == messageID {
			return i, threadID, true
		}
	}
	return 0, "", false
}

func copyThread(t chat.Thread) chat.Thread {
	t.Metadata = chat.MergeMetadata(nil, t.Metadata)
	return t
}

func copyMessage(m chat.Message) chat.Message {
	m.Metadata = chat.MergeMetadata(nil, m.Metadata)
	return m
}
