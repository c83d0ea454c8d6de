package agents

import (
	"context"

	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/design-desk/backend/internal/model/chat"
	"github.com/zhouzirui/design-desk/backend/internal/service/ai"
	"github.com/zhouzirui/design-desk/backend/internal/service/fragment"
)

// ActivePRsPlaceholder is the whole output of the active pull request lookup.
// The lookup is recognised and gated but not backed by the code host yet.
const ActivePRsPlaceholder = "> Looking up your active pull requests is not implemented yet.\n\n"

// Clarify asks the user for the details a task is missing.
func (s *Service) Clarify(ctx context.Context, history []chat.Message) fragment.Stream {
	messages := []*schema.Message{schema.SystemMessage(ai.ClarifyPrompt)}
	return s.complete(ctx, append(messages, ai.HistoryMessages(history)...))
}

// Chat continues the conversation with nothing but the raw history and the
// new user message.
func (s *Service) Chat(ctx context.Context, history []chat.Message, userMessage string) fragment.Stream {
	messages := ai.HistoryMessages(history)
	return s.complete(ctx, append(messages, schema.UserMessage(userMessage)))
}

// ActivePRs emits the fixed placeholder.
func (s *Service) ActivePRs(context.Context) fragment.Stream {
	return fragment.Text(ActivePRsPlaceholder)
}
