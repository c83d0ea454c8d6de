package agents

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/design-desk/backend/internal/model/chat"
	"github.com/zhouzirui/design-desk/backend/internal/service/ai"
	"github.com/zhouzirui/design-desk/backend/internal/service/fragment"
)

// ReviewTone extracts the copy shown in an image, then reviews its tone.
func (s *Service) ReviewTone(ctx context.Context, imageURL string, history []chat.Message) fragment.Stream {
	return func(yield func(string, error) bool) {
		extraction, err := s.chatModel.Generate(ctx, []*schema.Message{
			schema.SystemMessage(ai.TextExtractionPrompt),
			ai.ImageMessage(ai.TextExtractionInstruction, imageURL),
		})
		if err != nil {
			yield("", fmt.Errorf("extract text content: %w", err))
			return
		}
		extracted := extraction.Content

		messages := []*schema.Message{
			schema.SystemMessage(ai.CopyReviewPrompt),
			schema.UserMessage(ai.CopyReviewInstruction + extracted),
		}
		messages = append(messages, ai.HistoryMessages(history)...)

		reply := fragment.Concat(
			fragment.Text(
				"📝 Extracted text content:\n\n",
				extracted+"\n\n",
				"🔍 Content review:\n\n",
			),
			s.complete(ctx, messages),
		)
		for frag, err := range reply {
			if !yield(frag, err) {
				return
			}
		}
	}
}
