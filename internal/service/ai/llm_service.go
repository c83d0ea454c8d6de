package ai

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/design-desk/backend/internal/model/chat"
)

// Service hosts the completion calls that are not tied to a task handler.
type Service struct {
	titleChain compose.Runnable[map[string]any, *schema.Message]
	log        zerolog.Logger
}

// NewService compiles the title chain on top of chatModel.
func NewService(ctx context.Context, chatModel model.BaseChatModel, logger zerolog.Logger) (*Service, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(titleSystemPrompt),
		schema.UserMessage("{message}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile title chain: %w", err)
	}

	return &Service{
		titleChain: runnable,
		log:        logger.With().Str("component", "ai").Logger(),
	}, nil
}

// GenerateTitle asks for a short thread title seeded only by the first message.
func (s *Service) GenerateTitle(ctx context.Context, message string) (string, error) {
	response, err := s.titleChain.Invoke(ctx, map[string]any{"message": message})
	if err != nil {
		return "", fmt.Errorf("failed to run title chain: %w", err)
	}

	title := CleanTitle(response.Content)
	if title == "" {
		return "", fmt.Errorf("model returned an empty title")
	}

	s.log.Debug().Str("title", title).Msg("generated thread title")
	return title, nil
}

// MaxTitleRunes bounds generated and fallback titles.
const MaxTitleRunes = 80

// CleanTitle keeps the first non-empty line, strips quotes and bounds its length.
func CleanTitle(raw string) string {
	var line string
	for _, l := range strings.Split(raw, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			line = l
			break
		}
	}
	line = strings.TrimPrefix(line, "Title:")
	line = strings.Trim(strings.TrimSpace(line), "\"'`*# ")
	line = strings.Join(strings.Fields(line), " ")
	return truncateRunes(line, MaxTitleRunes)
}

// FallbackTitle derives a title from the message text when generation fails.
func FallbackTitle(message string) string {
	title := CleanTitle(message)
	if title == "" {
		return chat.DefaultThreadName
	}
	return title
}

// HistoryMessages projects stored messages into completion messages. Blank
// bodies are skipped and the sender is lower-cased into the role.
func HistoryMessages(messages []chat.Message) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	history := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		if strings.TrimSpace(msg.Body) == "" {
			continue
		}
		history = append(history, &schema.Message{
			Role:    schema.RoleType(strings.ToLower(msg.Sender)),
			Content: msg.Body,
		})
	}
	return history
}

// ImageMessage builds a user message carrying an instruction and one image URL.
func ImageMessage(text, imageURL string) *schema.Message {
	return &schema.Message{
		Role: schema.User,
		MultiContent: []schema.ChatMessagePart{
			{Type: schema.ChatMessagePartTypeText, Text: text},
			{Type: schema.ChatMessagePartTypeImageURL, ImageURL: &schema.ChatMessageImageURL{URL: imageURL}},
		},
	}
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit]))
}
