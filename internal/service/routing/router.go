// Package routing classifies a conversation into a directive and dispatches
// the directive to exactly one task handler.
package routing

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/design-desk/backend/internal/model/chat"
	"github.com/zhouzirui/design-desk/backend/internal/model/settings"
	"github.com/zhouzirui/design-desk/backend/internal/service/ai"
)

// Router issues the non-streaming classification call.
type Router struct {
	chain compose.Runnable[map[string]any, *schema.Message]
	log   zerolog.Logger
}

// NewRouter compiles the classification chain.
func NewRouter(ctx context.Context, chatModel model.BaseChatModel, logger zerolog.Logger) (*Router, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(routerSystemPrompt),
		schema.MessagesPlaceholder("history", false),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile router chain: %w", err)
	}

	return &Router{
		chain: runnable,
		log:   logger.With().Str("component", "router").Logger(),
	}, nil
}

// Classify returns the raw directive for the history. A failed call becomes a
// literal error string, which no tag pattern matches.
func (r *Router) Classify(ctx context.Context, history []chat.Message, caps settings.Capabilities) string {
	input := map[string]any{
		"actions": describeActions(caps),
		"history": ai.HistoryMessages(history),
	}

	msg, err := r.chain.Invoke(ctx, input)
	if err != nil {
		r.log.Error().Err(err).Msg("classification call failed")
		return fmt.Sprintf("Error: failed to classify the conversation: %v", err)
	}

	directive := strings.TrimSpace(msg.Content)
	r.log.Debug().Str("directive", directive).Msg("classified conversation")
	return directive
}

type actionDoc struct {
	usage string
	about string
	gate  func(settings.Capabilities) bool
}

var actionDocs = []actionDoc{
	{"<extract_images_from_figma>FIGMA_URL</extract_images_from_figma>", "export the frames of a Figma link as images", figmaGate},
	{"<review_design>IMAGE_URL</review_design>", "critique one image; repeat the tag for several images", figmaGate},
	{"<review_design_frame>FIGMA_FRAME_URL</review_design_frame>", "critique a single Figma frame", figmaGate},
	{"<tone_text_copy_review>IMAGE_URL</tone_text_copy_review>", "review the copy and tone in one image; repeat the tag for several images", figmaGate},
	{"<my_active_prs/>", "look up the user's active pull requests", codeHostGate},
	{"<more_info_needed/>", "the request is missing details (for example a URL) needed to act", nil},
	{"<continue_conversation/>", "anything else: answer as a normal assistant", nil},
}

func figmaGate(c settings.Capabilities) bool    { return c.Figma }
func codeHostGate(c settings.Capabilities) bool { return c.CodeHost }

// describeActions lists every action; gated ones are marked disabled so the
// model can tell the user to enable them instead of selecting them.
func describeActions(caps settings.Capabilities) string {
	var b strings.Builder
	for _, doc := range actionDocs {
		b.WriteString("- ")
		b.WriteString(doc.usage)
		b.WriteString(": ")
		b.WriteString(doc.about)
		if doc.gate != nil && !doc.gate(caps) {
			b.WriteString(" (disabled: the integration is not configured in settings)")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

const routerSystemPrompt = `You route the latest request of a design assistant conversation.
Read the conversation and reply with tags only, choosing from these actions:

{actions}

Rules:
- Reply with one or more tags and nothing else.
- Copy URLs exactly as the user wrote them.
- Use one tag per URL when several images must be reviewed.
- If an action is disabled, reply with <continue_conversation/> so the assistant can explain how to enable it.
- When unsure, reply with <continue_conversation/>.`
