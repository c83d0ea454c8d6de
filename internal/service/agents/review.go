package agents

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/design-desk/backend/internal/model/chat"
	"github.com/zhouzirui/design-desk/backend/internal/service/ai"
	"github.com/zhouzirui/design-desk/backend/internal/service/figma"
	"github.com/zhouzirui/design-desk/backend/internal/service/fragment"
)

// ReviewDesign critiques one exported image in the context of the thread.
func (s *Service) ReviewDesign(ctx context.Context, imageURL string, history []chat.Message) fragment.Stream {
	return s.complete(ctx, reviewMessages(ai.DesignReviewPrompt, imageURL, history))
}

// ReviewFrame rasterises one Figma frame and critiques it.
func (s *Service) ReviewFrame(ctx context.Context, frameURL string, history []chat.Message) fragment.Stream {
	return func(yield func(string, error) bool) {
		files, err := s.designFiles()
		if err != nil {
			yield("", err)
			return
		}

		target, err := figma.ParseURL(frameURL)
		if err != nil {
			yield("", err)
			return
		}
		if !yield("> Extracted Figma file and node IDs\n\n", nil) {
			return
		}

		file, err := files.GetFile(ctx, target.FileKey)
		if err != nil {
			yield("", err)
			return
		}
		if !yield("> Retrieved Figma file data\n\n", nil) {
			return
		}

		node := figma.FindInDocument(file, target.NodeID)
		if node == nil {
			yield("", fmt.Errorf("node with ID %s not found in the file", target.NodeID))
			return
		}
		if !yield(fmt.Sprintf("> Found frame: %s\n\n", node.Name), nil) {
			return
		}

		images, err := files.RenderImages(ctx, target.FileKey, []string{target.NodeID})
		if err != nil {
			yield("", err)
			return
		}
		pngURL, ok := images[target.NodeID]
		if !ok {
			yield("", fmt.Errorf("no PNG URL found for the node"))
			return
		}
		if !yield("> Retrieved frame image URL\n\n", nil) {
			return
		}

		for frag, err := range s.complete(ctx, reviewMessages(ai.FrameReviewPrompt, pngURL, history)) {
			if !yield(frag, err) {
				return
			}
		}
	}
}

func reviewMessages(systemPrompt, imageURL string, history []chat.Message) []*schema.Message {
	messages := []*schema.Message{schema.SystemMessage(systemPrompt)}
	messages = append(messages, ai.HistoryMessages(history)...)
	return append(messages, ai.ImageMessage(ai.DesignReviewInstruction, imageURL))
}
