// Package agents holds the task handlers the dispatcher selects from. Every
// handler returns a lazy fragment.Stream; no work happens until it is ranged.
// Failures are yielded as the stream's final error and are formatted by the
// caller.
package agents

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/design-desk/backend/internal/service/fragment"
	"github.com/zhouzirui/design-desk/backend/internal/service/figma"
)

// DesignFiles is the design-file export contract.
type DesignFiles interface {
	GetFile(ctx context.Context, fileKey string) (*figma.File, error)
	RenderImages(ctx context.Context, fileKey string, nodeIDs []string) (map[string]string, error)
}

// Service implements every task handler on top of one chat model.
type Service struct {
	chatModel model.BaseChatModel
	files     DesignFiles
	log       zerolog.Logger
}

// NewService wires the handlers. files may be nil when no design-file
// integration is available; the design handlers then fail per call.
func NewService(chatModel model.BaseChatModel, files DesignFiles, logger zerolog.Logger) *Service {
	return &Service{
		chatModel: chatModel,
		files:     files,
		log:       logger.With().Str("component", "agents").Logger(),
	}
}

// complete opens a streaming completion and normalizes it.
func (s *Service) complete(ctx context.Context, messages []*schema.Message) fragment.Stream {
	return func(yield func(string, error) bool) {
		reader, err := s.chatModel.Stream(ctx, messages)
		if err != nil {
			yield("", fmt.Errorf("start completion stream: %w", err))
			return
		}
		for frag, err := range fragment.Normalize(reader) {
			if !yield(frag, err) {
				return
			}
		}
	}
}

func (s *Service) designFiles() (DesignFiles, error) {
	if s.files == nil {
		return nil, figma.ErrMissingToken
	}
	return s.files, nil
}
