package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/voralis/skycast/backend/internal/config"
)

// Service wraps the hosted chat model with the weather tools bound.
// Given conversation history it produces either incremental text or a
// tool-call request; it never decides dialogue semantics itself.
type Service struct {
	chatModel model.ChatModel
	cfg       config.AIConfig
}

// NewService creates the model capability with the given tool
// descriptors advertised on every call.
func NewService(ctx context.Context, cfg config.AIConfig, toolInfos []*schema.ToolInfo) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	if len(toolInfos) > 0 {
		if err := chatModel.BindTools(toolInfos); err != nil {
			return nil, fmt.Errorf("failed to bind tools: %w", err)
		}
	}

	return &Service{chatModel: chatModel, cfg: cfg}, nil
}

// Stream runs one model call over the full history, delivering the
// response incrementally.
func (s *Service) Stream(ctx context.Context, history []*schema.Message) (*schema.StreamReader[*schema.Message], error) {
	stream, err := s.chatModel.Stream(ctx, history)
	if err != nil {
		return nil, fmt.Errorf("failed to stream model output: %w", err)
	}
	return stream, nil
}
