package insight

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Generator produces the raw text of an answer from a system and a user
// prompt. Implementations must be safe for concurrent use.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ChatGenerator adapts an eino chat model to Generator.
type ChatGenerator struct {
	// model is the chat model built by the provider package.
	model model.BaseChatModel
}

// NewChatGenerator wraps m.
func NewChatGenerator(m model.BaseChatModel) (*ChatGenerator, error) {
	if m == nil {
		return nil, fmt.Errorf("insight: chat model must not be nil")
	}
	return &ChatGenerator{model: m}, nil
}

// Generate sends a two-message conversation and returns the reply content.
func (g *ChatGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	msg, err := g.model.Generate(ctx, []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(userPrompt),
	})
	if err != nil {
		return "", err
	}
	if msg == nil {
		return "", fmt.Errorf("chat model returned no message")
	}
	return msg.Content, nil
}
