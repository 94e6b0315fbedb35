package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/raggy/raggy-go/internal/rag"
)

// DefaultGenerateTimeout bounds a single generation call.
const DefaultGenerateTimeout = 120 * time.Second

// Generator adapts an eino ChatModel to the rag.Generator interface. Backend
// failures and timeouts surface as rag.ErrGenerationUnavailable.
type Generator struct {
	// chat is the underlying chat model.
	chat model.BaseChatModel
	// timeout bounds a single Generate call.
	timeout time.Duration
}

// NewGenerator wraps chat. A non-positive timeout falls back to
// DefaultGenerateTimeout.
func NewGenerator(chat model.BaseChatModel, timeout time.Duration) *Generator {
	if timeout <= 0 {
		timeout = DefaultGenerateTimeout
	}
	return &Generator{chat: chat, timeout: timeout}
}

// Generate sends the prompt as a single user message and returns the model's
// reply text.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	msg, err := g.chat.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return "", fmt.Errorf("%w: %v", rag.ErrGenerationUnavailable, err)
	}
	if msg == nil || msg.Content == "" {
		return "", fmt.Errorf("%w: model returned an empty response", rag.ErrGenerationUnavailable)
	}
	return msg.Content, nil
}
