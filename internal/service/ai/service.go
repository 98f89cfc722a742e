// Package ai wraps the chat model behind a single Generate call. The
// conversation core treats generation as opaque; only the server's
// websocket handler invokes it.
package ai

import (
	"context"
	"fmt"
	"log"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/cognify-ai/cognify/internal/config"
	"github.com/cognify-ai/cognify/internal/model/chat"
)

// systemPrompt fixes the assistant's identity and tone.
const systemPrompt = "Your name is Cognify. You are a friendly AI assistant who mixes English humor with genuine, helpful responses."

// historyLimit caps how many prior turns are replayed to the model.
const historyLimit = 10

// Generator produces an assistant reply from accumulated conversation
// content. The websocket handler depends on this interface so tests can
// substitute a fake.
type Generator interface {
	Generate(ctx context.Context, history []chat.Message, query string) (string, error)
}

// Service runs the generation chain against the configured chat model.
type Service struct {
	chatModel model.ChatModel
	chain     compose.Runnable[map[string]any, *schema.Message]
}

// NewService builds the prompt/model chain once; Generate reuses it.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{chatModel: chatModel, chain: runnable}, nil
}

// Generate runs one exchange: system prompt, recent history, user query.
func (s *Service) Generate(ctx context.Context, history []chat.Message, query string) (string, error) {
	input := map[string]any{
		"system":  systemPrompt,
		"history": buildHistoryMessages(history),
		"query":   query,
	}

	response, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}

	log.Printf("[ai] generated response, length=%d", len(response.Content))
	return response.Content, nil
}

// buildHistoryMessages maps the most recent transcript window into model
// messages. System entries (error banners) never reach the model.
func buildHistoryMessages(messages []chat.Message) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	startIdx := 0
	if len(messages) > historyLimit {
		startIdx = len(messages) - historyLimit
	}

	history := make([]*schema.Message, 0, len(messages)-startIdx)
	for _, msg := range messages[startIdx:] {
		switch msg.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.RoleModel:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}
	return history
}
