package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ChatModelBackend adapts an eino chat model. Providers behind it cannot be
// forced into a JSON schema, so the schema travels in the system prompt and
// callers validate the reply.
type ChatModelBackend struct {
	name  string
	model model.BaseChatModel
}

func NewChatModelBackend(name string, chatModel model.BaseChatModel) *ChatModelBackend {
	return &ChatModelBackend{name: name, model: chatModel}
}

func (b *ChatModelBackend) Name() string { return b.name }

func (b *ChatModelBackend) Complete(ctx context.Context, req Request) (string, error) {
	system := req.System
	if req.Schema != nil {
		raw, err := json.Marshal(req.Schema)
		if err != nil {
			return "", fmt.Errorf("marshal schema: %w", err)
		}
		if system != "" {
			system += "\n\n"
		}
		system += "Return ONLY JSON (no markdown) matching this JSON Schema:\n" + string(raw)
	}

	parts := make([]schema.ChatMessagePart, 0, len(req.ImageURLs)+1)
	parts = append(parts, schema.ChatMessagePart{
		Type: schema.ChatMessagePartTypeText,
		Text: req.Prompt,
	})
	for _, u := range req.ImageURLs {
		parts = append(parts, schema.ChatMessagePart{
			Type: schema.ChatMessagePartTypeImageURL,
			ImageURL: &schema.ChatMessageImageURL{
				URL:    u,
				Detail: schema.ImageURLDetail(req.ImageDetail),
			},
		})
	}

	messages := make([]*schema.Message, 0, 2)
	if system != "" {
		messages = append(messages, schema.SystemMessage(system))
	}
	messages = append(messages, &schema.Message{
		Role:         schema.User,
		MultiContent: parts,
	})

	var opts []model.Option
	if req.MaxOutputTokens > 0 {
		opts = append(opts, model.WithMaxTokens(req.MaxOutputTokens))
	}
	resp, err := b.model.Generate(ctx, messages, opts...)
	if err != nil {
		return "", fmt.Errorf("%s generate failed: %w", b.name, err)
	}
	if resp == nil {
		return "", errors.New("empty model response")
	}
	return StripCodeFence(resp.Content), nil
}
