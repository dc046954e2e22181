// Package llm talks to vision-capable language model providers.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"

	"duumgate/internal/config"
)

// ErrNoCredential means the selected provider has no API key configured.
var ErrNoCredential = errors.New("provider credential not configured")

// Request is one multimodal completion.
type Request struct {
	System          string
	Prompt          string
	ImageURLs       []string
	ImageDetail     string
	Model           string
	MaxOutputTokens int
	// Schema, when set, constrains the reply to JSON matching it.
	Schema     map[string]any
	SchemaName string
}

// Backend returns the raw text reply of a provider for a Request.
type Backend interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

// StatusError carries a non-2xx provider response.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API error %d: %s", e.Provider, e.Code, Truncate(e.Body, 500))
}

// EnvelopeError means the provider answered 2xx with a body that is not its
// documented JSON envelope.
type EnvelopeError struct {
	Body string
	Err  error
}

func (e *EnvelopeError) Error() string {
	return fmt.Sprintf("decode provider envelope: %v", e.Err)
}

func (e *EnvelopeError) Unwrap() error { return e.Err }

// New builds the backend for the configured vision provider.
func New(ctx context.Context, cfg *config.Config) (Backend, error) {
	provider := cfg.Vision.Provider
	provCfg := cfg.VisionProvider()
	if strings.TrimSpace(provCfg.APIKey) == "" {
		return nil, ErrNoCredential
	}
	modelName := provCfg.Model
	if modelName == "" {
		modelName = cfg.Vision.Model
	}
	timeout := time.Duration(cfg.Vision.TimeoutSeconds) * time.Second

	var (
		chatModel model.ToolCallingChatModel
		err       error
	)
	switch provider {
	case "openai-responses":
		return NewResponsesBackend(provCfg.APIKey, provCfg.BaseURL, modelName, &http.Client{Timeout: timeout}), nil
	case "openai":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: provCfg.BaseURL,
			Model:   modelName,
			APIKey:  provCfg.APIKey,
		})
	case "gemini":
		client, cerr := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey: provCfg.APIKey,
		})
		if cerr != nil {
			return nil, fmt.Errorf("new gemini client: %w", cerr)
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  modelName,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    provCfg.APIKey,
			Model:     modelName,
			BaseURL:   baseURLPtr,
			MaxTokens: 3000,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", provider, err)
	}
	return NewChatModelBackend(provider, chatModel), nil
}

// Truncate cuts s to at most n bytes.
func Truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// StripCodeFence removes a surrounding ```json fence some models add.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
