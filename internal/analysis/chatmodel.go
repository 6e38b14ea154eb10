package analysis

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"labreader/internal/config"
)

var defaultModels = map[string]string{
	config.ProviderGemini: "gemini-2.5-flash",
	config.ProviderOpenAI: "gpt-4o-mini",
	config.ProviderClaude: "claude-3-5-haiku-latest",
	config.ProviderVertex: "gemini-1.5-pro",
}

func modelName(provider string, cfg config.ProviderConfig) string {
	if cfg.Model != "" {
		return cfg.Model
	}
	return defaultModels[provider]
}

// NewChatModel builds an eino chat model for gemini, openai or claude.
func NewChatModel(ctx context.Context, provider string, cfg config.ProviderConfig, maxTokens int) (model.BaseChatModel, error) {
	name := modelName(provider, cfg)
	switch provider {
	case config.ProviderOpenAI:
		cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: cfg.BaseURL,
			Model:   name,
			APIKey:  cfg.APIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("init openai model: %w", err)
		}
		return cm, nil
	case config.ProviderGemini:
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey: cfg.APIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("init gemini client: %w", err)
		}
		cm, err := gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  name,
		})
		if err != nil {
			return nil, fmt.Errorf("init gemini model: %w", err)
		}
		return cm, nil
	case config.ProviderClaude:
		var baseURL *string
		if cfg.BaseURL != "" {
			baseURL = &cfg.BaseURL
		}
		if maxTokens <= 0 {
			maxTokens = 800
		}
		cm, err := claude.NewChatModel(ctx, &claude.Config{
			APIKey:    cfg.APIKey,
			Model:     name,
			BaseURL:   baseURL,
			MaxTokens: maxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("init claude model: %w", err)
		}
		return cm, nil
	default:
		return nil, fmt.Errorf("invalid chat model provider: %s", provider)
	}
}

type generator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// chatCompleter adapts an eino chat model to a single completion.
type chatCompleter struct {
	model       generator
	temperature float32
	topP        float32
	maxTokens   int
}

func newChatCompleter(m generator, cfg config.AnalysisConfig) *chatCompleter {
	return &chatCompleter{
		model:       m,
		temperature: cfg.Temperature,
		topP:        cfg.TopP,
		maxTokens:   cfg.MaxOutputTokens,
	}
}

func (c *chatCompleter) complete(ctx context.Context, system, user string) (string, error) {
	msgs := []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(user),
	}
	opts := []model.Option{
		model.WithTemperature(c.temperature),
		model.WithTopP(c.topP),
	}
	if c.maxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(c.maxTokens))
	}
	resp, err := c.model.Generate(ctx, msgs, opts...)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("generate: nil response")
	}
	return resp.Content, nil
}
