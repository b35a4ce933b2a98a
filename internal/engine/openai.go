package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// OpenAIEngine talks to any OpenAI-compatible API, including OpenRouter when
// BaseURL points there.
type OpenAIEngine struct {
	client     *openai.Client
	chatModel  string
	embedModel openai.EmbeddingModel
}

// OpenAIConfig configures an OpenAIEngine. Empty BaseURL uses the OpenAI
// default.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	ChatModel  string
	EmbedModel string
}

// NewOpenAIEngine builds an engine from cfg. It fails when cfg.EmbedModel
// is not a supported embedding model.
func NewOpenAIEngine(cfg OpenAIConfig) (*OpenAIEngine, error) {
	var model openai.EmbeddingModel
	if err := model.UnmarshalText([]byte(cfg.EmbedModel)); err != nil || model == openai.Unknown {
		return nil, fmt.Errorf("unsupported openai embedding model %q", cfg.EmbedModel)
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return &OpenAIEngine{
		client:     openai.NewClientWithConfig(oc),
		chatModel:  cfg.ChatModel,
		embedModel: model,
	}, nil
}

func (e *OpenAIEngine) Provider() string  { return "openai" }
func (e *OpenAIEngine) ChatModel() string { return e.chatModel }

func (e *OpenAIEngine) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: DefaultSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   opts.MaxTokens,
		Temperature: float32(opts.Temperature),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

func (e *OpenAIEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: e.embedModel,
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("create embeddings: empty data")
	}
	return resp.Data[0].Embedding, nil
}
