package engine

import (
	"context"

	"github.com/kalambet/ticketkb/internal/ollama"
)

// OllamaEngine serves both capabilities from a local Ollama server.
type OllamaEngine struct {
	client     *ollama.Client
	chatModel  string
	embedModel string
}

// NewOllamaEngine returns an engine for the Ollama server at baseURL.
func NewOllamaEngine(baseURL, chatModel, embedModel string) *OllamaEngine {
	return &OllamaEngine{
		client:     ollama.New(baseURL),
		chatModel:  chatModel,
		embedModel: embedModel,
	}
}

func (e *OllamaEngine) Provider() string  { return "ollama" }
func (e *OllamaEngine) ChatModel() string { return e.chatModel }

func (e *OllamaEngine) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	msgs := []ollama.Message{
		{Role: "system", Content: DefaultSystemPrompt},
		{Role: "user", Content: prompt},
	}
	return e.client.Chat(ctx, e.chatModel, msgs, &ollama.Options{
		NumPredict:  opts.MaxTokens,
		Temperature: opts.Temperature,
	})
}

func (e *OllamaEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.client.Embed(ctx, e.embedModel, text)
}

func (e *OllamaEngine) IsRunning(ctx context.Context) bool {
	return e.client.IsRunning(ctx)
}

func (e *OllamaEngine) HasModel(ctx context.Context, name string) bool {
	return e.client.HasModel(ctx, name)
}

func (e *OllamaEngine) PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error {
	var cb func(ollama.PullProgress)
	if onProgress != nil {
		cb = func(p ollama.PullProgress) {
			onProgress(PullProgress{Status: p.Status, Total: p.Total, Completed: p.Completed})
		}
	}
	return e.client.PullModel(ctx, name, cb)
}

// Models lists the models this engine needs installed.
func (e *OllamaEngine) Models() []string {
	if e.embedModel == "" || e.embedModel == e.chatModel {
		return []string{e.chatModel}
	}
	return []string{e.chatModel, e.embedModel}
}
