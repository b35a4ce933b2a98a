package engine

import "context"

// TextGenerator produces a completion for a single prompt.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

// Embedder maps text to a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Engine is a model provider offering both capabilities. Provider and
// ChatModel identify it in logs and placeholder text.
type Engine interface {
	TextGenerator
	Embedder
	Provider() string
	ChatModel() string
}

// ModelManager is implemented by providers that host models locally and can
// install missing ones.
type ModelManager interface {
	IsRunning(ctx context.Context) bool
	HasModel(ctx context.Context, name string) bool
	PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error
}
