package engine

import "context"

// MockEngine is a deterministic offline provider. Generated text echoes the
// prompt and embeddings are derived from character codes, so identical text
// always embeds identically.
type MockEngine struct {
	dim int
}

// NewMockEngine returns a mock producing vectors of length dim.
func NewMockEngine(dim int) *MockEngine {
	return &MockEngine{dim: dim}
}

func (e *MockEngine) Provider() string  { return "mock" }
func (e *MockEngine) ChatModel() string { return "mock" }

func (e *MockEngine) Generate(_ context.Context, prompt string, _ GenerateOptions) (string, error) {
	r := []rune(prompt)
	if len(r) > 100 {
		r = r[:100]
	}
	return "Mock LLM Response for prompt: " + string(r) + "...", nil
}

// Embed maps the first dim characters to (code point % 100) / 100 and pads
// the rest with zeros.
func (e *MockEngine) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dim)
	i := 0
	for _, c := range text {
		if i >= e.dim {
			break
		}
		vec[i] = float32(int(c)%100) / 100
		i++
	}
	return vec, nil
}
