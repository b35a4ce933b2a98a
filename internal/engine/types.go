package engine

// DefaultSystemPrompt is sent ahead of every generation request.
const DefaultSystemPrompt = "You are a helpful assistant."

// GenerateOptions bound a single generation call. Zero MaxTokens leaves the
// provider default in place.
type GenerateOptions struct {
	MaxTokens   int
	Temperature float64
}

// PullProgress reports download progress for a model pull operation.
type PullProgress struct {
	Status    string `json:"status"`
	Total     int64  `json:"total,omitempty"`
	Completed int64  `json:"completed,omitempty"`
}
