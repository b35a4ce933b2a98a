package engine

import "fmt"

// SelectConfig names the provider and its settings.
type SelectConfig struct {
	Provider   string
	Dimensions int

	OllamaBaseURL    string
	OllamaChatModel  string
	OllamaEmbedModel string

	OpenAI OpenAIConfig
}

// Select builds the provider named by cfg.Provider. It runs once at startup.
func Select(cfg SelectConfig) (Engine, error) {
	switch cfg.Provider {
	case "", "mock":
		return NewMockEngine(cfg.Dimensions), nil
	case "ollama":
		return NewOllamaEngine(cfg.OllamaBaseURL, cfg.OllamaChatModel, cfg.OllamaEmbedModel), nil
	case "openai":
		if cfg.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("openai provider requires an API key")
		}
		e, err := NewOpenAIEngine(cfg.OpenAI)
		if err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
