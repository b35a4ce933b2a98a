package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestMockEngine_Generate(t *testing.T) {
	e := NewMockEngine(8)
	prompt := strings.Repeat("a", 150)
	got, err := e.Generate(context.Background(), prompt, GenerateOptions{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	want := "Mock LLM Response for prompt: " + strings.Repeat("a", 100) + "..."
	if got != want {
		t.Errorf("Generate = %q, want %q", got, want)
	}
}

func TestMockEngine_Embed(t *testing.T) {
	e := NewMockEngine(4)
	vec, err := e.Embed(context.Background(), "ab")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	// 'a' = 97, 'b' = 98
	want := []float32{0.97, 0.98, 0, 0}
	for i := range want {
		if vec[i] != want[i] {
			t.Errorf("vec[%d] = %v, want %v", i, vec[i], want[i])
		}
	}

	long, _ := e.Embed(context.Background(), "abcdefgh")
	if len(long) != 4 {
		t.Errorf("len = %d, want 4", len(long))
	}
}

func TestMockEngine_Deterministic(t *testing.T) {
	e := NewMockEngine(16)
	a, _ := e.Embed(context.Background(), "password reset")
	b, _ := e.Embed(context.Background(), "password reset")
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embedding differs at %d", i)
		}
	}
}

func TestSelect(t *testing.T) {
	tests := []struct {
		cfg      SelectConfig
		provider string
		wantErr  bool
	}{
		{SelectConfig{Provider: "mock", Dimensions: 384}, "mock", false},
		{SelectConfig{}, "mock", false},
		{SelectConfig{Provider: "ollama", OllamaBaseURL: "http://localhost:11434"}, "ollama", false},
		{SelectConfig{Provider: "openai", OpenAI: OpenAIConfig{APIKey: "sk-test", EmbedModel: "text-embedding-ada-002"}}, "openai", false},
		{SelectConfig{Provider: "openai", OpenAI: OpenAIConfig{APIKey: "sk-test", EmbedModel: "bogus-embed"}}, "", true},
		{SelectConfig{Provider: "openai"}, "", true},
		{SelectConfig{Provider: "bogus"}, "", true},
	}
	for _, tt := range tests {
		e, err := Select(tt.cfg)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Select(%q): expected error", tt.cfg.Provider)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Select(%q): %v", tt.cfg.Provider, err)
		}
		if e.Provider() != tt.provider {
			t.Errorf("Provider() = %q, want %q", e.Provider(), tt.provider)
		}
	}
}

func TestOllamaEngine_GenerateSendsSystemPrompt(t *testing.T) {
	var body struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		w.Write([]byte(`{"message":{"role":"assistant","content":"ok"}}`))
	}))
	defer srv.Close()

	e := NewOllamaEngine(srv.URL, "llama3.2", "nomic-embed-text")
	out, err := e.Generate(context.Background(), "hello", GenerateOptions{MaxTokens: 300})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "ok" {
		t.Errorf("Generate = %q", out)
	}
	if body.Model != "llama3.2" || len(body.Messages) != 2 || body.Messages[0].Role != "system" {
		t.Errorf("unexpected request %+v", body)
	}
}

func TestOpenAIEngine_AgainstFakeServer(t *testing.T) {
	var embedCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/chat/completions":
			w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"answer"},"finish_reason":"stop"}]}`))
		case "/embeddings":
			embedCalls.Add(1)
			var body struct {
				Model string `json:"model"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			if body.Model != "text-embedding-ada-002" {
				t.Errorf("embedding model = %q", body.Model)
			}
			w.Write([]byte(`{"object":"list","data":[{"object":"embedding","index":0,"embedding":[0.5,0.25]}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	e, err := NewOpenAIEngine(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL, ChatModel: "gpt-4o-mini", EmbedModel: "text-embedding-ada-002"})
	if err != nil {
		t.Fatalf("NewOpenAIEngine: %v", err)
	}
	out, err := e.Generate(context.Background(), "q", GenerateOptions{MaxTokens: 10})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "answer" {
		t.Errorf("Generate = %q", out)
	}
	vec, err := e.Embed(context.Background(), "q")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 2 || vec[0] != 0.5 || vec[1] != 0.25 {
		t.Errorf("Embed = %v", vec)
	}
	if n := embedCalls.Load(); n != 1 {
		t.Errorf("embeddings endpoint called %d times, want 1", n)
	}
}

func TestNewOpenAIEngine_UnsupportedEmbedModel(t *testing.T) {
	if _, err := NewOpenAIEngine(OpenAIConfig{APIKey: "sk-test", EmbedModel: "text-embedding-3-small"}); err == nil {
		t.Fatal("expected error for embedding model the client cannot encode")
	}
}
