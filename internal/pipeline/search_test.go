package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kalambet/ticketkb/internal/engine"
	"github.com/kalambet/ticketkb/internal/kb"
	"github.com/kalambet/ticketkb/internal/retrieval"
	"github.com/kalambet/ticketkb/internal/storage"
)

type mockEngine struct {
	calls      int
	generateFn func(prompt string) (string, error)
}

func (m *mockEngine) Generate(_ context.Context, prompt string, _ engine.GenerateOptions) (string, error) {
	m.calls++
	return m.generateFn(prompt)
}
func (m *mockEngine) Embed(context.Context, string) ([]float32, error) { return nil, nil }
func (m *mockEngine) Provider() string                                { return "mock" }
func (m *mockEngine) ChatModel() string                               { return "mock" }

type mockArticleStore struct {
	searchFn func(vec []float32, topK int) ([]kb.ScoredArticle, error)
}

func (m *mockArticleStore) PublishDraft(context.Context, string, kb.PublishRequest, []float32) (kb.Article, error) {
	return kb.Article{}, nil
}
func (m *mockArticleStore) GetArticle(context.Context, string) (kb.Article, error) {
	return kb.Article{}, kb.ErrNotFound
}
func (m *mockArticleStore) SearchArticles(_ context.Context, vec []float32, topK int) ([]kb.ScoredArticle, error) {
	return m.searchFn(vec, topK)
}

type fixedEmbedder []float32

func (f fixedEmbedder) Embed(context.Context, string) []float32 { return f }

func TestSnippet(t *testing.T) {
	short := "short content"
	if Snippet(short) != short {
		t.Errorf("short content changed")
	}
	exact := strings.Repeat("a", 200)
	if Snippet(exact) != exact {
		t.Errorf("200-char content should not be truncated")
	}
	long := strings.Repeat("é", 250)
	got := Snippet(long)
	if got != strings.Repeat("é", 200)+"..." {
		t.Errorf("Snippet truncated incorrectly, got %d runes", len([]rune(got)))
	}
}

func TestSearch_BuildsItems(t *testing.T) {
	store := &mockArticleStore{searchFn: func(vec []float32, topK int) ([]kb.ScoredArticle, error) {
		if topK != 3 {
			t.Errorf("topK = %d, want 3", topK)
		}
		return []kb.ScoredArticle{
			{Article: kb.Article{ID: "a1", Title: "VPN", ContentMarkdown: strings.Repeat("x", 300)}, Score: 0.9},
		}, nil
	}}
	eng := &mockEngine{}
	s := NewSearcher(store, fixedEmbedder{1}, eng, nil, nil)

	resp, err := s.Search(context.Background(), "vpn", 3, false)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("got %d results", len(resp.Results))
	}
	r := resp.Results[0]
	if r.ID != "a1" || r.Score != 0.9 || len(r.FullContentMarkdown) != 300 {
		t.Errorf("item = %+v", r)
	}
	if !strings.HasSuffix(r.ContentSnippet, "...") || len([]rune(r.ContentSnippet)) != 203 {
		t.Errorf("snippet length %d", len([]rune(r.ContentSnippet)))
	}
	if resp.SynthesizedAnswer != nil {
		t.Error("no synthesis requested")
	}
	if eng.calls != 0 {
		t.Error("generator should not be called")
	}
}

func TestSearch_SynthesizesFromRankedExcerpts(t *testing.T) {
	store := &mockArticleStore{searchFn: func([]float32, int) ([]kb.ScoredArticle, error) {
		return []kb.ScoredArticle{
			{Article: kb.Article{ID: "a1", Title: "Password Reset", ContentMarkdown: "Use the link."}, Score: 0.8},
			{Article: kb.Article{ID: "a2", Title: "Account Lockout", ContentMarkdown: "Wait 15 minutes."}, Score: 0.4},
		}, nil
	}}
	var prompt string
	eng := &mockEngine{generateFn: func(p string) (string, error) {
		prompt = p
		return "Use the reset link (Password Reset).", nil
	}}
	resp, err := NewSearcher(store, fixedEmbedder{1}, eng, nil, nil).Search(context.Background(), "forgot password", 3, true)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.SynthesizedAnswer == nil || *resp.SynthesizedAnswer != "Use the reset link (Password Reset)." {
		t.Errorf("answer = %v", resp.SynthesizedAnswer)
	}
	if !strings.Contains(prompt, "Title: Password Reset\nContent: Use the link.") {
		t.Error("prompt missing first excerpt")
	}
	if strings.Index(prompt, "Password Reset") > strings.Index(prompt, "Account Lockout") {
		t.Error("excerpts not in score order")
	}
	if !strings.Contains(prompt, "forgot password") {
		t.Error("prompt missing query")
	}
}

func TestSearch_NoResultsSkipsSynthesis(t *testing.T) {
	store := &mockArticleStore{searchFn: func([]float32, int) ([]kb.ScoredArticle, error) {
		return nil, nil
	}}
	eng := &mockEngine{}
	resp, err := NewSearcher(store, fixedEmbedder{1}, eng, nil, nil).Search(context.Background(), "q", 3, true)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.SynthesizedAnswer != nil || eng.calls != 0 {
		t.Error("synthesis should be skipped with zero results")
	}
	if resp.Results == nil {
		t.Error("results should be an empty array, not null")
	}
}

func TestSearch_SynthesisFailureDegrades(t *testing.T) {
	store := &mockArticleStore{searchFn: func([]float32, int) ([]kb.ScoredArticle, error) {
		return []kb.ScoredArticle{{Article: kb.Article{ID: "a", Title: "t"}, Score: 1}}, nil
	}}
	eng := &mockEngine{generateFn: func(string) (string, error) { return "", errors.New("timeout") }}
	resp, err := NewSearcher(store, fixedEmbedder{1}, eng, nil, nil).Search(context.Background(), "q", 1, true)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.SynthesizedAnswer == nil || !strings.HasPrefix(*resp.SynthesizedAnswer, "Error: Could not get response from LLM") {
		t.Errorf("answer = %v", resp.SynthesizedAnswer)
	}
}

func TestSearch_StoreErrorPropagates(t *testing.T) {
	store := &mockArticleStore{searchFn: func([]float32, int) ([]kb.ScoredArticle, error) {
		return nil, errors.New("db closed")
	}}
	if _, err := NewSearcher(store, fixedEmbedder{1}, &mockEngine{}, nil, nil).Search(context.Background(), "q", 1, false); err == nil {
		t.Fatal("expected error")
	}
}

// Publish "Password Reset" with the deterministic mock engine, then search
// for "password reset": the article comes back first with a positive score.
func TestSearch_EndToEndWithMockEngine(t *testing.T) {
	ctx := context.Background()
	mock := engine.NewMockEngine(384)
	emb := retrieval.NewEmbedder(mock, 384)
	store := storage.NewMemoryStore()

	store.SaveDraft(ctx, kb.Draft{ID: "d1", Status: kb.StatusPendingReview})
	title, content := "Password Reset", "Click 'forgot password' on the login page."
	a, err := store.PublishDraft(ctx, "d1", kb.PublishRequest{Title: title, ContentMarkdown: content, Tags: []string{}},
		emb.Embed(ctx, kb.EmbeddingText(title, content)))
	if err != nil {
		t.Fatalf("PublishDraft: %v", err)
	}

	resp, err := NewSearcher(store, emb, mock, nil, nil).Search(ctx, "password reset", 3, true)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].ID != a.ID {
		t.Fatalf("results = %+v", resp.Results)
	}
	if resp.Results[0].Score <= 0 {
		t.Errorf("score = %v, want > 0", resp.Results[0].Score)
	}
	if resp.SynthesizedAnswer == nil || !strings.HasPrefix(*resp.SynthesizedAnswer, "Mock LLM Response for prompt:") {
		t.Errorf("answer = %v", resp.SynthesizedAnswer)
	}
}
