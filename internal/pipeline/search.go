// Package pipeline runs knowledge-base search: embed the query, rank the
// published articles and optionally synthesize an answer from the top hits.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/kalambet/ticketkb/internal/composer"
	"github.com/kalambet/ticketkb/internal/engine"
	"github.com/kalambet/ticketkb/internal/kb"
	"github.com/kalambet/ticketkb/internal/metrics"
)

const snippetRunes = 200

// DefaultAnswerOptions bound the synthesis call.
var DefaultAnswerOptions = engine.GenerateOptions{MaxTokens: 300, Temperature: 0.3}

// Embedder is the degrading embedder; it never fails.
type Embedder interface {
	Embed(ctx context.Context, text string) []float32
}

// ResultItem is one ranked article.
type ResultItem struct {
	ID                  string  `json:"kb_id"`
	Title               string  `json:"title"`
	ContentSnippet      string  `json:"content_snippet"`
	Score               float64 `json:"score"`
	FullContentMarkdown string  `json:"full_content_markdown,omitempty"`
}

// Response is the search result set plus an optional synthesized answer.
type Response struct {
	Results           []ResultItem `json:"results"`
	SynthesizedAnswer *string      `json:"synthesized_answer,omitempty"`
}

// Searcher wires the embedder, the article index and the generator.
type Searcher struct {
	store    kb.ArticleStore
	embedder Embedder
	engine   engine.Engine
	composer *composer.Composer
	opts     engine.GenerateOptions
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewSearcher creates a Searcher. comp may be nil to use the default budget.
func NewSearcher(store kb.ArticleStore, embedder Embedder, e engine.Engine, comp *composer.Composer, m *metrics.Metrics) *Searcher {
	if comp == nil {
		comp = composer.New(0)
	}
	return &Searcher{
		store:    store,
		embedder: embedder,
		engine:   e,
		composer: comp,
		opts:     DefaultAnswerOptions,
		metrics:  m,
		logger:   slog.Default().With("component", "search"),
	}
}

// Search ranks articles for query. When synthesize is set and there is at
// least one result, one generation call produces an answer grounded in the
// ranked excerpts. Provider failures degrade: a failed embedding ranks
// everything at 0 and a failed synthesis returns placeholder text.
func (s *Searcher) Search(ctx context.Context, query string, topK int, synthesize bool) (Response, error) {
	vec := s.embedder.Embed(ctx, query)

	scored, err := s.store.SearchArticles(ctx, vec, topK)
	if err != nil {
		return Response{}, err
	}

	resp := Response{Results: make([]ResultItem, len(scored))}
	for i, sa := range scored {
		resp.Results[i] = ResultItem{
			ID:                  sa.Article.ID,
			Title:               sa.Article.Title,
			ContentSnippet:      Snippet(sa.Article.ContentMarkdown),
			Score:               sa.Score,
			FullContentMarkdown: sa.Article.ContentMarkdown,
		}
	}

	if synthesize && len(resp.Results) > 0 {
		answer := s.synthesize(ctx, query, resp.Results)
		resp.SynthesizedAnswer = &answer
	}

	s.metrics.SearchServed(resp.SynthesizedAnswer != nil, len(resp.Results))
	return resp, nil
}

func (s *Searcher) synthesize(ctx context.Context, query string, results []ResultItem) string {
	excerpts := make([]composer.Excerpt, len(results))
	for i, r := range results {
		excerpts[i] = composer.Excerpt{Title: r.Title, Text: r.ContentSnippet, Score: r.Score}
	}
	answer, err := s.engine.Generate(ctx, s.composer.AnswerPrompt(query, excerpts), s.opts)
	if err != nil {
		s.logger.Warn("answer synthesis failed", "provider", s.engine.Provider(), "error", err)
		s.metrics.UpstreamFailure("generate")
		return "Error: Could not get response from LLM. Provider: " + s.engine.Provider() + ", Model: " + s.engine.ChatModel()
	}
	return answer
}

// Snippet returns the first 200 characters of content followed by "..."
// when content is longer, otherwise content unchanged.
func Snippet(content string) string {
	r := []rune(content)
	if len(r) <= snippetRunes {
		return content
	}
	return string(r[:snippetRunes]) + "..."
}
