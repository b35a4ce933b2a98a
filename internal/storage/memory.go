package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/ticketkb/internal/kb"
	"github.com/kalambet/ticketkb/internal/retrieval"
)

// Compile-time check that MemoryStore implements kb.Store.
var _ kb.Store = (*MemoryStore)(nil)

// MemoryStore keeps drafts and articles in process memory behind one
// RWMutex. Data is lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	drafts   map[string]draftEntry
	nextSeq  int
	articles []articleEntry
	byID     map[string]int
	now      func() time.Time
}

type draftEntry struct {
	seq   int
	draft kb.Draft
}

// Articles and embeddings live in one entry so neither can exist alone.
type articleEntry struct {
	article   kb.Article
	embedding []float32
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		drafts: make(map[string]draftEntry),
		byID:   make(map[string]int),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) SaveDraft(_ context.Context, d kb.Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.nextSeq
	if e, ok := s.drafts[d.ID]; ok {
		seq = e.seq
	} else {
		s.nextSeq++
	}
	s.drafts[d.ID] = draftEntry{seq: seq, draft: d.Clone()}
	return nil
}

func (s *MemoryStore) GetDraft(_ context.Context, id string) (kb.Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.drafts[id]
	if !ok {
		return kb.Draft{}, kb.ErrNotFound
	}
	return e.draft.Clone(), nil
}

func (s *MemoryStore) ListPendingDrafts(_ context.Context) ([]kb.Draft, error) {
	s.mu.RLock()
	entries := make([]draftEntry, 0, len(s.drafts))
	for _, e := range s.drafts {
		if e.draft.Status == kb.StatusPendingReview {
			entries = append(entries, e)
		}
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	out := make([]kb.Draft, len(entries))
	for i, e := range entries {
		out[i] = e.draft.Clone()
	}
	return out, nil
}

func (s *MemoryStore) UpdateDraftStatus(_ context.Context, id string, status kb.Status, feedback string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.drafts[id]
	if !ok {
		return kb.ErrNotFound
	}
	now := s.now()
	e.draft.Status = status
	e.draft.ReviewFeedback = feedback
	e.draft.ReviewedAt = &now
	s.drafts[id] = e
	return nil
}

func (s *MemoryStore) RemoveDraft(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.drafts[id]; !ok {
		return kb.ErrNotFound
	}
	delete(s.drafts, id)
	return nil
}

func (s *MemoryStore) PublishDraft(_ context.Context, draftID string, req kb.PublishRequest, embedding []float32) (kb.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.drafts[draftID]
	if !ok {
		return kb.Article{}, kb.ErrNotFound
	}
	if e.draft.Status != kb.StatusPendingReview {
		return kb.Article{}, kb.ErrNotPublishable
	}

	now := s.now()
	a := kb.Article{
		ID:              uuid.NewString(),
		Title:           req.Title,
		ContentMarkdown: req.ContentMarkdown,
		Tags:            req.Tags,
		CreatedAt:       now,
		LastUpdatedAt:   now,
		SourceDraftID:   draftID,
	}.Clone()
	vec := make([]float32, len(embedding))
	copy(vec, embedding)

	s.byID[a.ID] = len(s.articles)
	s.articles = append(s.articles, articleEntry{article: a, embedding: vec})
	delete(s.drafts, draftID)
	return a.Clone(), nil
}

func (s *MemoryStore) GetArticle(_ context.Context, id string) (kb.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[id]
	if !ok {
		return kb.Article{}, kb.ErrNotFound
	}
	return s.articles[i].article.Clone(), nil
}

// SearchArticles snapshots the index under the read lock and scores outside
// it. Stored embeddings are never mutated, so sharing them is safe.
func (s *MemoryStore) SearchArticles(_ context.Context, query []float32, topK int) ([]kb.ScoredArticle, error) {
	if topK <= 0 {
		return []kb.ScoredArticle{}, nil
	}
	s.mu.RLock()
	entries := s.articles[:len(s.articles):len(s.articles)]
	s.mu.RUnlock()

	cands := make([]retrieval.Candidate, len(entries))
	for i, e := range entries {
		cands[i] = retrieval.Candidate{Seq: i, Vector: e.embedding}
	}
	ranked := retrieval.TopK(query, cands, topK)

	out := make([]kb.ScoredArticle, len(ranked))
	for i, r := range ranked {
		out[i] = kb.ScoredArticle{Article: entries[r.Index].article.Clone(), Score: r.Score}
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
