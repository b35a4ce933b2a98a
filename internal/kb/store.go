package kb

import "context"

// DraftStore holds drafts keyed by id.
type DraftStore interface {
	SaveDraft(ctx context.Context, d Draft) error
	GetDraft(ctx context.Context, id string) (Draft, error)
	ListPendingDrafts(ctx context.Context) ([]Draft, error)
	UpdateDraftStatus(ctx context.Context, id string, status Status, feedback string) error
	RemoveDraft(ctx context.Context, id string) error
}

// ArticleStore holds published articles and their embeddings.
type ArticleStore interface {
	// PublishDraft atomically removes the pending draft and inserts a new
	// article with its embedding. The article gets a fresh id and both
	// timestamps set to now. The draft state is re-checked against current
	// data: ErrNotFound when the draft is gone, ErrNotPublishable when it is
	// no longer pending.
	PublishDraft(ctx context.Context, draftID string, req PublishRequest, embedding []float32) (Article, error)
	GetArticle(ctx context.Context, id string) (Article, error)
	SearchArticles(ctx context.Context, query []float32, topK int) ([]ScoredArticle, error)
}

// Store is the full persistence surface used by the service.
type Store interface {
	DraftStore
	ArticleStore
	Close() error
}
