// Package review implements the human review gate between drafts and the
// published knowledge base.
package review

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kalambet/ticketkb/internal/audit"
	"github.com/kalambet/ticketkb/internal/kb"
	"github.com/kalambet/ticketkb/internal/metrics"
)

// Embedder is the degrading embedder used at publish time.
type Embedder interface {
	Embed(ctx context.Context, text string) []float32
}

// Approval is a reviewer's final version of a draft. Tags may be empty but
// must be present.
type Approval struct {
	Title           string
	ContentMarkdown string
	Tags            []string
}

// Validate reports every missing field at once.
func (a Approval) Validate() error {
	var missing []string
	if strings.TrimSpace(a.Title) == "" {
		missing = append(missing, "final_title")
	}
	if strings.TrimSpace(a.ContentMarkdown) == "" {
		missing = append(missing, "final_content_markdown")
	}
	if a.Tags == nil {
		missing = append(missing, "final_tags")
	}
	if len(missing) > 0 {
		return &kb.ValidationError{Fields: missing}
	}
	return nil
}

// Service applies approve and reject decisions.
type Service struct {
	store    kb.Store
	embedder Embedder
	audit    audit.Publisher
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewService wires a Service. auditor and m may be nil.
func NewService(store kb.Store, embedder Embedder, auditor audit.Publisher, m *metrics.Metrics) *Service {
	return &Service{
		store:    store,
		embedder: embedder,
		audit:    auditor,
		metrics:  m,
		logger:   slog.Default().With("component", "review"),
	}
}

// Approve publishes the draft with the reviewer's edits. The embedding is
// computed before the store is touched; the store re-checks that the draft
// is still pending when it commits, so a concurrent decision that lands in
// between wins and this call fails with kb.ErrNotFound.
func (s *Service) Approve(ctx context.Context, draftID string, a Approval) (kb.Article, error) {
	if err := a.Validate(); err != nil {
		return kb.Article{}, err
	}

	d, err := s.store.GetDraft(ctx, draftID)
	if err != nil {
		return kb.Article{}, err
	}
	if d.Status != kb.StatusPendingReview {
		return kb.Article{}, kb.ErrNotPublishable
	}

	vec := s.embedder.Embed(ctx, kb.EmbeddingText(a.Title, a.ContentMarkdown))

	article, err := s.store.PublishDraft(ctx, draftID, kb.PublishRequest{
		Title:           a.Title,
		ContentMarkdown: a.ContentMarkdown,
		Tags:            a.Tags,
	}, vec)
	if err != nil {
		return kb.Article{}, fmt.Errorf("publishing draft %s: %w", draftID, err)
	}

	s.metrics.DraftReviewed("approved")
	audit.Emit(ctx, s.audit, audit.Event{
		Type:      audit.ArticlePublished,
		DraftID:   draftID,
		TicketID:  d.SourceTicketID,
		ArticleID: article.ID,
	})
	s.logger.Info("draft approved", "draft_id", draftID, "kb_id", article.ID)
	return article, nil
}

// Reject marks the draft rejected and records the feedback. Rejecting an
// already rejected draft is allowed and overwrites the feedback.
func (s *Service) Reject(ctx context.Context, draftID, feedback string) error {
	d, err := s.store.GetDraft(ctx, draftID)
	if err != nil {
		return err
	}
	if err := s.store.UpdateDraftStatus(ctx, draftID, kb.StatusRejected, feedback); err != nil {
		return err
	}

	s.metrics.DraftReviewed("rejected")
	audit.Emit(ctx, s.audit, audit.Event{
		Type:     audit.DraftRejected,
		DraftID:  draftID,
		TicketID: d.SourceTicketID,
		Feedback: feedback,
	})
	s.logger.Info("draft rejected", "draft_id", draftID, "feedback", feedback)
	return nil
}
