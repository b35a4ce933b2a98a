// Package audit records review lifecycle events. Events are emitted after
// the store mutation commits and never fail the request that caused them.
package audit

import (
	"context"
	"log/slog"
	"time"
)

// Event types.
const (
	DraftCreated     = "draft.created"
	DraftRejected    = "draft.rejected"
	ArticlePublished = "article.published"
)

// Event is one lifecycle transition.
type Event struct {
	Type      string    `json:"type"`
	DraftID   string    `json:"draft_id"`
	TicketID  string    `json:"ticket_id,omitempty"`
	ArticleID string    `json:"kb_id,omitempty"`
	Feedback  string    `json:"feedback,omitempty"`
	At        time.Time `json:"at"`
}

// Publisher delivers events somewhere durable or visible.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Emit publishes ev and logs, rather than returns, any failure.
func Emit(ctx context.Context, p Publisher, ev Event) {
	if p == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	if err := p.Publish(ctx, ev); err != nil {
		slog.Warn("audit event dropped", "type", ev.Type, "draft_id", ev.DraftID, "error", err)
	}
}

// LogPublisher writes events to the structured log.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher returns a publisher backed by slog.Default.
func NewLogPublisher() *LogPublisher {
	return &LogPublisher{logger: slog.Default().With("component", "audit")}
}

func (p *LogPublisher) Publish(_ context.Context, ev Event) error {
	p.logger.Info(ev.Type,
		"draft_id", ev.DraftID,
		"ticket_id", ev.TicketID,
		"kb_id", ev.ArticleID,
		"feedback", ev.Feedback,
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
