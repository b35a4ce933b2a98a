package drafting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/ticketkb/internal/audit"
	"github.com/kalambet/ticketkb/internal/composer"
	"github.com/kalambet/ticketkb/internal/engine"
	"github.com/kalambet/ticketkb/internal/kb"
	"github.com/kalambet/ticketkb/internal/metrics"
)

// DefaultGenerateOptions are the sampling parameters for article drafts.
var DefaultGenerateOptions = engine.GenerateOptions{MaxTokens: 1500, Temperature: 0.3}

// ErrInvalidTicket is returned when a ticket lacks an id or title.
var ErrInvalidTicket = errors.New("invalid ticket")

// Creator generates drafts from tickets and saves them.
type Creator struct {
	engine  engine.Engine
	store   kb.DraftStore
	parser  SectionParser
	opts    engine.GenerateOptions
	audit   audit.Publisher
	metrics *metrics.Metrics
	now     func() time.Time
	logger  *slog.Logger
}

// CreatorOption configures a Creator.
type CreatorOption func(*Creator)

// WithParser replaces the default HeadingParser.
func WithParser(p SectionParser) CreatorOption {
	return func(c *Creator) { c.parser = p }
}

// WithGenerateOptions overrides DefaultGenerateOptions.
func WithGenerateOptions(o engine.GenerateOptions) CreatorOption {
	return func(c *Creator) { c.opts = o }
}

// WithAudit emits a draft.created event for each saved draft.
func WithAudit(p audit.Publisher) CreatorOption {
	return func(c *Creator) { c.audit = p }
}

// WithMetrics records created drafts and generation failures.
func WithMetrics(m *metrics.Metrics) CreatorOption {
	return func(c *Creator) { c.metrics = m }
}

// NewCreator returns a Creator generating with e and saving into store.
func NewCreator(e engine.Engine, store kb.DraftStore, opts ...CreatorOption) *Creator {
	c := &Creator{
		engine: e,
		store:  store,
		parser: HeadingParser{},
		opts:   DefaultGenerateOptions,
		now:    func() time.Time { return time.Now().UTC() },
		logger: slog.Default().With("component", "drafting"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// FromTicket generates, parses and saves a draft for t. A generation
// failure does not fail the call: the draft is saved with a clearly marked
// placeholder body so a reviewer can see what happened.
func (c *Creator) FromTicket(ctx context.Context, t kb.Ticket) (kb.Draft, error) {
	if strings.TrimSpace(t.TicketID) == "" || strings.TrimSpace(t.Title) == "" {
		return kb.Draft{}, fmt.Errorf("%w: ticket_id and title are required", ErrInvalidTicket)
	}

	text, err := c.engine.Generate(ctx, composer.DraftPrompt(t), c.opts)
	if err != nil {
		c.logger.Warn("generation failed, saving placeholder draft",
			"ticket_id", t.TicketID, "provider", c.engine.Provider(), "error", err)
		c.metrics.UpstreamFailure("generate")
		text = fmt.Sprintf("Error: Could not get response from LLM. Provider: %s, Model: %s",
			c.engine.Provider(), c.engine.ChatModel())
	}

	sections := c.parser.Parse(text)
	_, degraded := sections[FullContent]
	if degraded {
		c.logger.Warn("could not parse generated text into sections, using full text", "ticket_id", t.TicketID)
	}

	d := kb.Draft{
		ID:                 uuid.NewString(),
		SourceTicketID:     t.TicketID,
		Title:              ExtractTitle(text, t.Title),
		ContentMarkdown:    text,
		SuggestedTags:      ExtractTags(sections, t.Tags),
		Status:             kb.StatusPendingReview,
		CreatedAt:          c.now(),
		ProblemDescription: section(sections, SectionProblem),
		Cause:              section(sections, SectionCause),
		ResolutionSteps:    section(sections, SectionResolution),
	}
	if err := c.store.SaveDraft(ctx, d); err != nil {
		return kb.Draft{}, fmt.Errorf("saving draft: %w", err)
	}

	c.metrics.DraftCreated(!degraded)
	audit.Emit(ctx, c.audit, audit.Event{Type: audit.DraftCreated, DraftID: d.ID, TicketID: t.TicketID})
	c.logger.Info("draft created", "draft_id", d.ID, "ticket_id", t.TicketID)
	return d, nil
}

// BatchResult is the outcome for one ticket of FromTickets.
type BatchResult struct {
	TicketID string
	Draft    kb.Draft
	Err      error
}

// FromTickets drafts tickets concurrently, four at a time. One ticket's
// failure does not stop the others; results keep input order.
func (c *Creator) FromTickets(ctx context.Context, tickets []kb.Ticket) []BatchResult {
	results := make([]BatchResult, len(tickets))
	var g errgroup.Group
	g.SetLimit(4)
	for i, t := range tickets {
		g.Go(func() error {
			d, err := c.FromTicket(ctx, t)
			results[i] = BatchResult{TicketID: t.TicketID, Draft: d, Err: err}
			return nil
		})
	}
	g.Wait()
	return results
}

func section(sections map[string]string, name string) *string {
	v, ok := sections[name]
	if !ok {
		return nil
	}
	return &v
}
