package kb

import "time"

// Status is the review state of a draft.
type Status string

const (
	StatusPendingReview Status = "pending_review"
	StatusRejected      Status = "rejected"
)

// Ticket is a resolved support ticket submitted for drafting. It is consumed
// once and never persisted.
type Ticket struct {
	TicketID          string   `json:"ticket_id" yaml:"ticket_id"`
	Title             string   `json:"title" yaml:"title"`
	Description       string   `json:"description" yaml:"description"`
	ResolutionDetails string   `json:"resolution_details" yaml:"resolution_details"`
	ConversationLog   string   `json:"conversation_log,omitempty" yaml:"conversation_log,omitempty"`
	Tags              []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Draft is a generated KB article awaiting human review.
type Draft struct {
	ID                 string    `json:"draft_id"`
	SourceTicketID     string    `json:"source_ticket_id"`
	Title              string    `json:"generated_title"`
	ContentMarkdown    string    `json:"generated_content_markdown"`
	SuggestedTags      []string  `json:"suggested_tags"`
	Status             Status    `json:"status"`
	CreatedAt          time.Time `json:"created_at"`
	ProblemDescription *string   `json:"problem_description,omitempty"`
	Cause              *string   `json:"cause,omitempty"`
	ResolutionSteps    *string   `json:"resolution_steps,omitempty"`

	// Set by a reject decision.
	ReviewFeedback string     `json:"review_feedback,omitempty"`
	ReviewedAt     *time.Time `json:"reviewed_at,omitempty"`
}

// Clone returns a deep copy so callers never share slices or pointers with
// the store.
func (d Draft) Clone() Draft {
	out := d
	out.SuggestedTags = cloneStrings(d.SuggestedTags)
	out.ProblemDescription = cloneStringPtr(d.ProblemDescription)
	out.Cause = cloneStringPtr(d.Cause)
	out.ResolutionSteps = cloneStringPtr(d.ResolutionSteps)
	if d.ReviewedAt != nil {
		t := *d.ReviewedAt
		out.ReviewedAt = &t
	}
	return out
}

// Article is a published, searchable KB entry. Articles are never edited or
// deleted once published.
type Article struct {
	ID              string    `json:"kb_id"`
	Title           string    `json:"title"`
	ContentMarkdown string    `json:"content_markdown"`
	Tags            []string  `json:"tags"`
	CreatedAt       time.Time `json:"created_at"`
	LastUpdatedAt   time.Time `json:"last_updated_at"`
	SourceDraftID   string    `json:"source_draft_id,omitempty"`
}

// Clone returns a deep copy of a.
func (a Article) Clone() Article {
	out := a
	out.Tags = cloneStrings(a.Tags)
	return out
}

// ScoredArticle is an article paired with its similarity to a query.
type ScoredArticle struct {
	Article Article
	Score   float64
}

// PublishRequest carries the reviewer's final edits for an approval.
type PublishRequest struct {
	Title           string
	ContentMarkdown string
	Tags            []string
}

// EmbeddingText is the text embedded for an article at publish time.
func EmbeddingText(title, content string) string {
	return "Title: " + title + "\nContent: " + content
}

func cloneStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneStringPtr(p *string) *string {
	if p == nil {
		return nil
	}
	s := *p
	return &s
}
