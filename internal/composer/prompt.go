package composer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kalambet/ticketkb/internal/kb"
)

const defaultMaxContextTokens = 3000

const draftPromptTemplate = `You are an expert technical writer creating a knowledge base article from a resolved support ticket.
Use the following ticket information to generate a draft KB article.

Ticket Information:
---
Title: %s
Description: %s
Resolution Details: %s
Conversation Log (optional): %s
---

Output the KB article in Markdown. Start with a single "# " title line, then AT LEAST the following sections (use more if appropriate), with the headings written exactly as shown:
## Problem Description
[Detailed problem faced by the user]

## Environment
[Products, versions or platforms involved, if known]

## Cause
[Root cause of the issue; omit this section if it cannot be identified]

## Resolution Steps
[Clear, step-by-step instructions to resolve the issue]

## Suggested Tags
[Up to 5 relevant keywords, comma-separated, e.g., Tag1, Tag2, Tag3]

Ensure the language is clear, professional, and easy to understand.
Do not include any preamble before the title.
If resolution details are sparse, try to infer logical steps or state that detailed steps are needed.`

const answerPromptTemplate = `Based on the following knowledge base article excerpts, answer the user's question.
If the excerpts don't directly answer the question, say that you couldn't find a specific answer in the knowledge base.
Do not make up information. Cite the KB article titles if possible.

User Question: %s

Knowledge Base Excerpts:
---
%s
---

Answer:`

// DraftPrompt builds the generation prompt for turning t into an article.
func DraftPrompt(t kb.Ticket) string {
	conversation := strings.TrimSpace(t.ConversationLog)
	if conversation == "" {
		conversation = "N/A"
	}
	return fmt.Sprintf(draftPromptTemplate, t.Title, t.Description, t.ResolutionDetails, conversation)
}

// Excerpt is one ranked article offered as answer context.
type Excerpt struct {
	Title string
	Text  string
	Score float64
}

// Composer assembles answer-synthesis prompts within a token budget.
type Composer struct {
	MaxContextTokens int
}

// New creates a Composer. maxContextTokens <= 0 selects the default (3000).
func New(maxContextTokens int) *Composer {
	if maxContextTokens <= 0 {
		maxContextTokens = defaultMaxContextTokens
	}
	return &Composer{MaxContextTokens: maxContextTokens}
}

// AnswerPrompt builds the synthesis prompt for query. Excerpts are placed in
// score order; ones that would overflow the budget are skipped.
func (c *Composer) AnswerPrompt(query string, excerpts []Excerpt) string {
	sorted := make([]Excerpt, len(excerpts))
	copy(sorted, excerpts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	remaining := c.MaxContextTokens
	var entries []string
	for _, ex := range sorted {
		entry := formatExcerpt(ex)
		tokens := EstimateTokens(entry)
		if tokens > remaining {
			continue
		}
		entries = append(entries, entry)
		remaining -= tokens
	}
	return fmt.Sprintf(answerPromptTemplate, query, strings.Join(entries, "\n"))
}

func formatExcerpt(ex Excerpt) string {
	return fmt.Sprintf("Title: %s\nContent: %s\n---", ex.Title, ex.Text)
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
