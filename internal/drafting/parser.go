// Package drafting turns resolved tickets into KB drafts: it prompts the
// model, splits the reply into named sections and saves the result.
package drafting

import (
	"regexp"
	"strings"
)

// Recognized section headings.
const (
	SectionProblem    = "Problem Description"
	SectionEnv        = "Environment"
	SectionCause      = "Cause"
	SectionResolution = "Resolution Steps"
	SectionTags       = "Suggested Tags"

	// FullContent holds the whole reply when no heading was recognized.
	FullContent = "FullContent"
)

// SectionParser splits generated text into named sections.
type SectionParser interface {
	Parse(text string) map[string]string
}

var (
	headingRe = regexp.MustCompile(`(?m)^##[ \t]*(Problem Description|Environment|Cause|Resolution Steps|Suggested Tags)[ \t\r]*$`)
	titleRe   = regexp.MustCompile(`(?m)^#[ \t]+(.*?)[ \t\r]*$`)
)

// HeadingParser matches level-2 headings with exactly the recognized names.
// A section body runs to the next recognized heading or the end of the
// text. Text before the first heading is dropped, and a repeated heading
// keeps its last body. Headings inside code fences are not special-cased.
type HeadingParser struct{}

func (HeadingParser) Parse(text string) map[string]string {
	sections := make(map[string]string)
	matches := headingRe.FindAllStringSubmatchIndex(text, -1)
	for i, m := range matches {
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		name := text[m[2]:m[3]]
		sections[name] = strings.TrimSpace(text[m[1]:end])
	}
	if len(sections) == 0 && text != "" {
		sections[FullContent] = text
	}
	return sections
}

// ExtractTitle returns the text of the first level-1 heading, or fallback
// when there is none.
func ExtractTitle(text, fallback string) string {
	for _, m := range titleRe.FindAllStringSubmatch(text, -1) {
		if t := strings.TrimSpace(m[1]); t != "" {
			return t
		}
	}
	return fallback
}

// ExtractTags splits the Suggested Tags section on commas. When the section
// is absent the fallback tags are used. The result is never nil.
func ExtractTags(sections map[string]string, fallback []string) []string {
	raw, ok := sections[SectionTags]
	if !ok || strings.TrimSpace(raw) == "" {
		out := make([]string, 0, len(fallback))
		return append(out, fallback...)
	}
	tags := []string{}
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
