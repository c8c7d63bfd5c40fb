package corpus

import (
	"strings"
	"unicode"

	"horse.fit/corpus/internal/db"
)

// TextPolicy selects which stored fields feed NLP tasks. SummaryUsesNLP
// prefers the excerpt over the full text for ordinary posts; MetaUsesNLP
// prefers the machine caption over the title when compiling metapost input.
type TextPolicy struct {
	SummaryUsesNLP bool
	MetaUsesNLP    bool
}

// PostText assembles the comparison text of a post: its headline followed by
// the policy-selected body. The meta flag treats an ordinary post as metapost
// input while the synthetic post is still being assembled.
func (tp TextPolicy) PostText(p *db.Post, meta bool) string {
	if p == nil {
		return ""
	}

	title, body := p.Title, p.Text
	if tp.SummaryUsesNLP && !p.IsMeta() {
		body = p.Excerpt
	}
	if meta || p.IsMeta() {
		if tp.MetaUsesNLP {
			title = p.Caption
		}
		body = p.Summary
	}

	title = strings.TrimSpace(title)
	body = strings.TrimSpace(body)
	if title == "" {
		return body
	}
	if body == "" {
		return punctuate(title)
	}
	return punctuate(title) + " " + body
}

// punctuate guarantees the fragment ends with terminal punctuation so that
// concatenated cluster texts keep sentence boundaries.
func punctuate(s string) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return trimmed
	}
	switch trimmed[len(trimmed)-1] {
	case '.', '!', '?', ':', ';':
		return trimmed
	default:
		return trimmed + "."
	}
}

func wordCount(s string) int {
	return len(strings.FieldsFunc(s, unicode.IsSpace))
}
