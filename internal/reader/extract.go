package reader

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	readability "codeberg.org/readeck/go-readability/v2"
)

// Extraction is the readable content recovered from a raw HTML document.
type Extraction struct {
	Text     string
	Excerpt  string
	TopImage string
}

// ExtractHTML recovers readable article content from raw HTML bytes.
// baseURL resolves relative links and images; it may be empty.
func ExtractHTML(html []byte, baseURL string) (*Extraction, error) {
	if len(bytes.TrimSpace(html)) == 0 {
		return nil, fmt.Errorf("html body is empty")
	}

	var pageURL *url.URL
	if raw := strings.TrimSpace(baseURL); raw != "" {
		parsed, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse base url: %w", err)
		}
		pageURL = parsed
	}

	article, err := readability.FromReader(bytes.NewReader(html), pageURL)
	if err != nil {
		return nil, fmt.Errorf("readability parse: %w", err)
	}

	var renderedText bytes.Buffer
	if err := article.RenderText(&renderedText); err != nil {
		return nil, fmt.Errorf("render readability text: %w", err)
	}

	extraction := &Extraction{
		Text:    CleanText(renderedText.String()),
		Excerpt: CleanText(article.Excerpt()),
	}
	if extraction.Text == "" {
		extraction.Text = extraction.Excerpt
	}
	if extraction.Text == "" {
		return nil, fmt.Errorf("reader extracted empty content")
	}

	return extraction, nil
}

// CleanText normalizes line endings and collapses extra in-line whitespace.
func CleanText(raw string) string {
	normalized := strings.ReplaceAll(raw, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")

	lines := strings.Split(normalized, "\n")
	paragraphs := make([]string, 0, len(lines))
	for _, line := range lines {
		clean := strings.Join(strings.Fields(strings.TrimSpace(line)), " ")
		if clean == "" {
			continue
		}
		paragraphs = append(paragraphs, clean)
	}

	return strings.TrimSpace(strings.Join(paragraphs, "\n\n"))
}

// TruncateText clips text to maxChars runes and appends a single ellipsis rune when truncated.
func TruncateText(raw string, maxChars int) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}
	if maxChars <= 0 {
		return trimmed, false
	}

	runes := []rune(trimmed)
	if len(runes) <= maxChars {
		return trimmed, false
	}
	if maxChars == 1 {
		return "…", true
	}

	clipped := strings.TrimSpace(string(runes[:maxChars-1]))
	if clipped == "" {
		return "…", true
	}

	return clipped + "…", true
}
