package nlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"horse.fit/corpus/internal/corpus"
)

const (
	DefaultSummarizerEndpoint       = "http://127.0.0.1:8866"
	DefaultSummarizerRequestTimeout = 45 * time.Second
)

// SummarizerClient talks to the local summarization/categorization service.
// Implements corpus.Summarizer.
type SummarizerClient struct {
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
}

type SummarizerOptions struct {
	Endpoint       string
	RequestTimeout time.Duration
	HTTPClient     *http.Client
}

func NewSummarizerClient(opts SummarizerOptions) *SummarizerClient {
	endpoint := strings.TrimRight(strings.TrimSpace(opts.Endpoint), "/")
	if endpoint == "" {
		endpoint = DefaultSummarizerEndpoint
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultSummarizerRequestTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &SummarizerClient{
		endpoint:   endpoint,
		timeout:    timeout,
		httpClient: httpClient,
	}
}

type summarizeRequest struct {
	Text string `json:"text"`
}

type summarizeResponse struct {
	Summary string `json:"summary"`
	Caption string `json:"caption"`
}

type categorizeResponse struct {
	Categories []struct {
		Label string  `json:"label"`
		Score float64 `json:"score"`
	} `json:"categories"`
}

// Summarize requests an abstractive summary and a short caption for text.
func (c *SummarizerClient) Summarize(ctx context.Context, text string) (string, string, error) {
	var parsed summarizeResponse
	if err := c.post(ctx, "/summarize", summarizeRequest{Text: text}, &parsed); err != nil {
		return "", "", err
	}
	return parsed.Summary, parsed.Caption, nil
}

// Categorize requests ranked category labels for text. An empty list is a
// valid response.
func (c *SummarizerClient) Categorize(ctx context.Context, text string) ([]corpus.CategoryScore, error) {
	var parsed categorizeResponse
	if err := c.post(ctx, "/categorize", summarizeRequest{Text: text}, &parsed); err != nil {
		return nil, err
	}

	categories := make([]corpus.CategoryScore, 0, len(parsed.Categories))
	for _, row := range parsed.Categories {
		categories = append(categories, corpus.CategoryScore{Label: row.Label, Score: row.Score})
	}
	return categories, nil
}

func (c *SummarizerClient) post(ctx context.Context, path string, payload, dest any) error {
	endpoint, err := url.JoinPath(c.endpoint, path)
	if err != nil {
		return fmt.Errorf("build summarizer url: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal summarizer request: %w", err)
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build summarizer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("summarizer request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read summarizer response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("summarizer status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if err := json.Unmarshal(respBody, dest); err != nil {
		return fmt.Errorf("decode summarizer response: %w", err)
	}
	return nil
}
