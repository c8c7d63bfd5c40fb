package payloadschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed scraped_post.schema.json
var scrapedPostSchemaJSON string

// ScrapedPost is the canonical wire form of one harvested post.
type ScrapedPost struct {
	PayloadVersion string          `json:"payload_version"`
	ShortLink      string          `json:"short_link"`
	Link           string          `json:"link,omitempty"`
	Type           string          `json:"type,omitempty"`
	Country        string          `json:"country,omitempty"`
	Lang           string          `json:"lang,omitempty"`
	Title          string          `json:"title"`
	Text           string          `json:"text,omitempty"`
	BodyHTML       string          `json:"body_html,omitempty"`
	Excerpt        string          `json:"excerpt,omitempty"`
	PublishTime    string          `json:"publish_time"`
	ModifiedTime   string          `json:"modified_time,omitempty"`
	TopImage       string          `json:"top_image,omitempty"`
	Images         []string        `json:"images,omitempty"`
	Videos         []string        `json:"videos,omitempty"`
	Keywords       []string        `json:"keywords,omitempty"`
	Tags           []string        `json:"tags,omitempty"`
	Authors        []ScrapedAuthor `json:"authors,omitempty"`
	Paper          *ScrapedPaper   `json:"paper,omitempty"`
}

type ScrapedAuthor struct {
	Name         string `json:"name"`
	ProfileImage string `json:"profile_image,omitempty"`
	Role         string `json:"role,omitempty"`
}

type ScrapedPaper struct {
	Brand       string `json:"brand"`
	Description string `json:"description,omitempty"`
	LogoURL     string `json:"logo_url,omitempty"`
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// ValidateScrapedPostPayload checks the payload against the v1 schema and the
// semantic rules a post must satisfy before it may enter the edit resolver.
func ValidateScrapedPostPayload(payload json.RawMessage) (*ScrapedPost, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize payload JSON: %w", err)
	}

	var post ScrapedPost
	if err := json.Unmarshal(normalized, &post); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}

	if err := validateSemantics(&post); err != nil {
		return nil, err
	}

	return &post, nil
}

func validateSemantics(post *ScrapedPost) error {
	if strings.TrimSpace(post.ShortLink) == "" {
		return fmt.Errorf("short_link must not be blank")
	}
	if strings.TrimSpace(post.Title) == "" {
		return fmt.Errorf("title must not be blank")
	}
	if strings.TrimSpace(post.Text) == "" && strings.TrimSpace(post.BodyHTML) == "" {
		return fmt.Errorf("one of text or body_html is required")
	}
	if _, err := time.Parse(time.RFC3339, strings.TrimSpace(post.PublishTime)); err != nil {
		return fmt.Errorf("publish_time must be RFC3339: %w", err)
	}
	if raw := strings.TrimSpace(post.ModifiedTime); raw != "" {
		if _, err := time.Parse(time.RFC3339, raw); err != nil {
			return fmt.Errorf("modified_time must be RFC3339: %w", err)
		}
	}
	if strings.HasPrefix(strings.TrimSpace(post.Type), "metapost.") {
		return fmt.Errorf("synthetic post types cannot be ingested")
	}
	return nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true

		if err := compiler.AddResource("scraped_post.schema.json", strings.NewReader(scrapedPostSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("scraped_post.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}

		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("payload contains trailing content")
	}

	return value, nil
}
