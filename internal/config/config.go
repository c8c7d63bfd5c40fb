package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"CORPUS_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"CORPUS_DB_MAX_CONNS" default:"8"`

	// Edit resolution. A threshold of 0 keeps exact set comparison for
	// list-valued fields; anything above 0 switches to Jaccard similarity
	// over the keyword token sets.
	EditsPristineThreshold   float64 `envconfig:"EDITS_PRISTINE_THRESHOLD" default:"0"`
	EditsNewVersionThreshold float64 `envconfig:"EDITS_NEW_VERSION_THRESHOLD" default:"0"`
	EditsNewVersionFields    string  `envconfig:"EDITS_NEW_VERSION_FIELDS" default:"title,text"`

	// Similarity tiers.
	SiblingsThreshold float64 `envconfig:"SIMILARITY_SIBLINGS_THRESHOLD" default:"0.4"`
	RelatedThreshold  float64 `envconfig:"SIMILARITY_RELATED_THRESHOLD" default:"0.2"`
	SimilarityMaxDocs int     `envconfig:"SIMILARITY_MAX_DOCS" default:"2"`

	// Text-policy switches for NLP input selection.
	NLPUsesMeta    bool `envconfig:"NLP_USES_META" default:"false"`
	SummaryUsesNLP bool `envconfig:"SUMMARY_USES_NLP" default:"false"`
	MetaUsesNLP    bool `envconfig:"META_USES_NLP" default:"true"`

	SummaryMinWords int `envconfig:"SUMMARY_MIN_WORDS" default:"20"`

	SummarizerEndpoint string `envconfig:"SUMMARIZER_ENDPOINT" default:"http://127.0.0.1:8866"`

	MetapostBaseURL string `envconfig:"METAPOST_BASE_URL" default:"https://corpus.horse.fit/p"`

	AutoPublish bool   `envconfig:"AUTO_PUBLISH" default:"true"`
	DefaultLang string `envconfig:"DEFAULT_LANG" default:"en"`

	BotAuthorName string `envconfig:"BOT_AUTHOR_NAME" default:"Rob. O."`
	BotImageURL   string `envconfig:"BOT_IMAGE_URL" default:""`
	PaperBrand    string `envconfig:"PAPER_BRAND" default:"corpus"`
	PaperLogoURL  string `envconfig:"PAPER_LOGO_URL" default:""`

	APIListenAddr string `envconfig:"API_LISTEN_ADDR" default:":8080"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("CORPUS_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("CORPUS_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("CORPUS_DB_MIN_CONNS (%d) cannot exceed CORPUS_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	for name, v := range map[string]float64{
		"EDITS_PRISTINE_THRESHOLD":      c.EditsPristineThreshold,
		"EDITS_NEW_VERSION_THRESHOLD":   c.EditsNewVersionThreshold,
		"SIMILARITY_SIBLINGS_THRESHOLD": c.SiblingsThreshold,
		"SIMILARITY_RELATED_THRESHOLD":  c.RelatedThreshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be within [0,1]", name)
		}
	}
	if c.RelatedThreshold > c.SiblingsThreshold {
		return fmt.Errorf("SIMILARITY_RELATED_THRESHOLD (%f) cannot exceed SIMILARITY_SIBLINGS_THRESHOLD (%f)", c.RelatedThreshold, c.SiblingsThreshold)
	}
	if c.SimilarityMaxDocs < 1 {
		return fmt.Errorf("SIMILARITY_MAX_DOCS must be >= 1")
	}
	if len(c.NewVersionFieldsList()) == 0 {
		return fmt.Errorf("EDITS_NEW_VERSION_FIELDS must name at least one field")
	}
	return nil
}

// NewVersionFieldsList splits the comma-separated field list, trimmed and deduplicated.
func (c *Config) NewVersionFieldsList() []string {
	if c == nil {
		return nil
	}

	parts := strings.Split(c.EditsNewVersionFields, ",")
	fields := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		field := strings.ToLower(strings.TrimSpace(part))
		if field == "" {
			continue
		}
		if _, exists := seen[field]; exists {
			continue
		}
		seen[field] = struct{}{}
		fields = append(fields, field)
	}
	return fields
}
