package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/corpus/internal/config"
	"horse.fit/corpus/internal/corpus"
	"horse.fit/corpus/internal/db"
	"horse.fit/corpus/internal/language"
	"horse.fit/corpus/internal/reader"
	payloadschema "horse.fit/corpus/schema"
)

// LanguageDetector resolves the language of a text sample. *langdetect.Detector
// implements it; tests substitute a stub.
type LanguageDetector interface {
	DetectISO6391(text string) string
}

// Result counts what happened to one batch of payloads.
type Result struct {
	Received    int `json:"received"`
	Invalid     int `json:"invalid"`
	OutOfWindow int `json:"out_of_window"`
	New         int `json:"new"`
	Duplicates  int `json:"duplicates"`
	MinorUpdate int `json:"minor_updates"`
	NewVersions int `json:"new_versions"`
	Failed      int `json:"failed"`
}

// Service turns validated scraped payloads into versioned rows of a day
// partition, running each through the edit resolver first.
type Service struct {
	store    corpus.Store
	policy   corpus.EditPolicy
	detector LanguageDetector
	cfg      *config.Config
	logger   zerolog.Logger
}

func NewService(store corpus.Store, detector LanguageDetector, cfg *config.Config, logger zerolog.Logger) (*Service, error) {
	policy, err := corpus.NewEditPolicy(cfg)
	if err != nil {
		return nil, fmt.Errorf("build edit policy: %w", err)
	}
	return &Service{
		store:    store,
		policy:   policy,
		detector: detector,
		cfg:      cfg,
		logger:   logger.With().Str("component", "ingest").Logger(),
	}, nil
}

// IngestDay processes one batch of raw payloads against the given day
// partition. Payloads published outside that calendar day are skipped.
// Per-payload failures are counted, never fatal for the batch.
func (s *Service) IngestDay(ctx context.Context, date time.Time, payloads []json.RawMessage) (*Result, error) {
	day, err := corpus.LoadDay(ctx, s.store, s.logger, dateOnly(date), corpus.LoadOptions{})
	if err != nil {
		return nil, err
	}

	resolver := corpus.NewResolver(s.policy, day)
	result := &Result{Received: len(payloads)}

	for _, payload := range payloads {
		if err := s.ingestOne(ctx, day, resolver, payload, result); err != nil {
			s.logger.Warn().Err(err).Msg("payload rejected")
		}
	}

	s.logger.Info().
		Str("day", day.Date().Format("2006-01-02")).
		Int("received", result.Received).
		Int("new", result.New).
		Int("duplicates", result.Duplicates).
		Int("minor_updates", result.MinorUpdate).
		Int("new_versions", result.NewVersions).
		Int("invalid", result.Invalid).
		Int("out_of_window", result.OutOfWindow).
		Int("failed", result.Failed).
		Msg("ingest batch done")
	return result, nil
}

func (s *Service) ingestOne(ctx context.Context, day *corpus.Day, resolver *corpus.Resolver, payload json.RawMessage, result *Result) error {
	scraped, err := payloadschema.ValidateScrapedPostPayload(payload)
	if err != nil {
		result.Invalid++
		return err
	}

	post, err := s.toPost(scraped)
	if err != nil {
		result.Invalid++
		return fmt.Errorf("payload %q: %w", scraped.ShortLink, err)
	}

	if !sameDay(*post.PublishTime, day.Date()) {
		result.OutOfWindow++
		s.logger.Debug().
			Str("short_link", post.ShortLink).
			Time("publish_time", *post.PublishTime).
			Msg("skipping post published outside the target day")
		return nil
	}

	verdict, existing, err := resolver.Resolve(post, day)
	if err != nil {
		result.Failed++
		return fmt.Errorf("resolve %q: %w", post.ShortLink, err)
	}

	var match map[string]any
	switch verdict {
	case corpus.VerdictDuplicate:
		result.Duplicates++
		s.logger.Debug().Str("short_link", post.ShortLink).Msg("dropping pristine duplicate")
		return nil
	case corpus.VerdictNew:
		post.Version = "1"
	case corpus.VerdictNewVersion:
		post.Version = strconv.Itoa(existing.VersionInt() + 1)
	case corpus.VerdictMinorUpdate:
		post.PostID = existing.PostID
		post.PostUUID = existing.PostUUID
		post.Version = existing.Version
		match = map[string]any{"post_id": existing.PostID}
	}

	if _, _, err := day.Persist(ctx, post, match, nil); err != nil {
		result.Failed++
		return fmt.Errorf("persist %q: %w", post.ShortLink, err)
	}

	switch verdict {
	case corpus.VerdictNew:
		result.New++
	case corpus.VerdictNewVersion:
		result.NewVersions++
	case corpus.VerdictMinorUpdate:
		result.MinorUpdate++
	}
	return nil
}

// toPost maps the validated wire form onto a storable row, extracting text
// from raw HTML and detecting the language where the payload left gaps.
func (s *Service) toPost(scraped *payloadschema.ScrapedPost) (*db.Post, error) {
	publishTime, err := time.Parse(time.RFC3339, strings.TrimSpace(scraped.PublishTime))
	if err != nil {
		return nil, fmt.Errorf("parse publish_time: %w", err)
	}
	publishTime = publishTime.UTC()

	post := &db.Post{
		ShortLink:   scraped.ShortLink,
		Link:        strings.TrimSpace(scraped.Link),
		Type:        strings.TrimSpace(scraped.Type),
		Country:     language.NormalizeCountry(scraped.Country),
		Lang:        language.NormalizeCode(scraped.Lang),
		Title:       strings.TrimSpace(scraped.Title),
		Text:        reader.CleanText(scraped.Text),
		Excerpt:     reader.CleanText(scraped.Excerpt),
		TopImage:    strings.TrimSpace(scraped.TopImage),
		Images:      db.StringList(scraped.Images),
		Videos:      db.StringList(scraped.Videos),
		Keywords:    db.StringList(scraped.Keywords),
		Tags:        db.StringList(scraped.Tags),
		IsDraft:     !s.cfg.AutoPublish,
		PublishTime: &publishTime,
	}
	if post.Type == "" {
		post.Type = db.PostTypeDefault
	}
	if post.Link != "" {
		post.LinkHash = linkHash(post.Link)
	}

	if raw := strings.TrimSpace(scraped.ModifiedTime); raw != "" {
		modified, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, fmt.Errorf("parse modified_time: %w", err)
		}
		modified = modified.UTC()
		post.ModifiedTime = &modified
	}

	if post.Text == "" && scraped.BodyHTML != "" {
		extraction, err := reader.ExtractHTML([]byte(scraped.BodyHTML), post.Link)
		if err != nil {
			return nil, fmt.Errorf("extract body_html: %w", err)
		}
		post.Text = extraction.Text
		if post.Excerpt == "" {
			post.Excerpt = extraction.Excerpt
		}
	}
	if post.Text == "" {
		return nil, fmt.Errorf("no readable text")
	}

	if post.Lang == "" && s.detector != nil {
		post.Lang = s.detector.DetectISO6391(post.Title + " " + post.Text)
	}
	if post.Lang == "" {
		post.Lang = s.cfg.DefaultLang
	}

	for _, author := range scraped.Authors {
		post.Authors = append(post.Authors, db.Author{
			Name:         strings.TrimSpace(author.Name),
			ProfileImage: strings.TrimSpace(author.ProfileImage),
			Role:         strings.TrimSpace(author.Role),
		})
	}
	if scraped.Paper != nil {
		post.Paper = db.Paper{
			Brand:       strings.TrimSpace(scraped.Paper.Brand),
			Description: strings.TrimSpace(scraped.Paper.Description),
			LogoURL:     strings.TrimSpace(scraped.Paper.LogoURL),
		}
	}

	return post, nil
}

func linkHash(link string) string {
	sum := sha256.Sum256([]byte(link))
	return hex.EncodeToString(sum[:])[:12]
}

func dateOnly(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func sameDay(a, b time.Time) bool {
	return dateOnly(a).Equal(dateOnly(b))
}
