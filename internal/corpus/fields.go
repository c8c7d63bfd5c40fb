package corpus

import (
	"fmt"
	"time"

	"horse.fit/corpus/internal/config"
	"horse.fit/corpus/internal/db"
)

// fieldProbe reads one comparable content field off a post. Exactly one of
// scalar or list is set.
type fieldProbe struct {
	name   string
	scalar func(p *db.Post) any
	list   func(p *db.Post) []string
}

func timeKey(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func authorKeys(authors db.AuthorList) []string {
	keys := make([]string, 0, len(authors))
	for _, a := range authors {
		keys = append(keys, a.Name+"|"+a.ProfileImage+"|"+a.Role)
	}
	return keys
}

// postProbes is the closed schema of content fields the edit resolver can
// compare. Identity and store-assigned fields (natural key, store id, version)
// are deliberately absent.
var postProbes = []fieldProbe{
	{name: "title", scalar: func(p *db.Post) any { return p.Title }},
	{name: "text", scalar: func(p *db.Post) any { return p.Text }},
	{name: "excerpt", scalar: func(p *db.Post) any { return p.Excerpt }},
	{name: "link", scalar: func(p *db.Post) any { return p.Link }},
	{name: "type", scalar: func(p *db.Post) any { return p.Type }},
	{name: "country", scalar: func(p *db.Post) any { return p.Country }},
	{name: "lang", scalar: func(p *db.Post) any { return p.Lang }},
	{name: "top_image", scalar: func(p *db.Post) any { return p.TopImage }},
	{name: "is_draft", scalar: func(p *db.Post) any { return p.IsDraft }},
	{name: "is_scrap", scalar: func(p *db.Post) any { return p.IsScrap }},
	{name: "publish_time", scalar: func(p *db.Post) any { return timeKey(p.PublishTime) }},
	{name: "modified_time", scalar: func(p *db.Post) any { return timeKey(p.ModifiedTime) }},
	{name: "caption", scalar: func(p *db.Post) any { return p.Caption }},
	{name: "summary", scalar: func(p *db.Post) any { return p.Summary }},
	{name: "category", scalar: func(p *db.Post) any { return p.Category }},
	{name: "images", list: func(p *db.Post) []string { return p.Images }},
	{name: "videos", list: func(p *db.Post) []string { return p.Videos }},
	{name: "keywords", list: func(p *db.Post) []string { return p.Keywords }},
	{name: "tags", list: func(p *db.Post) []string { return p.Tags }},
	{name: "authors", list: func(p *db.Post) []string { return authorKeys(p.Authors) }},
}

func probeByName(name string) (fieldProbe, bool) {
	for _, probe := range postProbes {
		if probe.name == name {
			return probe, true
		}
	}
	return fieldProbe{}, false
}

// EditPolicy parameterizes the edit resolver. Built once from configuration;
// components receive it by value.
type EditPolicy struct {
	// ExcludedFields are computed or NLP-derived fields whose drift never
	// counts as an edit.
	ExcludedFields map[string]struct{}
	// NewVersionFields are the fields whose change beyond the new-version
	// threshold supersedes the stored post with a new content version.
	NewVersionFields []string
	// Thresholds of 0 keep exact comparison; above 0, list-valued fields
	// compare by Jaccard similarity of the keyword token sets.
	PristineThreshold   float64
	NewVersionThreshold float64
}

// nlpDerivedFields is the default exclusion set: values this system itself
// computes after ingestion, so drift there says nothing about source edits.
var nlpDerivedFields = []string{
	"caption", "summary", "category",
	"tags", "keywords", "excerpt",
}

func NewEditPolicy(cfg *config.Config) (EditPolicy, error) {
	if cfg == nil {
		return EditPolicy{}, fmt.Errorf("config is nil")
	}

	excluded := make(map[string]struct{}, len(nlpDerivedFields))
	for _, name := range nlpDerivedFields {
		excluded[name] = struct{}{}
	}

	versionFields := cfg.NewVersionFieldsList()
	for _, name := range versionFields {
		if _, ok := probeByName(name); !ok {
			return EditPolicy{}, fmt.Errorf("unknown new-version field %q", name)
		}
	}

	return EditPolicy{
		ExcludedFields:      excluded,
		NewVersionFields:    versionFields,
		PristineThreshold:   cfg.EditsPristineThreshold,
		NewVersionThreshold: cfg.EditsNewVersionThreshold,
	}, nil
}
