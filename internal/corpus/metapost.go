package corpus

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/corpus/internal/config"
	"horse.fit/corpus/internal/db"
)

// CategoryNotFound is stamped when the categorizer returns nothing.
const CategoryNotFound = "N/A"

// CategoryScore is one ranked label from the categorization capability.
type CategoryScore struct {
	Label string
	Score float64
}

// Summarizer is the text-summarization capability the synthesizer consumes.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (summary, caption string, err error)
	Categorize(ctx context.Context, text string) ([]CategoryScore, error)
}

// LinkFactory derives the externally visible link fields of a synthetic post
// from its assigned store id.
type LinkFactory func(postID int64) (link, shortLink, linkHash string)

// MetapostLinkFactory builds the default link factory rooted at baseURL.
func MetapostLinkFactory(baseURL string) LinkFactory {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	return func(postID int64) (string, string, string) {
		shortLink := "m/" + strconv.FormatInt(postID, 10)
		link := base + "/" + shortLink
		digest := sha256.Sum256([]byte(link))
		return link, shortLink, hex.EncodeToString(digest[:])[:12]
	}
}

// Branding supplies the fixed identity sentinels stamped on synthetic posts.
type Branding struct {
	Bot   db.Author
	Paper db.Paper
}

func BrandingFromConfig(cfg *config.Config) Branding {
	return Branding{
		Bot: db.Author{
			Name:         cfg.BotAuthorName,
			ProfileImage: cfg.BotImageURL,
			Role:         "NLP",
		},
		Paper: db.Paper{
			Brand:   cfg.PaperBrand,
			LogoURL: cfg.PaperLogoURL,
		},
	}
}

// Synthesizer builds one synthetic aggregate post per source post from its
// sibling tier.
type Synthesizer struct {
	day        *Day
	summarizer Summarizer
	policy     TextPolicy
	branding   Branding
	linkFor    LinkFactory
	// checkpoint marks batch start; siblings created before it are prior
	// state and feed the lookup version, ones added by this very run do not.
	checkpoint time.Time
	logger     zerolog.Logger
}

func NewSynthesizer(
	day *Day,
	summarizer Summarizer,
	policy TextPolicy,
	branding Branding,
	linkFor LinkFactory,
	checkpoint time.Time,
	logger zerolog.Logger,
) *Synthesizer {
	return &Synthesizer{
		day:        day,
		summarizer: summarizer,
		policy:     policy,
		branding:   branding,
		linkFor:    linkFor,
		checkpoint: checkpoint,
		logger:     logger,
	}
}

// Build assembles the synthetic post for src's sibling cluster. Returns a nil
// post when no sibling resolves, which is expected for isolated posts, not an
// error. The second value is the lookup version matching a possible prior
// synthetic post of this evolving cluster.
func (s *Synthesizer) Build(ctx context.Context, src *db.Post) (*db.Post, string, error) {
	siblings := ExpandTier(s.day, src, TierSiblings)
	if len(siblings) == 0 {
		return nil, "", nil
	}

	cluster := make([]*db.Post, 0, len(siblings)+1)
	cluster = append(cluster, src)
	for _, sibling := range siblings {
		cluster = append(cluster, sibling.Post)
	}

	fragments := make([]string, 0, len(cluster))
	for _, member := range cluster {
		if text := s.policy.PostText(member, true); text != "" {
			fragments = append(fragments, punctuate(text))
		}
	}
	if len(fragments) == 0 {
		return nil, "", nil
	}
	text := strings.Join(fragments, " ")

	prior := make([]*db.Post, 0, len(siblings))
	current := make([]*db.Post, 0, len(siblings))
	for _, sibling := range siblings {
		current = append(current, sibling.Post)
		if !sibling.Post.CreatedAt.After(s.checkpoint) {
			prior = append(prior, sibling.Post)
		}
	}
	lookupVersion := versionHash(prior)

	now := time.Now().UTC()
	publishTime := s.day.Date()
	meta := &db.Post{
		PublishedOn:  s.day.Date(),
		Type:         db.MetapostPrefix + src.Type,
		Version:      versionHash(current),
		Country:      src.Country,
		Lang:         src.Lang,
		Siblings:     src.Siblings,
		Related:      src.Related,
		TopImage:     current[0].TopImage,
		Paper:        s.branding.Paper,
		Authors:      db.AuthorList{s.branding.Bot},
		IsDraft:      src.IsDraft,
		IsScrap:      src.IsScrap,
		PublishTime:  &publishTime,
		ModifiedTime: &now,
	}

	if err := summarizeInto(ctx, s.summarizer, text, meta); err != nil {
		return nil, "", fmt.Errorf("summarize cluster for post #%d: %w", src.PostID, err)
	}

	meta.Images = unionStrings(collectLists(cluster, func(p *db.Post) []string { return p.Images })...)
	meta.Videos = unionStrings(collectLists(cluster, func(p *db.Post) []string { return p.Videos })...)
	meta.Keywords = unionStrings(collectLists(cluster, func(p *db.Post) []string { return p.Keywords })...)
	meta.Tags = unionStrings(collectLists(cluster, func(p *db.Post) []string { return p.Tags })...)
	for _, member := range cluster {
		meta.IsDraft = meta.IsDraft && member.IsDraft
		meta.IsScrap = meta.IsScrap && member.IsScrap
		meta.Authors = uniqueAuthors(meta.Authors, member.Authors)
	}

	return meta, lookupVersion, nil
}

// Transform returns the persist transform deriving the synthetic post's link
// fields from its assigned store id.
func (s *Synthesizer) Transform() func(*db.Post) {
	return func(p *db.Post) {
		link, shortLink, linkHash := s.linkFor(p.PostID)
		p.Link = link
		p.ShortLink = shortLink
		p.LinkHash = linkHash
	}
}

// versionHash derives the reproducible version of a synthetic post from the
// multiset of its source sibling store ids. Recomputing over the same
// siblings yields the same hash, which is what makes the upsert idempotent.
func versionHash(posts []*db.Post) string {
	ids := make([]int64, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.PostID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var joined strings.Builder
	for _, id := range ids {
		joined.WriteString(strconv.FormatInt(id, 10))
		joined.WriteByte(':')
	}
	digest := sha256.Sum256([]byte(joined.String()))
	return hex.EncodeToString(digest[:])
}

// summarizeInto runs the summarization capability and stamps summary,
// caption and category onto the post. Category falls back to the not-found
// sentinel when the capability returns no labels.
func summarizeInto(ctx context.Context, capability Summarizer, text string, post *db.Post) error {
	summary, caption, err := capability.Summarize(ctx, text)
	if err != nil {
		return err
	}

	categories, err := capability.Categorize(ctx, text)
	if err != nil {
		return err
	}

	post.Summary = summary
	post.Caption = caption
	post.Category = CategoryNotFound
	if post.SumScores == nil {
		post.SumScores = db.ScoreMap{}
	}
	if len(categories) > 0 {
		post.Category = categories[0].Label
		post.SumScores["category"] = categories[0].Score
	}
	return nil
}

func collectLists(cluster []*db.Post, read func(*db.Post) []string) [][]string {
	lists := make([][]string, 0, len(cluster))
	for _, member := range cluster {
		lists = append(lists, read(member))
	}
	return lists
}

func unionStrings(lists ...[]string) db.StringList {
	seen := make(map[string]struct{})
	var union db.StringList
	for _, list := range lists {
		for _, v := range list {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			union = append(union, v)
		}
	}
	sort.Strings(union)
	return union
}

func uniqueAuthors(lists ...db.AuthorList) db.AuthorList {
	seen := make(map[db.Author]struct{})
	var merged db.AuthorList
	for _, list := range lists {
		for _, author := range list {
			if _, ok := seen[author]; ok {
				continue
			}
			seen[author] = struct{}{}
			merged = append(merged, author)
		}
	}
	return merged
}
