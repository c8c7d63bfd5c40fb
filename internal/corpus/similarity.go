package corpus

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"horse.fit/corpus/internal/config"
	"horse.fit/corpus/internal/db"
)

// IndexScore pairs a corpus position with a similarity score.
type IndexScore struct {
	Index int
	Score float64
}

// Vectorizer indexes the full day corpus once and answers ranked similarity
// queries against it. Deterministic for a fixed corpus and parameters.
type Vectorizer interface {
	NumDocs() int
	SimilarTo(doc int, threshold float64, topN int) []IndexScore
}

// TierName selects one of the two relationship fields on a post.
type TierName string

const (
	TierSiblings TierName = "siblings"
	TierRelated  TierName = "related"
)

// Tier is one similarity band: every reference scoring at or above Threshold
// lands in the band, capped at TopN.
type Tier struct {
	Name      TierName
	Threshold float64
	TopN      int
}

// TiersFromConfig builds the tier list, ordered by descending threshold as
// the non-overlap subtraction requires.
func TiersFromConfig(cfg *config.Config) []Tier {
	tiers := []Tier{
		{Name: TierSiblings, Threshold: cfg.SiblingsThreshold, TopN: cfg.SimilarityMaxDocs},
		{Name: TierRelated, Threshold: cfg.RelatedThreshold, TopN: cfg.SimilarityMaxDocs},
	}
	sort.SliceStable(tiers, func(i, j int) bool { return tiers[i].Threshold > tiers[j].Threshold })
	return tiers
}

func tierRefs(post *db.Post, name TierName) db.RefList {
	switch name {
	case TierSiblings:
		return post.Siblings
	case TierRelated:
		return post.Related
	default:
		return nil
	}
}

func setTierRefs(post *db.Post, name TierName, refs db.RefList) {
	switch name {
	case TierSiblings:
		post.Siblings = refs
	case TierRelated:
		post.Related = refs
	}
}

// SimilarityEngine computes tiered, pairwise-disjoint similarity
// relationships across one day partition.
type SimilarityEngine struct {
	day        *Day
	vectorizer Vectorizer
	tiers      []Tier
	// Overlap keeps higher-tier references inside lower tiers too.
	Overlap bool
	logger  zerolog.Logger
}

func NewSimilarityEngine(day *Day, vectorizer Vectorizer, tiers []Tier, logger zerolog.Logger) *SimilarityEngine {
	return &SimilarityEngine{
		day:        day,
		vectorizer: vectorizer,
		tiers:      tiers,
		logger:     logger,
	}
}

// Compute queries the vectorizer per tier in descending-threshold order and
// subtracts references already assigned to a higher tier, so the bands stay
// pairwise disjoint unless Overlap is set. The result maps tier names to
// reference lists in descending-score order.
func (e *SimilarityEngine) Compute(post *db.Post) (map[TierName]db.RefList, error) {
	idx := e.day.Index(post)
	if idx < 0 {
		return nil, fmt.Errorf("post #%d is not part of the day partition", post.PostID)
	}

	assigned := make(map[int64]struct{})
	result := make(map[TierName]db.RefList, len(e.tiers))
	posts := e.day.posts

	for _, tier := range e.tiers {
		pairs := e.vectorizer.SimilarTo(idx, tier.Threshold, tier.TopN)
		refs := make(db.RefList, 0, len(pairs))
		for _, pair := range pairs {
			if pair.Index < 0 || pair.Index >= len(posts) || pair.Index == idx {
				continue
			}
			ref := db.Ref{PostID: posts[pair.Index].PostID, Score: pair.Score}
			if !e.Overlap {
				if _, taken := assigned[ref.PostID]; taken {
					continue
				}
				assigned[ref.PostID] = struct{}{}
			}
			refs = append(refs, ref)
		}
		result[tier.Name] = refs
	}

	return result, nil
}

// Apply stamps a computed tier map onto the post.
func Apply(post *db.Post, tiers map[TierName]db.RefList) {
	for name, refs := range tiers {
		setTierRefs(post, name, refs)
	}
}

// ScoredPost is a live post reference recovered from a stored tier.
type ScoredPost struct {
	Post  *db.Post
	Score float64
}

// ExpandTier resolves a persisted relationship field back into live posts by
// store-id lookup in the partition, preserving stored order. References that
// no longer resolve are silently dropped.
func ExpandTier(day *Day, post *db.Post, name TierName) []ScoredPost {
	refs := tierRefs(post, name)
	expanded := make([]ScoredPost, 0, len(refs))
	for _, ref := range refs {
		if ref.PostID == 0 {
			continue
		}
		if live := day.Lookup(ref.PostID); live != nil {
			expanded = append(expanded, ScoredPost{Post: live, Score: ref.Score})
		}
	}
	return expanded
}
