package corpus

import (
	"testing"

	"github.com/rs/zerolog"

	"horse.fit/corpus/internal/config"
	"horse.fit/corpus/internal/db"
)

// stubVectorizer answers fixed rankings per corpus position.
type stubVectorizer struct {
	docs  int
	pairs map[int][]IndexScore
}

func (s *stubVectorizer) NumDocs() int { return s.docs }

func (s *stubVectorizer) SimilarTo(doc int, threshold float64, topN int) []IndexScore {
	var out []IndexScore
	for _, pair := range s.pairs[doc] {
		if pair.Score >= threshold && pair.Score > 0 {
			out = append(out, pair)
		}
		if len(out) == topN {
			break
		}
	}
	return out
}

func testTiers() []Tier {
	return TiersFromConfig(&config.Config{
		SiblingsThreshold: 0.4,
		RelatedThreshold:  0.2,
		SimilarityMaxDocs: 2,
	})
}

func similarityFixture(t *testing.T) (*Day, []*db.Post) {
	t.Helper()
	store := newFakeStore()
	store.seed(seedPost("a1", "1", "gold mines reopen", "the mines reopened"))
	store.seed(seedPost("b2", "1", "mines reopening", "gold mines are back"))
	store.seed(seedPost("c3", "1", "cotton harvest", "cotton season starts"))
	day := loadTestDay(t, store)
	return day, day.Posts()
}

func TestComputeAssignsDisjointTiers(t *testing.T) {
	t.Parallel()

	day, posts := similarityFixture(t)
	vectorizer := &stubVectorizer{docs: 3, pairs: map[int][]IndexScore{
		0: {{Index: 1, Score: 0.9}, {Index: 2, Score: 0.3}},
	}}

	engine := NewSimilarityEngine(day, vectorizer, testTiers(), zerolog.Nop())
	tiers, err := engine.Compute(posts[0])
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	siblings := tiers[TierSiblings]
	if len(siblings) != 1 || siblings[0].PostID != posts[1].PostID {
		t.Fatalf("unexpected siblings %+v", siblings)
	}
	related := tiers[TierRelated]
	if len(related) != 1 || related[0].PostID != posts[2].PostID {
		t.Fatalf("related must exclude the sibling tier, got %+v", related)
	}
}

func TestComputeOverlapKeepsHigherTierMatches(t *testing.T) {
	t.Parallel()

	day, posts := similarityFixture(t)
	vectorizer := &stubVectorizer{docs: 3, pairs: map[int][]IndexScore{
		0: {{Index: 1, Score: 0.9}},
	}}

	engine := NewSimilarityEngine(day, vectorizer, testTiers(), zerolog.Nop())
	engine.Overlap = true
	tiers, err := engine.Compute(posts[0])
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	if len(tiers[TierSiblings]) != 1 || len(tiers[TierRelated]) != 1 {
		t.Fatalf("overlap mode must allow the same match in both tiers, got %+v", tiers)
	}
}

func TestComputeSkipsSelfMatches(t *testing.T) {
	t.Parallel()

	day, posts := similarityFixture(t)
	vectorizer := &stubVectorizer{docs: 3, pairs: map[int][]IndexScore{
		0: {{Index: 0, Score: 1.0}, {Index: 1, Score: 0.5}},
	}}

	engine := NewSimilarityEngine(day, vectorizer, testTiers(), zerolog.Nop())
	tiers, err := engine.Compute(posts[0])
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	for _, ref := range tiers[TierSiblings] {
		if ref.PostID == posts[0].PostID {
			t.Fatal("a post must never be its own sibling")
		}
	}
}

func TestExpandTierDropsUnresolvableRefs(t *testing.T) {
	t.Parallel()

	day, posts := similarityFixture(t)
	src := posts[0]
	src.Siblings = db.RefList{
		{PostID: posts[1].PostID, Score: 0.9},
		{PostID: 9999, Score: 0.8},
		{PostID: posts[2].PostID, Score: 0.5},
	}

	expanded := ExpandTier(day, src, TierSiblings)
	if len(expanded) != 2 {
		t.Fatalf("expected 2 resolvable siblings, got %d", len(expanded))
	}
	if expanded[0].Post.PostID != posts[1].PostID || expanded[1].Post.PostID != posts[2].PostID {
		t.Fatalf("stored order must be preserved, got %+v", expanded)
	}
	if expanded[0].Score != 0.9 {
		t.Fatalf("stored score must be preserved, got %f", expanded[0].Score)
	}
}

func TestApplyStampsTierFields(t *testing.T) {
	t.Parallel()

	_, posts := similarityFixture(t)
	post := *posts[0]
	Apply(&post, map[TierName]db.RefList{
		TierSiblings: {{PostID: 7, Score: 0.8}},
		TierRelated:  {{PostID: 8, Score: 0.3}},
	})

	if len(post.Siblings) != 1 || post.Siblings[0].PostID != 7 {
		t.Fatalf("siblings not applied: %+v", post.Siblings)
	}
	if len(post.Related) != 1 || post.Related[0].PostID != 8 {
		t.Fatalf("related not applied: %+v", post.Related)
	}
}

var _ Store = (*fakeStore)(nil)
