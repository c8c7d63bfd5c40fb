package corpus

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/corpus/internal/db"
)

type stubSummarizer struct {
	categories []CategoryScore
	calls      int
}

func (s *stubSummarizer) Summarize(_ context.Context, text string) (string, string, error) {
	s.calls++
	return "summary of: " + text[:min(24, len(text))], "caption", nil
}

func (s *stubSummarizer) Categorize(_ context.Context, _ string) ([]CategoryScore, error) {
	return s.categories, nil
}

func testBranding() Branding {
	return Branding{
		Bot:   db.Author{Name: "Rob. O.", Role: "NLP"},
		Paper: db.Paper{Brand: "corpus"},
	}
}

func clusterFixture(t *testing.T) (*Day, []*db.Post) {
	t.Helper()

	store := newFakeStore()
	a := seedPost("a1", "1", "gold mines reopen", "the mines reopened after repairs")
	a.Keywords = db.StringList{"mines", "gold"}
	a.Images = db.StringList{"a.jpg"}
	a.Authors = db.AuthorList{{Name: "F. Tchad"}}
	a.IsDraft = true
	store.seed(a)

	b := seedPost("b2", "1", "mines reopening", "gold mines are back in business")
	b.Keywords = db.StringList{"mines", "economy"}
	b.Images = db.StringList{"b.jpg", "a.jpg"}
	b.Authors = db.AuthorList{{Name: "A. Deby"}}
	b.IsDraft = true
	b.TopImage = "b-top.jpg"
	store.seed(b)

	day := loadTestDay(t, store)
	posts := day.Posts()
	posts[0].Siblings = db.RefList{{PostID: posts[1].PostID, Score: 0.9}}
	return day, posts
}

func newTestSynthesizer(day *Day, summarizer Summarizer, checkpoint time.Time) *Synthesizer {
	return NewSynthesizer(
		day,
		summarizer,
		TextPolicy{},
		testBranding(),
		MetapostLinkFactory("https://corpus.horse.fit/p"),
		checkpoint,
		zerolog.Nop(),
	)
}

func TestBuildReturnsNilWithoutSiblings(t *testing.T) {
	t.Parallel()

	day, posts := clusterFixture(t)
	isolated := posts[1]

	synthesizer := newTestSynthesizer(day, &stubSummarizer{}, time.Now().UTC())
	meta, _, err := synthesizer.Build(context.Background(), isolated)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if meta != nil {
		t.Fatalf("isolated post must not produce a synthetic post, got %+v", meta)
	}
}

func TestBuildVersionIsReproducible(t *testing.T) {
	t.Parallel()

	day, posts := clusterFixture(t)
	checkpoint := time.Now().UTC()
	synthesizer := newTestSynthesizer(day, &stubSummarizer{}, checkpoint)

	first, _, err := synthesizer.Build(context.Background(), posts[0])
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	second, _, err := synthesizer.Build(context.Background(), posts[0])
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if first.Version == "" || first.Version != second.Version {
		t.Fatalf("version must be reproducible, got %q and %q", first.Version, second.Version)
	}
}

func TestBuildLookupVersionCoversOnlyPriorSiblings(t *testing.T) {
	t.Parallel()

	day, posts := clusterFixture(t)

	// Checkpoint before the sibling rows were created: the cluster has no
	// prior members, so the lookup targets the empty-cluster version while
	// the new row is stamped with the full one.
	checkpoint := posts[1].CreatedAt.Add(-time.Hour)
	synthesizer := newTestSynthesizer(day, &stubSummarizer{}, checkpoint)

	meta, lookupVersion, err := synthesizer.Build(context.Background(), posts[0])
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if lookupVersion == meta.Version {
		t.Fatal("lookup version must not cover siblings created after the checkpoint")
	}

	// Checkpoint after creation: prior and current clusters coincide.
	later := newTestSynthesizer(day, &stubSummarizer{}, posts[1].CreatedAt.Add(time.Hour))
	meta, lookupVersion, err = later.Build(context.Background(), posts[0])
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if lookupVersion != meta.Version {
		t.Fatalf("stable cluster must look up its own version, got %q vs %q", lookupVersion, meta.Version)
	}
}

func TestBuildMergesClusterFields(t *testing.T) {
	t.Parallel()

	day, posts := clusterFixture(t)
	synthesizer := newTestSynthesizer(day, &stubSummarizer{
		categories: []CategoryScore{{Label: "economy", Score: 0.83}},
	}, time.Now().UTC())

	meta, _, err := synthesizer.Build(context.Background(), posts[0])
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if meta.Type != db.MetapostPrefix+db.PostTypeDefault {
		t.Fatalf("unexpected type %q", meta.Type)
	}
	wantKeywords := db.StringList{"economy", "gold", "mines"}
	if len(meta.Keywords) != len(wantKeywords) {
		t.Fatalf("keywords union wrong: %+v", meta.Keywords)
	}
	for i, kw := range wantKeywords {
		if meta.Keywords[i] != kw {
			t.Fatalf("keywords union wrong: %+v", meta.Keywords)
		}
	}
	if len(meta.Images) != 2 {
		t.Fatalf("images union wrong: %+v", meta.Images)
	}
	if !meta.IsDraft {
		t.Fatal("draft flag must AND over the cluster")
	}
	if meta.TopImage != "b-top.jpg" {
		t.Fatalf("top image must come from the highest-scored sibling, got %q", meta.TopImage)
	}
	if meta.Category != "economy" || meta.SumScores["category"] != 0.83 {
		t.Fatalf("category not stamped: %q %+v", meta.Category, meta.SumScores)
	}
	if len(meta.Authors) != 3 || meta.Authors[0] != testBranding().Bot {
		t.Fatalf("authors must start with the bot sentinel: %+v", meta.Authors)
	}
	if meta.Paper != testBranding().Paper {
		t.Fatalf("paper must be the brand sentinel: %+v", meta.Paper)
	}
}

func TestBuildCategoryFallsBackToSentinel(t *testing.T) {
	t.Parallel()

	day, posts := clusterFixture(t)
	synthesizer := newTestSynthesizer(day, &stubSummarizer{}, time.Now().UTC())

	meta, _, err := synthesizer.Build(context.Background(), posts[0])
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if meta.Category != CategoryNotFound {
		t.Fatalf("got category %q, want %q", meta.Category, CategoryNotFound)
	}
}

func TestTransformDerivesLinkFields(t *testing.T) {
	t.Parallel()

	day, _ := clusterFixture(t)
	synthesizer := newTestSynthesizer(day, &stubSummarizer{}, time.Now().UTC())

	post := &db.Post{PostID: 42}
	synthesizer.Transform()(post)

	if post.ShortLink != "m/42" {
		t.Fatalf("unexpected short link %q", post.ShortLink)
	}
	if post.Link != "https://corpus.horse.fit/p/m/42" {
		t.Fatalf("unexpected link %q", post.Link)
	}
	if len(post.LinkHash) != 12 {
		t.Fatalf("unexpected link hash %q", post.LinkHash)
	}
}
