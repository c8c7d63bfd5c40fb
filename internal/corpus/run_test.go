package corpus

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"horse.fit/corpus/internal/config"
	"horse.fit/corpus/internal/db"
)

func runnerConfig() *config.Config {
	return &config.Config{
		EditsNewVersionFields: "title,text",
		SiblingsThreshold:     0.4,
		RelatedThreshold:      0.2,
		SimilarityMaxDocs:     2,
		MetaUsesNLP:           true,
		SummaryMinWords:       3,
		MetapostBaseURL:       "https://corpus.horse.fit/p",
		BotAuthorName:         "Rob. O.",
		PaperBrand:            "corpus",
	}
}

func runnerFixture() *fakeStore {
	store := newFakeStore()
	store.seed(seedPost("a1", "1", "gold mines reopen", "the mines reopened after repairs"))
	store.seed(seedPost("b2", "1", "mines reopening", "gold mines are back in business"))
	store.seed(seedPost("c3", "1", "cotton harvest", "cotton season starts in the south"))
	return store
}

func pairwiseVectorizer() func([]string) Vectorizer {
	return func(texts []string) Vectorizer {
		return &stubVectorizer{docs: len(texts), pairs: map[int][]IndexScore{
			0: {{Index: 1, Score: 0.9}},
			1: {{Index: 0, Score: 0.9}},
		}}
	}
}

func countMetaRows(store *fakeStore) int {
	n := 0
	for _, row := range store.rows {
		if strings.HasPrefix(row.Type, db.MetapostPrefix) {
			n++
		}
	}
	return n
}

func TestRunDayCounts(t *testing.T) {
	t.Parallel()

	store := runnerFixture()
	runner := NewRunner(store, nil, &stubSummarizer{}, pairwiseVectorizer(), runnerConfig(), zerolog.Nop())

	counts, err := runner.RunDay(context.Background(), testDay, PhaseAll)
	if err != nil {
		t.Fatalf("RunDay failed: %v", err)
	}

	if counts.Total != 3 {
		t.Fatalf("total = %d, want 3", counts.Total)
	}
	if counts.Similarity != 3 {
		t.Fatalf("similarity = %d, want 3", counts.Similarity)
	}
	if counts.Summary != 3 {
		t.Fatalf("summary = %d, want 3", counts.Summary)
	}
	if counts.Metapost != 2 {
		t.Fatalf("metapost = %d, want 2", counts.Metapost)
	}
	if counts.Words == 0 {
		t.Fatal("word count must be accumulated")
	}
	if countMetaRows(store) != 2 {
		t.Fatalf("stored metaposts = %d, want 2", countMetaRows(store))
	}
}

func TestRunDaySynthesisIsIdempotent(t *testing.T) {
	t.Parallel()

	store := runnerFixture()
	runner := NewRunner(store, nil, &stubSummarizer{}, pairwiseVectorizer(), runnerConfig(), zerolog.Nop())

	if _, err := runner.RunDay(context.Background(), testDay, PhaseAll); err != nil {
		t.Fatalf("first RunDay failed: %v", err)
	}
	first := countMetaRows(store)

	if _, err := runner.RunDay(context.Background(), testDay, PhaseAll); err != nil {
		t.Fatalf("second RunDay failed: %v", err)
	}

	if countMetaRows(store) != first {
		t.Fatalf("second run must update metaposts in place: %d then %d", first, countMetaRows(store))
	}
}

func TestRunDaySinglePhase(t *testing.T) {
	t.Parallel()

	store := runnerFixture()
	runner := NewRunner(store, nil, &stubSummarizer{}, pairwiseVectorizer(), runnerConfig(), zerolog.Nop())

	counts, err := runner.RunDay(context.Background(), testDay, PhaseSimilarity)
	if err != nil {
		t.Fatalf("RunDay failed: %v", err)
	}
	if counts.Similarity == 0 || counts.Summary != 0 || counts.Metapost != 0 {
		t.Fatalf("similarity-only run touched other phases: %+v", counts)
	}
}

func TestParsePhase(t *testing.T) {
	t.Parallel()

	for raw, want := range map[string]Phase{
		"":             PhaseAll,
		"all":          PhaseAll,
		" Similarity ": PhaseSimilarity,
		"summary":      PhaseSummary,
		"metapost":     PhaseMetapost,
	} {
		got, err := ParsePhase(raw)
		if err != nil {
			t.Fatalf("ParsePhase(%q) failed: %v", raw, err)
		}
		if got != want {
			t.Fatalf("ParsePhase(%q) = %s, want %s", raw, got, want)
		}
	}

	if _, err := ParsePhase("everything"); err == nil {
		t.Fatal("expected error for unknown phase")
	}
}
