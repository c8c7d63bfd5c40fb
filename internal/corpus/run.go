package corpus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/corpus/internal/config"
	"horse.fit/corpus/internal/db"
)

// Phase selects which part of the daily batch to run.
type Phase string

const (
	PhaseAll        Phase = "all"
	PhaseSimilarity Phase = "similarity"
	PhaseSummary    Phase = "summary"
	PhaseMetapost   Phase = "metapost"
)

func ParsePhase(raw string) (Phase, error) {
	switch Phase(strings.ToLower(strings.TrimSpace(raw))) {
	case "", PhaseAll:
		return PhaseAll, nil
	case PhaseSimilarity:
		return PhaseSimilarity, nil
	case PhaseSummary:
		return PhaseSummary, nil
	case PhaseMetapost:
		return PhaseMetapost, nil
	default:
		return "", fmt.Errorf("unknown phase %q", raw)
	}
}

// Counts reports what one daily batch accomplished. Failures surface only
// through logs and reduced counts; callers compare against Total to detect
// degraded runs.
type Counts struct {
	Total      int `json:"total"`
	Saved      int `json:"saved"`
	Words      int `json:"words"`
	Similarity int `json:"similarity"`
	Summary    int `json:"summary"`
	Metapost   int `json:"metapost"`
}

// RunLedger records batch phases with their final counters. Optional.
type RunLedger interface {
	StartNLPRun(ctx context.Context, day time.Time, phase string) (*db.NLPRun, error)
	FinishNLPRun(ctx context.Context, run *db.NLPRun, runErr error) error
}

// Runner sequences the daily batch: load day, compute similarity, persist,
// summarize, persist, synthesize metaposts, persist. Strictly sequential;
// similarity needs a stable fully-ingested corpus snapshot and synthesis
// needs a stable similarity result.
type Runner struct {
	store      Store
	ledger     RunLedger
	summarizer Summarizer
	vectorize  func(texts []string) Vectorizer
	cfg        *config.Config
	logger     zerolog.Logger
}

func NewRunner(
	store Store,
	ledger RunLedger,
	summarizer Summarizer,
	vectorize func(texts []string) Vectorizer,
	cfg *config.Config,
	logger zerolog.Logger,
) *Runner {
	return &Runner{
		store:      store,
		ledger:     ledger,
		summarizer: summarizer,
		vectorize:  vectorize,
		cfg:        cfg,
		logger:     logger,
	}
}

// RunDay executes the batch for one date. No per-post failure is fatal: the
// batch always completes and reports counts.
func (r *Runner) RunDay(ctx context.Context, date time.Time, phase Phase) (Counts, error) {
	policy := TextPolicy{
		SummaryUsesNLP: r.cfg.SummaryUsesNLP,
		MetaUsesNLP:    r.cfg.MetaUsesNLP,
	}

	day, err := LoadDay(ctx, r.store, r.logger, date, LoadOptions{
		IncludeMeta:  r.cfg.NLPUsesMeta,
		MinTextWords: r.cfg.SummaryMinWords,
		Policy:       policy,
	})
	if err != nil {
		return Counts{}, err
	}

	// Batch start doubles as the checkpoint separating prior siblings from
	// ones this very run inserts.
	checkpoint := time.Now().UTC()

	texts := make([]string, 0, day.Len())
	counts := Counts{Total: day.Len()}
	for _, post := range day.Posts() {
		text := policy.PostText(post, false)
		texts = append(texts, text)
		counts.Words += wordCount(text)
	}
	vectorizer := r.vectorize(texts)

	engine := NewSimilarityEngine(day, vectorizer, TiersFromConfig(r.cfg), r.logger)
	synthesizer := NewSynthesizer(
		day,
		r.summarizer,
		policy,
		BrandingFromConfig(r.cfg),
		MetapostLinkFactory(r.cfg.MetapostBaseURL),
		checkpoint,
		r.logger,
	)

	var run *db.NLPRun
	if r.ledger != nil {
		if run, err = r.ledger.StartNLPRun(ctx, date, string(phase)); err != nil {
			r.logger.Error().Err(err).Msg("starting nlp run ledger row failed")
			run = nil
		}
	}

	if phase == PhaseAll || phase == PhaseSimilarity {
		r.runSimilarity(ctx, day, engine, &counts)
	}
	if phase == PhaseAll || phase == PhaseSummary {
		r.runSummary(ctx, day, policy, &counts)
	}
	if phase == PhaseAll || phase == PhaseMetapost {
		r.runMetapost(ctx, day, synthesizer, &counts)
	}

	if run != nil {
		run.TotalPosts = counts.Total
		run.SavedFields = counts.Saved
		run.WordCount = counts.Words
		run.SimilarityCount = counts.Similarity
		run.SummaryCount = counts.Summary
		run.MetapostCount = counts.Metapost
		if err := r.ledger.FinishNLPRun(ctx, run, nil); err != nil {
			r.logger.Error().Err(err).Msg("finishing nlp run ledger row failed")
		}
	}

	r.logger.Info().
		Str("day", date.Format("2006-01-02")).
		Str("phase", string(phase)).
		Int("total", counts.Total).
		Int("saved", counts.Saved).
		Int("words", counts.Words).
		Int("similarity", counts.Similarity).
		Int("summary", counts.Summary).
		Int("metapost", counts.Metapost).
		Msg("daily batch finished")
	return counts, nil
}

func (r *Runner) runSimilarity(ctx context.Context, day *Day, engine *SimilarityEngine, counts *Counts) {
	for _, post := range day.Posts() {
		if post.IsMeta() {
			continue
		}

		tiers, err := engine.Compute(post)
		if err != nil {
			r.logger.Error().
				Err(err).
				Str("short_link", post.ShortLink).
				Msg("similarity computation failed")
			continue
		}

		updated := *post
		Apply(&updated, tiers)
		if _, _, err := day.Persist(ctx, &updated, nil, nil); err != nil {
			continue
		}
		counts.Similarity++
		counts.Saved++
	}
}

func (r *Runner) runSummary(ctx context.Context, day *Day, policy TextPolicy, counts *Counts) {
	for _, post := range day.Posts() {
		if post.IsMeta() {
			continue
		}

		text := policy.PostText(post, false)
		if wordCount(text) < r.cfg.SummaryMinWords {
			continue
		}

		updated := *post
		if err := summarizeInto(ctx, r.summarizer, text, &updated); err != nil {
			r.logger.Error().
				Err(err).
				Str("short_link", post.ShortLink).
				Msg("summarization failed")
			continue
		}

		if _, _, err := day.Persist(ctx, &updated, nil, nil); err != nil {
			continue
		}
		counts.Summary++
		counts.Saved++
	}
}

func (r *Runner) runMetapost(ctx context.Context, day *Day, synthesizer *Synthesizer, counts *Counts) {
	for _, post := range day.Posts() {
		if post.IsMeta() {
			continue
		}

		meta, lookupVersion, err := synthesizer.Build(ctx, post)
		if err != nil {
			r.logger.Error().
				Err(err).
				Str("short_link", post.ShortLink).
				Msg("metapost synthesis failed")
			continue
		}
		if meta == nil {
			continue
		}

		match := map[string]any{"type": meta.Type, "version": lookupVersion}
		if _, _, err := day.Persist(ctx, meta, match, synthesizer.Transform()); err != nil {
			continue
		}
		counts.Metapost++
		counts.Saved++
	}
}
