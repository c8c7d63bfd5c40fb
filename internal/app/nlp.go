package app

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/corpus/internal/cli"
	"horse.fit/corpus/internal/config"
	"horse.fit/corpus/internal/corpus"
	"horse.fit/corpus/internal/db"
	"horse.fit/corpus/internal/logging"
	"horse.fit/corpus/internal/nlp"
)

func runNLP(args []string) int {
	fs := flag.NewFlagSet("nlp", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	dateFlag := fs.String("date", defaultUTCDayString(), "Target day (YYYY-MM-DD, UTC)")
	phaseFlag := fs.String("phase", "all", "Batch phase: all, similarity, summary or metapost")
	timeout := fs.Duration("timeout", 15*time.Minute, "Command timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	date, err := parseUTCDate(*dateFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid --date: %v\n", err)
		return 2
	}

	phase, err := corpus.ParsePhase(*phaseFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid --phase: %v\n", err)
		return 2
	}

	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("nlp failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	runner := corpus.NewRunner(
		pool,
		pool,
		nlp.NewSummarizerClient(nlp.SummarizerOptions{Endpoint: cfg.SummarizerEndpoint}),
		func(texts []string) corpus.Vectorizer { return nlp.NewTFIDF(texts) },
		cfg,
		logger,
	)

	counts, err := runner.RunDay(ctx, date, phase)
	if err != nil {
		logger.Error().Err(err).Msg("nlp batch failed")
		fmt.Fprintf(os.Stderr, "NLP batch failed: %v\n", err)
		return 1
	}

	encoded, _ := json.MarshalIndent(counts, "", "  ")
	fmt.Println(string(encoded))
	return 0
}
