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
	"horse.fit/corpus/internal/db"
	"horse.fit/corpus/internal/ingest"
	"horse.fit/corpus/internal/langdetect"
	"horse.fit/corpus/internal/logging"
)

func runIngest(args []string) int {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	dateFlag := fs.String("date", defaultUTCDayString(), "Target day (YYYY-MM-DD, UTC)")
	fileFlag := fs.String("file", "-", "Path to a JSON array of post payloads; \"-\" reads stdin")
	timeout := fs.Duration("timeout", 5*time.Minute, "Command timeout")

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

	payloads, err := readPayloadBatch(*fileFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid payload batch: %v\n", err)
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("ingest failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	service, err := ingest.NewService(pool, langdetect.New(), cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("building ingest service failed")
		fmt.Fprintf(os.Stderr, "Failed to build ingest service: %v\n", err)
		return 1
	}

	result, err := service.IngestDay(ctx, date, payloads)
	if err != nil {
		logger.Error().Err(err).Msg("ingest batch failed")
		fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
		return 1
	}

	encoded, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(encoded))
	return 0
}
