package app

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

func defaultUTCDayString() string {
	now := time.Now().UTC()
	return now.Format("2006-01-02")
}

func parseUTCDate(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("date is required")
	}
	day, err := time.Parse("2006-01-02", trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("must be YYYY-MM-DD")
	}
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC), nil
}

// readPayloadBatch loads a JSON array of payloads from a file, or from stdin
// when path is "-".
func readPayloadBatch(path string) ([]json.RawMessage, error) {
	var raw []byte
	var err error
	if path == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read payload batch: %w", err)
	}

	var payloads []json.RawMessage
	if err := json.Unmarshal(raw, &payloads); err != nil {
		return nil, fmt.Errorf("payload batch must be a JSON array: %w", err)
	}
	if len(payloads) == 0 {
		return nil, fmt.Errorf("payload batch is empty")
	}
	return payloads, nil
}
