package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/corpus/internal/config"
	"horse.fit/corpus/internal/db"
)

var ingestDay = time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

type memStore struct {
	nextID int64
	rows   []db.Post
}

func (s *memStore) FindLatestPosts(_ context.Context, day time.Time, _ map[string]any) ([]db.Post, error) {
	latest := make(map[string]db.Post)
	for _, row := range s.rows {
		if !row.PublishedOn.Equal(day) {
			continue
		}
		current, ok := latest[row.ShortLink]
		if !ok || versionOf(row) > versionOf(current) {
			latest[row.ShortLink] = row
		}
	}
	out := make([]db.Post, 0, len(latest))
	for _, row := range latest {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PostID < out[j].PostID })
	return out, nil
}

func (s *memStore) UpdateOrCreatePost(_ context.Context, post *db.Post, match map[string]any, transform func(*db.Post)) (*db.Post, db.UpsertOutcome, error) {
	row := *post
	if len(match) == 0 && row.PostID == 0 {
		s.nextID++
		row.PostID = s.nextID
		row.PostUUID = "uuid-" + strconv.FormatInt(row.PostID, 10)
		if transform != nil {
			transform(&row)
		}
		s.rows = append(s.rows, row)
		stored := row
		return &stored, db.UpsertOutcome{Inserted: true, Modified: 1}, nil
	}

	wantID := row.PostID
	if v, ok := match["post_id"]; ok {
		wantID, _ = v.(int64)
	}
	for i, existing := range s.rows {
		if existing.PostID == wantID {
			row.PostID = existing.PostID
			row.PostUUID = existing.PostUUID
			row.CreatedAt = existing.CreatedAt
			if transform != nil {
				transform(&row)
			}
			s.rows[i] = row
			stored := row
			return &stored, db.UpsertOutcome{Matched: 1, Modified: 1}, nil
		}
	}
	return nil, db.UpsertOutcome{}, fmt.Errorf("no row matches post_id %d", wantID)
}

func versionOf(p db.Post) int64 {
	n, err := strconv.ParseInt(p.Version, 10, 64)
	if err != nil {
		return -1
	}
	return n
}

type stubDetector struct{ code string }

func (s stubDetector) DetectISO6391(string) string { return s.code }

func ingestConfig() *config.Config {
	return &config.Config{
		EditsNewVersionFields: "title,text",
		AutoPublish:           true,
		DefaultLang:           "en",
	}
}

func newTestService(t *testing.T, store *memStore, detector LanguageDetector) *Service {
	t.Helper()
	service, err := NewService(store, detector, ingestConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return service
}

func payloadJSON(t *testing.T, overrides map[string]any) json.RawMessage {
	t.Helper()
	payload := map[string]any{
		"payload_version": "v1",
		"short_link":      "2026/03/14/gold-mines",
		"title":           "Gold mines reopen",
		"text":            "The mines reopened after repairs.",
		"publish_time":    "2026-03-14T08:30:00Z",
	}
	for k, v := range overrides {
		payload[k] = v
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return raw
}

func TestIngestDayNewPost(t *testing.T) {
	t.Parallel()

	store := &memStore{}
	service := newTestService(t, store, stubDetector{code: "fr"})

	result, err := service.IngestDay(context.Background(), ingestDay, []json.RawMessage{
		payloadJSON(t, nil),
	})
	if err != nil {
		t.Fatalf("IngestDay failed: %v", err)
	}
	if result.New != 1 || result.Invalid != 0 || result.Failed != 0 {
		t.Fatalf("unexpected result %+v", result)
	}

	if len(store.rows) != 1 {
		t.Fatalf("expected 1 stored row, got %d", len(store.rows))
	}
	row := store.rows[0]
	if row.Version != "1" {
		t.Fatalf("first version must be 1, got %q", row.Version)
	}
	if row.Lang != "fr" {
		t.Fatalf("language not detected, got %q", row.Lang)
	}
	if row.Type != db.PostTypeDefault {
		t.Fatalf("type must default, got %q", row.Type)
	}
	if !row.PublishedOn.Equal(ingestDay) {
		t.Fatalf("published_on not stamped: %v", row.PublishedOn)
	}
	if row.IsDraft {
		t.Fatal("auto publish must clear the draft flag")
	}
}

func TestIngestDayDuplicateWithinBatch(t *testing.T) {
	t.Parallel()

	store := &memStore{}
	service := newTestService(t, store, stubDetector{})

	result, err := service.IngestDay(context.Background(), ingestDay, []json.RawMessage{
		payloadJSON(t, nil),
		payloadJSON(t, nil),
	})
	if err != nil {
		t.Fatalf("IngestDay failed: %v", err)
	}
	if result.New != 1 || result.Duplicates != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(store.rows) != 1 {
		t.Fatalf("duplicate must not be stored, got %d rows", len(store.rows))
	}
}

func TestIngestDayNewVersion(t *testing.T) {
	t.Parallel()

	store := &memStore{}
	service := newTestService(t, store, stubDetector{})

	batches := [][]json.RawMessage{
		{payloadJSON(t, nil)},
		{payloadJSON(t, map[string]any{"text": "A completely rewritten account of the reopening."})},
	}
	for _, batch := range batches {
		if _, err := service.IngestDay(context.Background(), ingestDay, batch); err != nil {
			t.Fatalf("IngestDay failed: %v", err)
		}
	}

	if len(store.rows) != 2 {
		t.Fatalf("expected both versions stored, got %d rows", len(store.rows))
	}
	if store.rows[1].Version != "2" {
		t.Fatalf("second version must be 2, got %q", store.rows[1].Version)
	}
	if store.rows[0].PostID == store.rows[1].PostID {
		t.Fatal("a new version must be a distinct row")
	}
}

func TestIngestDayMinorUpdateKeepsVersion(t *testing.T) {
	t.Parallel()

	store := &memStore{}
	service := newTestService(t, store, stubDetector{})

	if _, err := service.IngestDay(context.Background(), ingestDay, []json.RawMessage{payloadJSON(t, nil)}); err != nil {
		t.Fatalf("IngestDay failed: %v", err)
	}
	result, err := service.IngestDay(context.Background(), ingestDay, []json.RawMessage{
		payloadJSON(t, map[string]any{"top_image": "cover.jpg"}),
	})
	if err != nil {
		t.Fatalf("IngestDay failed: %v", err)
	}

	if result.MinorUpdate != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(store.rows) != 1 {
		t.Fatalf("minor update must not add a row, got %d", len(store.rows))
	}
	if store.rows[0].Version != "1" || store.rows[0].TopImage != "cover.jpg" {
		t.Fatalf("minor update not applied in place: %+v", store.rows[0])
	}
}

func TestIngestDayOutOfWindow(t *testing.T) {
	t.Parallel()

	store := &memStore{}
	service := newTestService(t, store, stubDetector{})

	result, err := service.IngestDay(context.Background(), ingestDay, []json.RawMessage{
		payloadJSON(t, map[string]any{"publish_time": "2026-03-15T01:00:00Z"}),
	})
	if err != nil {
		t.Fatalf("IngestDay failed: %v", err)
	}
	if result.OutOfWindow != 1 || result.New != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(store.rows) != 0 {
		t.Fatal("out-of-window payload must not be stored")
	}
}

func TestIngestDayInvalidPayload(t *testing.T) {
	t.Parallel()

	store := &memStore{}
	service := newTestService(t, store, stubDetector{})

	result, err := service.IngestDay(context.Background(), ingestDay, []json.RawMessage{
		json.RawMessage(`{"payload_version":"v1"}`),
		payloadJSON(t, nil),
	})
	if err != nil {
		t.Fatalf("IngestDay failed: %v", err)
	}
	if result.Invalid != 1 || result.New != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestIngestDayDefaultLanguage(t *testing.T) {
	t.Parallel()

	store := &memStore{}
	service := newTestService(t, store, stubDetector{})

	if _, err := service.IngestDay(context.Background(), ingestDay, []json.RawMessage{payloadJSON(t, nil)}); err != nil {
		t.Fatalf("IngestDay failed: %v", err)
	}
	if store.rows[0].Lang != "en" {
		t.Fatalf("default language not applied, got %q", store.rows[0].Lang)
	}
}
