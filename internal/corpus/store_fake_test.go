package corpus

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"horse.fit/corpus/internal/db"
)

// fakeStore is an in-memory stand-in for *db.Pool with the same
// latest-version and upsert-by-match semantics.
type fakeStore struct {
	nextID  int64
	rows    []db.Post
	now     time.Time
	failing bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{now: time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)}
}

func (s *fakeStore) seed(post db.Post) *db.Post {
	s.nextID++
	post.PostID = s.nextID
	if post.PostUUID == "" {
		post.PostUUID = "uuid-" + strconv.FormatInt(post.PostID, 10)
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = s.now
	}
	s.rows = append(s.rows, post)
	return &s.rows[len(s.rows)-1]
}

func (s *fakeStore) FindLatestPosts(_ context.Context, day time.Time, match map[string]any) ([]db.Post, error) {
	if s.failing {
		return nil, fmt.Errorf("store unavailable")
	}

	latest := make(map[string]db.Post)
	for _, row := range s.rows {
		if !row.PublishedOn.Equal(day) || !matchRow(row, match) {
			continue
		}
		current, ok := latest[row.ShortLink]
		if !ok || numericVersion(row.Version) > numericVersion(current.Version) ||
			(numericVersion(row.Version) == numericVersion(current.Version) && row.PostID > current.PostID) {
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

func (s *fakeStore) UpdateOrCreatePost(_ context.Context, post *db.Post, match map[string]any, transform func(*db.Post)) (*db.Post, db.UpsertOutcome, error) {
	if s.failing {
		return nil, db.UpsertOutcome{}, fmt.Errorf("store unavailable")
	}

	row := *post
	lookup := match
	if len(lookup) == 0 {
		if row.PostID == 0 {
			return s.insert(row, transform)
		}
		lookup = map[string]any{"post_id": row.PostID}
	}

	best := -1
	for i, existing := range s.rows {
		if !existing.PublishedOn.Equal(row.PublishedOn) || !matchRow(existing, lookup) {
			continue
		}
		if best < 0 || numericVersion(existing.Version) > numericVersion(s.rows[best].Version) ||
			(numericVersion(existing.Version) == numericVersion(s.rows[best].Version) && existing.PostID > s.rows[best].PostID) {
			best = i
		}
	}
	if best < 0 {
		return s.insert(row, transform)
	}

	row.PostID = s.rows[best].PostID
	row.PostUUID = s.rows[best].PostUUID
	row.CreatedAt = s.rows[best].CreatedAt
	if transform != nil {
		transform(&row)
	}
	s.rows[best] = row
	stored := row
	return &stored, db.UpsertOutcome{Matched: 1, Modified: 1}, nil
}

func (s *fakeStore) insert(row db.Post, transform func(*db.Post)) (*db.Post, db.UpsertOutcome, error) {
	s.nextID++
	row.PostID = s.nextID
	if row.PostUUID == "" {
		row.PostUUID = "uuid-" + strconv.FormatInt(row.PostID, 10)
	}
	row.CreatedAt = s.now
	if transform != nil {
		transform(&row)
	}
	s.rows = append(s.rows, row)
	stored := row
	return &stored, db.UpsertOutcome{Inserted: true, Modified: 1}, nil
}

func matchRow(row db.Post, match map[string]any) bool {
	for key, want := range match {
		var got any
		switch key {
		case "post_id":
			got = row.PostID
		case "short_link":
			got = row.ShortLink
		case "type":
			got = row.Type
		case "version":
			got = row.Version
		case "country":
			got = row.Country
		case "lang":
			got = row.Lang
		default:
			return false
		}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func numericVersion(v string) int64 {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return -1
	}
	return n
}
