package corpus

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/corpus/internal/db"
)

// Store is the document store adapter the day partition delegates to.
// *db.Pool implements it; tests substitute an in-memory fake.
type Store interface {
	FindLatestPosts(ctx context.Context, day time.Time, match map[string]any) ([]db.Post, error)
	UpdateOrCreatePost(ctx context.Context, post *db.Post, match map[string]any, transform func(*db.Post)) (*db.Post, db.UpsertOutcome, error)
}

// LoadOptions filters the working set at load time.
type LoadOptions struct {
	// Match is passed through to the store as a field-equality conjunction.
	Match map[string]any
	// IncludeMeta loads synthetic posts into the partition. Off by default:
	// most batches treat metaposts as output, not input.
	IncludeMeta bool
	// MinTextWords drops posts whose combined comparison text is too short
	// to be useful downstream. Load-time filter only, never a delete.
	MinTextWords int
	// Policy supplies the comparison-text extraction for MinTextWords.
	Policy TextPolicy
}

// Day holds the in-memory working set of current posts for one calendar day:
// per natural key, only the maximum-version row. The unit of batch processing.
type Day struct {
	date        time.Time
	store       Store
	logger      zerolog.Logger
	includeMeta bool
	posts       []*db.Post
}

// LoadDay reads the day partition from the store.
func LoadDay(ctx context.Context, store Store, logger zerolog.Logger, date time.Time, opts LoadOptions) (*Day, error) {
	if store == nil {
		return nil, fmt.Errorf("store is nil")
	}

	rows, err := store.FindLatestPosts(ctx, date, opts.Match)
	if err != nil {
		return nil, fmt.Errorf("load day %s: %w", date.Format("2006-01-02"), err)
	}

	day := &Day{
		date:        date,
		store:       store,
		logger:      logger,
		includeMeta: opts.IncludeMeta,
	}
	for i := range rows {
		post := &rows[i]
		if post.IsMeta() && !opts.IncludeMeta {
			continue
		}
		if opts.MinTextWords > 0 && wordCount(opts.Policy.PostText(post, false)) < opts.MinTextWords {
			logger.Debug().
				Str("short_link", post.ShortLink).
				Msg("skipping post below minimum text length")
			continue
		}
		day.posts = append(day.posts, post)
	}

	logger.Debug().
		Str("day", date.Format("2006-01-02")).
		Int("posts", len(day.posts)).
		Msg("day partition loaded")
	return day, nil
}

func (d *Day) Date() time.Time { return d.date }

func (d *Day) Len() int { return len(d.posts) }

// Posts returns the working set in load order. The returned slice is a copy;
// the posts themselves are shared.
func (d *Day) Posts() []*db.Post {
	out := make([]*db.Post, len(d.posts))
	copy(out, d.posts)
	return out
}

// Index locates a post's position in the working set by store id. The
// position is stable across Replace, which the vectorized corpus relies on.
func (d *Day) Index(post *db.Post) int {
	if post == nil {
		return -1
	}
	for i, p := range d.posts {
		if p == post || (post.PostID != 0 && p.PostID == post.PostID) {
			return i
		}
	}
	return -1
}

// Lookup finds a loaded post. The key may be a store id (int64), a natural
// key (string), or a previously-loaded instance (*db.Post).
func (d *Day) Lookup(key any) *db.Post {
	if i := d.lookupIndex(key); i >= 0 {
		return d.posts[i]
	}
	return nil
}

func (d *Day) lookupIndex(key any) int {
	switch k := key.(type) {
	case int64:
		for i, p := range d.posts {
			if p.PostID == k {
				return i
			}
		}
	case int:
		return d.lookupIndex(int64(k))
	case string:
		for i, p := range d.posts {
			if p.ShortLink == k {
				return i
			}
		}
	case *db.Post:
		if k == nil {
			return -1
		}
		for i, p := range d.posts {
			if p == k {
				return i
			}
		}
		if k.PostID != 0 {
			return d.lookupIndex(k.PostID)
		}
	}
	return -1
}

// Replace destructively swaps the post identified by key in the working set,
// appending when the key resolves to nothing. In-memory only.
func (d *Day) Replace(key any, post *db.Post) {
	if post == nil {
		return
	}
	if i := d.lookupIndex(key); i >= 0 {
		d.posts[i] = post
		return
	}
	d.posts = append(d.posts, post)
}

// Persist writes the post through the store's upsert-by-match and, on
// success, reflects the stored row in the working set. On failure the error
// is logged and the partition is left untouched.
func (d *Day) Persist(ctx context.Context, post *db.Post, match map[string]any, transform func(*db.Post)) (*db.Post, db.UpsertOutcome, error) {
	if post == nil {
		return nil, db.UpsertOutcome{}, fmt.Errorf("post is nil")
	}
	if post.PublishedOn.IsZero() {
		post.PublishedOn = d.date
	}

	stored, outcome, err := d.store.UpdateOrCreatePost(ctx, post, match, transform)
	if err != nil {
		d.logger.Error().
			Err(err).
			Str("short_link", post.ShortLink).
			Str("type", post.Type).
			Msg("persisting post failed")
		return nil, outcome, err
	}

	// Metaposts only enter the working set when the partition loaded them in
	// the first place.
	if !stored.IsMeta() || d.includeMeta {
		key := any(stored.PostID)
		if d.lookupIndex(key) < 0 && !stored.IsMeta() {
			key = stored.ShortLink
		}
		d.Replace(key, stored)
	}

	op := "updated"
	if outcome.Inserted {
		op = "inserted"
	}
	d.logger.Debug().
		Str("short_link", stored.ShortLink).
		Str("type", stored.Type).
		Int64("post_id", stored.PostID).
		Str("op", op).
		Msg("post persisted")
	return stored, outcome, nil
}
