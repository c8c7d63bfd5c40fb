package db

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UpsertOutcome reports what UpdateOrCreatePost did.
type UpsertOutcome struct {
	Inserted bool
	Matched  int64
	Modified int64
}

// Columns accepted in caller-supplied match maps. Keeps arbitrary match
// conjunctions from reaching SQL identifiers unchecked.
var matchableColumns = map[string]struct{}{
	"post_id":    {},
	"short_link": {},
	"type":       {},
	"version":    {},
	"country":    {},
	"lang":       {},
	"is_draft":   {},
	"is_scrap":   {},
}

func buildMatchClause(match map[string]any) (string, []any, error) {
	if len(match) == 0 {
		return "", nil, nil
	}

	keys := make([]string, 0, len(match))
	for key := range match {
		if _, ok := matchableColumns[key]; !ok {
			return "", nil, fmt.Errorf("match column %q is not allowed", key)
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	clauses := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, key := range keys {
		clauses = append(clauses, key+" = ?")
		args = append(args, match[key])
	}
	return strings.Join(clauses, " AND "), args, nil
}

// numericVersionExpr orders mixed integer/hash versions: hash versions sort
// below any numeric one, which never matters in practice because synthetic
// posts own their natural key exclusively.
const numericVersionExpr = "(CASE WHEN version ~ '^[0-9]+$' THEN version::bigint ELSE -1 END)"

// FindPosts returns every post of the day partition matching the conjunction,
// in insertion order.
func (p *Pool) FindPosts(ctx context.Context, day time.Time, match map[string]any) ([]Post, error) {
	if p == nil || p.gdb == nil {
		return nil, fmt.Errorf("database pool is not initialized")
	}

	clause, args, err := buildMatchClause(match)
	if err != nil {
		return nil, err
	}

	q := p.gdb.WithContext(ctx).
		Where("published_on = ?", day.Format("2006-01-02"))
	if clause != "" {
		q = q.Where(clause, args...)
	}

	var posts []Post
	if err := q.Order("post_id").Find(&posts).Error; err != nil {
		return nil, fmt.Errorf("find posts for %s: %w", day.Format("2006-01-02"), err)
	}
	return posts, nil
}

// FindLatestPosts returns, per natural key, only the maximum-version post of
// the day partition matching the conjunction. Older versions stay addressable
// through FindPosts but are excluded here.
func (p *Pool) FindLatestPosts(ctx context.Context, day time.Time, match map[string]any) ([]Post, error) {
	if p == nil || p.gdb == nil {
		return nil, fmt.Errorf("database pool is not initialized")
	}

	clause, args, err := buildMatchClause(match)
	if err != nil {
		return nil, err
	}

	q := `
SELECT DISTINCT ON (short_link) *
FROM corpus.posts
WHERE published_on = ?`
	queryArgs := []any{day.Format("2006-01-02")}
	if clause != "" {
		q += " AND " + clause
		queryArgs = append(queryArgs, args...)
	}
	q += `
ORDER BY short_link, ` + numericVersionExpr + ` DESC, post_id DESC`

	var posts []Post
	if err := p.gdb.WithContext(ctx).Raw(q, queryArgs...).Scan(&posts).Error; err != nil {
		return nil, fmt.Errorf("find latest posts for %s: %w", day.Format("2006-01-02"), err)
	}

	sort.Slice(posts, func(i, j int) bool { return posts[i].PostID < posts[j].PostID })
	return posts, nil
}

// UpdateOrCreatePost atomically upserts a post. The match conjunction defaults
// to store-id equality; synthetic posts match by {type, version} instead. The
// transform runs on the final row with its assigned store id, immediately
// before the write that makes it durable. The argument is never mutated; the
// stored copy is returned.
func (p *Pool) UpdateOrCreatePost(
	ctx context.Context,
	post *Post,
	match map[string]any,
	transform func(*Post),
) (*Post, UpsertOutcome, error) {
	if p == nil || p.gdb == nil {
		return nil, UpsertOutcome{}, fmt.Errorf("database pool is not initialized")
	}
	if post == nil {
		return nil, UpsertOutcome{}, fmt.Errorf("post is nil")
	}

	row := *post
	var outcome UpsertOutcome

	err := p.gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lookup := match
		if len(lookup) == 0 {
			if row.PostID == 0 {
				return upsertInsert(tx, &row, transform, &outcome)
			}
			lookup = map[string]any{"post_id": row.PostID}
		}

		clause, args, err := buildMatchClause(lookup)
		if err != nil {
			return err
		}

		var existing Post
		err = tx.
			Where("published_on = ?", row.PublishedOn.Format("2006-01-02")).
			Where(clause, args...).
			Order(numericVersionExpr + " DESC, post_id DESC").
			First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return upsertInsert(tx, &row, transform, &outcome)
		case err != nil:
			return fmt.Errorf("match existing post: %w", err)
		}

		outcome.Matched = 1
		row.PostID = existing.PostID
		row.PostUUID = existing.PostUUID
		row.CreatedAt = existing.CreatedAt
		if transform != nil {
			transform(&row)
		}

		res := tx.Save(&row)
		if res.Error != nil {
			return fmt.Errorf("update post #%d: %w", row.PostID, res.Error)
		}
		outcome.Modified = res.RowsAffected
		return nil
	})
	if err != nil {
		return nil, UpsertOutcome{}, err
	}

	return &row, outcome, nil
}

func upsertInsert(tx *gorm.DB, row *Post, transform func(*Post), outcome *UpsertOutcome) error {
	row.PostID = 0
	if strings.TrimSpace(row.PostUUID) == "" {
		row.PostUUID = uuid.NewString()
	}

	if err := tx.Create(row).Error; err != nil {
		return fmt.Errorf("insert post %q: %w", row.ShortLink, err)
	}
	outcome.Inserted = true
	outcome.Modified = 1

	// Derived link fields depend on the assigned store id, so the transform
	// runs after the insert and the touched row is written back.
	if transform != nil {
		transform(row)
		if err := tx.Save(row).Error; err != nil {
			return fmt.Errorf("apply transform to post #%d: %w", row.PostID, err)
		}
	}
	return nil
}
