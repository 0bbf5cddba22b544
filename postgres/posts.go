package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"github.com/edgeee/social-backend/social"
)

// InsertPost inserts a top-level post and its attachment.
func (pg *Postgres) InsertPost(ctx context.Context, p social.Post) (social.Post, error) {
	m := &post{
		UserID: p.AuthorID,
		Text:   p.Text,
	}
	err := pg.bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(m).Returning("*").Exec(ctx); err != nil {
			return storeErr(err, "insert post")
		}
		if p.File == nil {
			return nil
		}
		m.File = &file{
			PostID:   m.ID,
			Location: p.File.Location,
			Meta:     p.File.Meta,
		}
		if _, err := tx.NewInsert().Model(m.File).Returning("*").Exec(ctx); err != nil {
			return storeErr(err, "insert file")
		}
		return nil
	})
	if err != nil {
		return social.Post{}, err
	}
	return m.SocialPost(), nil
}

// InsertReply inserts a reply and increments the reply count of its parent
// in the same transaction. The parent row stays locked until commit, so a
// concurrent delete of the parent cannot interleave.
func (pg *Postgres) InsertReply(ctx context.Context, p social.Post) (social.Post, error) {
	m := &post{
		UserID:   p.AuthorID,
		ParentID: p.ParentID,
		Text:     p.Text,
	}
	err := pg.bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*post)(nil)).
			Set("reply_count = reply_count + 1").
			Where("p.id = ?", p.ParentID).
			Exec(ctx)
		if err != nil {
			return storeErr(err, "increment reply count")
		}
		if err := mustAffect(res); err != nil {
			return err
		}
		if _, err := tx.NewInsert().Model(m).Returning("*").Exec(ctx); err != nil {
			return storeErr(err, "insert reply")
		}
		return nil
	})
	if err != nil {
		return social.Post{}, err
	}
	return m.SocialPost(), nil
}

// GetPost returns a live post with its attachment.
func (pg *Postgres) GetPost(ctx context.Context, id string) (social.Post, error) {
	var m post
	err := pg.bun.NewSelect().Model(&m).Relation("File").Where("p.id = ?", id).Scan(ctx)
	if err != nil {
		return social.Post{}, storeErr(err, "select")
	}
	return m.SocialPost(), nil
}

// GetPosts returns the live posts among ids.
func (pg *Postgres) GetPosts(ctx context.Context, ids []string) ([]social.Post, error) {
	ids = validIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	var ps []post
	err := pg.bun.NewSelect().Model(&ps).Relation("File").Where("p.id IN (?)", bun.In(ids)).Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return socialPosts(ps), nil
}

// UpdatePostText replaces the text of a live post.
func (pg *Postgres) UpdatePostText(ctx context.Context, id, text string) (social.Post, error) {
	res, err := pg.bun.NewUpdate().
		Model((*post)(nil)).
		Set("text = ?", text).
		Set("updated_at = now()").
		Where("p.id = ?", id).
		Exec(ctx)
	if err != nil {
		return social.Post{}, storeErr(err, "update")
	}
	if err := mustAffect(res); err != nil {
		return social.Post{}, err
	}
	return pg.GetPost(ctx, id)
}

// SoftDeletePost flags a live post as deleted, decrements its parent's reply
// count and removes its attachment. Like rows are kept.
func (pg *Postgres) SoftDeletePost(ctx context.Context, id string) error {
	return pg.bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var m post
		err := tx.NewSelect().Model(&m).Where("p.id = ?", id).For("UPDATE").Scan(ctx)
		if err != nil {
			return storeErr(err, "select")
		}

		// With the soft_delete tag bun turns this into an UPDATE of deleted_at.
		if _, err := tx.NewDelete().Model(&m).WherePK().Exec(ctx); err != nil {
			return fmt.Errorf("soft delete: %w", err)
		}

		if m.ParentID != "" {
			_, err := tx.NewUpdate().
				Model((*post)(nil)).
				Set("reply_count = reply_count - 1").
				Where("p.id = ?", m.ParentID).
				Where("p.reply_count > 0").
				WhereAllWithDeleted().
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("decrement reply count: %w", err)
			}
		}

		if _, err := tx.NewDelete().Model((*file)(nil)).Where("post_id = ?", m.ID).Exec(ctx); err != nil {
			return fmt.Errorf("delete file: %w", err)
		}
		return nil
	})
}

// LikePost adds userID to the ledger of a live post and increments its like
// count in one transaction. The counter update runs first so that the post
// row is locked; a conflicting ledger row rolls the increment back.
func (pg *Postgres) LikePost(ctx context.Context, id, userID string) (int, error) {
	var count int
	err := pg.bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		err := tx.NewUpdate().
			Model((*post)(nil)).
			Set("like_count = like_count + 1").
			Where("p.id = ?", id).
			Returning("like_count").
			Scan(ctx, &count)
		if err != nil {
			return storeErr(err, "increment like count")
		}

		res, err := tx.NewInsert().
			Model(&postLike{PostID: id, UserID: userID}).
			On("CONFLICT DO NOTHING").
			Exec(ctx)
		if err != nil {
			return storeErr(err, "insert like")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return social.ErrAlreadyLiked
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// UnlikePost removes userID from the ledger of a live post and decrements its
// like count in one transaction.
func (pg *Postgres) UnlikePost(ctx context.Context, id, userID string) (int, error) {
	var count int
	err := pg.bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		err := tx.NewUpdate().
			Model((*post)(nil)).
			Set("like_count = like_count - 1").
			Where("p.id = ?", id).
			Returning("like_count").
			Scan(ctx, &count)
		if err != nil {
			return storeErr(err, "decrement like count")
		}

		res, err := tx.NewDelete().
			Model((*postLike)(nil)).
			Where("post_id = ?", id).
			Where("user_id = ?", userID).
			Exec(ctx)
		if err != nil {
			return storeErr(err, "delete like")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return social.ErrNotLiked
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ListPosts returns live posts created at or before the cursor, newest first.
func (pg *Postgres) ListPosts(ctx context.Context, q social.PostQuery) ([]social.Post, error) {
	if q.AuthorID != "" && len(validIDs([]string{q.AuthorID})) == 0 {
		return nil, nil
	}

	var ps []post
	sel := pg.bun.NewSelect().
		Model(&ps).
		Relation("File").
		Where("p.created_at <= ?", q.Before).
		Order("p.created_at DESC", "p.id DESC").
		Offset(q.Offset).
		Limit(q.Limit)

	if q.Replies {
		sel = sel.Where("p.parent_id IS NOT NULL")
	} else {
		sel = sel.Where("p.parent_id IS NULL")
	}
	if q.AuthorID != "" {
		sel = sel.Where("p.user_id = ?", q.AuthorID)
	}

	if err := sel.Scan(ctx); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return socialPosts(ps), nil
}

// ListReplies returns up to limit newest live replies of each parent.
func (pg *Postgres) ListReplies(ctx context.Context, parentIDs []string, limit int) (map[string][]social.Post, error) {
	parentIDs = validIDs(parentIDs)
	if len(parentIDs) == 0 {
		return nil, nil
	}
	var ps []post
	err := pg.bun.NewRaw(`
		SELECT id, user_id, parent_id, text, like_count, reply_count, comment_count, created_at, updated_at, deleted_at
		FROM (
			SELECT p.*, row_number() OVER (PARTITION BY p.parent_id ORDER BY p.created_at DESC, p.id DESC) AS rn
			FROM posts AS p
			WHERE p.parent_id IN (?) AND p.deleted_at IS NULL
		) AS ranked
		WHERE rn <= ?
		ORDER BY parent_id, created_at DESC, id DESC`,
		bun.In(parentIDs), limit,
	).Scan(ctx, &ps)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scan: %w", err)
	}

	out := make(map[string][]social.Post, len(parentIDs))
	for _, p := range ps {
		out[p.ParentID] = append(out[p.ParentID], p.SocialPost())
	}
	return out, nil
}

// ledgerRow is one ranked like of a post along with the ledger size.
type ledgerRow struct {
	PostID string `bun:"post_id"`
	UserID string `bun:"user_id"`
	Total  int    `bun:"total"`
}

// ListPostLedgers returns the first limit likers of each post and the size of
// its ledger.
func (pg *Postgres) ListPostLedgers(ctx context.Context, ids []string, limit int) (map[string]social.Ledger, error) {
	ids = validIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []ledgerRow
	err := pg.bun.NewRaw(`
		SELECT post_id, user_id, total
		FROM (
			SELECT l.post_id, l.user_id,
				row_number() OVER (PARTITION BY l.post_id ORDER BY l.created_at, l.user_id) AS rn,
				count(*) OVER (PARTITION BY l.post_id) AS total
			FROM post_likes AS l
			WHERE l.post_id IN (?)
		) AS ranked
		WHERE rn <= ?
		ORDER BY post_id, rn`,
		bun.In(ids), limit,
	).Scan(ctx, &rows)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scan: %w", err)
	}

	out := make(map[string]social.Ledger, len(ids))
	for _, r := range rows {
		l := out[r.PostID]
		l.EntityID = r.PostID
		l.UserIDs = append(l.UserIDs, r.UserID)
		l.Count = r.Total
		out[r.PostID] = l
	}
	return out, nil
}

// AddCommentCount adjusts the comment counter of a post. The counter never
// drops below zero.
func (pg *Postgres) AddCommentCount(ctx context.Context, id string, delta int) error {
	res, err := pg.bun.NewUpdate().
		Model((*post)(nil)).
		Set("comment_count = GREATEST(comment_count + ?, 0)", delta).
		Where("p.id = ?", id).
		WhereAllWithDeleted().
		Exec(ctx)
	if err != nil {
		return storeErr(err, "update comment count")
	}
	return mustAffect(res)
}

// ReconcilePosts recomputes the counters of every post from the like ledger,
// the live replies and commentCounts.
func (pg *Postgres) ReconcilePosts(ctx context.Context, commentCounts map[string]int) (int, error) {
	ids := make([]string, 0, len(commentCounts))
	counts := make([]int, 0, len(commentCounts))
	for id, n := range commentCounts {
		if _, err := uuid.Parse(id); err != nil {
			continue
		}
		ids = append(ids, id)
		counts = append(counts, n)
	}

	res, err := pg.bun.ExecContext(ctx, `
		WITH counts AS (
			SELECT p.id,
				(SELECT count(*) FROM post_likes AS l WHERE l.post_id = p.id) AS likes,
				(SELECT count(*) FROM posts AS r WHERE r.parent_id = p.id AND r.deleted_at IS NULL) AS replies,
				COALESCE(c.n, 0) AS comments
			FROM posts AS p
			LEFT JOIN unnest(?::uuid[], ?::int[]) AS c(id, n) ON c.id = p.id
		)
		UPDATE posts AS p
		SET like_count = counts.likes, reply_count = counts.replies, comment_count = counts.comments
		FROM counts
		WHERE p.id = counts.id
			AND (p.like_count, p.reply_count, p.comment_count) IS DISTINCT FROM (counts.likes, counts.replies, counts.comments)`,
		pgdialect.Array(ids), pgdialect.Array(counts),
	)
	if err != nil {
		return 0, fmt.Errorf("reconcile: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// validIDs drops ids that are not uuids; they cannot match any row and would
// make PostgreSQL reject the whole query.
func validIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			out = append(out, id)
		}
	}
	return out
}
