package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/edgeee/social-backend/social"
)

// InsertComment inserts a comment and its empty like ledger. A reply is
// appended to its parent; when the parent vanished in the meantime the reply
// is flagged deleted again and ErrNotFound is returned.
func (m *Mongo) InsertComment(ctx context.Context, c social.Comment) (social.Comment, error) {
	t := now()
	doc := comment{
		ID:          bson.NewObjectID(),
		UserID:      c.AuthorID,
		PostID:      c.PostID,
		Description: c.Text,
		Replies:     []bson.ObjectID{},
		CreatedAt:   t,
		UpdatedAt:   t,
	}
	if c.ParentID != "" {
		pid, err := objectID(c.ParentID)
		if err != nil {
			return social.Comment{}, err
		}
		doc.CommentID = &pid
	}

	if _, err := m.comments.InsertOne(ctx, doc); err != nil {
		return social.Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	ledger := commentLike{CommentID: doc.ID, Users: []string{}, CreatedAt: t, UpdatedAt: t}
	if _, err := m.likes.InsertOne(ctx, ledger); err != nil {
		return social.Comment{}, fmt.Errorf("insert ledger: %w", err)
	}

	if doc.CommentID != nil {
		res, err := m.comments.UpdateOne(ctx, live(*doc.CommentID), bson.M{
			"$push": bson.M{"replies": doc.ID},
			"$inc":  bson.M{"reply_count": 1},
			"$set":  bson.M{"updated_at": t},
		})
		if err != nil {
			return social.Comment{}, fmt.Errorf("append reply: %w", err)
		}
		if res.MatchedCount == 0 {
			_, err := m.comments.UpdateOne(ctx, bson.M{"_id": doc.ID}, bson.M{"$set": bson.M{"is_deleted": true}})
			if err != nil {
				return social.Comment{}, fmt.Errorf("orphan reply: %w", err)
			}
			return social.Comment{}, social.ErrNotFound
		}
	}
	return doc.SocialComment(), nil
}

// GetComment returns a live comment.
func (m *Mongo) GetComment(ctx context.Context, id string) (social.Comment, error) {
	oid, err := objectID(id)
	if err != nil {
		return social.Comment{}, err
	}
	var doc comment
	if err := m.comments.FindOne(ctx, live(oid)).Decode(&doc); err != nil {
		return social.Comment{}, storeErr(err, "find comment")
	}
	return doc.SocialComment(), nil
}

// UpdateCommentText replaces the text of a live comment.
func (m *Mongo) UpdateCommentText(ctx context.Context, id, text string) (social.Comment, error) {
	oid, err := objectID(id)
	if err != nil {
		return social.Comment{}, err
	}
	var doc comment
	err = m.comments.FindOneAndUpdate(ctx, live(oid),
		bson.M{"$set": bson.M{"description": text, "updated_at": now()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return social.Comment{}, storeErr(err, "update comment")
	}
	return doc.SocialComment(), nil
}

// SoftDeleteComment flags a live comment as deleted and pulls it from the
// replies of its parent. The ledger is kept.
func (m *Mongo) SoftDeleteComment(ctx context.Context, id string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	t := now()
	var doc comment
	err = m.comments.FindOneAndUpdate(ctx, live(oid),
		bson.M{"$set": bson.M{"is_deleted": true, "updated_at": t}},
	).Decode(&doc)
	if err != nil {
		return storeErr(err, "delete comment")
	}
	if doc.CommentID == nil {
		return nil
	}
	_, err = m.comments.UpdateOne(ctx,
		bson.M{"_id": *doc.CommentID, "replies": oid},
		bson.M{
			"$pull": bson.M{"replies": oid},
			"$inc":  bson.M{"reply_count": -1},
			"$set":  bson.M{"updated_at": t},
		},
	)
	if err != nil {
		return fmt.Errorf("pull reply: %w", err)
	}
	return nil
}

// LikeComment adds userID to the ledger of a comment and returns the new count.
// The membership check and the increment happen in one document update.
func (m *Mongo) LikeComment(ctx context.Context, id, userID string) (int, error) {
	oid, err := objectID(id)
	if err != nil {
		return 0, err
	}
	var l commentLike
	err = m.likes.FindOneAndUpdate(ctx,
		bson.M{"comment_id": oid, "users": bson.M{"$ne": userID}},
		bson.M{
			"$addToSet": bson.M{"users": userID},
			"$inc":      bson.M{"count": 1},
			"$set":      bson.M{"updated_at": now()},
		},
		options.FindOneAndUpdate().
			SetReturnDocument(options.After).
			SetProjection(bson.M{"count": 1}),
	).Decode(&l)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, m.missingLike(ctx, oid, social.ErrAlreadyLiked)
	}
	if err != nil {
		return 0, fmt.Errorf("like comment: %w", err)
	}
	return l.Count, nil
}

// UnlikeComment removes userID from the ledger of a comment and returns the
// new count.
func (m *Mongo) UnlikeComment(ctx context.Context, id, userID string) (int, error) {
	oid, err := objectID(id)
	if err != nil {
		return 0, err
	}
	var l commentLike
	err = m.likes.FindOneAndUpdate(ctx,
		bson.M{"comment_id": oid, "users": userID},
		bson.M{
			"$pull": bson.M{"users": userID},
			"$inc":  bson.M{"count": -1},
			"$set":  bson.M{"updated_at": now()},
		},
		options.FindOneAndUpdate().
			SetReturnDocument(options.After).
			SetProjection(bson.M{"count": 1}),
	).Decode(&l)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, m.missingLike(ctx, oid, social.ErrNotLiked)
	}
	if err != nil {
		return 0, fmt.Errorf("unlike comment: %w", err)
	}
	return l.Count, nil
}

// missingLike tells apart a filtered-out membership from a missing ledger.
func (m *Mongo) missingLike(ctx context.Context, oid bson.ObjectID, membership error) error {
	n, err := m.likes.CountDocuments(ctx, bson.M{"comment_id": oid})
	if err != nil {
		return fmt.Errorf("count ledger: %w", err)
	}
	if n == 0 {
		return social.ErrNotFound
	}
	return membership
}

// ListComments returns the live top-level comments of a post, newest first.
func (m *Mongo) ListComments(ctx context.Context, postID string, p social.Page) ([]social.Comment, error) {
	return m.page(ctx, bson.M{"post_id": postID, "comment_id": nil}, p)
}

// ListCommentReplies returns the live replies to a comment, newest first.
func (m *Mongo) ListCommentReplies(ctx context.Context, commentID string, p social.Page) ([]social.Comment, error) {
	oid, err := objectID(commentID)
	if err != nil {
		return []social.Comment{}, nil
	}
	return m.page(ctx, bson.M{"comment_id": oid}, p)
}

// page returns one newest-first page of the live comments matching filter.
func (m *Mongo) page(ctx context.Context, filter bson.M, p social.Page) ([]social.Comment, error) {
	filter["is_deleted"] = false
	filter["created_at"] = bson.M{"$lte": p.Before}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(p.Offset)).
		SetLimit(int64(p.Limit))
	cur, err := m.comments.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find comments: %w", err)
	}
	var docs []comment
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode comments: %w", err)
	}
	out := make([]social.Comment, len(docs))
	for i, d := range docs {
		out[i] = d.SocialComment()
	}
	return out, nil
}

// PreviewComments returns up to limit newest live top-level comments per post.
func (m *Mongo) PreviewComments(ctx context.Context, postIDs []string, limit int) (map[string][]social.Comment, error) {
	if len(postIDs) == 0 {
		return map[string][]social.Comment{}, nil
	}
	match := bson.M{"post_id": bson.M{"$in": postIDs}, "comment_id": nil, "is_deleted": false}
	return m.preview(ctx, match, "$post_id", limit)
}

// PreviewReplies returns up to limit newest live replies per comment.
func (m *Mongo) PreviewReplies(ctx context.Context, commentIDs []string, limit int) (map[string][]social.Comment, error) {
	oids := objectIDs(commentIDs)
	if len(oids) == 0 {
		return map[string][]social.Comment{}, nil
	}
	match := bson.M{"comment_id": bson.M{"$in": oids}, "is_deleted": false}
	return m.preview(ctx, match, "$comment_id", limit)
}

// preview groups the comments matching match by groupBy and keeps the limit
// newest of each group. $topN holds at most limit documents per group.
func (m *Mongo) preview(ctx context.Context, match bson.M, groupBy string, limit int) (map[string][]social.Comment, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.M{
			"_id": groupBy,
			"items": bson.M{"$topN": bson.M{
				"n":      limit,
				"sortBy": bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}},
				"output": "$$ROOT",
			}},
		}}},
		{{Key: "$project", Value: bson.M{
			"_id":   bson.M{"$toString": "$_id"},
			"items": 1,
		}}},
	}
	cur, err := m.comments.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate preview: %w", err)
	}
	var groups []preview
	if err := cur.All(ctx, &groups); err != nil {
		return nil, fmt.Errorf("decode preview: %w", err)
	}
	out := make(map[string][]social.Comment, len(groups))
	for _, g := range groups {
		cs := make([]social.Comment, len(g.Items))
		for i, d := range g.Items {
			cs[i] = d.SocialComment()
		}
		out[g.Key] = cs
	}
	return out, nil
}

// ListCommentLedgers returns the ledgers of the given comments holding at
// most limit user ids each.
func (m *Mongo) ListCommentLedgers(ctx context.Context, ids []string, limit int) (map[string]social.Ledger, error) {
	oids := objectIDs(ids)
	if len(oids) == 0 {
		return map[string]social.Ledger{}, nil
	}
	opts := options.Find().SetProjection(bson.M{
		"comment_id": 1,
		"count":      1,
		"users":      bson.M{"$slice": limit},
	})
	cur, err := m.likes.Find(ctx, bson.M{"comment_id": bson.M{"$in": oids}}, opts)
	if err != nil {
		return nil, fmt.Errorf("find ledgers: %w", err)
	}
	var docs []commentLike
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode ledgers: %w", err)
	}
	out := make(map[string]social.Ledger, len(docs))
	for _, d := range docs {
		l := d.SocialLedger()
		out[l.EntityID] = l
	}
	return out, nil
}

// ReconcileComments repairs what a partially completed write can leave
// behind. It creates missing ledgers, resets ledger counts to the ledger
// sizes, and rebuilds the reply lists and counts of top-level comments from
// their live replies. It returns the number of corrected documents and the
// number of live top-level comments per post.
func (m *Mongo) ReconcileComments(ctx context.Context) (int, map[string]int, error) {
	fixed, err := m.createMissingLedgers(ctx)
	if err != nil {
		return 0, nil, err
	}

	res, err := m.likes.UpdateMany(ctx,
		bson.M{"$expr": bson.M{"$ne": bson.A{"$count", bson.M{"$size": "$users"}}}},
		mongo.Pipeline{{{Key: "$set", Value: bson.M{"count": bson.M{"$size": "$users"}}}}},
	)
	if err != nil {
		return 0, nil, fmt.Errorf("reconcile ledger counts: %w", err)
	}
	fixed += int(res.ModifiedCount)

	n, err := m.rebuildReplies(ctx)
	if err != nil {
		return 0, nil, err
	}
	fixed += n

	cur, err := m.comments.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"comment_id": nil, "is_deleted": false}}},
		{{Key: "$group", Value: bson.M{"_id": "$post_id", "n": bson.M{"$sum": 1}}}},
	})
	if err != nil {
		return 0, nil, fmt.Errorf("aggregate comment counts: %w", err)
	}
	var rows []struct {
		PostID string `bson:"_id"`
		N      int    `bson:"n"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return 0, nil, fmt.Errorf("decode comment counts: %w", err)
	}
	perPost := make(map[string]int, len(rows))
	for _, r := range rows {
		perPost[r.PostID] = r.N
	}
	return fixed, perPost, nil
}

// createMissingLedgers upserts an empty ledger for every comment without one.
func (m *Mongo) createMissingLedgers(ctx context.Context) (int, error) {
	cur, err := m.comments.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$lookup", Value: bson.M{
			"from":         likesCollection,
			"localField":   "_id",
			"foreignField": "comment_id",
			"pipeline":     bson.A{bson.M{"$project": bson.M{"_id": 1}}},
			"as":           "ledger",
		}}},
		{{Key: "$match", Value: bson.M{"ledger": bson.M{"$size": 0}}}},
		{{Key: "$project", Value: bson.M{"_id": 1}}},
	})
	if err != nil {
		return 0, fmt.Errorf("find missing ledgers: %w", err)
	}
	var rows []struct {
		ID bson.ObjectID `bson:"_id"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return 0, fmt.Errorf("decode missing ledgers: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	t := now()
	models := make([]mongo.WriteModel, len(rows))
	for i, r := range rows {
		models[i] = mongo.NewUpdateOneModel().
			SetFilter(bson.M{"comment_id": r.ID}).
			SetUpdate(bson.M{"$setOnInsert": bson.M{
				"users":      bson.A{},
				"count":      0,
				"created_at": t,
				"updated_at": t,
			}}).
			SetUpsert(true)
	}
	res, err := m.likes.BulkWrite(ctx, models)
	if err != nil {
		return 0, fmt.Errorf("create ledgers: %w", err)
	}
	return int(res.UpsertedCount), nil
}

// rebuildReplies sets the reply list of every live top-level comment to its
// live replies, oldest first, when the list or the count disagree with them.
func (m *Mongo) rebuildReplies(ctx context.Context) (int, error) {
	cur, err := m.comments.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"comment_id": nil, "is_deleted": false}}},
		{{Key: "$lookup", Value: bson.M{
			"from":         commentsCollection,
			"localField":   "_id",
			"foreignField": "comment_id",
			"pipeline": bson.A{
				bson.M{"$match": bson.M{"is_deleted": false}},
				bson.M{"$sort": bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}},
				bson.M{"$project": bson.M{"_id": 1}},
			},
			"as": "live",
		}}},
		{{Key: "$project", Value: bson.M{
			"live":        "$live._id",
			"replies":     bson.M{"$ifNull": bson.A{"$replies", bson.A{}}},
			"reply_count": 1,
		}}},
		{{Key: "$match", Value: bson.M{"$expr": bson.M{"$or": bson.A{
			bson.M{"$ne": bson.A{"$reply_count", bson.M{"$size": "$live"}}},
			bson.M{"$not": bson.A{bson.M{"$setEquals": bson.A{"$replies", "$live"}}}},
		}}}}},
	})
	if err != nil {
		return 0, fmt.Errorf("find drifted replies: %w", err)
	}
	var rows []struct {
		ID   bson.ObjectID   `bson:"_id"`
		Live []bson.ObjectID `bson:"live"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return 0, fmt.Errorf("decode drifted replies: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	t := now()
	models := make([]mongo.WriteModel, len(rows))
	for i, r := range rows {
		if r.Live == nil {
			r.Live = []bson.ObjectID{}
		}
		models[i] = mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": r.ID}).
			SetUpdate(bson.M{"$set": bson.M{
				"replies":     r.Live,
				"reply_count": len(r.Live),
				"updated_at":  t,
			}})
	}
	res, err := m.comments.BulkWrite(ctx, models)
	if err != nil {
		return 0, fmt.Errorf("rebuild replies: %w", err)
	}
	return int(res.ModifiedCount), nil
}
