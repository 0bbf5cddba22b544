package mongo

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/edgeee/social-backend/social"
)

// connect returns a store backed by a scratch database on the server at
// MONGO_URL and skips the test when the variable is unset.
func connect(t *testing.T) *Mongo {
	t.Helper()
	uri := os.Getenv("MONGO_URL")
	if uri == "" {
		t.Skip("MONGO_URL not set")
	}
	ctx := context.Background()
	db := "social_test_" + bson.NewObjectID().Hex()
	m, err := Connect(ctx, uri, db)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		m.cli.Database(db).Drop(context.Background())
		m.Close(context.Background())
	})
	if err := m.EnsureIndexes(ctx); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestCommentReplies(t *testing.T) {
	m := connect(t)
	ctx := context.Background()

	c, err := m.InsertComment(ctx, social.Comment{AuthorID: "u1", PostID: "p1", Text: "top"})
	if err != nil {
		t.Fatal(err)
	}
	var replies []social.Comment
	for range 3 {
		r, err := m.InsertComment(ctx, social.Comment{AuthorID: "u2", PostID: "p1", ParentID: c.ID, Text: "re"})
		if err != nil {
			t.Fatal(err)
		}
		replies = append(replies, r)
	}

	got, err := m.GetComment(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ReplyCount != 3 || len(got.ReplyIDs) != 3 {
		t.Errorf("Parent = %d replies %v, want 3", got.ReplyCount, got.ReplyIDs)
	}

	if err := m.SoftDeleteComment(ctx, replies[0].ID); err != nil {
		t.Fatal(err)
	}
	if err := m.SoftDeleteComment(ctx, replies[0].ID); !errors.Is(err, social.ErrNotFound) {
		t.Errorf("SoftDeleteComment(twice) error = %v, want ErrNotFound", err)
	}
	got, err = m.GetComment(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ReplyCount != 2 || len(got.ReplyIDs) != 2 {
		t.Errorf("Parent after delete = %d replies %v, want 2", got.ReplyCount, got.ReplyIDs)
	}

	previews, err := m.PreviewReplies(ctx, []string{c.ID, "bogus"}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if ps := previews[c.ID]; len(ps) != 1 || ps[0].ID != replies[2].ID {
		t.Errorf("PreviewReplies() = %+v, want newest reply %s", ps, replies[2].ID)
	}

	_, err = m.InsertComment(ctx, social.Comment{AuthorID: "u2", PostID: "p1", ParentID: bson.NewObjectID().Hex(), Text: "orphan"})
	if !errors.Is(err, social.ErrNotFound) {
		t.Errorf("InsertComment(missing parent) error = %v, want ErrNotFound", err)
	}

	listed, err := m.ListComments(ctx, "p1", social.Page{Before: time.Now().Add(time.Minute), Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(listed) != 1 || listed[0].ID != c.ID {
		t.Errorf("ListComments() = %+v, want only the top-level comment", listed)
	}
}

func TestCommentLikes(t *testing.T) {
	m := connect(t)
	ctx := context.Background()

	c, err := m.InsertComment(ctx, social.Comment{AuthorID: "u1", PostID: "p1", Text: "like me"})
	if err != nil {
		t.Fatal(err)
	}

	for i, u := range []string{"u1", "u2", "u3"} {
		n, err := m.LikeComment(ctx, c.ID, u)
		if err != nil {
			t.Fatal(err)
		}
		if n != i+1 {
			t.Errorf("LikeComment(%s) = %d, want %d", u, n, i+1)
		}
	}
	if _, err := m.LikeComment(ctx, c.ID, "u2"); !errors.Is(err, social.ErrAlreadyLiked) {
		t.Errorf("LikeComment(again) error = %v, want ErrAlreadyLiked", err)
	}
	if _, err := m.LikeComment(ctx, bson.NewObjectID().Hex(), "u2"); !errors.Is(err, social.ErrNotFound) {
		t.Errorf("LikeComment(missing) error = %v, want ErrNotFound", err)
	}

	if n, err := m.UnlikeComment(ctx, c.ID, "u2"); err != nil || n != 2 {
		t.Errorf("UnlikeComment() = %d, %v, want 2", n, err)
	}
	if _, err := m.UnlikeComment(ctx, c.ID, "u2"); !errors.Is(err, social.ErrNotLiked) {
		t.Errorf("UnlikeComment(again) error = %v, want ErrNotLiked", err)
	}

	ledgers, err := m.ListCommentLedgers(ctx, []string{c.ID}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if l := ledgers[c.ID]; l.Count != 2 || len(l.UserIDs) != 1 {
		t.Errorf("Ledger = %+v, want count 2 with 1 id", l)
	}
}

func TestReconcileComments(t *testing.T) {
	m := connect(t)
	ctx := context.Background()

	c, err := m.InsertComment(ctx, social.Comment{AuthorID: "u1", PostID: "p1", Text: "a"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.InsertComment(ctx, social.Comment{AuthorID: "u1", PostID: "p1", Text: "b"}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.LikeComment(ctx, c.ID, "u2"); err != nil {
		t.Fatal(err)
	}
	oid, _ := bson.ObjectIDFromHex(c.ID)
	if _, err := m.likes.UpdateOne(ctx, bson.M{"comment_id": oid}, bson.M{"$set": bson.M{"count": 5}}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.comments.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{"reply_count": 3}}); err != nil {
		t.Fatal(err)
	}

	fixed, perPost, err := m.ReconcileComments(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if fixed != 2 {
		t.Errorf("ReconcileComments() fixed %d, want 2", fixed)
	}
	if perPost["p1"] != 2 {
		t.Errorf("perPost[p1] = %d, want 2", perPost["p1"])
	}

	got, err := m.GetComment(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ReplyCount != 0 {
		t.Errorf("ReplyCount = %d, want 0", got.ReplyCount)
	}
	if n, err := m.UnlikeComment(ctx, c.ID, "u2"); err != nil || n != 0 {
		t.Errorf("UnlikeComment() after reconcile = %d, %v, want 0", n, err)
	}
}

func TestListCommentReplies(t *testing.T) {
	m := connect(t)
	ctx := context.Background()

	c, err := m.InsertComment(ctx, social.Comment{AuthorID: "u1", PostID: "p1", Text: "top"})
	if err != nil {
		t.Fatal(err)
	}
	var replies []social.Comment
	for range 4 {
		r, err := m.InsertComment(ctx, social.Comment{AuthorID: "u2", PostID: "p1", ParentID: c.ID, Text: "re"})
		if err != nil {
			t.Fatal(err)
		}
		replies = append(replies, r)
	}
	if err := m.SoftDeleteComment(ctx, replies[3].ID); err != nil {
		t.Fatal(err)
	}

	before := time.Now().Add(time.Minute)
	got, err := m.ListCommentReplies(ctx, c.ID, social.Page{Before: before, Offset: 1, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != replies[1].ID || got[1].ID != replies[0].ID {
		t.Errorf("ListCommentReplies() = %+v, want replies 1 and 0", got)
	}

	got, err = m.ListCommentReplies(ctx, "bogus", social.Page{Before: before, Limit: 10})
	if err != nil || len(got) != 0 {
		t.Errorf("ListCommentReplies(bogus) = %+v, %v, want none", got, err)
	}
}

func TestReconcilePartialWrites(t *testing.T) {
	m := connect(t)
	ctx := context.Background()

	c, err := m.InsertComment(ctx, social.Comment{AuthorID: "u1", PostID: "p1", Text: "top"})
	if err != nil {
		t.Fatal(err)
	}
	linked, err := m.InsertComment(ctx, social.Comment{AuthorID: "u2", PostID: "p1", ParentID: c.ID, Text: "linked"})
	if err != nil {
		t.Fatal(err)
	}

	// A reply whose parent was never updated.
	parent, _ := bson.ObjectIDFromHex(c.ID)
	t0 := now()
	orphan := bson.NewObjectID()
	_, err = m.comments.InsertOne(ctx, comment{
		ID:          orphan,
		UserID:      "u3",
		PostID:      "p1",
		CommentID:   &parent,
		Description: "orphan",
		Replies:     []bson.ObjectID{},
		CreatedAt:   t0,
		UpdatedAt:   t0,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.likes.InsertOne(ctx, commentLike{CommentID: orphan, Users: []string{}, CreatedAt: t0, UpdatedAt: t0}); err != nil {
		t.Fatal(err)
	}

	// A comment whose ledger was never created.
	lonely, err := m.InsertComment(ctx, social.Comment{AuthorID: "u1", PostID: "p1", Text: "no ledger"})
	if err != nil {
		t.Fatal(err)
	}
	loid, _ := bson.ObjectIDFromHex(lonely.ID)
	if _, err := m.likes.DeleteOne(ctx, bson.M{"comment_id": loid}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.LikeComment(ctx, lonely.ID, "u2"); !errors.Is(err, social.ErrNotFound) {
		t.Fatalf("LikeComment(no ledger) error = %v, want ErrNotFound", err)
	}

	fixed, perPost, err := m.ReconcileComments(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if fixed != 2 {
		t.Errorf("ReconcileComments() fixed %d, want 2", fixed)
	}
	if perPost["p1"] != 2 {
		t.Errorf("perPost[p1] = %d, want 2", perPost["p1"])
	}

	got, err := m.GetComment(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{linked.ID, orphan.Hex()}
	if got.ReplyCount != 2 || len(got.ReplyIDs) != 2 || got.ReplyIDs[0] != want[0] || got.ReplyIDs[1] != want[1] {
		t.Errorf("Parent = %d replies %v, want %v", got.ReplyCount, got.ReplyIDs, want)
	}
	if _, err := m.LikeComment(ctx, orphan.Hex(), "u1"); err != nil {
		t.Errorf("LikeComment(orphan) error = %v", err)
	}
	if n, err := m.LikeComment(ctx, lonely.ID, "u2"); err != nil || n != 1 {
		t.Errorf("LikeComment(repaired) = %d, %v, want 1", n, err)
	}

	if fixed, _, err := m.ReconcileComments(ctx); err != nil || fixed != 0 {
		t.Errorf("ReconcileComments(again) fixed %d, %v, want 0", fixed, err)
	}
}
