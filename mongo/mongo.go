package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/edgeee/social-backend/social"
)

const (
	commentsCollection = "comments"
	likesCollection    = "comment_likes"
)

// Mongo provides storage in MongoDB for comments and their like ledgers.
type Mongo struct {
	cli      *mongo.Client
	comments *mongo.Collection
	likes    *mongo.Collection
}

// Connect connects to the MongoDB server and pings it to ensure the
// connection is working.
func Connect(ctx context.Context, uri, database string) (*Mongo, error) {
	cli, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := cli.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	db := cli.Database(database)
	return &Mongo{
		cli:      cli,
		comments: db.Collection(commentsCollection),
		likes:    db.Collection(likesCollection),
	}, nil
}

// Close disconnects from the server.
func (m *Mongo) Close(ctx context.Context) error {
	return m.cli.Disconnect(ctx)
}

// EnsureIndexes creates the indexes used by the listing and ledger queries.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	_, err := m.comments.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "post_id", Value: 1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "comment_id", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create comment indexes: %w", err)
	}
	_, err = m.likes.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "comment_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create ledger index: %w", err)
	}
	return nil
}

func now() time.Time {
	// MongoDB stores milliseconds.
	return time.Now().UTC().Truncate(time.Millisecond)
}

func objectID(hex string) (bson.ObjectID, error) {
	id, err := bson.ObjectIDFromHex(hex)
	if err != nil {
		return bson.NilObjectID, social.ErrNotFound
	}
	return id, nil
}

func objectIDs(hexes []string) []bson.ObjectID {
	out := make([]bson.ObjectID, 0, len(hexes))
	for _, h := range hexes {
		if id, err := bson.ObjectIDFromHex(h); err == nil {
			out = append(out, id)
		}
	}
	return out
}

func storeErr(err error, verb string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return social.ErrNotFound
	}
	return fmt.Errorf("%s: %w", verb, err)
}

// live matches a comment that has not been deleted.
func live(id bson.ObjectID) bson.M {
	return bson.M{"_id": id, "is_deleted": false}
}
