package mongo

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/edgeee/social-backend/social"
)

// A comment represents a comment or a comment reply in the database.
type comment struct {
	ID          bson.ObjectID   `bson:"_id"`
	UserID      string          `bson:"user_id"`
	PostID      string          `bson:"post_id"`
	CommentID   *bson.ObjectID  `bson:"comment_id"`
	Description string          `bson:"description"`
	Replies     []bson.ObjectID `bson:"replies"`
	ReplyCount  int             `bson:"reply_count"`
	IsDeleted   bool            `bson:"is_deleted"`
	CreatedAt   time.Time       `bson:"created_at"`
	UpdatedAt   time.Time       `bson:"updated_at"`
}

// A commentLike is the like ledger of one comment.
type commentLike struct {
	ID        bson.ObjectID `bson:"_id,omitempty"`
	CommentID bson.ObjectID `bson:"comment_id"`
	Users     []string      `bson:"users"`
	Count     int           `bson:"count"`
	CreatedAt time.Time     `bson:"created_at"`
	UpdatedAt time.Time     `bson:"updated_at"`
}

// preview is one group of an aggregated children preview.
type preview struct {
	Key   string    `bson:"_id"`
	Items []comment `bson:"items"`
}

func (c comment) SocialComment() social.Comment {
	out := social.Comment{
		ID:         c.ID.Hex(),
		AuthorID:   c.UserID,
		PostID:     c.PostID,
		Text:       c.Description,
		ReplyIDs:   make([]string, len(c.Replies)),
		ReplyCount: c.ReplyCount,
		Deleted:    c.IsDeleted,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
	if c.CommentID != nil {
		out.ParentID = c.CommentID.Hex()
	}
	for i, id := range c.Replies {
		out.ReplyIDs[i] = id.Hex()
	}
	return out
}

func (l commentLike) SocialLedger() social.Ledger {
	return social.Ledger{
		EntityID: l.CommentID.Hex(),
		UserIDs:  l.Users,
		Count:    l.Count,
	}
}
