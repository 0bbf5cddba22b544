package social

import (
	"context"
	"time"
)

// A UserStore persists accounts.
type UserStore interface {
	// InsertUser returns ErrDuplicate when the username or email is taken.
	InsertUser(ctx context.Context, u User) (User, error)
	GetUser(ctx context.Context, id string) (User, error)
	// FindUserByLogin matches either the username or the email.
	FindUserByLogin(ctx context.Context, login string) (User, error)
	FindUserByToken(ctx context.Context, token string) (User, error)
	UpdateUser(ctx context.Context, u User) (User, error)
	// SetUserToken stores token as the user's session token. An empty token
	// clears it.
	SetUserToken(ctx context.Context, id, token string) error
	// ListAuthors returns summaries for the given ids. Unknown ids are skipped.
	ListAuthors(ctx context.Context, ids []string) ([]Author, error)
}

// A PostStore persists posts, replies, their like ledgers and attachments.
// Every method excludes soft-deleted posts.
type PostStore interface {
	InsertPost(ctx context.Context, p Post) (Post, error)
	// InsertReply creates the reply and increments the parent's reply count.
	// It returns ErrNotFound when the parent is missing or deleted.
	InsertReply(ctx context.Context, p Post) (Post, error)
	GetPost(ctx context.Context, id string) (Post, error)
	// GetPosts returns the live posts among ids, in no particular order.
	GetPosts(ctx context.Context, ids []string) ([]Post, error)
	UpdatePostText(ctx context.Context, id, text string) (Post, error)
	// SoftDeletePost flags the post as deleted, decrements its parent's reply
	// count and removes its attachment. The like ledger is kept.
	SoftDeletePost(ctx context.Context, id string) error
	// LikePost adds userID to the ledger and returns the new like count.
	LikePost(ctx context.Context, id, userID string) (int, error)
	// UnlikePost removes userID from the ledger and returns the new like count.
	UnlikePost(ctx context.Context, id, userID string) (int, error)
	ListPosts(ctx context.Context, q PostQuery) ([]Post, error)
	// ListReplies returns up to limit newest replies per parent.
	ListReplies(ctx context.Context, parentIDs []string, limit int) (map[string][]Post, error)
	// ListPostLedgers returns the ledgers of the given posts with at most
	// limit user ids each.
	ListPostLedgers(ctx context.Context, ids []string, limit int) (map[string]Ledger, error)
	// AddCommentCount adjusts the comment counter of a post by delta.
	AddCommentCount(ctx context.Context, id string, delta int) error
	// ReconcilePosts recomputes like and reply counters from the ledger and
	// the live replies, and sets comment counters from commentCounts. It
	// returns the number of posts that were corrected.
	ReconcilePosts(ctx context.Context, commentCounts map[string]int) (int, error)
}

// A CommentStore persists comments and their like ledgers.
// Every method excludes soft-deleted comments.
type CommentStore interface {
	// InsertComment creates the comment with an empty ledger. When ParentID is
	// set it appends the comment to the parent's replies and increments the
	// parent's reply count; a missing parent yields ErrNotFound.
	InsertComment(ctx context.Context, c Comment) (Comment, error)
	GetComment(ctx context.Context, id string) (Comment, error)
	UpdateCommentText(ctx context.Context, id, text string) (Comment, error)
	// SoftDeleteComment flags the comment as deleted and pulls it from its
	// parent's replies.
	SoftDeleteComment(ctx context.Context, id string) error
	LikeComment(ctx context.Context, id, userID string) (int, error)
	UnlikeComment(ctx context.Context, id, userID string) (int, error)
	// ListComments returns top-level comments of a post, newest first.
	ListComments(ctx context.Context, postID string, p Page) ([]Comment, error)
	// ListCommentReplies returns the replies to a comment, newest first.
	ListCommentReplies(ctx context.Context, commentID string, p Page) ([]Comment, error)
	// PreviewComments returns up to limit newest top-level comments per post.
	PreviewComments(ctx context.Context, postIDs []string, limit int) (map[string][]Comment, error)
	// PreviewReplies returns up to limit newest replies per comment.
	PreviewReplies(ctx context.Context, commentIDs []string, limit int) (map[string][]Comment, error)
	ListCommentLedgers(ctx context.Context, ids []string, limit int) (map[string]Ledger, error)
	// ReconcileComments rebuilds reply lists from the live replies, creates
	// missing ledgers, recomputes ledger and reply counters, and returns the
	// number of live top-level comments per post.
	ReconcileComments(ctx context.Context) (fixed int, perPost map[string]int, err error)
}

// A Cache stores assembled post views. Every invalidation bumps the version
// of a post, and a view assembled under an older version is never stored.
type Cache interface {
	// GetPost returns the cached view of a post and reports a hit. On a miss
	// it returns the current version of the post, to be passed to SetPost.
	GetPost(ctx context.Context, id string) (v PostView, version int64, ok bool, err error)
	// SetPost stores v unless the post was invalidated after version was
	// read.
	SetPost(ctx context.Context, v PostView, version int64) error
	InvalidatePosts(ctx context.Context, ids ...string) error
}

// An Event describes a mutation, published for other services.
type Event struct {
	Type      string    `json:"type"`
	EntityID  string    `json:"entity_id"`
	ParentID  string    `json:"parent_id,omitempty"`
	ActorID   string    `json:"actor_id"`
	Count     int       `json:"count,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Event types.
const (
	EventPostCreated    = "post.created"
	EventPostReplied    = "post.replied"
	EventPostUpdated    = "post.updated"
	EventPostDeleted    = "post.deleted"
	EventPostLiked      = "post.liked"
	EventPostUnliked    = "post.unliked"
	EventCommentCreated = "comment.created"
	EventCommentDeleted = "comment.deleted"
	EventCommentLiked   = "comment.liked"
	EventCommentUnliked = "comment.unliked"
)

// A Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// A Session holds the credentials handed out at login. RefreshToken is empty
// when the scheme does not support refreshing.
type Session struct {
	Token        string
	RefreshToken string
}

// Sessions issues and resolves session credentials.
type Sessions interface {
	Issue(ctx context.Context, u User) (Session, error)
	// Resolve returns the user owning the credential, or an error wrapping
	// ErrNotFound when it is unknown, expired or revoked.
	Resolve(ctx context.Context, credential string) (User, error)
	// Refresh trades a refresh token for a new access token. It returns an
	// error wrapping ErrNotFound when the refresh token is no longer valid.
	Refresh(ctx context.Context, refreshToken string) (string, error)
	Revoke(ctx context.Context, u User) error
}
