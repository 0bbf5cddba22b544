package social

import "time"

// A User represents a persisted account.
type User struct {
	ID           string
	Username     string
	Email        string
	Name         string
	PasswordHash string
	Token        string // empty when logged out
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Author is the public summary of a user embedded in every view.
type Author struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

// A Post is a top-level post or, when ParentID is set, a reply to one.
type Post struct {
	ID           string
	AuthorID     string
	ParentID     string
	Text         string
	LikeCount    int
	ReplyCount   int
	CommentCount int
	Deleted      bool
	File         *File
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// A Comment belongs to a post. A comment with ParentID set is a reply to a
// top-level comment; replies cannot be replied to.
type Comment struct {
	ID         string
	AuthorID   string
	PostID     string
	ParentID   string
	Text       string
	ReplyIDs   []string
	ReplyCount int
	Deleted    bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// A Ledger is the set of users who liked an entity. UserIDs may be truncated
// when read for a view; Count is always the full cardinality.
type Ledger struct {
	EntityID string
	UserIDs  []string
	Count    int
}

// A File is an attachment owned by a post.
type File struct {
	ID        string         `json:"id"`
	Location  string         `json:"location"`
	Meta      map[string]any `json:"meta,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Page selects a window of a newest-first listing.
type Page struct {
	Before time.Time
	Offset int
	Limit  int
}

// PostQuery filters post listings.
type PostQuery struct {
	Page
	AuthorID string
	// Replies selects replies instead of top-level posts.
	Replies bool
}
