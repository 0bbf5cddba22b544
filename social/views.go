package social

import "time"

// LikeSummary is the reaction part of a view.
type LikeSummary struct {
	Count int      `json:"count"`
	Users []Author `json:"users"`
}

// PostView is the read model returned for posts and replies.
type PostView struct {
	ID           string        `json:"id"`
	ParentID     string        `json:"parent_id,omitempty"`
	Text         string        `json:"text"`
	User         Author        `json:"user"`
	Post         *PostView     `json:"post,omitempty"`
	LikeCount    int           `json:"like_count"`
	ReplyCount   int           `json:"reply_count"`
	CommentCount int           `json:"comment_count"`
	Likes        LikeSummary   `json:"likes"`
	Replies      []PostView    `json:"replies"`
	Comments     []CommentView `json:"comments"`
	File         *File         `json:"file,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// CommentView is the read model returned for comments and comment replies.
type CommentView struct {
	ID         string        `json:"id"`
	PostID     string        `json:"post_id"`
	CommentID  string        `json:"comment_id,omitempty"`
	Text       string        `json:"description"`
	User       Author        `json:"user"`
	ReplyCount int           `json:"reply_count"`
	Likes      LikeSummary   `json:"likes"`
	Replies    []CommentView `json:"replies"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// LikeResult is returned by like and unlike operations.
type LikeResult struct {
	ID        string `json:"id"`
	LikeCount int    `json:"like_count"`
	Liked     bool   `json:"liked"`
}

// Profile is the account view returned to its owner.
type Profile struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func (u User) Profile() Profile {
	return Profile{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Name:      u.Name,
		CreatedAt: u.CreatedAt,
	}
}

func (u User) Author() Author {
	return Author{ID: u.ID, Username: u.Username, Name: u.Name}
}
