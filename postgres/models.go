package postgres

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/edgeee/social-backend/social"
)

// A user represents an account in the database.
type user struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID        string    `bun:",pk,type:uuid,default:gen_random_uuid()"`
	Username  string    `bun:",notnull,unique"`
	Email     string    `bun:",notnull,unique"`
	Name      string    `bun:",notnull"`
	Password  string    `bun:",notnull"`
	Token     string    `bun:",nullzero,unique"`
	CreatedAt time.Time `bun:",nullzero,notnull,default:now()"`
	UpdatedAt time.Time `bun:",nullzero,notnull,default:now()"`
}

// A post represents a post or a reply in the database. Deleted posts are
// hidden from every query by bun's soft delete support.
type post struct {
	bun.BaseModel `bun:"table:posts,alias:p"`

	ID           string    `bun:",pk,type:uuid,default:gen_random_uuid()"`
	UserID       string    `bun:",notnull,type:uuid"`
	ParentID     string    `bun:",nullzero,type:uuid"`
	Text         string    `bun:",notnull"`
	LikeCount    int       `bun:",notnull,default:0"`
	ReplyCount   int       `bun:",notnull,default:0"`
	CommentCount int       `bun:",notnull,default:0"`
	CreatedAt    time.Time `bun:",nullzero,notnull,default:now()"`
	UpdatedAt    time.Time `bun:",nullzero,notnull,default:now()"`
	DeletedAt    time.Time `bun:",soft_delete,nullzero"`
	File         *file     `bun:"rel:has-one,join:id=post_id"`
}

// A postLike is one entry of a post's like ledger.
type postLike struct {
	bun.BaseModel `bun:"table:post_likes,alias:l"`

	PostID    string    `bun:",pk,type:uuid"`
	UserID    string    `bun:",pk,type:uuid"`
	CreatedAt time.Time `bun:",nullzero,notnull,default:now()"`
}

// A file is an attachment owned by a post.
type file struct {
	bun.BaseModel `bun:"table:files,alias:f"`

	ID        string         `bun:",pk,type:uuid,default:gen_random_uuid()"`
	PostID    string         `bun:",notnull,unique,type:uuid"`
	Location  string         `bun:",notnull"`
	Meta      map[string]any `bun:",type:jsonb"`
	CreatedAt time.Time      `bun:",nullzero,notnull,default:now()"`
}

func (u user) SocialUser() social.User {
	return social.User{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		Name:         u.Name,
		PasswordHash: u.Password,
		Token:        u.Token,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func (p post) SocialPost() social.Post {
	out := social.Post{
		ID:           p.ID,
		AuthorID:     p.UserID,
		ParentID:     p.ParentID,
		Text:         p.Text,
		LikeCount:    p.LikeCount,
		ReplyCount:   p.ReplyCount,
		CommentCount: p.CommentCount,
		Deleted:      !p.DeletedAt.IsZero(),
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
	if p.File != nil && p.File.ID != "" {
		out.File = &social.File{
			ID:        p.File.ID,
			Location:  p.File.Location,
			Meta:      p.File.Meta,
			CreatedAt: p.File.CreatedAt,
		}
	}
	return out
}

func socialPosts(ps []post) []social.Post {
	out := make([]social.Post, len(ps))
	for i, p := range ps {
		out[i] = p.SocialPost()
	}
	return out
}
