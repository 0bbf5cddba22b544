package social

import (
	"context"
	"errors"
	"fmt"
)

func postNotFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return Errorf(KindNotFound, "Post is not found")
	}
	return err
}

// CreatePost creates a top-level post authored by authorID.
func (s *Service) CreatePost(ctx context.Context, authorID, text string, file *File) (PostView, error) {
	if err := validateText(text); err != nil {
		return PostView{}, err
	}
	if file != nil && file.Location == "" {
		return PostView{}, Errorf(KindValidation, "file location is required")
	}

	p, err := s.Posts.InsertPost(ctx, Post{
		AuthorID: authorID,
		Text:     text,
		File:     file,
	})
	if err != nil {
		return PostView{}, fmt.Errorf("insert post: %w", err)
	}
	s.publish(ctx, Event{Type: EventPostCreated, EntityID: p.ID, ActorID: authorID})

	return s.postView(ctx, p)
}

// Reply creates a reply to the post parentID and increments its reply count.
func (s *Service) Reply(ctx context.Context, authorID, parentID, text string) (PostView, error) {
	if err := validateText(text); err != nil {
		return PostView{}, err
	}

	p, err := s.Posts.InsertReply(ctx, Post{
		AuthorID: authorID,
		ParentID: parentID,
		Text:     text,
	})
	if err != nil {
		return PostView{}, postNotFound(fmt.Errorf("insert reply: %w", err))
	}
	s.invalidate(ctx, parentID)
	s.publish(ctx, Event{Type: EventPostReplied, EntityID: p.ID, ParentID: parentID, ActorID: authorID})

	return s.postView(ctx, p)
}

// GetPost returns a post with its parent, reply, comment and liker previews.
//
// Cached views never carry the parent summary. A reply served from the cache
// gets it from its parent's own view, so a change to the parent only has to
// invalidate the parent.
func (s *Service) GetPost(ctx context.Context, id string) (PostView, error) {
	v, hit, err := s.cachedPost(ctx, id)
	if err != nil || !hit || v.ParentID == "" {
		return v, err
	}

	parent, _, err := s.cachedPost(ctx, v.ParentID)
	switch {
	case KindOf(err) == KindNotFound:
	case err != nil:
		return PostView{}, err
	default:
		parent.Post = nil
		parent.Replies = []PostView{}
		parent.Comments = []CommentView{}
		v.Post = &parent
	}
	return v, nil
}

// cachedPost returns the view of a post from the cache, or assembles it and
// caches it on a miss. The boolean reports a cache hit.
func (s *Service) cachedPost(ctx context.Context, id string) (PostView, bool, error) {
	var (
		version   int64
		cacheable bool
	)
	if s.Cache != nil {
		v, ver, ok, err := s.Cache.GetPost(ctx, id)
		switch {
		case err != nil:
			s.Logger.Warn("Could not read cached post", "id", id, "error", err.Error())
		case ok:
			s.Logger.Info("Got post from cache", "id", id)
			return v, true, nil
		default:
			version, cacheable = ver, true
		}
	}

	p, err := s.Posts.GetPost(ctx, id)
	if err != nil {
		return PostView{}, false, postNotFound(err)
	}
	v, err := s.postView(ctx, p)
	if err != nil {
		return PostView{}, false, err
	}

	if cacheable {
		c := v
		c.Post = nil
		if err := s.Cache.SetPost(ctx, c, version); err != nil {
			s.Logger.Warn("Could not cache post", "id", id, "error", err.Error())
		}
	}
	return v, false, nil
}

// UpdatePost replaces the text of a post owned by callerID.
func (s *Service) UpdatePost(ctx context.Context, callerID, id, text string) (PostView, error) {
	if err := validateText(text); err != nil {
		return PostView{}, err
	}
	p, err := s.ownedPost(ctx, callerID, id, "update")
	if err != nil {
		return PostView{}, err
	}

	p, err = s.Posts.UpdatePostText(ctx, p.ID, text)
	if err != nil {
		return PostView{}, postNotFound(fmt.Errorf("update post: %w", err))
	}
	s.invalidate(ctx, p.ID, p.ParentID)
	s.publish(ctx, Event{Type: EventPostUpdated, EntityID: p.ID, ActorID: callerID})

	return s.postView(ctx, p)
}

// DeletePost soft deletes a post owned by callerID. Its like ledger is kept.
func (s *Service) DeletePost(ctx context.Context, callerID, id string) error {
	p, err := s.ownedPost(ctx, callerID, id, "delete")
	if err != nil {
		return err
	}

	if err := s.Posts.SoftDeletePost(ctx, p.ID); err != nil {
		return postNotFound(fmt.Errorf("delete post: %w", err))
	}
	s.invalidate(ctx, p.ID, p.ParentID)
	s.publish(ctx, Event{Type: EventPostDeleted, EntityID: p.ID, ParentID: p.ParentID, ActorID: callerID})
	return nil
}

func (s *Service) ownedPost(ctx context.Context, callerID, id, verb string) (Post, error) {
	p, err := s.Posts.GetPost(ctx, id)
	if err != nil {
		return Post{}, postNotFound(err)
	}
	if p.AuthorID != callerID {
		return Post{}, Errorf(KindForbidden, "Cannot %s post that are not yours", verb)
	}
	return p, nil
}

// LikePost adds callerID to the post's ledger. The parent of a reply is
// invalidated too since its view embeds the reply's likes.
func (s *Service) LikePost(ctx context.Context, callerID, id string) (LikeResult, error) {
	p, err := s.Posts.GetPost(ctx, id)
	if err != nil {
		return LikeResult{}, postNotFound(err)
	}

	n, err := s.Posts.LikePost(ctx, p.ID, callerID)
	switch {
	case errors.Is(err, ErrAlreadyLiked):
		return LikeResult{}, Errorf(KindAlreadyLiked, "Already liked the post")
	case err != nil:
		return LikeResult{}, postNotFound(err)
	}
	s.invalidate(ctx, p.ID, p.ParentID)
	s.publish(ctx, Event{Type: EventPostLiked, EntityID: id, ActorID: callerID, Count: n})

	return LikeResult{ID: id, LikeCount: n, Liked: true}, nil
}

// UnlikePost removes callerID from the post's ledger.
func (s *Service) UnlikePost(ctx context.Context, callerID, id string) (LikeResult, error) {
	p, err := s.Posts.GetPost(ctx, id)
	if err != nil {
		return LikeResult{}, postNotFound(err)
	}

	n, err := s.Posts.UnlikePost(ctx, p.ID, callerID)
	switch {
	case errors.Is(err, ErrNotLiked):
		return LikeResult{}, Errorf(KindNotLiked, "Like is not found")
	case err != nil:
		return LikeResult{}, postNotFound(err)
	}
	s.invalidate(ctx, p.ID, p.ParentID)
	s.publish(ctx, Event{Type: EventPostUnliked, EntityID: id, ActorID: callerID, Count: n})

	return LikeResult{ID: id, LikeCount: n, Liked: false}, nil
}

// Feed lists top-level posts of every author.
func (s *Service) Feed(ctx context.Context, page Page) ([]PostView, error) {
	return s.listPosts(ctx, PostQuery{Page: page})
}

// ListUserPosts lists the top-level posts of a user.
func (s *Service) ListUserPosts(ctx context.Context, userID string, page Page) ([]PostView, error) {
	if _, err := s.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.listPosts(ctx, PostQuery{Page: page, AuthorID: userID})
}

// ListUserReplies lists the replies written by a user.
func (s *Service) ListUserReplies(ctx context.Context, userID string, page Page) ([]PostView, error) {
	if _, err := s.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.listPosts(ctx, PostQuery{Page: page, AuthorID: userID, Replies: true})
}

func (s *Service) listPosts(ctx context.Context, q PostQuery) ([]PostView, error) {
	page, err := s.normalizePage(q.Page)
	if err != nil {
		return nil, err
	}
	q.Page = page

	posts, err := s.Posts.ListPosts(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return s.assemblePosts(ctx, posts)
}

func (s *Service) postView(ctx context.Context, p Post) (PostView, error) {
	views, err := s.assemblePosts(ctx, []Post{p})
	if err != nil {
		return PostView{}, err
	}
	return views[0], nil
}
