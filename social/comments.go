package social

import (
	"context"
	"errors"
	"fmt"
)

func commentNotFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return Errorf(KindNotFound, "Comment does not exist or may already been deleted.")
	}
	return err
}

// CreateComment adds a top-level comment to a live post and increments the
// post's comment count.
func (s *Service) CreateComment(ctx context.Context, authorID, postID, text string) (CommentView, error) {
	if err := validateText(text); err != nil {
		return CommentView{}, err
	}
	if _, err := s.Posts.GetPost(ctx, postID); err != nil {
		return CommentView{}, postNotFound(err)
	}

	c, err := s.Comments.InsertComment(ctx, Comment{
		AuthorID: authorID,
		PostID:   postID,
		Text:     text,
	})
	if err != nil {
		return CommentView{}, fmt.Errorf("insert comment: %w", err)
	}

	// The comment lives in a different store than the post counter. A failure
	// here leaves the counter behind until the next reconciliation.
	if err := s.Posts.AddCommentCount(ctx, postID, 1); err != nil {
		s.Logger.Warn("Could not increment comment count", "post_id", postID, "comment_id", c.ID, "error", err.Error())
	}
	s.invalidate(ctx, postID)
	s.publish(ctx, Event{Type: EventCommentCreated, EntityID: c.ID, ParentID: postID, ActorID: authorID})

	return s.commentView(ctx, c)
}

// ReplyComment adds a reply to a top-level comment.
func (s *Service) ReplyComment(ctx context.Context, authorID, commentID, text string) (CommentView, error) {
	if err := validateText(text); err != nil {
		return CommentView{}, err
	}
	parent, err := s.Comments.GetComment(ctx, commentID)
	if err != nil {
		return CommentView{}, commentNotFound(err)
	}
	if parent.ParentID != "" {
		return CommentView{}, Errorf(KindValidation, "Cannot reply to a reply")
	}
	if _, err := s.Posts.GetPost(ctx, parent.PostID); err != nil {
		return CommentView{}, postNotFound(err)
	}

	c, err := s.Comments.InsertComment(ctx, Comment{
		AuthorID: authorID,
		PostID:   parent.PostID,
		ParentID: parent.ID,
		Text:     text,
	})
	if err != nil {
		return CommentView{}, commentNotFound(fmt.Errorf("insert reply: %w", err))
	}
	s.invalidate(ctx, parent.PostID)
	s.publish(ctx, Event{Type: EventCommentCreated, EntityID: c.ID, ParentID: parent.ID, ActorID: authorID})

	return s.commentView(ctx, c)
}

// GetComment returns a comment with likers and a preview of its replies.
func (s *Service) GetComment(ctx context.Context, id string) (CommentView, error) {
	c, err := s.Comments.GetComment(ctx, id)
	if err != nil {
		return CommentView{}, commentNotFound(err)
	}
	return s.commentView(ctx, c)
}

// ListComments lists the top-level comments of a live post.
func (s *Service) ListComments(ctx context.Context, postID string, page Page) ([]CommentView, error) {
	page, err := s.normalizePage(page)
	if err != nil {
		return nil, err
	}
	if _, err := s.Posts.GetPost(ctx, postID); err != nil {
		return nil, postNotFound(err)
	}

	comments, err := s.Comments.ListComments(ctx, postID, page)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return s.assembleComments(ctx, comments)
}

// ListCommentReplies lists the replies to a live comment.
func (s *Service) ListCommentReplies(ctx context.Context, commentID string, page Page) ([]CommentView, error) {
	page, err := s.normalizePage(page)
	if err != nil {
		return nil, err
	}
	c, err := s.Comments.GetComment(ctx, commentID)
	if err != nil {
		return nil, commentNotFound(err)
	}

	replies, err := s.Comments.ListCommentReplies(ctx, c.ID, page)
	if err != nil {
		return nil, fmt.Errorf("list replies: %w", err)
	}
	return s.assembleComments(ctx, replies)
}

// UpdateComment replaces the text of a comment owned by callerID.
func (s *Service) UpdateComment(ctx context.Context, callerID, id, text string) (CommentView, error) {
	if err := validateText(text); err != nil {
		return CommentView{}, err
	}
	c, err := s.ownedComment(ctx, callerID, id, "updated")
	if err != nil {
		return CommentView{}, err
	}

	c, err = s.Comments.UpdateCommentText(ctx, c.ID, text)
	if err != nil {
		return CommentView{}, commentNotFound(fmt.Errorf("update comment: %w", err))
	}
	s.invalidate(ctx, c.PostID)

	return s.commentView(ctx, c)
}

// DeleteComment soft deletes a comment owned by callerID. Its like ledger is
// kept.
func (s *Service) DeleteComment(ctx context.Context, callerID, id string) error {
	c, err := s.ownedComment(ctx, callerID, id, "deleted")
	if err != nil {
		return err
	}

	if err := s.Comments.SoftDeleteComment(ctx, c.ID); err != nil {
		return commentNotFound(fmt.Errorf("delete comment: %w", err))
	}
	if c.ParentID == "" {
		if err := s.Posts.AddCommentCount(ctx, c.PostID, -1); err != nil {
			s.Logger.Warn("Could not decrement comment count", "post_id", c.PostID, "comment_id", c.ID, "error", err.Error())
		}
	}
	s.invalidate(ctx, c.PostID)
	s.publish(ctx, Event{Type: EventCommentDeleted, EntityID: c.ID, ParentID: c.ParentID, ActorID: callerID})
	return nil
}

func (s *Service) ownedComment(ctx context.Context, callerID, id, verb string) (Comment, error) {
	c, err := s.Comments.GetComment(ctx, id)
	if err != nil {
		return Comment{}, commentNotFound(err)
	}
	if c.AuthorID != callerID {
		return Comment{}, Errorf(KindForbidden, "Comment can only be %s by the owner.", verb)
	}
	return c, nil
}

// LikeComment adds callerID to the comment's ledger.
func (s *Service) LikeComment(ctx context.Context, callerID, id string) (LikeResult, error) {
	c, err := s.Comments.GetComment(ctx, id)
	if err != nil {
		return LikeResult{}, commentNotFound(err)
	}

	n, err := s.Comments.LikeComment(ctx, c.ID, callerID)
	switch {
	case errors.Is(err, ErrAlreadyLiked):
		return LikeResult{}, Errorf(KindAlreadyLiked, "You have already liked this comment.")
	case err != nil:
		return LikeResult{}, commentNotFound(err)
	}
	s.invalidate(ctx, c.PostID)
	s.publish(ctx, Event{Type: EventCommentLiked, EntityID: c.ID, ActorID: callerID, Count: n})

	return LikeResult{ID: c.ID, LikeCount: n, Liked: true}, nil
}

// UnlikeComment removes callerID from the comment's ledger.
func (s *Service) UnlikeComment(ctx context.Context, callerID, id string) (LikeResult, error) {
	c, err := s.Comments.GetComment(ctx, id)
	if err != nil {
		return LikeResult{}, commentNotFound(err)
	}

	n, err := s.Comments.UnlikeComment(ctx, c.ID, callerID)
	switch {
	case errors.Is(err, ErrNotLiked):
		return LikeResult{}, Errorf(KindNotLiked, "You have not liked this comment yet.")
	case err != nil:
		return LikeResult{}, commentNotFound(err)
	}
	s.invalidate(ctx, c.PostID)
	s.publish(ctx, Event{Type: EventCommentUnliked, EntityID: c.ID, ActorID: callerID, Count: n})

	return LikeResult{ID: c.ID, LikeCount: n, Liked: false}, nil
}

func (s *Service) commentView(ctx context.Context, c Comment) (CommentView, error) {
	views, err := s.assembleComments(ctx, []Comment{c})
	if err != nil {
		return CommentView{}, err
	}
	return views[0], nil
}
