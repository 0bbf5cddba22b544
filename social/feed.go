package social

import (
	"context"
	"fmt"
	"maps"
	"slices"
)

// assemblePosts builds the views of posts: author, likers, parent summary for
// replies, and newest-first previews of replies and comments.
func (s *Service) assemblePosts(ctx context.Context, posts []Post) ([]PostView, error) {
	if len(posts) == 0 {
		return []PostView{}, nil
	}
	ids := postIDs(posts)

	replies, err := s.Posts.ListReplies(ctx, ids, PreviewSize)
	if err != nil {
		return nil, fmt.Errorf("list replies: %w", err)
	}

	var parents []Post
	if pids := parentIDs(posts); len(pids) > 0 {
		parents, err = s.Posts.GetPosts(ctx, pids)
		if err != nil {
			return nil, fmt.Errorf("get parents: %w", err)
		}
	}

	comments, err := s.Comments.PreviewComments(ctx, ids, PreviewSize)
	if err != nil {
		return nil, fmt.Errorf("preview comments: %w", err)
	}
	topComments := flatten(comments)
	commentReplies, err := s.previewReplies(ctx, topComments)
	if err != nil {
		return nil, err
	}

	all := slices.Concat(posts, parents, flatten(replies))
	postLedgers, err := s.Posts.ListPostLedgers(ctx, postIDs(all), LikerLimit)
	if err != nil {
		return nil, fmt.Errorf("list post ledgers: %w", err)
	}
	allComments := slices.Concat(topComments, flatten(commentReplies))
	commentLedgers, err := s.commentLedgers(ctx, allComments)
	if err != nil {
		return nil, err
	}
	authors, err := s.authors(ctx, all, allComments, postLedgers, commentLedgers)
	if err != nil {
		return nil, err
	}

	parentViews := make(map[string]PostView, len(parents))
	for _, p := range parents {
		parentViews[p.ID] = postSummary(p, authors, postLedgers)
	}

	out := make([]PostView, len(posts))
	for i, p := range posts {
		v := postSummary(p, authors, postLedgers)
		if pv, ok := parentViews[p.ParentID]; ok {
			v.Post = &pv
		}
		for _, r := range replies[p.ID] {
			v.Replies = append(v.Replies, postSummary(r, authors, postLedgers))
		}
		for _, c := range comments[p.ID] {
			cv := commentSummary(c, authors, commentLedgers)
			for _, r := range commentReplies[c.ID] {
				cv.Replies = append(cv.Replies, commentSummary(r, authors, commentLedgers))
			}
			v.Comments = append(v.Comments, cv)
		}
		out[i] = v
	}
	return out, nil
}

// assembleComments builds comment views with likers and, for top-level
// comments, a newest-first preview of their replies.
func (s *Service) assembleComments(ctx context.Context, comments []Comment) ([]CommentView, error) {
	if len(comments) == 0 {
		return []CommentView{}, nil
	}

	replies, err := s.previewReplies(ctx, comments)
	if err != nil {
		return nil, err
	}
	all := slices.Concat(comments, flatten(replies))
	ledgers, err := s.commentLedgers(ctx, all)
	if err != nil {
		return nil, err
	}
	authors, err := s.authors(ctx, nil, all, nil, ledgers)
	if err != nil {
		return nil, err
	}

	out := make([]CommentView, len(comments))
	for i, c := range comments {
		v := commentSummary(c, authors, ledgers)
		for _, r := range replies[c.ID] {
			v.Replies = append(v.Replies, commentSummary(r, authors, ledgers))
		}
		out[i] = v
	}
	return out, nil
}

func (s *Service) previewReplies(ctx context.Context, comments []Comment) (map[string][]Comment, error) {
	var ids []string
	for _, c := range comments {
		if c.ParentID == "" && c.ReplyCount > 0 {
			ids = append(ids, c.ID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	replies, err := s.Comments.PreviewReplies(ctx, ids, PreviewSize)
	if err != nil {
		return nil, fmt.Errorf("preview replies: %w", err)
	}
	return replies, nil
}

func (s *Service) commentLedgers(ctx context.Context, comments []Comment) (map[string]Ledger, error) {
	if len(comments) == 0 {
		return nil, nil
	}
	ids := make([]string, len(comments))
	for i, c := range comments {
		ids[i] = c.ID
	}
	ledgers, err := s.Comments.ListCommentLedgers(ctx, ids, LikerLimit)
	if err != nil {
		return nil, fmt.Errorf("list comment ledgers: %w", err)
	}
	return ledgers, nil
}

// authors loads the summaries of every author and liker referenced by the
// given records.
func (s *Service) authors(ctx context.Context, posts []Post, comments []Comment, ledgers ...map[string]Ledger) (map[string]Author, error) {
	set := make(map[string]struct{})
	for _, p := range posts {
		set[p.AuthorID] = struct{}{}
	}
	for _, c := range comments {
		set[c.AuthorID] = struct{}{}
	}
	for _, m := range ledgers {
		for _, l := range m {
			for _, id := range l.UserIDs {
				set[id] = struct{}{}
			}
		}
	}
	if len(set) == 0 {
		return map[string]Author{}, nil
	}

	list, err := s.Users.ListAuthors(ctx, slices.Sorted(maps.Keys(set)))
	if err != nil {
		return nil, fmt.Errorf("list authors: %w", err)
	}
	out := make(map[string]Author, len(list))
	for _, a := range list {
		out[a.ID] = a
	}
	return out, nil
}

func postSummary(p Post, authors map[string]Author, ledgers map[string]Ledger) PostView {
	return PostView{
		ID:           p.ID,
		ParentID:     p.ParentID,
		Text:         p.Text,
		User:         authorOf(p.AuthorID, authors),
		LikeCount:    p.LikeCount,
		ReplyCount:   p.ReplyCount,
		CommentCount: p.CommentCount,
		Likes: LikeSummary{
			Count: p.LikeCount,
			Users: likers(ledgers[p.ID], authors),
		},
		Replies:   []PostView{},
		Comments:  []CommentView{},
		File:      p.File,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func commentSummary(c Comment, authors map[string]Author, ledgers map[string]Ledger) CommentView {
	l := ledgers[c.ID]
	return CommentView{
		ID:         c.ID,
		PostID:     c.PostID,
		CommentID:  c.ParentID,
		Text:       c.Text,
		User:       authorOf(c.AuthorID, authors),
		ReplyCount: c.ReplyCount,
		Likes: LikeSummary{
			Count: l.Count,
			Users: likers(l, authors),
		},
		Replies:   []CommentView{},
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func authorOf(id string, authors map[string]Author) Author {
	if a, ok := authors[id]; ok {
		return a
	}
	return Author{ID: id}
}

func likers(l Ledger, authors map[string]Author) []Author {
	out := make([]Author, 0, len(l.UserIDs))
	for _, id := range l.UserIDs {
		if a, ok := authors[id]; ok {
			out = append(out, a)
		}
	}
	return out
}

func postIDs(posts []Post) []string {
	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	return ids
}

func parentIDs(posts []Post) []string {
	set := make(map[string]struct{})
	for _, p := range posts {
		if p.ParentID != "" {
			set[p.ParentID] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(set))
}

// flatten returns the values of a preview map ordered by key.
func flatten[T any](m map[string][]T) []T {
	var out []T
	for _, k := range slices.Sorted(maps.Keys(m)) {
		out = append(out, m[k]...)
	}
	return out
}
