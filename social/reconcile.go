package social

import (
	"context"
	"fmt"
)

// ReconcileReport counts the records corrected by Reconcile.
type ReconcileReport struct {
	Posts    int `json:"posts"`
	Comments int `json:"comments"`
}

// Reconcile recomputes every denormalized counter from its detail
// collection: post like, reply and comment counts, comment ledger counts and
// comment reply counts.
func (s *Service) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var rep ReconcileReport

	fixed, perPost, err := s.Comments.ReconcileComments(ctx)
	if err != nil {
		return rep, fmt.Errorf("reconcile comments: %w", err)
	}
	rep.Comments = fixed

	rep.Posts, err = s.Posts.ReconcilePosts(ctx, perPost)
	if err != nil {
		return rep, fmt.Errorf("reconcile posts: %w", err)
	}

	s.Logger.Info("Counters reconciled", "posts", rep.Posts, "comments", rep.Comments)
	return rep, nil
}
