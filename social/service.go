package social

import (
	"context"
	"log/slog"
	"time"
	"unicode/utf8"
)

const (
	// MaxTextLength is the maximum number of characters of a post, reply or
	// comment.
	MaxTextLength = 140
	// DefaultPageSize is used when a listing does not specify a limit.
	DefaultPageSize = 10
	MaxPageSize     = 100
	// PreviewSize bounds the children embedded in a view.
	PreviewSize = 5
	// LikerLimit bounds the liker summaries embedded in a view.
	LikerLimit = 10
)

// Service implements accounts, content mutations and feed assembly on top of
// the injected stores. Cache and Events are optional.
type Service struct {
	Logger   *slog.Logger
	Users    UserStore
	Posts    PostStore
	Comments CommentStore
	Sessions Sessions
	Cache    Cache
	Events   Publisher

	// Now defaults to time.Now.
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func validateText(text string) error {
	if text == "" {
		return Errorf(KindValidation, "text is required")
	}
	if utf8.RuneCountInString(text) > MaxTextLength {
		return Errorf(KindValidation, "text must be at most %d characters", MaxTextLength)
	}
	return nil
}

func (s *Service) normalizePage(p Page) (Page, error) {
	if p.Offset < 0 {
		return p, Errorf(KindValidation, "offset must not be negative")
	}
	if p.Limit < 0 {
		return p, Errorf(KindValidation, "limit must not be negative")
	}
	if p.Limit == 0 {
		p.Limit = DefaultPageSize
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	if p.Before.IsZero() {
		p.Before = s.now()
	}
	return p, nil
}

// publish delivers e when a publisher is configured. Failures are logged.
func (s *Service) publish(ctx context.Context, e Event) {
	if s.Events == nil {
		return
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	if err := s.Events.Publish(ctx, e); err != nil {
		s.Logger.Warn("Could not publish event", "type", e.Type, "entity_id", e.EntityID, "error", err.Error())
	}
}

// invalidate drops cached views. Failures are logged.
func (s *Service) invalidate(ctx context.Context, ids ...string) {
	if s.Cache == nil {
		return
	}
	keys := ids[:0:0]
	for _, id := range ids {
		if id != "" {
			keys = append(keys, id)
		}
	}
	if len(keys) == 0 {
		return
	}
	if err := s.Cache.InvalidatePosts(ctx, keys...); err != nil {
		s.Logger.Warn("Could not invalidate cached posts", "ids", ids, "error", err.Error())
	}
}
