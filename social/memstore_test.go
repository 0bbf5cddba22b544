package social

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// memstore is an in-memory UserStore, PostStore and CommentStore. Every
// method holds the lock for its whole duration, which gives the same atomicity
// as the transactional stores.
type memstore struct {
	mu    sync.Mutex
	seq   int
	clock time.Time

	users        map[string]*User
	posts        map[string]*Post
	postLikes    map[string][]string
	comments     map[string]*Comment
	commentLikes map[string][]string

	lastQuery PostQuery
}

func newMemstore() *memstore {
	return &memstore{
		clock:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		users:        make(map[string]*User),
		posts:        make(map[string]*Post),
		postLikes:    make(map[string][]string),
		comments:     make(map[string]*Comment),
		commentLikes: make(map[string][]string),
	}
}

// next returns a fresh id and a creation time later than every previous one.
func (m *memstore) next(prefix string) (string, time.Time) {
	m.seq++
	m.clock = m.clock.Add(time.Second)
	return fmt.Sprintf("%s%03d", prefix, m.seq), m.clock
}

func newestFirst[T any](created func(T) time.Time, id func(T) string) func(a, b T) int {
	return func(a, b T) int {
		if c := created(b).Compare(created(a)); c != 0 {
			return c
		}
		return cmp.Compare(id(b), id(a))
	}
}

var (
	postsNewestFirst    = newestFirst(func(p Post) time.Time { return p.CreatedAt }, func(p Post) string { return p.ID })
	commentsNewestFirst = newestFirst(func(c Comment) time.Time { return c.CreatedAt }, func(c Comment) string { return c.ID })
)

func window[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit < len(items) {
		items = items[:limit]
	}
	return items
}

// Users.

func (m *memstore) InsertUser(_ context.Context, u User) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.users {
		if o.Username == u.Username || o.Email == u.Email {
			return User{}, ErrDuplicate
		}
	}
	u.ID, u.CreatedAt = m.next("u")
	u.UpdatedAt = u.CreatedAt
	m.users[u.ID] = &u
	return u, nil
}

func (m *memstore) GetUser(_ context.Context, id string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return *u, nil
}

func (m *memstore) FindUserByLogin(_ context.Context, login string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == login || u.Email == login {
			return *u, nil
		}
	}
	return User{}, ErrNotFound
}

func (m *memstore) FindUserByToken(_ context.Context, token string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if token != "" && u.Token == token {
			return *u, nil
		}
	}
	return User{}, ErrNotFound
}

func (m *memstore) UpdateUser(_ context.Context, u User) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.users[u.ID]
	if !ok {
		return User{}, ErrNotFound
	}
	for _, o := range m.users {
		if o.ID != u.ID && (o.Username == u.Username || o.Email == u.Email) {
			return User{}, ErrDuplicate
		}
	}
	cur.Username, cur.Email, cur.Name, cur.PasswordHash = u.Username, u.Email, u.Name, u.PasswordHash
	return *cur, nil
}

func (m *memstore) SetUserToken(_ context.Context, id, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Token = token
	return nil
}

func (m *memstore) ListAuthors(_ context.Context, ids []string) ([]Author, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Author
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out = append(out, u.Author())
		}
	}
	return out, nil
}

// Posts.

func (m *memstore) livePost(id string) (*Post, error) {
	p, ok := m.posts[id]
	if !ok || p.Deleted {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *memstore) insertPost(p Post) Post {
	p.ID, p.CreatedAt = m.next("p")
	p.UpdatedAt = p.CreatedAt
	if p.File != nil {
		f := *p.File
		f.ID, f.CreatedAt = m.next("f")
		p.File = &f
	}
	m.posts[p.ID] = &p
	return p
}

func (m *memstore) InsertPost(_ context.Context, p Post) (Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertPost(p), nil
}

func (m *memstore) InsertReply(_ context.Context, p Post) (Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	parent, err := m.livePost(p.ParentID)
	if err != nil {
		return Post{}, err
	}
	parent.ReplyCount++
	return m.insertPost(p), nil
}

func (m *memstore) GetPost(_ context.Context, id string) (Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.livePost(id)
	if err != nil {
		return Post{}, err
	}
	return *p, nil
}

func (m *memstore) GetPosts(_ context.Context, ids []string) ([]Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Post
	for _, id := range ids {
		if p, err := m.livePost(id); err == nil {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memstore) UpdatePostText(_ context.Context, id, text string) (Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.livePost(id)
	if err != nil {
		return Post{}, err
	}
	p.Text = text
	_, p.UpdatedAt = m.next("t")
	return *p, nil
}

func (m *memstore) SoftDeletePost(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.livePost(id)
	if err != nil {
		return err
	}
	p.Deleted = true
	p.File = nil
	if parent, ok := m.posts[p.ParentID]; ok && parent.ReplyCount > 0 {
		parent.ReplyCount--
	}
	return nil
}

func (m *memstore) LikePost(_ context.Context, id, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.livePost(id)
	if err != nil {
		return 0, err
	}
	if slices.Contains(m.postLikes[id], userID) {
		return 0, ErrAlreadyLiked
	}
	m.postLikes[id] = append([]string{userID}, m.postLikes[id]...)
	p.LikeCount++
	return p.LikeCount, nil
}

func (m *memstore) UnlikePost(_ context.Context, id, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.livePost(id)
	if err != nil {
		return 0, err
	}
	i := slices.Index(m.postLikes[id], userID)
	if i < 0 {
		return 0, ErrNotLiked
	}
	m.postLikes[id] = slices.Delete(m.postLikes[id], i, i+1)
	p.LikeCount--
	return p.LikeCount, nil
}

func (m *memstore) ListPosts(_ context.Context, q PostQuery) ([]Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastQuery = q
	var out []Post
	for _, p := range m.posts {
		switch {
		case p.Deleted,
			q.Replies != (p.ParentID != ""),
			q.AuthorID != "" && p.AuthorID != q.AuthorID,
			p.CreatedAt.After(q.Before):
			continue
		}
		out = append(out, *p)
	}
	slices.SortFunc(out, postsNewestFirst)
	return window(out, q.Offset, q.Limit), nil
}

func (m *memstore) ListReplies(_ context.Context, parentIDs []string, limit int) (map[string][]Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]Post)
	for _, p := range m.posts {
		if !p.Deleted && slices.Contains(parentIDs, p.ParentID) {
			out[p.ParentID] = append(out[p.ParentID], *p)
		}
	}
	for k, v := range out {
		slices.SortFunc(v, postsNewestFirst)
		out[k] = window(v, 0, limit)
	}
	return out, nil
}

func ledgers(likes map[string][]string, ids []string, limit int) map[string]Ledger {
	out := make(map[string]Ledger)
	for _, id := range ids {
		users := likes[id]
		out[id] = Ledger{
			EntityID: id,
			UserIDs:  slices.Clone(window(users, 0, limit)),
			Count:    len(users),
		}
	}
	return out
}

func (m *memstore) ListPostLedgers(_ context.Context, ids []string, limit int) (map[string]Ledger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ledgers(m.postLikes, ids, limit), nil
}

func (m *memstore) AddCommentCount(_ context.Context, id string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	if !ok {
		return ErrNotFound
	}
	p.CommentCount = max(p.CommentCount+delta, 0)
	return nil
}

func (m *memstore) ReconcilePosts(_ context.Context, commentCounts map[string]int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	replies := make(map[string]int)
	for _, p := range m.posts {
		if !p.Deleted && p.ParentID != "" {
			replies[p.ParentID]++
		}
	}
	fixed := 0
	for id, p := range m.posts {
		likes, rc, cc := len(m.postLikes[id]), replies[id], commentCounts[id]
		if p.LikeCount != likes || p.ReplyCount != rc || p.CommentCount != cc {
			p.LikeCount, p.ReplyCount, p.CommentCount = likes, rc, cc
			fixed++
		}
	}
	return fixed, nil
}

// Comments.

func (m *memstore) liveComment(id string) (*Comment, error) {
	c, ok := m.comments[id]
	if !ok || c.Deleted {
		return nil, ErrNotFound
	}
	return c, nil
}

func (m *memstore) InsertComment(_ context.Context, c Comment) (Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var parent *Comment
	if c.ParentID != "" {
		var err error
		if parent, err = m.liveComment(c.ParentID); err != nil {
			return Comment{}, err
		}
	}
	c.ID, c.CreatedAt = m.next("c")
	c.UpdatedAt = c.CreatedAt
	c.ReplyIDs = []string{}
	m.comments[c.ID] = &c
	m.commentLikes[c.ID] = []string{}
	if parent != nil {
		parent.ReplyIDs = append(parent.ReplyIDs, c.ID)
		parent.ReplyCount++
	}
	return c, nil
}

func (m *memstore) GetComment(_ context.Context, id string) (Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.liveComment(id)
	if err != nil {
		return Comment{}, err
	}
	return *c, nil
}

func (m *memstore) UpdateCommentText(_ context.Context, id, text string) (Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.liveComment(id)
	if err != nil {
		return Comment{}, err
	}
	c.Text = text
	return *c, nil
}

func (m *memstore) SoftDeleteComment(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.liveComment(id)
	if err != nil {
		return err
	}
	c.Deleted = true
	if parent, ok := m.comments[c.ParentID]; ok {
		if i := slices.Index(parent.ReplyIDs, id); i >= 0 {
			parent.ReplyIDs = slices.Delete(parent.ReplyIDs, i, i+1)
			parent.ReplyCount--
		}
	}
	return nil
}

func (m *memstore) LikeComment(_ context.Context, id, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	users, ok := m.commentLikes[id]
	if !ok {
		return 0, ErrNotFound
	}
	if slices.Contains(users, userID) {
		return 0, ErrAlreadyLiked
	}
	m.commentLikes[id] = append([]string{userID}, users...)
	return len(m.commentLikes[id]), nil
}

func (m *memstore) UnlikeComment(_ context.Context, id, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	users, ok := m.commentLikes[id]
	if !ok {
		return 0, ErrNotFound
	}
	i := slices.Index(users, userID)
	if i < 0 {
		return 0, ErrNotLiked
	}
	m.commentLikes[id] = slices.Delete(users, i, i+1)
	return len(m.commentLikes[id]), nil
}

func (m *memstore) ListComments(_ context.Context, postID string, p Page) ([]Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Comment
	for _, c := range m.comments {
		if !c.Deleted && c.ParentID == "" && c.PostID == postID && !c.CreatedAt.After(p.Before) {
			out = append(out, *c)
		}
	}
	slices.SortFunc(out, commentsNewestFirst)
	return window(out, p.Offset, p.Limit), nil
}

func (m *memstore) ListCommentReplies(_ context.Context, commentID string, p Page) ([]Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Comment
	for _, c := range m.comments {
		if !c.Deleted && c.ParentID == commentID && !c.CreatedAt.After(p.Before) {
			out = append(out, *c)
		}
	}
	slices.SortFunc(out, commentsNewestFirst)
	return window(out, p.Offset, p.Limit), nil
}

func (m *memstore) preview(match func(*Comment) (string, bool), limit int) map[string][]Comment {
	out := make(map[string][]Comment)
	for _, c := range m.comments {
		if key, ok := match(c); ok && !c.Deleted {
			out[key] = append(out[key], *c)
		}
	}
	for k, v := range out {
		slices.SortFunc(v, commentsNewestFirst)
		out[k] = window(v, 0, limit)
	}
	return out
}

func (m *memstore) PreviewComments(_ context.Context, postIDs []string, limit int) (map[string][]Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.preview(func(c *Comment) (string, bool) {
		return c.PostID, c.ParentID == "" && slices.Contains(postIDs, c.PostID)
	}, limit), nil
}

func (m *memstore) PreviewReplies(_ context.Context, commentIDs []string, limit int) (map[string][]Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.preview(func(c *Comment) (string, bool) {
		return c.ParentID, c.ParentID != "" && slices.Contains(commentIDs, c.ParentID)
	}, limit), nil
}

func (m *memstore) ListCommentLedgers(_ context.Context, ids []string, limit int) (map[string]Ledger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ledgers(m.commentLikes, ids, limit), nil
}

func (m *memstore) ReconcileComments(_ context.Context) (int, map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fixed := 0
	perPost := make(map[string]int)
	live := make(map[string][]Comment)
	for id, c := range m.comments {
		if _, ok := m.commentLikes[id]; !ok {
			m.commentLikes[id] = []string{}
			fixed++
		}
		if !c.Deleted && c.ParentID != "" {
			live[c.ParentID] = append(live[c.ParentID], *c)
		}
	}
	for _, c := range m.comments {
		if c.Deleted || c.ParentID != "" {
			continue
		}
		perPost[c.PostID]++
		replies := live[c.ID]
		slices.SortFunc(replies, func(a, b Comment) int { return commentsNewestFirst(b, a) })
		ids := make([]string, len(replies))
		for i, r := range replies {
			ids[i] = r.ID
		}
		if c.ReplyCount != len(ids) || !sameIDs(c.ReplyIDs, ids) {
			c.ReplyIDs = ids
			c.ReplyCount = len(ids)
			fixed++
		}
	}
	return fixed, perPost, nil
}

func sameIDs(a, b []string) bool {
	a, b = slices.Clone(a), slices.Clone(b)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}

// memsessions issues "session-<user id>" credentials and "refresh-<user id>"
// refresh tokens.
type memsessions struct {
	users UserStore
}

func (s memsessions) Issue(ctx context.Context, u User) (Session, error) {
	token := "session-" + u.ID
	return Session{Token: token, RefreshToken: "refresh-" + u.ID}, s.users.SetUserToken(ctx, u.ID, token)
}

func (s memsessions) Refresh(ctx context.Context, refreshToken string) (string, error) {
	id, ok := strings.CutPrefix(refreshToken, "refresh-")
	if !ok {
		return "", ErrNotFound
	}
	u, err := s.users.GetUser(ctx, id)
	if err != nil {
		return "", err
	}
	if u.Token != "session-"+id {
		return "", ErrNotFound
	}
	return u.Token, nil
}

func (s memsessions) Resolve(ctx context.Context, credential string) (User, error) {
	return s.users.FindUserByToken(ctx, credential)
}

func (s memsessions) Revoke(ctx context.Context, u User) error {
	return s.users.SetUserToken(ctx, u.ID, "")
}

// memcache records cached views and invalidations. Like the Redis cache it
// drops views written under an outdated version.
type memcache struct {
	mu          sync.Mutex
	views       map[string]PostView
	versions    map[string]int64
	invalidated []string
}

func (c *memcache) GetPost(_ context.Context, id string) (PostView, int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.views[id]
	return v, c.versions[id], ok, nil
}

func (c *memcache) SetPost(_ context.Context, v PostView, version int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.versions[v.ID] != version {
		return nil
	}
	if c.views == nil {
		c.views = make(map[string]PostView)
	}
	c.views[v.ID] = v
	return nil
}

func (c *memcache) InvalidatePosts(_ context.Context, ids ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.versions == nil {
		c.versions = make(map[string]int64)
	}
	for _, id := range ids {
		delete(c.views, id)
		c.versions[id]++
	}
	c.invalidated = append(c.invalidated, ids...)
	return nil
}

// mempublisher records published events.
type mempublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (p *mempublisher) Publish(_ context.Context, e Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *mempublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}
