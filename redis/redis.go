package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/edgeee/social-backend/social"
)

// Redis provides caching of assembled post views in Redis.
type Redis struct {
	cli     *redis.Client
	ttl     time.Duration
	maxSize int64
}

// Connect connects to the Redis server and pings the server to ensure the
// connection is working. Views expire after ttl.
func Connect(ctx context.Context, addr string, ttl time.Duration) (*Redis, error) {
	cli := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	if err := cli.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{
		cli:     cli,
		ttl:     ttl,
		maxSize: defaultMaxSize,
	}, nil
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.cli.Close()
}

const (
	postPrefix     = "posts"
	defaultMaxSize = 1000
	// versionTTL bounds how long a version outlives its last invalidation.
	// It must exceed the time needed to assemble a view.
	versionTTL = 24 * time.Hour
)

// errStale aborts a SetPost whose view was assembled before an invalidation.
var errStale = errors.New("stale view")

func postKey(id string) string {
	return fmt.Sprintf("%s:%s", postPrefix, id)
}

func versionKey(id string) string {
	return fmt.Sprintf("%s:%s:version", postPrefix, id)
}

// GetPost returns the cached view of a post. The boolean reports a hit; on a
// miss the current version of the post is returned for SetPost.
func (r *Redis) GetPost(ctx context.Context, id string) (social.PostView, int64, bool, error) {
	vals, err := r.cli.MGet(ctx, postKey(id), versionKey(id)).Result()
	if err != nil {
		return social.PostView{}, 0, false, fmt.Errorf("mget: %w", err)
	}
	version, err := parseVersion(vals[1])
	if err != nil {
		return social.PostView{}, 0, false, err
	}

	raw, ok := vals[0].(string)
	if !ok {
		return social.PostView{}, version, false, nil
	}
	var v social.PostView
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return social.PostView{}, 0, false, fmt.Errorf("decode view: %w", err)
	}
	return v, version, true, nil
}

func parseVersion(val any) (int64, error) {
	s, ok := val.(string)
	if !ok {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse version: %w", err)
	}
	return n, nil
}

// SetPost caches the view under posts:POST_ID and records the key in a sorted
// set scored by insertion time. The write is skipped when the post was
// invalidated after version was read.
func (r *Redis) SetPost(ctx context.Context, v social.PostView, version int64) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode view: %w", err)
	}

	key, vkey := postKey(v.ID), versionKey(v.ID)
	err = r.cli.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, vkey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != version {
			return errStale
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, r.ttl)
			pipe.ZAdd(ctx, postPrefix, redis.Z{
				Score:  float64(time.Now().UnixNano()),
				Member: key,
			})
			return nil
		})
		return err
	}, vkey)
	switch {
	case errors.Is(err, errStale), errors.Is(err, redis.TxFailedErr):
		return nil
	case err != nil:
		return fmt.Errorf("redis set post: %w", err)
	}

	// Keep the cache bounded by removing the oldest keys.
	if err := r.evictOldest(ctx); err != nil {
		return fmt.Errorf("evict oldest: %w", err)
	}
	return nil
}

// InvalidatePosts drops the cached views of the given posts and bumps their
// versions.
func (r *Redis) InvalidatePosts(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	members := make([]any, len(ids))
	for i, id := range ids {
		keys[i] = postKey(id)
		members[i] = keys[i]
	}
	_, err := r.cli.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			pipe.Incr(ctx, versionKey(id))
			pipe.Expire(ctx, versionKey(id), versionTTL)
		}
		pipe.Del(ctx, keys...)
		pipe.ZRem(ctx, postPrefix, members...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis invalidate: %w", err)
	}
	return nil
}

func (r *Redis) evictOldest(ctx context.Context) error {
	vals, err := r.cli.ZRange(ctx, postPrefix, 0, -r.maxSize-1).Result()
	if err != nil {
		return fmt.Errorf("zrange: %w", err)
	}
	if len(vals) == 0 {
		return nil
	}

	members := make([]any, len(vals))
	for i, key := range vals {
		members[i] = key
	}
	_, err = r.cli.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, postPrefix, members...)
		pipe.Del(ctx, vals...)
		return nil
	})
	return err
}
