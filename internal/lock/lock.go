// Package lock serializes structural changes to a comment tree. Keys name
// the resource being guarded, e.g. PostKey(id) for a post's interval space.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chatapp/internal/config"

	"github.com/redis/go-redis/v9"
)

// ErrTimeout is returned when a lock could not be acquired within the
// locker's timeout.
var ErrTimeout = errors.New("lock acquisition timed out")

// DefaultTimeout applies when a locker is built with a non-positive timeout.
const DefaultTimeout = 3 * time.Second

// Locker hands out exclusive, keyed critical sections. The returned release
// function is safe to call more than once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// PostKey guards inserts and deletes in a post's comment forest.
func PostKey(postID uint) string {
	return fmt.Sprintf("post:%d", postID)
}

// LikeKey guards a single comment's like set.
func LikeKey(commentID string) string {
	return fmt.Sprintf("comment:%s:like", commentID)
}

// New builds the locker selected by COMMENT_LOCK_BACKEND.
func New(cfg *config.Config, rdb *redis.Client) (Locker, error) {
	switch cfg.CommentLockBackend {
	case "", "local":
		return NewLocal(cfg.CommentLockTimeout), nil
	case "redis":
		if rdb == nil {
			return nil, errors.New("redis lock backend requires a reachable REDIS_URL")
		}
		return NewRedis(rdb, cfg.CommentLockTTL, cfg.CommentLockTimeout), nil
	default:
		return nil, fmt.Errorf("unknown lock backend %q", cfg.CommentLockBackend)
	}
}
