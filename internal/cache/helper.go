package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

var fetchGroup singleflight.Group

// GetJSON attempts to get the key from Redis and unmarshal into dest.
// Returns (true, nil) if found and unmarshaled, (false, nil) if not found.
func GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	if client == nil {
		return false, nil
	}
	s, err := client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(s, dest); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON marshals v and sets the key with TTL.
func SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	if client == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return client.Set(ctx, key, b, ttl).Err()
}

// Aside reads key into dest, falling back to fetch on a miss and storing the
// result best-effort. Concurrent misses for the same key share one fetch.
// A Redis read error is treated as a miss.
func Aside[T any](ctx context.Context, key string, dest *T, ttl time.Duration, fetch func() (T, error)) error {
	if found, err := GetJSON(ctx, key, dest); err == nil && found {
		return nil
	}

	v, err, _ := fetchGroup.Do(key, func() (any, error) {
		fresh, err := fetch()
		if err != nil {
			return nil, err
		}
		_ = SetJSON(ctx, key, fresh, ttl)
		return fresh, nil
	})
	if err != nil {
		return err
	}
	*dest = v.(T)
	return nil
}
