package store

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisMedium stores keys in Redis under Prefix with no expiry.
type RedisMedium struct {
	client *redis.Client
	prefix string
}

// NewRedisMedium wraps client. prefix namespaces every key (for example "courses:").
func NewRedisMedium(client *redis.Client, prefix string) *RedisMedium {
	return &RedisMedium{client: client, prefix: prefix}
}

func (r *RedisMedium) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *RedisMedium) Set(ctx context.Context, key, value string) error {
	return r.client.Set(ctx, r.prefix+key, value, 0).Err()
}

func (r *RedisMedium) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}

func (r *RedisMedium) Keys(ctx context.Context, prefix string) ([]string, error) {
	out := make([]string, 0)
	seen := map[string]struct{}{}
	// SCAN may return a key more than once.
	iter := r.client.Scan(ctx, 0, r.prefix+prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		k := strings.TrimPrefix(iter.Val(), r.prefix)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}
