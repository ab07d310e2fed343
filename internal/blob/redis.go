package blob

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis shares artifacts between replicas. Keys carry no TTL; deletion is
// explicit.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = "landdocs:blob:"
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) Put(ctx context.Context, data []byte) (string, error) {
	ref := newRef()
	if err := r.client.Set(ctx, r.prefix+ref, data, 0).Err(); err != nil {
		return "", fmt.Errorf("put blob: %w", err)
	}
	return ref, nil
}

func (r *Redis) Get(ctx context.Context, ref string) ([]byte, error) {
	b, err := r.client.Get(ctx, r.prefix+ref).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, notFound(ref)
	}
	if err != nil {
		return nil, fmt.Errorf("get blob: %w", err)
	}
	return b, nil
}

func (r *Redis) Exists(ctx context.Context, ref string) (bool, error) {
	n, err := r.client.Exists(ctx, r.prefix+ref).Result()
	if err != nil {
		return false, fmt.Errorf("check blob: %w", err)
	}
	return n > 0, nil
}

func (r *Redis) Delete(ctx context.Context, ref string) error {
	if err := r.client.Del(ctx, r.prefix+ref).Err(); err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}
