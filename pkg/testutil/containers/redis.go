//go:build integration

package containers

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"landdocs/internal/platform/config"
	platformredis "landdocs/internal/platform/redis"
)

// RedisContainer is a throwaway Redis for the artifact blob backend. The
// client is opened through the same constructor the server uses.
type RedisContainer struct {
	Container testcontainers.Container
	URL       string
	Client    *redis.Client
}

func NewRedisContainer(t *testing.T) *RedisContainer {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("start redis container: %v", err)
	}
	url, err := container.ConnectionString(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("redis connection string: %v", err)
	}

	rc, err := platformredis.New(ctx, config.RedisConfig{URL: url, DialTimeout: 5 * time.Second})
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("open redis client: %v", err)
	}
	return &RedisContainer{Container: container, URL: url, Client: rc.Client}
}

// Reset drops every key so suites start from an empty artifact store.
func (r *RedisContainer) Reset(ctx context.Context) error {
	return r.Client.FlushDB(ctx).Err()
}
