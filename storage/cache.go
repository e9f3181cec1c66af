package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// InitCache connects to the Redis instance named by dsn (redis://host:port/db).
// An empty dsn disables the cache and returns a nil client.
func InitCache(dsn string) (*redis.Client, error) {
	if dsn == "" {
		return nil, nil
	}

	options, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid CACHE_DSN: %w", err)
	}

	client := redis.NewClient(options)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}
