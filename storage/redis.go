package storage

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/kataras/golog"
)

var Redis *redis.Client

func InitializeRedis(redisURL string) error {
	// Fall back to localhost for development
	if redisURL == "" {
		redisURL = "localhost:6379"
		golog.Warn("REDIS_URL not set, using localhost:6379 (development mode)")
	}

	opts := &redis.Options{Addr: redisURL, DB: 0}
	if parsed, err := redis.ParseURL(redisURL); err == nil {
		opts = parsed
	}
	Redis = redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := Redis.Ping(ctx).Err(); err != nil {
		return err
	}

	golog.Infof("redis initialized with address: %s", opts.Addr)
	return nil
}
