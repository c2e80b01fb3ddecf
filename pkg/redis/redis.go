package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Options - параметры подключения к Redis
type Options struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// NewRedisClient создает клиент Redis и проверяет соединение
func NewRedisClient(ctx context.Context, opts Options) (*redis.Client, error) {
	if opts.PoolSize <= 0 {
		opts.PoolSize = 10
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: opts.PoolSize,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}

	return rdb, nil
}
