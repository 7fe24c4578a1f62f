package publish

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// GoRedis adapts *redis.Client to the RedisClient interface.
type GoRedis struct {
	rdb *redis.Client
}

// NewGoRedis connects to Redis at addr.
func NewGoRedis(addr, password string, db int) *GoRedis {
	return &GoRedis{rdb: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

// HSet implements RedisClient.
func (g *GoRedis) HSet(ctx context.Context, key string, values ...any) error {
	return g.rdb.HSet(ctx, key, values...).Err()
}

// Ping verifies connectivity.
func (g *GoRedis) Ping(ctx context.Context) error {
	return g.rdb.Ping(ctx).Err()
}

// Close releases the connection pool.
func (g *GoRedis) Close() error {
	return g.rdb.Close()
}
