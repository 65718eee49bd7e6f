package bootstrap

import (
	"context"
	"fmt"
	"time"

	"videohub/internal/cfg"
	"videohub/pkg/cache"
)

// InitCache connects to Redis and fails if it does not answer a ping.
func InitCache(ctx context.Context, rc cfg.RedisConfig) (cache.Cache, error) {
	c := cache.NewRedisCache(rc.Addr)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return c, nil
}
