package repository

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/diagnosis/visitor-management/pkg/logger"
)

type RateLimitRepository interface {
	// CheckRateLimit counts one hit against key and reports whether the
	// caller is still within requests per window.
	CheckRateLimit(ctx context.Context, key string, requests int, window time.Duration) (bool, error)
	Reset(ctx context.Context, key string) error
}

type rateLimitRepository struct {
	client *redis.Client
}

func NewRateLimitRepository(client *redis.Client) RateLimitRepository {
	return &rateLimitRepository{client: client}
}

func rateLimitKey(key string) string {
	return fmt.Sprintf("ratelimit:%x", sha256.Sum256([]byte(key)))
}

func (r *rateLimitRepository) CheckRateLimit(ctx context.Context, key string, requests int, window time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	k := rateLimitKey(key)
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.ExpireNX(ctx, k, window)
	if _, err := pipe.Exec(ctx); err != nil {
		// Fail open on cache errors
		logger.WarnContext(ctx, "Rate limit check failed", "error", err)
		return true, nil
	}
	return incr.Val() <= int64(requests), nil
}

func (r *rateLimitRepository) Reset(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return r.client.Del(ctx, rateLimitKey(key)).Err()
}
