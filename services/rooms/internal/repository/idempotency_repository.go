package repository

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const idempotencyPrefix = "roomlife:idem:"

// IdempotencyRepository stores replayable responses in Redis. A missing key reads as "".
type IdempotencyRepository struct {
	client *redis.Client
}

func NewIdempotencyRepository(client *redis.Client) *IdempotencyRepository {
	return &IdempotencyRepository{client: client}
}

func (r *IdempotencyRepository) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	val, err := r.client.Get(ctx, idempotencyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return val, err
}

// Claim reserves key with SETNX so concurrent requests with the same key cannot both run.
func (r *IdempotencyRepository) Claim(ctx context.Context, key, marker string, ttl time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	return r.client.SetNX(ctx, idempotencyPrefix+key, marker, ttl).Result()
}

// Set replaces the claim with the response body.
func (r *IdempotencyRepository) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	return r.client.Set(ctx, idempotencyPrefix+key, value, ttl).Err()
}

func (r *IdempotencyRepository) Release(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	return r.client.Del(ctx, idempotencyPrefix+key).Err()
}
