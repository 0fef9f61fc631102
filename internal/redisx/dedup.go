package redisx

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Deduper: SETNX per event_id supaya handler consumer idempotent.
type Deduper struct {
	RDB     redis.Cmdable
	Service string
}

// First reports whether id has not been seen before and marks it seen.
func (d Deduper) First(ctx context.Context, id string) (bool, error) {
	return d.RDB.SetNX(ctx, fmt.Sprintf(KeyDedup, d.Service, id), "1", TTLDedup).Result()
}

// Forget drops the mark so a failed event is retried on redelivery.
func (d Deduper) Forget(ctx context.Context, id string) error {
	return d.RDB.Del(ctx, fmt.Sprintf(KeyDedup, d.Service, id)).Err()
}
