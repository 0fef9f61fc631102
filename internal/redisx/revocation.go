package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenBlacklist implements auth.Revoker. Entries expire with the token itself.
type TokenBlacklist struct {
	RDB redis.Cmdable
	Now func() time.Time
}

func (b TokenBlacklist) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

func (b TokenBlacklist) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	ttl := until.Sub(b.now())
	if ttl <= 0 {
		return nil // sudah expired, tidak perlu disimpan
	}
	return b.RDB.Set(ctx, fmt.Sprintf(KeyRevokedToken, tokenID), "1", ttl).Err()
}

func (b TokenBlacklist) Revoked(ctx context.Context, tokenID string) (bool, error) {
	return Exists(ctx, b.RDB, fmt.Sprintf(KeyRevokedToken, tokenID))
}
