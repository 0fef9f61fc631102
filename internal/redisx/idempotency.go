package redisx

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// pendingMarker ditulis saat request pertama masih jalan.
const pendingMarker = "PENDING"

var ErrInFlight = errors.New("redisx: request with this idempotency key is still in flight")

// Idempotency mengikat Idempotency-Key ke team_id hasil create.
type Idempotency struct{ RDB redis.Cmdable }

// Begin reserves the key. When a previous request already finished it returns
// that team id; when it is still running it returns ErrInFlight.
func (i Idempotency) Begin(ctx context.Context, customerID, key string) (teamID string, fresh bool, err error) {
	k := fmt.Sprintf(KeyIdemTeamCreate, customerID, key)
	ok, err := i.RDB.SetNX(ctx, k, pendingMarker, TTLIdempotency).Result()
	if err != nil {
		return "", false, err
	}
	if ok {
		return "", true, nil
	}
	v, err := i.RDB.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// expired di antara SETNX dan GET, anggap baru
		return "", true, nil
	}
	if err != nil {
		return "", false, err
	}
	if v == pendingMarker {
		return "", false, ErrInFlight
	}
	return v, false, nil
}

// Finish records the created team id for replays.
func (i Idempotency) Finish(ctx context.Context, customerID, key, teamID string) error {
	return i.RDB.Set(ctx, fmt.Sprintf(KeyIdemTeamCreate, customerID, key), teamID, TTLIdempotency).Err()
}

// Abort releases the key so the client can retry after a failure.
func (i Idempotency) Abort(ctx context.Context, customerID, key string) error {
	return i.RDB.Del(ctx, fmt.Sprintf(KeyIdemTeamCreate, customerID, key)).Err()
}
