package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-group-buying/internal/teams"
)

// StatusCache menyimpan teams.Snapshot terakhir per team.
type StatusCache struct{ RDB redis.Cmdable }

// Get returns the cached snapshot; ok is false on a miss.
func (c StatusCache) Get(ctx context.Context, teamID string) (snap teams.Snapshot, ok bool, err error) {
	b, err := c.RDB.Get(ctx, fmt.Sprintf(KeyTeamStatus, teamID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return teams.Snapshot{}, false, nil
	}
	if err != nil {
		return teams.Snapshot{}, false, err
	}
	if err := json.Unmarshal(b, &snap); err != nil {
		return teams.Snapshot{}, false, err
	}
	return snap, true, nil
}

// putIfNewer menulis snapshot secara atomik kecuali versi yang tersimpan lebih
// tinggi. Versi sama boleh menimpa (state identik).
var putIfNewer = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur then
  local ok, snap = pcall(cjson.decode, cur)
  if ok and type(snap) == 'table' and tonumber(snap.version or 0) > tonumber(ARGV[2]) then
    return 0
  end
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

// Put stores the snapshot unless the cached one has a higher Version. Events
// for one team can arrive out of commit order (publish happens after commit).
func (c StatusCache) Put(ctx context.Context, s teams.Snapshot) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	key := fmt.Sprintf(KeyTeamStatus, s.TeamID)
	return putIfNewer.Run(ctx, c.RDB, []string{key}, b, s.Version, TTLStatusCache.Milliseconds()).Err()
}

// Delete evicts a snapshot; status reads then fall back to the store.
func (c StatusCache) Delete(ctx context.Context, teamID string) error {
	return c.RDB.Del(ctx, fmt.Sprintf(KeyTeamStatus, teamID)).Err()
}
