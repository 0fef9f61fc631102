package redisx

import "time"

const (
	// Idempotency create team: idem:team:create:{customer_id}:{idempotency_key} -> team_id
	KeyIdemTeamCreate = "idem:team:create:%s:%s"

	// Cache status team: team_status:{team_id} -> teams.Snapshot (JSON)
	KeyTeamStatus = "team_status:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Token yang sudah logout: revoked:{jti} -> "1" sampai token expired
	KeyRevokedToken = "revoked:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
