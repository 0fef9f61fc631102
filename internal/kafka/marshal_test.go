package kafka

import (
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-group-buying/internal/teams"
)

func TestEnvelopePayloadDecode(t *testing.T) {
	snap := teams.Snapshot{
		TeamID:         "team-1",
		Status:         teams.TeamActive,
		TotalCommitted: decimal.NewFromInt(10),
		ExpiresAt:      time.Date(2026, 1, 4, 0, 0, 0, 0, time.UTC),
	}
	env, err := teams.NewEnvelope(teams.EventMemberJoined, "team-api", "team-1", teams.TeamEventPayload{Team: snap, ActorID: "cust-2"})
	require.NoError(t, err)

	b, err := Marshal(env)
	require.NoError(t, err)

	got, err := UnmarshalEnvelope(b)
	require.NoError(t, err)
	assert.Equal(t, teams.EventMemberJoined, got.EventType)
	assert.Equal(t, "team-1", got.CorrelationID)

	p, err := UnwrapPayload[teams.TeamEventPayload](got.Payload)
	require.NoError(t, err)
	assert.Equal(t, "cust-2", p.ActorID)
	assert.True(t, p.Team.TotalCommitted.Equal(decimal.NewFromInt(10)))
}

func TestUnmarshalEnvelopeRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"{not json", `{"event_type":"TeamCreated"}`, `{"event_id":"e1"}`} {
		_, err := UnmarshalEnvelope([]byte(raw))
		assert.Error(t, err, raw)
	}
}

func TestHeader(t *testing.T) {
	m := kafka.Message{Headers: []kafka.Header{{Key: HeaderEventType, Value: []byte("TeamExpired")}}}
	assert.Equal(t, "TeamExpired", Header(m, HeaderEventType))
	assert.Empty(t, Header(m, HeaderEventVersion))
}

func TestShardKeepsPartitionOnOneWorker(t *testing.T) {
	a := kafka.Message{Topic: teams.TopicMemberJoined, Partition: 3, Offset: 1}
	b := kafka.Message{Topic: teams.TopicMemberJoined, Partition: 3, Offset: 99}
	assert.Equal(t, shard(a, 4), shard(b, 4))
	for p := 0; p < 16; p++ {
		n := shard(kafka.Message{Topic: teams.TopicTeamCreated, Partition: p}, 4)
		assert.GreaterOrEqual(t, n, 0)
		assert.Less(t, n, 4)
	}
}
