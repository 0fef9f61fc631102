package kafka

import (
	"context"
	"strconv"

	"github.com/segmentio/kafka-go"

	"github.com/ariefcatur/go-group-buying/internal/teams"
)

const (
	HeaderEventType    = "x-event-type"
	HeaderEventVersion = "x-event-version"
)

// EventPublisher implements teams.Publisher over the async Producer.
type EventPublisher struct{ P *Producer }

func (e EventPublisher) Publish(ctx context.Context, topic string, env teams.Envelope) error {
	b, err := Marshal(env)
	if err != nil {
		return err
	}
	return e.P.Publish(ctx, topic, teams.PartitionKey(env.CorrelationID), b,
		kafka.Header{Key: HeaderEventType, Value: []byte(env.EventType)},
		kafka.Header{Key: HeaderEventVersion, Value: []byte(strconv.Itoa(env.EventVersion))},
	)
}
