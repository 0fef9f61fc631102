package teams

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventTeamCreated   = "TeamCreated"
	EventMemberJoined  = "MemberJoined"
	EventTeamCompleted = "TeamCompleted"
	EventTeamExpired   = "TeamExpired"
	EventPaymentFailed = "PaymentFailed"
)

const (
	TopicTeamCreated   = "team.created"
	TopicMemberJoined  = "team.member.joined"
	TopicTeamCompleted = "team.completed"
	TopicTeamExpired   = "team.expired"
	TopicPaymentFailed = "team.payment.failed"
)

// AllTopics lists every topic the core publishes to.
var AllTopics = []string{TopicTeamCreated, TopicMemberJoined, TopicTeamCompleted, TopicTeamExpired, TopicPaymentFailed}

// Partition key = team_id so all events of one team keep their order.
func PartitionKey(teamID string) []byte { return []byte(teamID) }

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // team_id
	Payload       json.RawMessage `json:"payload"`
}

func NewEnvelope(eventType, producer, teamID string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: teamID,
		Payload:       b,
	}, nil
}

// ---- payloads ----

type TeamEventPayload struct {
	Team     Snapshot `json:"team"`
	ActorID  string   `json:"actor_id,omitempty"`
	MemberID string   `json:"member_id,omitempty"`
}

type PaymentFailedPayload struct {
	TeamID     string `json:"team_id"`
	PaymentID  string `json:"payment_id"`
	CustomerID string `json:"customer_id"`
	Amount     string `json:"amount"`
	Reason     string `json:"reason"`
}

// Publisher delivers team events. Delivery is best effort; the store remains
// the source of truth.
type Publisher interface {
	Publish(ctx context.Context, topic string, env Envelope) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, Envelope) error { return nil }

func topicFor(eventType string) string {
	switch eventType {
	case EventTeamCreated:
		return TopicTeamCreated
	case EventMemberJoined:
		return TopicMemberJoined
	case EventTeamCompleted:
		return TopicTeamCompleted
	case EventTeamExpired:
		return TopicTeamExpired
	case EventPaymentFailed:
		return TopicPaymentFailed
	}
	return ""
}
