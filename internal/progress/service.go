// Package progress projects team events into the cached status read model.
package progress

import (
	"context"
	"fmt"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ariefcatur/go-group-buying/internal/kafka"
	"github.com/ariefcatur/go-group-buying/internal/teams"
)

type SnapshotStore interface {
	Put(ctx context.Context, s teams.Snapshot) error
	Delete(ctx context.Context, teamID string) error
}

type Deduper interface {
	First(ctx context.Context, id string) (bool, error)
	Forget(ctx context.Context, id string) error
}

// Counter menghitung event yang sudah diproses per tipe.
type Counter interface {
	EventProjected(eventType string)
}

type Service struct {
	Cache   SnapshotStore
	Dedup   Deduper
	Metrics Counter // optional
	Log     *slog.Logger
}

// HandleEvent: dipasang sebagai handler consumer untuk semua topic team.
func (s *Service) HandleEvent(ctx context.Context, m kafkago.Message) error {
	// 1) decode envelope
	env, err := kafkax.UnmarshalEnvelope(m.Value)
	if err != nil {
		// pesan rusak tidak akan pernah sukses, commit saja
		s.Log.Warn("drop undecodable message", "topic", m.Topic, "offset", m.Offset,
			"event_type", kafkax.Header(m, kafkax.HeaderEventType), "error", err)
		return nil
	}

	// 2) dedup via Redis (pakai event_id)
	first, err := s.Dedup.First(ctx, env.EventID)
	if err != nil {
		return fmt.Errorf("dedup %s: %w", env.EventID, err)
	}
	if !first {
		return nil
	}

	// 3) proyeksikan; kalau gagal, lepas dedup supaya redelivery diproses ulang
	if err := s.project(ctx, env); err != nil {
		if ferr := s.Dedup.Forget(ctx, env.EventID); ferr != nil {
			s.Log.Error("release dedup mark", "event_id", env.EventID, "error", ferr)
		}
		return err
	}
	if s.Metrics != nil {
		s.Metrics.EventProjected(env.EventType)
	}
	return nil
}

func (s *Service) project(ctx context.Context, env teams.Envelope) error {
	switch env.EventType {
	case teams.EventTeamCreated, teams.EventMemberJoined, teams.EventTeamCompleted, teams.EventTeamExpired:
		p, err := kafkax.UnwrapPayload[teams.TeamEventPayload](env.Payload)
		if err != nil {
			s.Log.Warn("drop event with bad payload", "event_id", env.EventID, "event_type", env.EventType, "error", err)
			// snapshot yang ada sudah tertinggal; buang supaya read jatuh ke store
			return s.evict(ctx, env.CorrelationID)
		}
		if err := s.Cache.Put(ctx, p.Team); err != nil {
			if derr := s.evict(ctx, p.Team.TeamID); derr != nil {
				s.Log.Error("evict team status", "team_id", p.Team.TeamID, "error", derr)
			}
			return fmt.Errorf("cache team %s: %w", p.Team.TeamID, err)
		}
		s.Log.Debug("team status projected", "team_id", p.Team.TeamID, "status", p.Team.Status, "event_type", env.EventType)
	case teams.EventPaymentFailed:
		p, err := kafkax.UnwrapPayload[teams.PaymentFailedPayload](env.Payload)
		if err != nil {
			return nil
		}
		s.Log.Info("payment failed", "team_id", p.TeamID, "payment_id", p.PaymentID, "customer_id", p.CustomerID, "reason", p.Reason)
	default:
		// ignore
	}
	return nil
}

func (s *Service) evict(ctx context.Context, teamID string) error {
	if teamID == "" {
		return nil
	}
	if err := s.Cache.Delete(ctx, teamID); err != nil {
		return fmt.Errorf("evict team %s: %w", teamID, err)
	}
	return nil
}
