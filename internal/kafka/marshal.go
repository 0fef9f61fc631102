package kafka

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/ariefcatur/go-group-buying/internal/teams"
)

var errIncompleteEnvelope = errors.New("envelope missing event_id or event_type")

func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// UnmarshalEnvelope decode + validasi minimal; envelope tanpa id/type tidak bisa di-dedup.
func UnmarshalEnvelope(b []byte) (teams.Envelope, error) {
	var env teams.Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return env, fmt.Errorf("decode envelope: %w", err)
	}
	if env.EventID == "" || env.EventType == "" {
		return env, errIncompleteEnvelope
	}
	return env, nil
}

// Unwrap memudahkan decode payload spesifik
func UnwrapPayload[T any](payload json.RawMessage) (T, error) {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return t, fmt.Errorf("decode payload: %w", err)
	}
	return t, nil
}

// Header ambil nilai header message, "" kalau tidak ada.
func Header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
