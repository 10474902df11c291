// Package events delivers StatusChanged notifications to downstream
// consumers.
//
// Two paths exist. With Postgres, OutboxPublisher writes the event in the
// same transaction as the status row and Relay forwards committed rows to a
// Sink. Without Postgres, ChannelPublisher hands events to a Worker that
// forwards them to a Sink in the background.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"rmr/internal/membership/models"
)

// Sink is the final destination of an event: a Kafka topic or the log.
type Sink interface {
	Send(ctx context.Context, event models.StatusChanged) error
	Name() string
}

const EventType = "membership.status_changed"

// Encode renders the wire form shared by the outbox payload column and the
// Kafka record value.
func Encode(event models.StatusChanged) ([]byte, error) {
	b, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode status event: %w", err)
	}
	return b, nil
}

func Decode(b []byte) (models.StatusChanged, error) {
	var event models.StatusChanged
	if err := json.Unmarshal(b, &event); err != nil {
		return models.StatusChanged{}, fmt.Errorf("decode status event: %w", err)
	}
	return event, nil
}
