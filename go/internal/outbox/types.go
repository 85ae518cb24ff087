package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is one row of race_outbox.
type Event struct {
	ID        uuid.UUID         `json:"id"`
	RaceID    uuid.UUID         `json:"race_id"`
	EventType string            `json:"event_type"`
	Payload   json.RawMessage   `json:"payload"`
	Headers   map[string]string `json:"headers,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	SentAt    *time.Time        `json:"sent_at,omitempty"`
}

// Publisher delivers an outbox event to the event stream.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// EventStore is the part of the repository the relay needs.
type EventStore interface {
	FetchUnsentByID(ctx context.Context, id uuid.UUID) (*Event, error)
	FetchUnsent(ctx context.Context, limit uint64) ([]Event, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
}
