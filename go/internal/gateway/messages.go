package gateway

import (
	"encoding/json"
	"time"
)

// MessageType identifies what a websocket message carries.
type MessageType string

const (
	// MessageSnapshot carries a full results.Snapshot.
	MessageSnapshot MessageType = "snapshot"
	// MessageEvent relays a timing event as it was published.
	MessageEvent MessageType = "event"
)

// Message is the JSON frame sent to display clients.
type Message struct {
	ID        string          `json:"id,omitempty"`
	Type      MessageType     `json:"type"`
	EventType string          `json:"event_type,omitempty"`
	RaceID    string          `json:"race_id"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}
