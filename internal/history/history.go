package history

import (
	"context"
	"time"
)

// EventType defines the kind of wallet lifecycle event.
type EventType string

const (
	EventCreateWallet  EventType = "create_wallet"
	EventRestoreWallet EventType = "restore_wallet"
	EventStartWallet   EventType = "start_wallet"
	EventStopContainer EventType = "stop_container"
	EventExpireWallet  EventType = "expire_wallet"
	EventClearWallet   EventType = "clear_wallet"
	EventDeleteWallet  EventType = "delete_wallet"
)

// Event is a wallet lifecycle event exported to external systems.
// Container and Port are empty when the event has no process attached.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Username   string    `json:"username"`
	Container  string    `json:"container,omitempty"`
	Port       int       `json:"port,omitempty"`
	Detail     string    `json:"detail,omitempty"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
