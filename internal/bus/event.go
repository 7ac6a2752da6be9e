package bus

import (
	"time"

	"github.com/google/uuid"
)

// Event represents a domain event published on the bus.
// Kind is dot-namespaced ("session.logged_out", "chat.contacts_invalidated").
type Event struct {
	ID        string
	Kind      string
	Timestamp time.Time
	Payload   any
}

// NewEvent stamps a fresh id and the current time on a kind/payload pair.
func NewEvent(kind string, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}
