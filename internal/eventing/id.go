package eventing

import (
	"errors"

	"github.com/google/uuid"
)

// ErrUnknownEventID is returned by stores asked about an event they never saw.
var ErrUnknownEventID = errors.New("eventing: unknown event id")

// NewEventID returns a random UUIDv4 for events and outbox records without a
// stable identity.
func NewEventID() string {
	return uuid.NewString()
}
