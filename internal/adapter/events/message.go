package events

import (
	"time"

	"github.com/google/uuid"
)

// Queue names
const (
	IdentityQueueName = "lingoledger.identity"
	PaymentsQueueName = "lingoledger.payments"

	// Rejected deliveries from either queue are parked here for replay.
	DeadLetterExchangeName = "lingoledger.dead-letter"
	DeadLetterQueueName    = "lingoledger.dead-letter"
)

// Event types
const (
	TypeUserCreated           = "user.created"
	TypeSubscriptionActivated = "subscription.activated"
)

// Message is the envelope published by the identity and payment providers.
type Message struct {
	ID         uuid.UUID `json:"id"`
	Type       string    `json:"type"`
	UserID     string    `json:"user_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// QueueFor returns the queue an event type is delivered on.
func QueueFor(eventType string) (string, bool) {
	switch eventType {
	case TypeUserCreated:
		return IdentityQueueName, true
	case TypeSubscriptionActivated:
		return PaymentsQueueName, true
	default:
		return "", false
	}
}
