package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers value-moving actions that must be reconstructible
	// later: configuration, mints, withdrawals, faucet credits.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers rejected privileged operations and abuse signals.
	// Examples: non-owner configure, rate limit hits, invalid tokens.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers high-volume routine activity that can be sampled.
	// Examples: every committed ledger transaction.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        uuid.UUID     `json:"id"`
	Category  EventCategory `json:"category"`
	Timestamp time.Time     `json:"timestamp"`
	// Subject is the ledger address the event is about (factory, item or wallet).
	Subject string `json:"subject"`
	Action  string `json:"action"`
	// ActorID is the sender address that caused the event.
	ActorID  string `json:"actor_id,omitempty"`
	Decision string `json:"decision,omitempty"`
	Reason   string `json:"reason,omitempty"`
	// TxID links the event to the journal when a transaction was committed.
	TxID      string `json:"tx_id,omitempty"`
	Value     string `json:"value,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	ClientIP  string `json:"client_ip,omitempty"`
	Client    string `json:"client,omitempty"`
}

type AuditEvent string

const (
	// Factory events
	EventFactoryConfigured AuditEvent = "factory_configured"
	EventFactoryWithdrawn  AuditEvent = "factory_withdrawn"
	EventItemMinted        AuditEvent = "item_minted"

	// Rejections
	EventAdmissionDenied  AuditEvent = "admission_denied"
	EventTransferRejected AuditEvent = "transfer_rejected"
	EventPaymentRejected  AuditEvent = "payment_rejected"

	// Ledger events
	EventAccountFunded     AuditEvent = "account_funded"
	EventTransactionCommit AuditEvent = "transaction_committed"

	// Edge events
	EventRateLimitExceeded AuditEvent = "rate_limit_exceeded"
	EventAuthFailed        AuditEvent = "auth_failed"
)

// eventCategories maps each audit event to its category.
var eventCategories = map[AuditEvent]EventCategory{
	EventFactoryConfigured: CategoryCompliance,
	EventFactoryWithdrawn:  CategoryCompliance,
	EventItemMinted:        CategoryCompliance,
	EventAccountFunded:     CategoryCompliance,

	EventAdmissionDenied:   CategorySecurity,
	EventTransferRejected:  CategorySecurity,
	EventRateLimitExceeded: CategorySecurity,
	EventAuthFailed:        CategorySecurity,

	EventPaymentRejected:   CategoryOperations,
	EventTransactionCommit: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Normalize fills ID, Category and Timestamp when the emitter left them empty.
func (e *Event) Normalize(now time.Time) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Category == "" {
		e.Category = AuditEvent(e.Action).Category()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
}

// Store persists audit events. Append must be idempotent on Event.ID so
// redelivered stream records do not duplicate.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySubject(ctx context.Context, subject string) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}
