// Package consumer materializes the audit stream into an audit.Store.
package consumer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"mintledger/internal/platform/kafka/consumer"
	audit "mintledger/pkg/platform/audit"
	"mintledger/pkg/platform/audit/publishers/stream"
)

// StoreHandler appends every decoded stream record to a store. Appends are
// idempotent on the event ID, so redelivery after a failed commit is safe.
type StoreHandler struct {
	store  audit.Store
	logger *slog.Logger
}

func NewStoreHandler(store audit.Store, logger *slog.Logger) *StoreHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreHandler{store: store, logger: logger}
}

// Handle stores one event. Malformed records are logged and skipped so they
// are committed rather than blocking the partition.
func (h *StoreHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	event, err := stream.Decode(msg.Value)
	if err != nil {
		h.logger.ErrorContext(ctx, "skipping malformed audit record",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}
	if event.ID == uuid.Nil || event.Action == "" {
		h.logger.ErrorContext(ctx, "skipping audit record without id or action",
			"topic", msg.Topic,
			"offset", msg.Offset,
			"key", string(msg.Key),
		)
		return nil
	}

	if err := h.store.Append(ctx, event); err != nil {
		return fmt.Errorf("store audit event %s: %w", event.ID, err)
	}
	h.logger.DebugContext(ctx, "stored audit event",
		"event_id", event.ID.String(),
		"action", event.Action,
		"subject", event.Subject,
	)
	return nil
}
