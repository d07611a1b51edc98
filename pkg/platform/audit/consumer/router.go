package consumer

import (
	"context"
	"log/slog"

	"mintledger/internal/platform/kafka/consumer"
	audit "mintledger/pkg/platform/audit"
	"mintledger/pkg/platform/audit/publishers/stream"
)

// Handler processes one audit record.
type Handler interface {
	Handle(ctx context.Context, msg *consumer.Message) error
}

// Router dispatches audit records on their category header. Records whose
// category has no handler, including records without the header, go to the
// fallback.
type Router struct {
	handlers map[audit.EventCategory]Handler
	fallback Handler
	logger   *slog.Logger
}

func NewRouter(logger *slog.Logger, fallback Handler) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		handlers: make(map[audit.EventCategory]Handler),
		fallback: fallback,
		logger:   logger,
	}
}

func (r *Router) Register(category audit.EventCategory, handler Handler) {
	r.handlers[category] = handler
}

func (r *Router) Handle(ctx context.Context, msg *consumer.Message) error {
	category := audit.EventCategory(msg.Header(stream.CategoryHeader))
	if handler, ok := r.handlers[category]; ok {
		return handler.Handle(ctx, msg)
	}
	if r.fallback != nil {
		return r.fallback.Handle(ctx, msg)
	}
	// Committed without handling; redelivery would not change the outcome.
	r.logger.WarnContext(ctx, "no handler for audit category, skipping record",
		"category", string(category),
		"topic", msg.Topic,
		"key", string(msg.Key),
	)
	return nil
}

// SecurityAlertHandler surfaces security events in the service log before
// passing them on, so rejected authentication and rate limiting show up
// without querying the audit store.
type SecurityAlertHandler struct {
	next   Handler
	logger *slog.Logger
}

func NewSecurityAlertHandler(next Handler, logger *slog.Logger) *SecurityAlertHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SecurityAlertHandler{next: next, logger: logger}
}

func (h *SecurityAlertHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	if event, err := stream.Decode(msg.Value); err == nil {
		h.logger.WarnContext(ctx, "security audit event",
			"action", event.Action,
			"subject", event.Subject,
			"decision", event.Decision,
			"request_id", event.RequestID,
		)
	}
	return h.next.Handle(ctx, msg)
}
