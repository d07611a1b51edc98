// Package audit turns committed ledger transactions into audit events.
package audit

import (
	"context"
	"log/slog"

	"mintledger/internal/runtime/models"
	dErrors "mintledger/pkg/domain-errors"
	audit "mintledger/pkg/platform/audit"
	"mintledger/pkg/requestcontext"
)

// Emitter accepts audit events.
type Emitter interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Observer implements runtime.Observer. Every transaction yields a
// transaction_committed event; failures with a security or payment meaning
// yield an extra categorized event.
type Observer struct {
	emitter Emitter
	logger  *slog.Logger
}

func NewObserver(emitter Emitter, logger *slog.Logger) *Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Observer{emitter: emitter, logger: logger}
}

var rejectionEvents = map[dErrors.Code]audit.AuditEvent{
	dErrors.CodeUnauthorized:         audit.EventAdmissionDenied,
	dErrors.CodeTransferNotSupported: audit.EventTransferRejected,
	dErrors.CodeInsufficientPayment:  audit.EventPaymentRejected,
}

func (o *Observer) ObserveTransaction(ctx context.Context, tx *models.Transaction) {
	decision := "committed"
	if !tx.Success {
		decision = "failed"
	}
	o.emit(ctx, tx, audit.EventTransactionCommit, decision)

	if tx.Success {
		return
	}
	if action, ok := rejectionEvents[tx.ExitCode]; ok {
		o.emit(ctx, tx, action, "denied")
	}
}

func (o *Observer) emit(ctx context.Context, tx *models.Transaction, action audit.AuditEvent, decision string) {
	event := audit.Event{
		Timestamp: tx.Time,
		Subject:   tx.To.String(),
		Action:    string(action),
		Decision:  decision,
		Reason:    string(tx.ExitCode),
		TxID:      tx.ID,
		Value:     tx.Value.String(),
		RequestID: requestcontext.RequestID(ctx),
		ClientIP:  requestcontext.ClientIP(ctx),
		Client:    requestcontext.Client(ctx),
	}
	if !tx.From.IsZero() {
		event.ActorID = tx.From.String()
	}
	// Audit failures never undo a committed transaction.
	if err := o.emitter.Emit(ctx, event); err != nil {
		o.logger.WarnContext(ctx, "failed to emit audit event",
			"action", event.Action,
			"tx_id", tx.ID,
			"error", err,
		)
	}
}
