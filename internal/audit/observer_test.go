package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mintledger/internal/message"
	"mintledger/internal/runtime/models"
	"mintledger/pkg/domain"
	dErrors "mintledger/pkg/domain-errors"
	audit "mintledger/pkg/platform/audit"
	"mintledger/pkg/platform/audit/publisher"
	"mintledger/pkg/platform/audit/store/memory"
	"mintledger/pkg/requestcontext"
)

func address(b byte) domain.Address {
	var a domain.Address
	a[len(a)-1] = b
	return a
}

func TestObserverEmitsCommittedEvent(t *testing.T) {
	store := memory.NewInMemoryStore()
	o := NewObserver(publisher.NewPublisher(store), nil)
	ctx := requestcontext.WithRequestID(context.Background(), "req-1")
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	o.ObserveTransaction(ctx, &models.Transaction{
		ID:      "tx-1",
		Time:    at,
		From:    address(1),
		To:      address(2),
		Kind:    message.KindPromote,
		Value:   domain.MustParseAmount("1"),
		Success: true,
	})

	events, err := store.ListBySubject(ctx, address(2).String())
	require.NoError(t, err)
	require.Len(t, events, 1)
	e := events[0]
	assert.Equal(t, string(audit.EventTransactionCommit), e.Action)
	assert.Equal(t, audit.CategoryOperations, e.Category)
	assert.Equal(t, "committed", e.Decision)
	assert.Equal(t, "tx-1", e.TxID)
	assert.Equal(t, "req-1", e.RequestID)
	assert.Equal(t, address(1).String(), e.ActorID)
	assert.True(t, at.Equal(e.Timestamp))
}

func TestObserverCategorizesRejections(t *testing.T) {
	tests := []struct {
		code     dErrors.Code
		action   audit.AuditEvent
		category audit.EventCategory
	}{
		{dErrors.CodeUnauthorized, audit.EventAdmissionDenied, audit.CategorySecurity},
		{dErrors.CodeTransferNotSupported, audit.EventTransferRejected, audit.CategorySecurity},
		{dErrors.CodeInsufficientPayment, audit.EventPaymentRejected, audit.CategoryOperations},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			store := memory.NewInMemoryStore()
			o := NewObserver(publisher.NewPublisher(store), nil)

			o.ObserveTransaction(context.Background(), &models.Transaction{
				ID:       "tx-2",
				From:     address(1),
				To:       address(3),
				Success:  false,
				ExitCode: tt.code,
			})

			events, err := store.ListBySubject(context.Background(), address(3).String())
			require.NoError(t, err)
			require.Len(t, events, 2)
			assert.Equal(t, "failed", events[0].Decision)
			assert.Equal(t, string(tt.action), events[1].Action)
			assert.Equal(t, tt.category, events[1].Category)
			assert.Equal(t, string(tt.code), events[1].Reason)
		})
	}
}

func TestObserverIgnoresOtherFailures(t *testing.T) {
	store := memory.NewInMemoryStore()
	o := NewObserver(publisher.NewPublisher(store), nil)

	o.ObserveTransaction(context.Background(), &models.Transaction{To: address(4), ExitCode: dErrors.CodeConflict})

	events, err := store.ListRecent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Empty(t, events[0].ActorID, "funding transactions have no sender")
}

type refusingEmitter struct{ calls int }

func (r *refusingEmitter) Emit(context.Context, audit.Event) error {
	r.calls++
	return errors.New("audit sink down")
}

func TestObserverSwallowsEmitErrors(t *testing.T) {
	e := &refusingEmitter{}
	o := NewObserver(e, nil)
	assert.NotPanics(t, func() {
		o.ObserveTransaction(context.Background(), &models.Transaction{To: address(5), ExitCode: dErrors.CodeUnauthorized})
	})
	assert.Equal(t, 2, e.calls)
}
