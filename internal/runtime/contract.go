package runtime

import (
	"context"

	"mintledger/internal/message"
	"mintledger/internal/runtime/models"
	"mintledger/pkg/domain"
)

// Contract is the code deployed at an address. Implementations are stateless;
// the runtime hands each call the account's encoded state.
type Contract interface {
	Code() message.CodeKind
	// Deploy validates constructor data and returns the initial state.
	Deploy(init message.Init) ([]byte, error)
	// Receive handles one inbound message. A returned error aborts the
	// transaction: state and balance stay untouched and value bounces.
	Receive(tc *TxContext, body message.Message) error
	// Query runs a read-only getter against committed state.
	Query(self domain.Address, state []byte, q Query) (any, error)
}

// Query is a named read-only getter understood by a contract.
type Query interface {
	Method() string
}

// Store persists accounts, the transaction journal and ledger totals.
//
// Commit must apply the batch atomically: either every account write, the
// journal append, the totals delta and the pending queue land, or none do.
type Store interface {
	Account(ctx context.Context, addr domain.Address) (*models.Account, error)
	Commit(ctx context.Context, batch Batch) error
	Transaction(ctx context.Context, id string) (*models.Transaction, error)
	TransactionsByAccount(ctx context.Context, addr domain.Address, limit int) ([]*models.Transaction, error)
	Totals(ctx context.Context) (models.Totals, error)
	// Pending returns the undelivered queue stored by the last commit.
	Pending(ctx context.Context) ([]message.Envelope, error)
}

// Batch is the write set of one committed transaction.
type Batch struct {
	Accounts    []*models.Account
	Transaction *models.Transaction
	// Inflow is value entering the ledger from outside, zero for most batches.
	Inflow domain.Amount
	// Pending replaces the stored queue of messages still to be delivered,
	// in FIFO order. Nil clears it.
	Pending []message.Envelope
}

// Observer is notified after every committed transaction.
type Observer interface {
	ObserveTransaction(ctx context.Context, tx *models.Transaction)
}
