package models

import (
	"mintledger/internal/runtime/models"
	"mintledger/pkg/domain"
	dErrors "mintledger/pkg/domain-errors"
)

// Receipt reports the outcome of an external message. The first delivered
// transaction decides Success; later transactions of the cascade (item
// creation, refunds) are in Trace.
type Receipt struct {
	Trace   models.Trace   `json:"trace"`
	Success bool           `json:"success"`
	Code    dErrors.Code   `json:"exit_code,omitempty"`
	Reason  string         `json:"reason,omitempty"`
	Sender  domain.Address `json:"sender"`
	// Refunded is the value that came back to the sender within the cascade.
	Refunded domain.Amount `json:"refunded"`
	// Cost is what the sender paid net of refunds.
	Cost domain.Amount `json:"cost"`
}

// Minted describes the item produced by a successful promote.
type Minted struct {
	Receipt
	Item  domain.Address `json:"item"`
	Index uint64         `json:"index"`
}

// TransferRequest carries the fields of a standard ownership transfer.
type TransferRequest struct {
	QueryID             uint64
	NewHolder           domain.Address
	ResponseDestination domain.Address
	ForwardAmount       domain.Amount
	CustomPayload       []byte
	ForwardPayload      []byte
}

// AccountView is a ledger account with its recent journal.
type AccountView struct {
	Address      domain.Address        `json:"address"`
	Balance      domain.Amount         `json:"balance"`
	Code         string                `json:"code,omitempty"`
	LastSeq      uint64                `json:"last_seq"`
	Transactions []*models.Transaction `json:"transactions,omitempty"`
}
