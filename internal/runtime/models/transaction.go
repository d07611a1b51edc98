package models

import (
	"encoding/hex"
	"time"

	"github.com/zeebo/blake3"

	"mintledger/internal/message"
	"mintledger/pkg/codec"
	"mintledger/pkg/domain"
	dErrors "mintledger/pkg/domain-errors"
)

// Origin distinguishes how a transaction entered the ledger.
type Origin string

const (
	// OriginInternal is a message produced by another account.
	OriginInternal Origin = "internal"
	// OriginExternal is a wallet debit that starts a cascade.
	OriginExternal Origin = "external"
	// OriginFunding credits value from outside the ledger.
	OriginFunding Origin = "funding"
)

// Outbound summarizes one message emitted by a transaction.
type Outbound struct {
	To      domain.Address `json:"to" cbor:"1,keyasint"`
	Value   domain.Amount  `json:"value" cbor:"2,keyasint"`
	Kind    message.Kind   `json:"kind" cbor:"3,keyasint"`
	Deploy  bool           `json:"deploy,omitempty" cbor:"4,keyasint,omitempty"`
	Bounced bool           `json:"bounced,omitempty" cbor:"5,keyasint,omitempty"`
}

// Transaction is the journal record of delivering one message to one account.
type Transaction struct {
	ID            string         `json:"id" cbor:"-"`
	Seq           uint64         `json:"seq" cbor:"1,keyasint"`
	Time          time.Time      `json:"time" cbor:"2,keyasint"`
	Origin        Origin         `json:"origin" cbor:"3,keyasint"`
	From          domain.Address `json:"from" cbor:"4,keyasint"`
	To            domain.Address `json:"to" cbor:"5,keyasint"`
	Kind          message.Kind   `json:"kind" cbor:"6,keyasint"`
	Body          []byte         `json:"body,omitempty" cbor:"7,keyasint,omitempty"`
	Value         domain.Amount  `json:"value" cbor:"8,keyasint"`
	Fee           domain.Amount  `json:"fee" cbor:"9,keyasint"`
	BalanceBefore domain.Amount  `json:"balance_before" cbor:"10,keyasint"`
	BalanceAfter  domain.Amount  `json:"balance_after" cbor:"11,keyasint"`
	Success       bool           `json:"success" cbor:"12,keyasint"`
	ExitCode      dErrors.Code   `json:"exit_code,omitempty" cbor:"13,keyasint,omitempty"`
	Reason        string         `json:"reason,omitempty" cbor:"14,keyasint,omitempty"`
	Deployed      bool           `json:"deployed,omitempty" cbor:"15,keyasint,omitempty"`
	// Bounced marks an inbound message that was itself a bounce.
	Bounced  bool       `json:"bounced,omitempty" cbor:"16,keyasint,omitempty"`
	Outbound []Outbound `json:"outbound,omitempty" cbor:"17,keyasint,omitempty"`
	// Code is the contract deployed at To once the transaction completes.
	Code message.CodeKind `json:"code,omitempty" cbor:"18,keyasint,omitempty"`
}

// Seal computes the transaction id as the BLAKE3 hash of its encoded form.
func (t *Transaction) Seal() error {
	data, err := codec.Marshal(t)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode transaction")
	}
	sum := blake3.Sum256(data)
	t.ID = hex.EncodeToString(sum[:])
	return nil
}

// OutboundTotal is the value carried by all outbound messages.
func (t *Transaction) OutboundTotal() domain.Amount {
	total := domain.Amount{}
	for _, o := range t.Outbound {
		total = total.Add(o.Value)
	}
	return total
}

// CheckConservation verifies value + before == outbound + fee + after, which
// is the per-transaction form of "no value is created or destroyed".
func (t *Transaction) CheckConservation() error {
	in := t.Value.Add(t.BalanceBefore)
	out := domain.Sum(t.OutboundTotal(), t.Fee, t.BalanceAfter)
	if !in.Equal(out) {
		return dErrors.New(dErrors.CodeInvariantViolation,
			"value not conserved: in="+in.String()+" out="+out.String())
	}
	return nil
}

// Trace is the ordered list of transactions produced by one external message.
type Trace []*Transaction

// Find returns the first transaction delivered to addr with the given kind.
func (tr Trace) Find(to domain.Address, kind message.Kind) *Transaction {
	for _, tx := range tr {
		if tx.To == to && tx.Kind == kind {
			return tx
		}
	}
	return nil
}

// Failed returns the failed transactions of the trace.
func (tr Trace) Failed() []*Transaction {
	var out []*Transaction
	for _, tx := range tr {
		if !tx.Success {
			out = append(out, tx)
		}
	}
	return out
}

// Fees sums the fees charged across the trace.
func (tr Trace) Fees() domain.Amount {
	total := domain.Amount{}
	for _, tx := range tr {
		total = total.Add(tx.Fee)
	}
	return total
}
