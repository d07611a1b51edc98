package runtime

import (
	"mintledger/internal/message"
	"mintledger/pkg/domain"
	dErrors "mintledger/pkg/domain-errors"
)

// TxContext is what a contract sees while handling one message. It is only
// valid for the duration of Receive.
type TxContext struct {
	self    domain.Address
	sender  domain.Address
	value   domain.Amount
	balance domain.Amount
	fee     domain.Amount
	bounced bool
	state   []byte
	sends   []message.Envelope
}

// Self is the address of the executing contract.
func (tc *TxContext) Self() domain.Address { return tc.self }

// Sender is the address the inbound message came from.
func (tc *TxContext) Sender() domain.Address { return tc.sender }

// Value is the amount attached to the inbound message.
func (tc *TxContext) Value() domain.Amount { return tc.value }

// Fee is the processing fee charged for this transaction.
func (tc *TxContext) Fee() domain.Amount { return tc.fee }

// Bounced reports whether the inbound message is a bounce of an earlier send.
func (tc *TxContext) Bounced() bool { return tc.bounced }

// Balance is the contract balance after crediting the inbound value and
// charging the fee, minus everything already queued with Send.
func (tc *TxContext) Balance() domain.Amount { return tc.balance }

// State returns the contract state as of the start of the transaction, or as
// last set by SetState.
func (tc *TxContext) State() []byte { return tc.state }

// SetState replaces the state committed if Receive succeeds.
func (tc *TxContext) SetState(state []byte) { tc.state = state }

// Send queues an outbound message. Sends are delivered only if the transaction
// commits; value is reserved from Balance immediately.
func (tc *TxContext) Send(env message.Envelope) error {
	remaining, err := tc.balance.Sub(env.Value)
	if err != nil {
		return dErrors.New(dErrors.CodeInsufficientPayment, "outbound value exceeds contract balance")
	}
	env.From = tc.self
	tc.balance = remaining
	tc.sends = append(tc.sends, env)
	return nil
}
