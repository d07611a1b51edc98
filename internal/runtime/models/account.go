package models

import (
	"mintledger/internal/message"
	"mintledger/pkg/domain"
)

// Account is the persisted state of one ledger address.
//
// Invariants:
//   - Balance is never negative (enforced by domain.Amount)
//   - Code is empty for wallets and fixed once a contract is deployed
//   - State is opaque to the runtime and owned by the contract named by Code
type Account struct {
	Address domain.Address   `json:"address"`
	Balance domain.Amount    `json:"balance"`
	Code    message.CodeKind `json:"code,omitempty"`
	State   []byte           `json:"state,omitempty"`
	// LastSeq is the sequence number of the last transaction that touched the account.
	LastSeq uint64 `json:"last_seq"`
}

// NewAccount returns an empty wallet account at addr.
func NewAccount(addr domain.Address) *Account {
	return &Account{Address: addr}
}

// HasCode reports whether a contract is deployed at the account.
func (a *Account) HasCode() bool {
	return a.Code != ""
}

// Clone returns a deep copy so stores never hand out shared slices.
func (a *Account) Clone() *Account {
	out := *a
	if a.State != nil {
		out.State = append([]byte(nil), a.State...)
	}
	return &out
}

// Totals are ledger-wide counters maintained alongside accounts.
type Totals struct {
	// Fees is the sum of processing fees charged by all transactions.
	Fees domain.Amount `json:"fees"`
	// Inflow is the value credited into the ledger from outside (faucet, treasury).
	Inflow domain.Amount `json:"inflow"`
	// Transactions counts committed transactions; it is also the last sequence number.
	Transactions uint64 `json:"transactions"`
}
