package memory

import (
	"context"
	"sync"

	"mintledger/internal/message"
	"mintledger/internal/runtime"
	"mintledger/internal/runtime/models"
	"mintledger/pkg/domain"
	"mintledger/pkg/platform/sentinel"
)

// InMemory keeps accounts and the journal in process memory.
type InMemory struct {
	mu        sync.RWMutex
	accounts  map[domain.Address]*models.Account
	byID      map[string]*models.Transaction
	byAccount map[domain.Address][]*models.Transaction
	totals    models.Totals
	pending   []message.Envelope
}

func New() *InMemory {
	return &InMemory{
		accounts:  make(map[domain.Address]*models.Account),
		byID:      make(map[string]*models.Transaction),
		byAccount: make(map[domain.Address][]*models.Transaction),
	}
}

func (s *InMemory) Account(_ context.Context, addr domain.Address) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[addr]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return acct.Clone(), nil
}

func (s *InMemory) Commit(_ context.Context, batch runtime.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := batch.Transaction
	if tx == nil {
		return sentinel.ErrInvalidState
	}
	if _, dup := s.byID[tx.ID]; dup {
		return sentinel.ErrConflict
	}
	if tx.Seq != s.totals.Transactions+1 {
		return sentinel.ErrConflict
	}

	for _, acct := range batch.Accounts {
		s.accounts[acct.Address] = acct.Clone()
	}
	stored := *tx
	s.byID[tx.ID] = &stored
	s.byAccount[tx.To] = append(s.byAccount[tx.To], &stored)

	s.totals.Fees = s.totals.Fees.Add(tx.Fee)
	s.totals.Inflow = s.totals.Inflow.Add(batch.Inflow)
	s.totals.Transactions = tx.Seq
	s.pending = append([]message.Envelope(nil), batch.Pending...)
	return nil
}

func (s *InMemory) Transaction(_ context.Context, id string) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.byID[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := *tx
	return &out, nil
}

// TransactionsByAccount returns the newest transactions delivered to addr
// first. A non-positive limit returns all of them.
func (s *InMemory) TransactionsByAccount(_ context.Context, addr domain.Address, limit int) ([]*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	txs := s.byAccount[addr]
	if limit <= 0 || limit > len(txs) {
		limit = len(txs)
	}
	out := make([]*models.Transaction, 0, limit)
	for i := len(txs) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *txs[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *InMemory) Totals(_ context.Context) (models.Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totals, nil
}

func (s *InMemory) Pending(_ context.Context) ([]message.Envelope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]message.Envelope(nil), s.pending...), nil
}

// Clear drops all state. Tests only.
func (s *InMemory) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = make(map[domain.Address]*models.Account)
	s.byID = make(map[string]*models.Transaction)
	s.byAccount = make(map[domain.Address][]*models.Transaction)
	s.totals = models.Totals{}
	s.pending = nil
}
