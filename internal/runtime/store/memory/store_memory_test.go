package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"mintledger/internal/message"
	"mintledger/internal/runtime"
	"mintledger/internal/runtime/models"
	"mintledger/pkg/domain"
	"mintledger/pkg/platform/sentinel"
)

type LedgerStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func TestLedgerStoreSuite(t *testing.T) {
	suite.Run(t, new(LedgerStoreSuite))
}

func (s *LedgerStoreSuite) SetupTest() {
	s.store = New()
	s.ctx = context.Background()
}

func (s *LedgerStoreSuite) sealed(seq uint64, to domain.Address, fee domain.Amount) *models.Transaction {
	tx := &models.Transaction{Seq: seq, To: to, Kind: message.KindNone, Fee: fee, Success: true}
	s.Require().NoError(tx.Seal())
	return tx
}

func (s *LedgerStoreSuite) TestAccounts() {
	addr := domain.Address{1}

	s.Run("returns ErrNotFound for unknown address", func() {
		_, err := s.store.Account(s.ctx, addr)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("commit persists a copy of the account", func() {
		acct := &models.Account{Address: addr, Balance: domain.Coins(3), State: []byte{1}}
		err := s.store.Commit(s.ctx, runtime.Batch{
			Accounts:    []*models.Account{acct},
			Transaction: s.sealed(1, addr, domain.Amount{}),
			Inflow:      domain.Coins(3),
		})
		s.Require().NoError(err)

		acct.State[0] = 9
		found, err := s.store.Account(s.ctx, addr)
		s.Require().NoError(err)
		s.True(found.Balance.Equal(domain.Coins(3)))
		s.Equal([]byte{1}, found.State)
	})
}

func (s *LedgerStoreSuite) TestJournalAndTotals() {
	addr := domain.Address{2}
	fee := domain.MustParseAmount("0.005")

	first := s.sealed(1, addr, fee)
	second := s.sealed(2, addr, fee)
	s.Require().NoError(s.store.Commit(s.ctx, runtime.Batch{Transaction: first}))
	s.Require().NoError(s.store.Commit(s.ctx, runtime.Batch{Transaction: second}))

	s.Run("lists newest first with limit", func() {
		txs, err := s.store.TransactionsByAccount(s.ctx, addr, 1)
		s.Require().NoError(err)
		s.Require().Len(txs, 1)
		s.Equal(uint64(2), txs[0].Seq)
	})

	s.Run("finds by id", func() {
		tx, err := s.store.Transaction(s.ctx, first.ID)
		s.Require().NoError(err)
		s.Equal(uint64(1), tx.Seq)
	})

	s.Run("accumulates totals", func() {
		totals, err := s.store.Totals(s.ctx)
		s.Require().NoError(err)
		s.Equal(uint64(2), totals.Transactions)
		s.Equal("0.01", totals.Fees.String())
	})

	s.Run("rejects out of order sequence", func() {
		err := s.store.Commit(s.ctx, runtime.Batch{Transaction: s.sealed(5, addr, fee)})
		s.Require().ErrorIs(err, sentinel.ErrConflict)
	})
}

func (s *LedgerStoreSuite) TestPendingQueueFollowsLastCommit() {
	addr := domain.Address{5}
	queue := []message.Envelope{
		{From: addr, To: domain.Address{6}, Value: domain.Coins(1), Body: message.Promote{ContentRef: []byte("r")}, Bounce: true},
		{From: addr, To: domain.Address{7}, Value: domain.Nano(3)},
	}

	pending, err := s.store.Pending(s.ctx)
	s.Require().NoError(err)
	s.Empty(pending)

	s.Require().NoError(s.store.Commit(s.ctx, runtime.Batch{Transaction: s.sealed(1, addr, domain.Amount{}), Pending: queue}))
	pending, err = s.store.Pending(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(pending, 2)
	s.Equal(domain.Address{6}, pending[0].To)
	s.Equal(message.KindPromote, pending[0].Kind())
	s.True(pending[0].Bounce)
	s.Equal("0.000000003", pending[1].Value.String())

	s.Run("failed commit keeps the previous queue", func() {
		err := s.store.Commit(s.ctx, runtime.Batch{Transaction: s.sealed(5, addr, domain.Amount{})})
		s.Require().ErrorIs(err, sentinel.ErrConflict)

		pending, err := s.store.Pending(s.ctx)
		s.Require().NoError(err)
		s.Len(pending, 2)
	})

	s.Run("next commit replaces it", func() {
		s.Require().NoError(s.store.Commit(s.ctx, runtime.Batch{Transaction: s.sealed(2, addr, domain.Amount{})}))
		pending, err := s.store.Pending(s.ctx)
		s.Require().NoError(err)
		s.Empty(pending)
	})
}
