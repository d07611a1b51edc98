//go:build integration

package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"mintledger/internal/message"
	"mintledger/internal/runtime"
	"mintledger/internal/runtime/models"
	"mintledger/internal/runtime/store/postgres"
	"mintledger/pkg/domain"
	"mintledger/pkg/platform/sentinel"
	txcontext "mintledger/pkg/platform/tx"
	"mintledger/pkg/testutil/containers"
)

type PostgresLedgerStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.Store
}

func TestPostgresLedgerStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresLedgerStoreSuite))
}

func (s *PostgresLedgerStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = postgres.New(s.postgres.Pool)
	s.Require().NoError(s.store.Migrate(context.Background()))
}

func (s *PostgresLedgerStoreSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.TruncateTables(ctx, "ledger_accounts", "ledger_transactions", "ledger_totals"))
	// Truncating removes the seeded totals row; Migrate puts it back.
	s.Require().NoError(s.store.Migrate(ctx))
}

func (s *PostgresLedgerStoreSuite) sealed(seq uint64, to domain.Address, fee domain.Amount) *models.Transaction {
	tx := &models.Transaction{Seq: seq, To: to, Kind: message.KindNone, Fee: fee, Success: true}
	s.Require().NoError(tx.Seal())
	return tx
}

func (s *PostgresLedgerStoreSuite) TestAccountRoundTrip() {
	ctx := context.Background()
	addr := domain.Address{1}

	_, err := s.store.Account(ctx, addr)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	acct := &models.Account{
		Address: addr,
		Balance: domain.MustParseAmount("50000.000000001"),
		Code:    message.CodeFactory,
		State:   []byte{0x01},
		LastSeq: 1,
	}
	s.Require().NoError(s.store.Commit(ctx, runtime.Batch{
		Accounts:    []*models.Account{acct},
		Transaction: s.sealed(1, addr, domain.Amount{}),
	}))

	found, err := s.store.Account(ctx, addr)
	s.Require().NoError(err)
	s.Equal("50000.000000001", found.Balance.String())
	s.Equal(message.CodeFactory, found.Code)
	s.Equal([]byte{0x01}, found.State)
}

func (s *PostgresLedgerStoreSuite) TestJournalAndTotals() {
	ctx := context.Background()
	addr := domain.Address{2}
	fee := domain.MustParseAmount("0.005")

	first := s.sealed(1, addr, fee)
	second := s.sealed(2, addr, fee)
	s.Require().NoError(s.store.Commit(ctx, runtime.Batch{Transaction: first, Inflow: domain.Coins(2)}))
	s.Require().NoError(s.store.Commit(ctx, runtime.Batch{Transaction: second}))

	txs, err := s.store.TransactionsByAccount(ctx, addr, 1)
	s.Require().NoError(err)
	s.Require().Len(txs, 1)
	s.Equal(second.ID, txs[0].ID)

	got, err := s.store.Transaction(ctx, first.ID)
	s.Require().NoError(err)
	s.Equal(uint64(1), got.Seq)

	totals, err := s.store.Totals(ctx)
	s.Require().NoError(err)
	s.Equal(uint64(2), totals.Transactions)
	s.Equal("0.01", totals.Fees.String())
	s.Equal("2", totals.Inflow.String())
}

func (s *PostgresLedgerStoreSuite) TestCommitConflicts() {
	ctx := context.Background()
	addr := domain.Address{3}
	first := s.sealed(1, addr, domain.Amount{})
	s.Require().NoError(s.store.Commit(ctx, runtime.Batch{Transaction: first}))

	s.Run("duplicate sequence", func() {
		err := s.store.Commit(ctx, runtime.Batch{Transaction: s.sealed(1, addr, domain.Nano(5))})
		s.Require().ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("sequence gap leaves nothing behind", func() {
		acct := &models.Account{Address: domain.Address{4}, Balance: domain.Coins(1), LastSeq: 7}
		gap := s.sealed(7, acct.Address, domain.Amount{})
		err := s.store.Commit(ctx, runtime.Batch{Accounts: []*models.Account{acct}, Transaction: gap})
		s.Require().ErrorIs(err, sentinel.ErrConflict)

		_, err = s.store.Account(ctx, acct.Address)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
		_, err = s.store.Transaction(ctx, gap.ID)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *PostgresLedgerStoreSuite) TestReadsJoinAmbientTransaction() {
	ctx := context.Background()
	addr := domain.Address{5}
	acct := &models.Account{Address: addr, Balance: domain.Coins(3), LastSeq: 1}

	err := txcontext.RunInTx(ctx, s.postgres.Pool, 0, func(ctx context.Context) error {
		if err := s.store.Commit(ctx, runtime.Batch{
			Accounts:    []*models.Account{acct},
			Transaction: s.sealed(1, addr, domain.Amount{}),
		}); err != nil {
			return err
		}
		found, err := s.store.Account(ctx, addr)
		s.Require().NoError(err)
		s.Equal("3", found.Balance.String())
		return nil
	})
	s.Require().NoError(err)
	s.Require().NoError(s.store.Health(ctx))
}

func (s *PostgresLedgerStoreSuite) TestPendingQueueFollowsLastCommit() {
	ctx := context.Background()
	addr := domain.Address{5}
	queue := []message.Envelope{
		{From: addr, To: domain.Address{6}, Value: domain.Coins(1), Body: message.Promote{ContentRef: []byte("r")}, Bounce: true},
		{From: addr, To: domain.Address{7}, Value: domain.Nano(3)},
	}

	pending, err := s.store.Pending(ctx)
	s.Require().NoError(err)
	s.Empty(pending)

	s.Require().NoError(s.store.Commit(ctx, runtime.Batch{Transaction: s.sealed(1, addr, domain.Amount{}), Pending: queue}))
	pending, err = s.store.Pending(ctx)
	s.Require().NoError(err)
	s.Require().Len(pending, 2)
	s.Equal(domain.Address{6}, pending[0].To)
	s.Equal(message.KindPromote, pending[0].Kind())
	s.True(pending[0].Bounce)
	s.Equal("0.000000003", pending[1].Value.String())

	s.Run("failed commit keeps the previous queue", func() {
		err := s.store.Commit(ctx, runtime.Batch{Transaction: s.sealed(5, addr, domain.Amount{})})
		s.Require().ErrorIs(err, sentinel.ErrConflict)

		pending, err := s.store.Pending(ctx)
		s.Require().NoError(err)
		s.Len(pending, 2)
	})

	s.Run("next commit replaces it", func() {
		s.Require().NoError(s.store.Commit(ctx, runtime.Batch{Transaction: s.sealed(2, addr, domain.Amount{})}))
		pending, err := s.store.Pending(ctx)
		s.Require().NoError(err)
		s.Empty(pending)
	})
}
