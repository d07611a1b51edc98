package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"mintledger/internal/message"
	"mintledger/internal/runtime"
	"mintledger/internal/runtime/models"
	"mintledger/pkg/codec"
	"mintledger/pkg/domain"
	"mintledger/pkg/platform/sentinel"
	txcontext "mintledger/pkg/platform/tx"
)

// Schema creates the ledger tables. Balances are NUMERIC nano counts.
const Schema = `
CREATE TABLE IF NOT EXISTS ledger_accounts (
	address   TEXT PRIMARY KEY,
	balance   NUMERIC(78, 0) NOT NULL,
	code      TEXT NOT NULL DEFAULT '',
	state     BYTEA,
	last_seq  BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger_transactions (
	id           TEXT PRIMARY KEY,
	seq          BIGINT NOT NULL UNIQUE,
	to_address   TEXT NOT NULL,
	from_address TEXT NOT NULL,
	kind         TEXT NOT NULL,
	success      BOOLEAN NOT NULL,
	exit_code    TEXT NOT NULL DEFAULT '',
	record       BYTEA NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS ledger_transactions_to_seq ON ledger_transactions (to_address, seq DESC);

CREATE TABLE IF NOT EXISTS ledger_totals (
	id           SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
	fees         NUMERIC(78, 0) NOT NULL DEFAULT 0,
	inflow       NUMERIC(78, 0) NOT NULL DEFAULT 0,
	transactions BIGINT NOT NULL DEFAULT 0
);

INSERT INTO ledger_totals (id) VALUES (1) ON CONFLICT (id) DO NOTHING;

ALTER TABLE ledger_totals ADD COLUMN IF NOT EXISTS pending BYTEA;
`

const uniqueViolation = "23505"

// Store implements runtime.Store on PostgreSQL.
type Store struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// New creates a Store over an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate applies Schema. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply ledger schema: %w", err)
	}
	return nil
}

type dbExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.pool
}

func (s *Store) Account(ctx context.Context, addr domain.Address) (*models.Account, error) {
	query := `
		SELECT balance::text, code, state, last_seq
		FROM ledger_accounts
		WHERE address = $1
	`
	var balance, code string
	acct := &models.Account{Address: addr}
	err := s.execer(ctx).QueryRow(ctx, query, addr.String()).Scan(&balance, &code, &acct.State, &acct.LastSeq)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	if acct.Balance, err = domain.ParseNanos(balance); err != nil {
		return nil, fmt.Errorf("decode balance: %w", err)
	}
	acct.Code = message.CodeKind(code)
	return acct, nil
}

// Commit writes the batch inside one database transaction.
func (s *Store) Commit(ctx context.Context, batch runtime.Batch) error {
	tx := batch.Transaction
	if tx == nil {
		return sentinel.ErrInvalidState
	}
	record, err := codec.Marshal(tx)
	if err != nil {
		return fmt.Errorf("encode transaction: %w", err)
	}
	pending, err := message.EncodeQueue(batch.Pending)
	if err != nil {
		return err
	}

	return txcontext.RunInTx(ctx, s.pool, s.timeout, func(ctx context.Context) error {
		db := s.execer(ctx)
		for _, acct := range batch.Accounts {
			_, err := db.Exec(ctx, `
				INSERT INTO ledger_accounts (address, balance, code, state, last_seq)
				VALUES ($1, $2::numeric, $3, $4, $5)
				ON CONFLICT (address) DO UPDATE
				SET balance = EXCLUDED.balance, code = EXCLUDED.code,
				    state = EXCLUDED.state, last_seq = EXCLUDED.last_seq
			`, acct.Address.String(), acct.Balance.Nanos(), string(acct.Code), acct.State, acct.LastSeq)
			if err != nil {
				return fmt.Errorf("upsert account: %w", err)
			}
		}

		_, err := db.Exec(ctx, `
			INSERT INTO ledger_transactions (id, seq, to_address, from_address, kind, success, exit_code, record, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, tx.ID, tx.Seq, tx.To.String(), tx.From.String(), string(tx.Kind), tx.Success, string(tx.ExitCode), record, tx.Time)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return sentinel.ErrConflict
			}
			return fmt.Errorf("insert transaction: %w", err)
		}

		tag, err := db.Exec(ctx, `
			UPDATE ledger_totals
			SET fees = fees + $1::numeric, inflow = inflow + $2::numeric, transactions = $3, pending = $4
			WHERE id = 1 AND transactions = $3 - 1
		`, tx.Fee.Nanos(), batch.Inflow.Nanos(), tx.Seq, pending)
		if err != nil {
			return fmt.Errorf("update totals: %w", err)
		}
		if tag.RowsAffected() != 1 {
			return sentinel.ErrConflict
		}
		return nil
	})
}

func (s *Store) Transaction(ctx context.Context, id string) (*models.Transaction, error) {
	var record []byte
	err := s.execer(ctx).QueryRow(ctx, `SELECT record FROM ledger_transactions WHERE id = $1`, id).Scan(&record)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return decodeTransaction(id, record)
}

// TransactionsByAccount returns the newest transactions delivered to addr
// first. A non-positive limit returns all of them.
func (s *Store) TransactionsByAccount(ctx context.Context, addr domain.Address, limit int) ([]*models.Transaction, error) {
	query := `
		SELECT id, record FROM ledger_transactions
		WHERE to_address = $1
		ORDER BY seq DESC
	`
	args := []any{addr.String()}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.execer(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []*models.Transaction
	for rows.Next() {
		var id string
		var record []byte
		if err := rows.Scan(&id, &record); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		tx, err := decodeTransaction(id, record)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (s *Store) Totals(ctx context.Context) (models.Totals, error) {
	var fees, inflow string
	var totals models.Totals
	err := s.execer(ctx).QueryRow(ctx, `
		SELECT fees::text, inflow::text, transactions FROM ledger_totals WHERE id = 1
	`).Scan(&fees, &inflow, &totals.Transactions)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Totals{}, nil
	}
	if err != nil {
		return models.Totals{}, fmt.Errorf("get totals: %w", err)
	}
	if totals.Fees, err = domain.ParseNanos(fees); err != nil {
		return models.Totals{}, err
	}
	if totals.Inflow, err = domain.ParseNanos(inflow); err != nil {
		return models.Totals{}, err
	}
	return totals, nil
}

func (s *Store) Pending(ctx context.Context) ([]message.Envelope, error) {
	var pending []byte
	err := s.execer(ctx).QueryRow(ctx, `SELECT pending FROM ledger_totals WHERE id = 1`).Scan(&pending)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pending queue: %w", err)
	}
	return message.DecodeQueue(pending)
}

// Health pings the database.
func (s *Store) Health(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func decodeTransaction(id string, record []byte) (*models.Transaction, error) {
	var tx models.Transaction
	if err := codec.Unmarshal(record, &tx); err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	tx.ID = id
	return &tx, nil
}
