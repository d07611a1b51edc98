package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"mintledger/internal/message"
	"mintledger/internal/runtime"
	"mintledger/internal/runtime/models"
	"mintledger/pkg/codec"
	"mintledger/pkg/domain"
	"mintledger/pkg/platform/sentinel"
)

const (
	accountKeyPrefix = "ledger:account:"
	txKeyPrefix      = "ledger:tx:"
	journalKeyPrefix = "ledger:journal:"
	totalsKey        = "ledger:totals"
	pendingKey       = "ledger:pending"

	commitRetries = 3
)

// Store is a Redis-backed runtime.Store. Commits use WATCH on the totals hash
// so concurrent writers from other processes cannot interleave sequence numbers.
type Store struct {
	client *redis.Client
}

// New constructs a Redis-backed ledger store.
func New(client *redis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Account(ctx context.Context, addr domain.Address) (*models.Account, error) {
	fields, err := s.client.HGetAll(ctx, accountKeyPrefix+addr.String()).Result()
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	if len(fields) == 0 {
		return nil, sentinel.ErrNotFound
	}
	acct := &models.Account{Address: addr, Code: message.CodeKind(fields["code"])}
	if acct.Balance, err = domain.ParseNanos(fields["balance"]); err != nil {
		return nil, fmt.Errorf("decode balance: %w", err)
	}
	if state := fields["state"]; state != "" {
		acct.State = []byte(state)
	}
	if acct.LastSeq, err = strconv.ParseUint(fields["last_seq"], 10, 64); err != nil {
		return nil, fmt.Errorf("decode last_seq: %w", err)
	}
	return acct, nil
}

// Commit applies the batch in a MULTI/EXEC block guarded by WATCH.
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

	apply := func(rtx *redis.Tx) error {
		totals, err := readTotals(ctx, rtx)
		if err != nil {
			return err
		}
		if tx.Seq != totals.Transactions+1 {
			return sentinel.ErrConflict
		}
		totals.Fees = totals.Fees.Add(tx.Fee)
		totals.Inflow = totals.Inflow.Add(batch.Inflow)
		totals.Transactions = tx.Seq

		_, err = rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, acct := range batch.Accounts {
				pipe.HSet(ctx, accountKeyPrefix+acct.Address.String(),
					"balance", acct.Balance.Nanos(),
					"code", string(acct.Code),
					"state", acct.State,
					"last_seq", acct.LastSeq,
				)
			}
			pipe.Set(ctx, txKeyPrefix+tx.ID, record, 0)
			pipe.ZAdd(ctx, journalKeyPrefix+tx.To.String(), redis.Z{Score: float64(tx.Seq), Member: tx.ID})
			pipe.HSet(ctx, totalsKey,
				"fees", totals.Fees.Nanos(),
				"inflow", totals.Inflow.Nanos(),
				"transactions", totals.Transactions,
			)
			if len(pending) == 0 {
				pipe.Del(ctx, pendingKey)
			} else {
				pipe.Set(ctx, pendingKey, pending, 0)
			}
			return nil
		})
		return err
	}

	for range commitRetries {
		err = s.client.Watch(ctx, apply, totalsKey)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return sentinel.ErrConflict
}

func (s *Store) Transaction(ctx context.Context, id string) (*models.Transaction, error) {
	record, err := s.client.Get(ctx, txKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	var tx models.Transaction
	if err := codec.Unmarshal(record, &tx); err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	tx.ID = id
	return &tx, nil
}

// TransactionsByAccount returns the newest transactions delivered to addr
// first. A non-positive limit returns all of them.
func (s *Store) TransactionsByAccount(ctx context.Context, addr domain.Address, limit int) ([]*models.Transaction, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	ids, err := s.client.ZRevRange(ctx, journalKeyPrefix+addr.String(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("list journal: %w", err)
	}
	out := make([]*models.Transaction, 0, len(ids))
	for _, id := range ids {
		tx, err := s.Transaction(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}

func (s *Store) Totals(ctx context.Context) (models.Totals, error) {
	return readTotals(ctx, s.client)
}

func (s *Store) Pending(ctx context.Context) ([]message.Envelope, error) {
	data, err := s.client.Get(ctx, pendingKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pending queue: %w", err)
	}
	return message.DecodeQueue(data)
}

func readTotals(ctx context.Context, c redis.Cmdable) (models.Totals, error) {
	fields, err := c.HGetAll(ctx, totalsKey).Result()
	if err != nil {
		return models.Totals{}, fmt.Errorf("get totals: %w", err)
	}
	var totals models.Totals
	if len(fields) == 0 {
		return totals, nil
	}
	if totals.Fees, err = domain.ParseNanos(fields["fees"]); err != nil {
		return models.Totals{}, err
	}
	if totals.Inflow, err = domain.ParseNanos(fields["inflow"]); err != nil {
		return models.Totals{}, err
	}
	if totals.Transactions, err = strconv.ParseUint(fields["transactions"], 10, 64); err != nil {
		return models.Totals{}, fmt.Errorf("decode transactions: %w", err)
	}
	return totals, nil
}
