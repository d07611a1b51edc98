// Package runtime delivers messages between ledger accounts.
//
// Every delivery is one transaction: the inbound value is credited, the
// destination contract runs, and either its new state, balance and outbound
// messages are committed together or nothing but the fee is kept and the rest
// of the value bounces back. Transactions never interleave; a Submit drains
// the whole FIFO cascade its external message produces before returning.
package runtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"mintledger/internal/message"
	"mintledger/internal/runtime/metrics"
	"mintledger/internal/runtime/models"
	"mintledger/pkg/domain"
	dErrors "mintledger/pkg/domain-errors"
	"mintledger/pkg/platform/sentinel"
	"mintledger/pkg/requestcontext"
)

const defaultMaxCascade = 256

// DefaultProcessingFee is charged for every message executed by contract code.
var DefaultProcessingFee = domain.MustParseAmount("0.005")

// Runtime owns message delivery for a set of contract codes.
type Runtime struct {
	mu         sync.Mutex
	store      Store
	contracts  map[message.CodeKind]Contract
	fee        domain.Amount
	maxCascade int
	seq        uint64
	// synced means seq matches the store and its pending queue is empty.
	synced bool

	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	observers []Observer
}

type Option func(*Runtime)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runtime) {
		r.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(r *Runtime) {
		r.tracer = tracer
	}
}

// WithObserver registers an observer for committed transactions.
func WithObserver(o Observer) Option {
	return func(r *Runtime) {
		r.observers = append(r.observers, o)
	}
}

// WithContract makes a contract code deployable.
func WithContract(c Contract) Option {
	return func(r *Runtime) {
		r.contracts[c.Code()] = c
	}
}

// WithProcessingFee overrides DefaultProcessingFee.
func WithProcessingFee(fee domain.Amount) Option {
	return func(r *Runtime) {
		r.fee = fee
	}
}

// WithMaxCascade bounds the transactions one Submit may produce.
func WithMaxCascade(n int) Option {
	return func(r *Runtime) {
		if n > 0 {
			r.maxCascade = n
		}
	}
}

// New constructs a Runtime over store.
func New(store Store, opts ...Option) *Runtime {
	r := &Runtime{
		store:      store,
		contracts:  make(map[message.CodeKind]Contract),
		fee:        DefaultProcessingFee,
		maxCascade: defaultMaxCascade,
		logger:     slog.Default(),
		tracer:     otel.Tracer("mintledger/internal/runtime"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ProcessingFee returns the per-message fee charged by contracts.
func (r *Runtime) ProcessingFee() domain.Amount {
	return r.fee
}

// Submit debits env.Value from the sending wallet and delivers env, then every
// message the cascade produces, in FIFO order. The returned trace starts with
// the wallet debit.
//
// Messages not yet delivered are committed alongside each transaction. If a
// commit fails mid-cascade the rest stays pending in the store and is
// delivered first by the next Submit, Fund or Recover.
//
// Failures inside the cascade are not errors: they are recorded on the
// transactions of the trace. An error is returned only when the message is
// rejected before any value moves, or when the store or a ledger invariant
// fails.
func (r *Runtime) Submit(ctx context.Context, env message.Envelope) (models.Trace, error) {
	if env.From.IsZero() || env.To.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "sender and destination are required")
	}
	if env.Bounced {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "external messages cannot be bounced")
	}
	if err := ctx.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "submit cancelled")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	if _, err := r.sync(ctx); err != nil {
		return nil, err
	}

	wallet, _, err := r.load(ctx, env.From)
	if err != nil {
		return nil, err
	}
	if wallet.HasCode() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "contracts cannot originate external messages")
	}
	after, err := wallet.Balance.Sub(env.Value)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeInsufficientPayment, "wallet balance does not cover attached value")
	}

	external := &models.Transaction{
		Origin:        models.OriginExternal,
		Time:          requestcontext.Now(ctx),
		From:          env.From,
		To:            env.From,
		Kind:          env.Kind(),
		Value:         domain.Amount{},
		Fee:           domain.Amount{},
		BalanceBefore: wallet.Balance,
		BalanceAfter:  after,
		Success:       true,
		Outbound:      []models.Outbound{summarize(env)},
	}
	wallet.Balance = after
	// The debit and the envelope it pays for are stored together.
	queue := []message.Envelope{env}
	if err := r.commit(ctx, external, []*models.Account{wallet}, domain.Amount{}, queue); err != nil {
		return nil, err
	}

	cascade, err := r.drain(ctx, queue)
	tr := append(models.Trace{external}, cascade...)
	if err != nil {
		return tr, err
	}

	if r.metrics != nil {
		r.metrics.ObserveSubmit(start, len(tr))
	}
	return tr, nil
}

// Recover delivers messages a failed Submit left in the store's pending queue.
// Submit and Fund recover on their own before doing anything else; calling
// Recover at startup settles the ledger before traffic arrives.
func (r *Runtime) Recover(ctx context.Context) (models.Trace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.synced = false
	return r.sync(ctx)
}

// Fund credits amount to addr from outside the ledger.
func (r *Runtime) Fund(ctx context.Context, addr domain.Address, amount domain.Amount) (*models.Transaction, error) {
	if addr.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "address is required")
	}
	if amount.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "amount must be positive")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.sync(ctx); err != nil {
		return nil, err
	}
	acct, _, err := r.load(ctx, addr)
	if err != nil {
		return nil, err
	}
	tx := &models.Transaction{
		Origin:        models.OriginFunding,
		Time:          requestcontext.Now(ctx),
		To:            addr,
		Kind:          message.KindNone,
		Value:         amount,
		Fee:           domain.Amount{},
		BalanceBefore: acct.Balance,
		BalanceAfter:  acct.Balance.Add(amount),
		Success:       true,
	}
	acct.Balance = tx.BalanceAfter
	if err := r.commit(ctx, tx, []*models.Account{acct}, amount, nil); err != nil {
		return nil, err
	}
	return tx, nil
}

// Query runs a read-only getter on the contract at addr.
func (r *Runtime) Query(ctx context.Context, addr domain.Address, q Query) (any, error) {
	acct, _, err := r.load(ctx, addr)
	if err != nil {
		return nil, err
	}
	if !acct.HasCode() {
		return nil, dErrors.New(dErrors.CodeUninitialized, "no contract deployed at "+addr.String())
	}
	contract, ok := r.contracts[acct.Code]
	if !ok {
		return nil, dErrors.New(dErrors.CodeInternal, "unknown contract code "+string(acct.Code))
	}
	return contract.Query(addr, acct.State, q)
}

// Account returns the account at addr. Unknown addresses yield an empty wallet.
func (r *Runtime) Account(ctx context.Context, addr domain.Address) (*models.Account, error) {
	acct, _, err := r.load(ctx, addr)
	return acct, err
}

// Balance returns the balance held at addr.
func (r *Runtime) Balance(ctx context.Context, addr domain.Address) (domain.Amount, error) {
	acct, _, err := r.load(ctx, addr)
	if err != nil {
		return domain.Amount{}, err
	}
	return acct.Balance, nil
}

// Totals returns ledger-wide counters.
func (r *Runtime) Totals(ctx context.Context) (models.Totals, error) {
	return r.store.Totals(ctx)
}

// Transactions lists the most recent transactions delivered to addr.
func (r *Runtime) Transactions(ctx context.Context, addr domain.Address, limit int) ([]*models.Transaction, error) {
	return r.store.TransactionsByAccount(ctx, addr, limit)
}

func (r *Runtime) load(ctx context.Context, addr domain.Address) (*models.Account, bool, error) {
	acct, err := r.store.Account(ctx, addr)
	if errors.Is(err, sentinel.ErrNotFound) {
		return models.NewAccount(addr), false, nil
	}
	if err != nil {
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "load account")
	}
	return acct, true, nil
}

// sync reloads the sequence counter and drains any queue left pending by a
// failed Submit. It is a no-op until a commit or delivery fails.
func (r *Runtime) sync(ctx context.Context) (models.Trace, error) {
	if r.synced {
		return nil, nil
	}
	totals, err := r.store.Totals(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load ledger totals")
	}
	pending, err := r.store.Pending(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load pending messages")
	}
	r.seq = totals.Transactions
	r.synced = true
	if len(pending) == 0 {
		return nil, nil
	}

	r.logger.WarnContext(ctx, "resuming undelivered messages",
		"count", len(pending),
		"seq", r.seq,
	)
	return r.drain(ctx, pending)
}

// drain delivers queue in FIFO order. Every delivery commits the rest of the
// queue as the store's pending messages, so after a failure the store still
// holds exactly what was not delivered.
func (r *Runtime) drain(ctx context.Context, queue []message.Envelope) (models.Trace, error) {
	var tr models.Trace
	for len(queue) > 0 {
		if len(tr) >= r.maxCascade {
			r.synced = false
			return tr, dErrors.New(dErrors.CodeInvariantViolation, "cascade exceeded transaction limit")
		}
		tx, rest, err := r.deliver(ctx, queue[0], queue[1:])
		if err != nil {
			r.synced = false
			return tr, err
		}
		tr = append(tr, tx)
		queue = rest
	}
	return tr, nil
}

// commit seals tx, checks conservation and persists the batch together with
// the messages still waiting for delivery.
func (r *Runtime) commit(ctx context.Context, tx *models.Transaction, accounts []*models.Account, inflow domain.Amount, pending []message.Envelope) error {
	tx.Seq = r.seq + 1
	if err := tx.CheckConservation(); err != nil {
		r.logger.ErrorContext(ctx, "ledger invariant violated",
			"seq", tx.Seq,
			"to", tx.To.String(),
			"kind", tx.Kind,
			"error", err.Error(),
		)
		r.synced = false
		return err
	}
	if err := tx.Seal(); err != nil {
		r.synced = false
		return err
	}
	for _, acct := range accounts {
		acct.LastSeq = tx.Seq
	}
	batch := Batch{Accounts: accounts, Transaction: tx, Inflow: inflow, Pending: pending}
	if err := r.store.Commit(ctx, batch); err != nil {
		// The store may have applied the batch before failing; reload.
		r.synced = false
		return dErrors.Wrap(err, dErrors.CodeInternal, "commit transaction")
	}
	r.seq = tx.Seq

	if r.metrics != nil {
		r.metrics.ObserveTransaction(string(tx.Kind), string(tx.ExitCode), !tx.Success && len(tx.Outbound) > 0, tx.Fee.NanoFloat())
		if tx.Deployed {
			r.metrics.IncrementDeployments(string(tx.Code))
		}
	}
	for _, o := range r.observers {
		o.ObserveTransaction(ctx, tx)
	}
	return nil
}

func summarize(env message.Envelope) models.Outbound {
	return models.Outbound{
		To:      env.To,
		Value:   env.Value,
		Kind:    env.Kind(),
		Deploy:  env.Init != nil,
		Bounced: env.Bounced,
	}
}
