// Package service implements the mint use cases on top of the ledger runtime.
// The sender of every external message is taken from the request context.
package service

import (
	"context"
	"log/slog"
	"time"

	"mintledger/internal/addressing"
	"mintledger/internal/factory"
	"mintledger/internal/item"
	"mintledger/internal/message"
	"mintledger/internal/mint/metrics"
	mintmodels "mintledger/internal/mint/models"
	"mintledger/internal/runtime"
	"mintledger/internal/runtime/models"
	"mintledger/pkg/domain"
	dErrors "mintledger/pkg/domain-errors"
	audit "mintledger/pkg/platform/audit"
	"mintledger/pkg/requestcontext"
)

// DefaultTolerance bounds how far a promote's net cost may drift from the
// mint price before it is reported.
var DefaultTolerance = domain.MustParseAmount("0.01")

const defaultJournalLimit = 20

// Ledger is the subset of the runtime used by the service.
type Ledger interface {
	Submit(ctx context.Context, env message.Envelope) (models.Trace, error)
	Fund(ctx context.Context, addr domain.Address, amount domain.Amount) (*models.Transaction, error)
	Query(ctx context.Context, addr domain.Address, q runtime.Query) (any, error)
	Account(ctx context.Context, addr domain.Address) (*models.Account, error)
	Transactions(ctx context.Context, addr domain.Address, limit int) ([]*models.Transaction, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service orchestrates factory and item messages.
type Service struct {
	ledger         Ledger
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	tolerance      domain.Amount
	faucet         bool
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTolerance(t domain.Amount) Option {
	return func(s *Service) {
		s.tolerance = t
	}
}

// WithFaucet enables Fund.
func WithFaucet(enabled bool) Option {
	return func(s *Service) {
		s.faucet = enabled
	}
}

// New constructs a Service.
func New(ledger Ledger, opts ...Option) *Service {
	s := &Service{
		ledger:    ledger,
		logger:    slog.Default(),
		tolerance: DefaultTolerance,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Configure sends Configure to the factory owned by owner, attaching the
// deployment payload so the first call creates the factory.
func (s *Service) Configure(ctx context.Context, owner domain.Address, value domain.Amount, content []byte, price domain.Amount) (*mintmodels.Receipt, error) {
	start := time.Now()
	defer s.observe("configure", start)

	if owner.IsZero() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "owner is required")
	}
	init := addressing.FactoryInit(owner)
	target := addressing.ForFactory(owner)
	receipt, err := s.submit(ctx, "configure", message.Envelope{
		To:     target,
		Value:  value,
		Body:   message.Configure{Content: content, Price: price},
		Init:   &init,
		Bounce: true,
	})
	if err != nil {
		return nil, err
	}
	if receipt.Success {
		s.emit(ctx, audit.EventFactoryConfigured, target, receipt, price.String())
	}
	return receipt, nil
}

// Promote pays for a new item. The item address and index are filled in only
// when the factory accepted the payment.
func (s *Service) Promote(ctx context.Context, factoryAddr domain.Address, value domain.Amount, contentRef []byte) (*mintmodels.Minted, error) {
	start := time.Now()
	defer s.observe("promote", start)

	var price *domain.Amount
	if data, err := s.FactoryData(ctx, factoryAddr); err == nil {
		price = &data.Price
	}

	receipt, err := s.submit(ctx, "promote", message.Envelope{
		To:     factoryAddr,
		Value:  value,
		Body:   message.Promote{ContentRef: contentRef},
		Bounce: true,
	})
	if err != nil {
		return nil, err
	}
	minted := &mintmodels.Minted{Receipt: *receipt}
	if !receipt.Success {
		return minted, nil
	}

	create := createOf(receipt.Trace)
	if create == nil || !create.Success {
		// The factory took payment but the item never came to exist.
		s.logger.WarnContext(ctx, "promote accepted without a created item",
			"factory", factoryAddr.Short(),
			"sender", receipt.Sender.Short(),
		)
		return minted, nil
	}
	minted.Item = create.To
	if body, err := message.Decode(create.Body); err == nil {
		if c, ok := body.(message.Create); ok {
			minted.Index = c.Index
		}
	}
	if s.metrics != nil {
		s.metrics.IncrementMints()
	}
	if price != nil {
		s.checkCost(ctx, factoryAddr, receipt, *price)
	}
	s.emit(ctx, audit.EventItemMinted, factoryAddr, receipt, value.String())
	return minted, nil
}

// createOf returns the first Create delivery in tr.
func createOf(tr models.Trace) *models.Transaction {
	for _, tx := range tr {
		if tx.Kind == message.KindCreate {
			return tx
		}
	}
	return nil
}

// Withdraw asks the factory to pay its balance above the reserve to its owner.
func (s *Service) Withdraw(ctx context.Context, factoryAddr domain.Address, value domain.Amount) (*mintmodels.Receipt, error) {
	start := time.Now()
	defer s.observe("withdraw", start)

	receipt, err := s.submit(ctx, "withdraw", message.Envelope{
		To:     factoryAddr,
		Value:  value,
		Body:   message.Withdraw{},
		Bounce: true,
	})
	if err != nil {
		return nil, err
	}
	if receipt.Success {
		if s.metrics != nil {
			s.metrics.IncrementWithdrawals()
		}
		s.emit(ctx, audit.EventFactoryWithdrawn, factoryAddr, receipt, receipt.Refunded.String())
	}
	return receipt, nil
}

// TransferItem sends a standard transfer request to an item. Items reject
// ownership changes, so a delivered transfer always yields a failed receipt.
func (s *Service) TransferItem(ctx context.Context, itemAddr domain.Address, value domain.Amount, req mintmodels.TransferRequest) (*mintmodels.Receipt, error) {
	start := time.Now()
	defer s.observe("transfer", start)

	return s.submit(ctx, "transfer", message.Envelope{
		To:    itemAddr,
		Value: value,
		Body: message.Transfer{
			QueryID:             req.QueryID,
			NewHolder:           req.NewHolder,
			ResponseDestination: req.ResponseDestination,
			CustomPayload:       req.CustomPayload,
			ForwardAmount:       req.ForwardAmount,
			ForwardPayload:      req.ForwardPayload,
		},
		Bounce: true,
	})
}

func (s *Service) FactoryData(ctx context.Context, factoryAddr domain.Address) (factory.Data, error) {
	out, err := s.ledger.Query(ctx, factoryAddr, factory.GetFactoryData{})
	if err != nil {
		return factory.Data{}, err
	}
	data, ok := out.(factory.Data)
	if !ok {
		return factory.Data{}, dErrors.New(dErrors.CodeBadRequest, "address is not a factory")
	}
	return data, nil
}

func (s *Service) ItemData(ctx context.Context, itemAddr domain.Address) (item.Data, error) {
	out, err := s.ledger.Query(ctx, itemAddr, item.GetData{})
	if err != nil {
		return item.Data{}, err
	}
	data, ok := out.(item.Data)
	if !ok {
		return item.Data{}, dErrors.New(dErrors.CodeBadRequest, "address is not an item")
	}
	return data, nil
}

// ItemAt returns the address of the item minted at index by factoryAddr.
func (s *Service) ItemAt(ctx context.Context, factoryAddr domain.Address, index uint64) (domain.Address, error) {
	out, err := s.ledger.Query(ctx, factoryAddr, factory.GetItemAddress{Index: index})
	if err != nil {
		return domain.Address{}, err
	}
	addr, ok := out.(domain.Address)
	if !ok {
		return domain.Address{}, dErrors.New(dErrors.CodeBadRequest, "address is not a factory")
	}
	return addr, nil
}

func (s *Service) Balance(ctx context.Context, addr domain.Address) (domain.Amount, error) {
	acct, err := s.ledger.Account(ctx, addr)
	if err != nil {
		return domain.Amount{}, err
	}
	return acct.Balance, nil
}

// Account returns the account at addr with up to limit recent transactions.
func (s *Service) Account(ctx context.Context, addr domain.Address, limit int) (*mintmodels.AccountView, error) {
	if limit <= 0 {
		limit = defaultJournalLimit
	}
	acct, err := s.ledger.Account(ctx, addr)
	if err != nil {
		return nil, err
	}
	txs, err := s.ledger.Transactions(ctx, addr, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list transactions")
	}
	return &mintmodels.AccountView{
		Address:      acct.Address,
		Balance:      acct.Balance,
		Code:         string(acct.Code),
		LastSeq:      acct.LastSeq,
		Transactions: txs,
	}, nil
}

// Fund credits amount to addr from outside the ledger. It is only available
// when the faucet is enabled.
func (s *Service) Fund(ctx context.Context, addr domain.Address, amount domain.Amount) (*models.Transaction, error) {
	if !s.faucet {
		return nil, dErrors.New(dErrors.CodeForbidden, "faucet is disabled")
	}
	tx, err := s.ledger.Fund(ctx, addr, amount)
	if err != nil {
		return nil, err
	}
	s.emitEvent(ctx, audit.Event{
		Action:  string(audit.EventAccountFunded),
		Subject: addr.String(),
		ActorID: senderString(ctx),
		TxID:    tx.ID,
		Value:   amount.String(),
	})
	return tx, nil
}

func (s *Service) submit(ctx context.Context, operation string, env message.Envelope) (*mintmodels.Receipt, error) {
	sender := requestcontext.Sender(ctx)
	if sender.IsZero() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "sender is required")
	}
	env.From = sender

	tr, err := s.ledger.Submit(ctx, env)
	if err != nil {
		return nil, err
	}
	receipt := newReceipt(sender, env.Value, tr)
	if !receipt.Success {
		if s.metrics != nil {
			s.metrics.IncrementRejection(operation, string(receipt.Code))
		}
		s.logger.InfoContext(ctx, "message rejected",
			"operation", operation,
			"to", env.To.Short(),
			"exit_code", receipt.Code,
			"reason", receipt.Reason,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return receipt, nil
}

func newReceipt(sender domain.Address, value domain.Amount, tr models.Trace) *mintmodels.Receipt {
	r := &mintmodels.Receipt{Trace: tr, Sender: sender, Success: true}
	if len(tr) > 1 {
		first := tr[1]
		r.Success = first.Success
		r.Code = first.ExitCode
		r.Reason = first.Reason
	}
	refunded := domain.Amount{}
	for i, tx := range tr {
		if i == 0 || tx.To != sender || !tx.Success {
			continue
		}
		refunded = refunded.Add(tx.Value)
	}
	r.Refunded = refunded
	r.Cost = value.SubFloor(refunded)
	return r
}

func (s *Service) checkCost(ctx context.Context, factoryAddr domain.Address, receipt *mintmodels.Receipt, price domain.Amount) {
	deviation := receipt.Cost.SubFloor(price).Add(price.SubFloor(receipt.Cost))
	if !s.tolerance.LessThan(deviation) {
		return
	}
	if s.metrics != nil {
		s.metrics.IncrementCostDeviation()
	}
	s.logger.WarnContext(ctx, "promote cost outside tolerance",
		"factory", factoryAddr.Short(),
		"price", price.String(),
		"cost", receipt.Cost.String(),
		"tolerance", s.tolerance.String(),
	)
}

func (s *Service) emit(ctx context.Context, action audit.AuditEvent, subject domain.Address, receipt *mintmodels.Receipt, value string) {
	event := audit.Event{
		Action:   string(action),
		Subject:  subject.String(),
		ActorID:  receipt.Sender.String(),
		Decision: "accepted",
		Value:    value,
	}
	if len(receipt.Trace) > 1 {
		event.TxID = receipt.Trace[1].ID
	}
	s.emitEvent(ctx, event)
}

func (s *Service) emitEvent(ctx context.Context, event audit.Event) {
	if s.auditPublisher == nil {
		return
	}
	event.RequestID = requestcontext.RequestID(ctx)
	event.ClientIP = requestcontext.ClientIP(ctx)
	event.Client = requestcontext.Client(ctx)
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"action", event.Action,
			"error", err,
		)
	}
}

func (s *Service) observe(operation string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveOperation(operation, start)
	}
}

func senderString(ctx context.Context) string {
	if sender := requestcontext.Sender(ctx); !sender.IsZero() {
		return sender.String()
	}
	return ""
}
