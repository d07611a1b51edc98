package service_test

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Ledger,AuditPublisher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"mintledger/internal/addressing"
	"mintledger/internal/factory"
	"mintledger/internal/item"
	"mintledger/internal/message"
	"mintledger/internal/mint/metrics"
	mintmodels "mintledger/internal/mint/models"
	"mintledger/internal/mint/service"
	"mintledger/internal/mint/service/mocks"
	"mintledger/internal/runtime"
	"mintledger/internal/runtime/models"
	"mintledger/internal/runtime/store/memory"
	"mintledger/pkg/domain"
	dErrors "mintledger/pkg/domain-errors"
	audit "mintledger/pkg/platform/audit"
	"mintledger/pkg/platform/audit/publisher"
	auditmemory "mintledger/pkg/platform/audit/store/memory"
	"mintledger/pkg/requestcontext"
)

var (
	owner    = domain.Address{0x0a}
	buyer    = domain.Address{0x0b}
	stranger = domain.Address{0x0c}
	price    = domain.Coins(1)
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func as(sender domain.Address) context.Context {
	return requestcontext.WithSender(context.Background(), sender)
}

// ServiceSuite drives the service against a real runtime.
type ServiceSuite struct {
	suite.Suite
	rt      *runtime.Runtime
	audits  *auditmemory.InMemoryStore
	service *service.Service
	factory domain.Address
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.rt = runtime.New(memory.New(),
		runtime.WithLogger(discard()),
		runtime.WithContract(factory.New(factory.DefaultConfig())),
		runtime.WithContract(item.New(item.DefaultReserve)),
	)
	for _, addr := range []domain.Address{owner, buyer, stranger} {
		_, err := s.rt.Fund(context.Background(), addr, domain.Coins(100))
		s.Require().NoError(err)
	}
	s.audits = auditmemory.NewInMemoryStore()
	s.service = service.New(s.rt,
		service.WithLogger(discard()),
		service.WithAuditPublisher(publisher.NewPublisher(s.audits)),
		service.WithMetrics(metrics.NewWith(nil)),
	)
	s.factory = addressing.ForFactory(owner)
}

func (s *ServiceSuite) configure() {
	receipt, err := s.service.Configure(as(owner), owner, domain.Coins(1), []byte("ipfs://course"), price)
	s.Require().NoError(err)
	s.Require().True(receipt.Success)
}

func (s *ServiceSuite) promote(value domain.Amount) *mintmodels.Minted {
	minted, err := s.service.Promote(as(buyer), s.factory, value, []byte("lesson"))
	s.Require().NoError(err)
	return minted
}

func (s *ServiceSuite) actions() []string {
	events, err := s.audits.ListBySubject(context.Background(), s.factory.String())
	s.Require().NoError(err)
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Action)
	}
	return out
}

func (s *ServiceSuite) TestConfigureDeploysFactory() {
	s.configure()

	data, err := s.service.FactoryData(context.Background(), s.factory)
	s.Require().NoError(err)
	s.Equal(owner, data.Owner)
	s.Equal(price.String(), data.Price.String())
	s.Equal(uint64(0), data.NextIndex)
	s.Equal([]string{string(audit.EventFactoryConfigured)}, s.actions())
}

func (s *ServiceSuite) TestConfigureForAnotherOwnerIsRejected() {
	receipt, err := s.service.Configure(as(stranger), owner, domain.Coins(1), []byte("x"), price)
	s.Require().NoError(err)
	s.False(receipt.Success)
	s.Equal(dErrors.CodeUnauthorized, receipt.Code)
	s.Equal("0.995", receipt.Refunded.String())
	s.Equal("0.005", receipt.Cost.String())
	s.Empty(s.actions())

	_, err = s.service.FactoryData(context.Background(), s.factory)
	s.True(dErrors.HasCode(err, dErrors.CodeUninitialized))
}

func (s *ServiceSuite) TestPromoteMintsSequentialItems() {
	s.configure()

	first := s.promote(domain.MustParseAmount("1.5"))
	s.True(first.Success)
	s.Equal(uint64(0), first.Index)
	s.Equal(addressing.ForItem(s.factory, 0), first.Item)
	s.Equal("1", first.Cost.String(), "the sender pays exactly the price")
	s.Equal("0.5", first.Refunded.String())

	second := s.promote(price)
	s.Equal(uint64(1), second.Index)

	addr, err := s.service.ItemAt(context.Background(), s.factory, 1)
	s.Require().NoError(err)
	s.Equal(second.Item, addr)

	data, err := s.service.ItemData(context.Background(), first.Item)
	s.Require().NoError(err)
	s.Equal(buyer, data.Holder)
	s.Equal([]byte("lesson"), data.ContentRef)

	s.Equal([]string{
		string(audit.EventFactoryConfigured),
		string(audit.EventItemMinted),
		string(audit.EventItemMinted),
	}, s.actions())
}

func (s *ServiceSuite) TestPromoteReportsNoItemWhenCreateFails() {
	// The item contract demands more than the factory forwards.
	s.rt = runtime.New(memory.New(),
		runtime.WithLogger(discard()),
		runtime.WithContract(factory.New(factory.DefaultConfig())),
		runtime.WithContract(item.New(domain.Coins(5))),
	)
	for _, addr := range []domain.Address{owner, buyer} {
		_, err := s.rt.Fund(context.Background(), addr, domain.Coins(100))
		s.Require().NoError(err)
	}
	m := metrics.NewWith(prometheus.NewRegistry())
	s.service = service.New(s.rt,
		service.WithLogger(discard()),
		service.WithAuditPublisher(publisher.NewPublisher(s.audits)),
		service.WithMetrics(m),
	)
	s.configure()

	minted := s.promote(domain.MustParseAmount("1.5"))
	s.True(minted.Success, "the factory itself accepted the payment")
	s.True(minted.Item.IsZero())
	s.Zero(promtest.ToFloat64(m.Mints))
	s.NotContains(s.actions(), string(audit.EventItemMinted))

	_, err := s.service.ItemData(context.Background(), addressing.ForItem(s.factory, 0))
	s.True(dErrors.HasCode(err, dErrors.CodeUninitialized))
}

func (s *ServiceSuite) TestPromoteUnderpaid() {
	s.configure()

	minted := s.promote(domain.MustParseAmount("0.5"))
	s.False(minted.Success)
	s.Equal(dErrors.CodeInsufficientPayment, minted.Code)
	s.True(minted.Item.IsZero())
	s.Equal("0.495", minted.Refunded.String())
}

func (s *ServiceSuite) TestTransferIsAlwaysRejected() {
	s.configure()
	minted := s.promote(price)

	receipt, err := s.service.TransferItem(as(buyer), minted.Item, domain.MustParseAmount("0.1"), mintmodels.TransferRequest{
		NewHolder:           stranger,
		ResponseDestination: buyer,
	})
	s.Require().NoError(err)
	s.False(receipt.Success)
	s.Equal(dErrors.CodeTransferNotSupported, receipt.Code)
	s.Equal("0.095", receipt.Refunded.String())

	data, err := s.service.ItemData(context.Background(), minted.Item)
	s.Require().NoError(err)
	s.Equal(buyer, data.Holder)
}

func (s *ServiceSuite) TestWithdraw() {
	s.configure()
	s.promote(domain.MustParseAmount("1.5"))
	s.promote(price)

	s.Run("non-owner is rejected", func() {
		receipt, err := s.service.Withdraw(as(stranger), s.factory, domain.MustParseAmount("0.1"))
		s.Require().NoError(err)
		s.Equal(dErrors.CodeUnauthorized, receipt.Code)
		balance, err := s.service.Balance(context.Background(), s.factory)
		s.Require().NoError(err)
		s.Equal("2.935", balance.String())
	})

	s.Run("owner collects everything above the reserve", func() {
		receipt, err := s.service.Withdraw(as(owner), s.factory, domain.MustParseAmount("0.05"))
		s.Require().NoError(err)
		s.True(receipt.Success)
		s.Equal("2.96", receipt.Refunded.String())
		balance, err := s.service.Balance(context.Background(), s.factory)
		s.Require().NoError(err)
		s.Equal("0.02", balance.String())
	})

	actions := s.actions()
	s.Equal(string(audit.EventFactoryWithdrawn), actions[len(actions)-1])
}

func (s *ServiceSuite) TestSenderIsRequired() {
	_, err := s.service.Promote(context.Background(), s.factory, price, nil)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *ServiceSuite) TestFaucet() {
	_, err := s.service.Fund(as(owner), buyer, domain.Coins(5))
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	faucet := service.New(s.rt, service.WithFaucet(true), service.WithAuditPublisher(publisher.NewPublisher(s.audits)))
	tx, err := faucet.Fund(as(owner), buyer, domain.Coins(5))
	s.Require().NoError(err)
	s.Equal(models.OriginFunding, tx.Origin)

	view, err := faucet.Account(context.Background(), buyer, 0)
	s.Require().NoError(err)
	s.Equal("105", view.Balance.String())
	s.Len(view.Transactions, 2)

	events, err := s.audits.ListBySubject(context.Background(), buyer.String())
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(string(audit.EventAccountFunded), events[0].Action)
	s.Equal(owner.String(), events[0].ActorID)
}

// ServiceCollaboratorSuite covers behavior that depends on collaborator failures.
//
// Justification: the runtime never returns these errors or shapes on its own.
type ServiceCollaboratorSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	ledger  *mocks.MockLedger
	audit   *mocks.MockAuditPublisher
	metrics *metrics.Metrics
	service *service.Service
}

func TestServiceCollaboratorSuite(t *testing.T) {
	suite.Run(t, new(ServiceCollaboratorSuite))
}

func (s *ServiceCollaboratorSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.ledger = mocks.NewMockLedger(s.ctrl)
	s.audit = mocks.NewMockAuditPublisher(s.ctrl)
	s.metrics = metrics.NewWith(prometheus.NewRegistry())
	s.service = service.New(s.ledger,
		service.WithLogger(discard()),
		service.WithAuditPublisher(s.audit),
		service.WithMetrics(s.metrics),
	)
}

func (s *ServiceCollaboratorSuite) TearDownTest() {
	s.ctrl.Finish()
}

func trace(sender, to domain.Address, value domain.Amount, delivered *models.Transaction, rest ...*models.Transaction) models.Trace {
	external := &models.Transaction{Origin: models.OriginExternal, From: sender, To: sender, Success: true}
	delivered.From = sender
	delivered.To = to
	delivered.Value = value
	return append(models.Trace{external, delivered}, rest...)
}

func (s *ServiceCollaboratorSuite) TestSubmitErrorIsReturned() {
	s.ledger.EXPECT().Submit(gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeInternal, "commit transaction"))

	_, err := s.service.Configure(as(owner), owner, price, nil, price)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *ServiceCollaboratorSuite) TestSenderComesFromContext() {
	target := addressing.ForFactory(owner)
	s.ledger.EXPECT().Submit(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, env message.Envelope) (models.Trace, error) {
			s.Equal(owner, env.From)
			s.Equal(target, env.To)
			s.True(env.Bounce)
			s.Require().NotNil(env.Init)
			s.Equal(target, addressing.Of(*env.Init))
			return trace(owner, target, price, &models.Transaction{ID: "tx", Success: true}), nil
		})
	s.audit.EXPECT().Emit(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e audit.Event) error {
			s.Equal(string(audit.EventFactoryConfigured), e.Action)
			s.Equal("tx", e.TxID)
			s.Equal("req-9", e.RequestID)
			return nil
		})

	ctx := requestcontext.WithRequestID(as(owner), "req-9")
	receipt, err := s.service.Configure(ctx, owner, price, nil, price)
	s.Require().NoError(err)
	s.True(receipt.Success)
}

func (s *ServiceCollaboratorSuite) TestAuditFailureDoesNotFailTheOperation() {
	target := addressing.ForFactory(owner)
	s.ledger.EXPECT().Submit(gomock.Any(), gomock.Any()).
		Return(trace(owner, target, price, &models.Transaction{Success: true}), nil)
	s.audit.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(errors.New("audit down"))

	receipt, err := s.service.Configure(as(owner), owner, price, nil, price)
	s.Require().NoError(err)
	s.True(receipt.Success)
}

func (s *ServiceCollaboratorSuite) TestRejectionsAreCounted() {
	target := addressing.ForFactory(owner)
	s.ledger.EXPECT().Query(gomock.Any(), target, factory.GetFactoryData{}).
		Return(nil, dErrors.New(dErrors.CodeUninitialized, "factory is not configured"))
	s.ledger.EXPECT().Submit(gomock.Any(), gomock.Any()).
		Return(trace(buyer, target, price, &models.Transaction{Success: false, ExitCode: dErrors.CodeUninitialized}), nil)

	minted, err := s.service.Promote(as(buyer), target, price, nil)
	s.Require().NoError(err)
	s.False(minted.Success)
	s.Equal(float64(1), promtest.ToFloat64(s.metrics.Rejections.WithLabelValues("promote", string(dErrors.CodeUninitialized))))
}

func (s *ServiceCollaboratorSuite) TestCostDeviationIsReported() {
	target := addressing.ForFactory(owner)
	value := domain.MustParseAmount("1.5")
	s.ledger.EXPECT().Query(gomock.Any(), target, factory.GetFactoryData{}).
		Return(factory.Data{Owner: owner, Price: price}, nil)
	create := &models.Transaction{Kind: message.KindCreate, To: addressing.ForItem(target, 0), Success: true}
	refund := &models.Transaction{To: buyer, Value: domain.MustParseAmount("0.2"), Success: true}
	s.ledger.EXPECT().Submit(gomock.Any(), gomock.Any()).
		Return(trace(buyer, target, value, &models.Transaction{Success: true}, create, refund), nil)
	s.audit.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)

	minted, err := s.service.Promote(as(buyer), target, value, nil)
	s.Require().NoError(err)
	s.Equal("1.3", minted.Cost.String())
	s.Equal(float64(1), promtest.ToFloat64(s.metrics.CostDeviations))
	s.Equal(float64(1), promtest.ToFloat64(s.metrics.Mints))
}

func (s *ServiceCollaboratorSuite) TestFailedCreateIsNotCountedAsMint() {
	target := addressing.ForFactory(owner)
	s.ledger.EXPECT().Query(gomock.Any(), target, factory.GetFactoryData{}).
		Return(factory.Data{Owner: owner, Price: price}, nil)
	create := &models.Transaction{
		Kind:     message.KindCreate,
		To:       addressing.ForItem(target, 0),
		Success:  false,
		ExitCode: dErrors.CodeInsufficientPayment,
	}
	s.ledger.EXPECT().Submit(gomock.Any(), gomock.Any()).
		Return(trace(buyer, target, price, &models.Transaction{Success: true}, create), nil)
	// No audit expectation: an item that does not exist is never announced.

	minted, err := s.service.Promote(as(buyer), target, price, nil)
	s.Require().NoError(err)
	s.True(minted.Item.IsZero())
	s.Zero(minted.Index)
	s.Zero(promtest.ToFloat64(s.metrics.Mints))
}

func (s *ServiceCollaboratorSuite) TestQueryResultTypeIsChecked() {
	s.ledger.EXPECT().Query(gomock.Any(), owner, factory.GetFactoryData{}).Return(item.Data{}, nil)

	_, err := s.service.FactoryData(context.Background(), owner)
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}
