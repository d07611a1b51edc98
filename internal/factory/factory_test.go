package factory_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/suite"

	"mintledger/internal/addressing"
	"mintledger/internal/factory"
	"mintledger/internal/item"
	"mintledger/internal/message"
	"mintledger/internal/runtime"
	"mintledger/internal/runtime/models"
	"mintledger/internal/runtime/store/memory"
	"mintledger/pkg/domain"
	dErrors "mintledger/pkg/domain-errors"
)

var (
	owner    = domain.Address{0x01}
	buyer    = domain.Address{0x02}
	stranger = domain.Address{0x03}

	price     = domain.Coins(1)
	tolerance = domain.MustParseAmount("0.01")
)

type FactorySuite struct {
	suite.Suite
	ctx     context.Context
	rt      *runtime.Runtime
	factory domain.Address
}

func TestFactorySuite(t *testing.T) {
	suite.Run(t, new(FactorySuite))
}

func (s *FactorySuite) SetupTest() {
	s.ctx = context.Background()
	s.rt = s.newRuntime(factory.DefaultConfig(), item.DefaultReserve)
	s.factory = addressing.ForFactory(owner)
}

func (s *FactorySuite) newRuntime(cfg factory.Config, itemReserve domain.Amount) *runtime.Runtime {
	rt := runtime.New(memory.New(),
		runtime.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		runtime.WithContract(factory.New(cfg)),
		runtime.WithContract(item.New(itemReserve)),
	)
	for _, addr := range []domain.Address{owner, buyer, stranger} {
		_, err := rt.Fund(s.ctx, addr, domain.Coins(100000))
		s.Require().NoError(err)
	}
	return rt
}

func (s *FactorySuite) send(from, to domain.Address, value domain.Amount, body message.Message, init *message.Init) models.Trace {
	tr, err := s.rt.Submit(s.ctx, message.Envelope{
		From: from, To: to, Value: value, Body: body, Init: init, Bounce: true,
	})
	s.Require().NoError(err)
	return tr
}

func (s *FactorySuite) deploy(value domain.Amount) models.Trace {
	init := addressing.FactoryInit(owner)
	return s.send(owner, s.factory, value, message.Configure{Content: []byte("ipfs://course"), Price: price}, &init)
}

func (s *FactorySuite) promote(value domain.Amount) models.Trace {
	return s.send(buyer, s.factory, value, message.Promote{ContentRef: []byte("lesson-1")}, nil)
}

func (s *FactorySuite) balance(addr domain.Address) domain.Amount {
	b, err := s.rt.Balance(s.ctx, addr)
	s.Require().NoError(err)
	return b
}

func (s *FactorySuite) factoryData() factory.Data {
	out, err := s.rt.Query(s.ctx, s.factory, factory.GetFactoryData{})
	s.Require().NoError(err)
	return out.(factory.Data)
}

func (s *FactorySuite) itemData(index uint64) item.Data {
	out, err := s.rt.Query(s.ctx, addressing.ForItem(s.factory, index), item.GetData{})
	s.Require().NoError(err)
	return out.(item.Data)
}

func (s *FactorySuite) TestDeploy() {
	s.Run("owner configure initializes the factory", func() {
		tr := s.deploy(domain.Coins(1))
		s.True(tr[1].Success)
		s.True(tr[1].Deployed)

		data := s.factoryData()
		s.Equal(uint64(0), data.NextIndex)
		s.Equal(owner, data.Owner)
		s.Equal("1", data.Price.String())
		s.Equal([]byte("ipfs://course"), data.Metadata)
		s.Equal("0.995", s.balance(s.factory).String())
	})

	s.Run("owner can reconfigure", func() {
		s.send(owner, s.factory, domain.MustParseAmount("0.1"),
			message.Configure{Content: []byte("ipfs://v2"), Price: domain.Coins(2)}, nil)
		data := s.factoryData()
		s.Equal("2", data.Price.String())
		s.Equal([]byte("ipfs://v2"), data.Metadata)
	})
}

func (s *FactorySuite) TestDeployBySomeoneElseIsRefunded() {
	init := addressing.FactoryInit(owner)
	tr := s.send(stranger, s.factory, domain.Coins(1), message.Configure{Price: domain.Nano(1)}, &init)

	s.False(tr[1].Success)
	s.Equal(dErrors.CodeUnauthorized, tr[1].ExitCode)
	s.Equal("0.995", tr[2].Value.String())
	s.Equal("99999.995", s.balance(stranger).String())

	_, err := s.rt.Query(s.ctx, s.factory, factory.GetFactoryData{})
	s.True(dErrors.HasCode(err, dErrors.CodeUninitialized))
}

func (s *FactorySuite) TestUnderpaymentRejection() {
	for _, value := range []string{"0.01", "0.02", "0.024999999"} {
		s.Run(value, func() {
			tr := s.deploy(domain.MustParseAmount(value))
			s.False(tr[1].Success)
			s.Equal(dErrors.CodeInsufficientPayment, tr[1].ExitCode)

			_, err := s.rt.Query(s.ctx, s.factory, factory.GetFactoryData{})
			s.True(dErrors.HasCode(err, dErrors.CodeUninitialized))
		})
	}

	s.Run("reserve plus fee is enough", func() {
		tr := s.deploy(domain.MustParseAmount("0.025"))
		s.True(tr[1].Success)
		s.Equal("0.02", s.balance(s.factory).String())
	})
}

func (s *FactorySuite) TestPromoteConservation() {
	s.deploy(domain.Coins(1))

	for _, extra := range []int64{0, 83284, 5_000_000_000} {
		before := s.balance(buyer)
		tr := s.promote(price.Add(domain.Nano(extra)))
		s.Empty(tr.Failed())
		after := s.balance(buyer)

		spent, err := before.Sub(after)
		s.Require().NoError(err)
		s.False(spent.LessThan(price), "buyer never pays less than the price")
		s.False(price.Add(tolerance).LessThan(spent), "buyer pays the price within tolerance")
		s.Equal(price.String(), spent.String())

		for _, tx := range tr {
			s.NoError(tx.CheckConservation())
		}
	}
}

func (s *FactorySuite) TestMonotonicIndexing() {
	s.deploy(domain.Coins(1))

	const n = 5
	for i := range uint64(n) {
		tr := s.promote(price)
		create := tr.Find(addressing.ForItem(s.factory, i), message.KindCreate)
		s.Require().NotNil(create, "item %d", i)
		s.True(create.Deployed)
	}

	s.Equal(uint64(n), s.factoryData().NextIndex)
	for i := range uint64(n) {
		data := s.itemData(i)
		s.Equal(i, data.Index)
		s.Equal(s.factory, data.Collection)
		s.Equal(buyer, data.Holder)
		s.Equal([]byte("lesson-1"), data.ContentRef)

		addr, err := s.rt.Query(s.ctx, s.factory, factory.GetItemAddress{Index: i})
		s.Require().NoError(err)
		s.Equal(addressing.ForItem(s.factory, i), addr)
	}
}

func (s *FactorySuite) TestPromoteRequiresPrice() {
	s.Run("before configure", func() {
		tr := s.promote(price)
		s.Equal(dErrors.CodeUninitialized, tr[1].ExitCode)
	})

	s.deploy(domain.Coins(1))
	s.Run("below price", func() {
		before := s.balance(buyer)
		tr := s.promote(domain.MustParseAmount("0.999"))
		s.Equal(dErrors.CodeInsufficientPayment, tr[1].ExitCode)
		s.Equal(uint64(0), s.factoryData().NextIndex)

		spent, err := before.Sub(s.balance(buyer))
		s.Require().NoError(err)
		s.Equal("0.005", spent.String())
	})
}

func (s *FactorySuite) TestAdmissionControl() {
	s.deploy(domain.Coins(1))
	s.promote(price)
	before := s.factoryData()
	balance := s.balance(s.factory)

	s.Run("configure from non-owner", func() {
		tr := s.send(stranger, s.factory, domain.Coins(1),
			message.Configure{Content: []byte("hijack"), Price: domain.Nano(1)}, nil)
		s.Equal(dErrors.CodeUnauthorized, tr[1].ExitCode)
		s.Equal(before, s.factoryData())
		s.Equal(balance.String(), s.balance(s.factory).String())
	})

	s.Run("withdraw from non-owner", func() {
		tr := s.send(stranger, s.factory, domain.MustParseAmount("0.1"), message.Withdraw{}, nil)
		s.Equal(dErrors.CodeUnauthorized, tr[1].ExitCode)
		s.Len(tr, 3, "no payout is emitted")
		s.Equal(balance.String(), s.balance(s.factory).String())
	})
}

func (s *FactorySuite) TestReserveFloor() {
	s.deploy(domain.MustParseAmount("0.05"))
	s.promote(price)

	ownerBefore := s.balance(owner)
	factoryBefore := s.balance(s.factory)
	value := domain.MustParseAmount("0.1")
	tr := s.send(owner, s.factory, value, message.Withdraw{}, nil)
	s.Empty(tr.Failed())

	s.Equal("0.02", s.balance(s.factory).String())
	expected := ownerBefore.SubFloor(value).
		Add(factoryBefore).Add(value).SubFloor(domain.MustParseAmount("0.005")).SubFloor(domain.MustParseAmount("0.02"))
	s.Equal(expected.String(), s.balance(owner).String())

	s.Run("withdraw at the floor moves nothing", func() {
		tr := s.send(owner, s.factory, domain.MustParseAmount("0.005"), message.Withdraw{}, nil)
		s.Empty(tr.Failed())
		s.Len(tr, 2)
		s.Equal("0.02", s.balance(s.factory).String())
	})

	s.Run("withdraw below the fee at the floor fails without a payout", func() {
		ownerBefore := s.balance(owner)
		for _, v := range []string{"0", "0.004999999"} {
			tr := s.send(owner, s.factory, domain.MustParseAmount(v), message.Withdraw{}, nil)
			s.Require().Len(tr, 2, v)
			s.False(tr[1].Success, v)
			s.Equal(dErrors.CodeInsufficientPayment, tr[1].ExitCode, v)
			s.Empty(tr[1].Outbound, v)
			s.Equal("0.02", s.balance(s.factory).String(), v)
		}
		s.Equal(ownerBefore.SubFloor(domain.MustParseAmount("0.004999999")).String(), s.balance(owner).String())
	})
}

func (s *FactorySuite) TestPlainValue() {
	s.Run("undeployed factory with init rejects plain value", func() {
		init := addressing.FactoryInit(owner)
		tr := s.send(buyer, s.factory, domain.Coins(1), nil, &init)
		s.Equal(dErrors.CodeUninitialized, tr[1].ExitCode)
	})

	s.deploy(domain.Coins(1))
	s.Run("configured factory accepts a top-up", func() {
		tr := s.send(buyer, s.factory, domain.Coins(1), nil, nil)
		s.True(tr[1].Success)
		s.Equal("1.99", s.balance(s.factory).String())
	})
}

func (s *FactorySuite) TestBouncedCreateKeepsCounter() {
	s.rt = s.newRuntime(factory.DefaultConfig(), domain.Coins(5))
	s.deploy(domain.Coins(1))

	tr := s.promote(price)
	create := tr.Find(addressing.ForItem(s.factory, 0), message.KindCreate)
	s.Require().NotNil(create)
	s.False(create.Success)
	s.Equal(dErrors.CodeInsufficientPayment, create.ExitCode)

	bounce := tr[len(tr)-1]
	s.True(bounce.Bounced)
	s.Equal(s.factory, bounce.To)
	s.True(bounce.Success)

	s.Equal(uint64(1), s.factoryData().NextIndex)
	_, err := s.rt.Query(s.ctx, addressing.ForItem(s.factory, 0), item.GetData{})
	s.True(dErrors.HasCode(err, dErrors.CodeUninitialized))
}

func (s *FactorySuite) TestRefundConfigureExcess() {
	cfg := factory.DefaultConfig()
	cfg.RefundConfigureExcess = true
	s.rt = s.newRuntime(cfg, item.DefaultReserve)

	tr := s.deploy(domain.Coins(50000))
	s.Require().Len(tr, 3)
	s.Equal(message.KindExcess, tr[2].Kind)
	s.Equal("0.02", s.balance(s.factory).String())
	s.Equal("99999.975", s.balance(owner).String())
}

func (s *FactorySuite) TestIdempotentRead() {
	s.deploy(domain.Coins(1))
	s.promote(price)

	first := s.factoryData()
	s.Equal(first, s.factoryData())
	s.Equal(s.itemData(0), s.itemData(0))
}
