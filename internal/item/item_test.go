package item_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/suite"

	"mintledger/internal/addressing"
	"mintledger/internal/item"
	"mintledger/internal/message"
	"mintledger/internal/runtime"
	"mintledger/internal/runtime/models"
	"mintledger/internal/runtime/store/memory"
	"mintledger/pkg/domain"
	dErrors "mintledger/pkg/domain-errors"
)

// A wallet stands in for the collection so Create can be sent directly.
var (
	collection = domain.Address{0xc0}
	holder     = domain.Address{0xd0}
	intruder   = domain.Address{0xe0}
)

type ItemSuite struct {
	suite.Suite
	ctx  context.Context
	rt   *runtime.Runtime
	init message.Init
	addr domain.Address
}

func TestItemSuite(t *testing.T) {
	suite.Run(t, new(ItemSuite))
}

func (s *ItemSuite) SetupTest() {
	s.ctx = context.Background()
	s.rt = runtime.New(memory.New(),
		runtime.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		runtime.WithContract(item.New(item.DefaultReserve)),
	)
	for _, addr := range []domain.Address{collection, holder, intruder} {
		_, err := s.rt.Fund(s.ctx, addr, domain.Coins(10))
		s.Require().NoError(err)
	}
	s.init = addressing.ItemInit(collection, 0)
	s.addr = addressing.Of(s.init)
}

func (s *ItemSuite) send(from domain.Address, value domain.Amount, body message.Message, init *message.Init) models.Trace {
	tr, err := s.rt.Submit(s.ctx, message.Envelope{
		From: from, To: s.addr, Value: value, Body: body, Init: init, Bounce: true,
	})
	s.Require().NoError(err)
	return tr
}

func (s *ItemSuite) create(from domain.Address, value domain.Amount, body message.Create) models.Trace {
	return s.send(from, value, body, &s.init)
}

func (s *ItemSuite) validCreate() message.Create {
	return message.Create{Collection: collection, Index: 0, Holder: holder, ContentRef: []byte("lesson")}
}

func (s *ItemSuite) data() item.Data {
	out, err := s.rt.Query(s.ctx, s.addr, item.GetData{})
	s.Require().NoError(err)
	return out.(item.Data)
}

func (s *ItemSuite) TestCreate() {
	s.Run("rejects sender other than the collection", func() {
		tr := s.create(intruder, domain.Coins(1), s.validCreate())
		s.Equal(dErrors.CodeUnauthorized, tr[1].ExitCode)
		s.False(tr[1].Deployed)
	})

	s.Run("rejects fields that differ from the deployment data", func() {
		body := s.validCreate()
		body.Index = 1
		tr := s.create(collection, domain.Coins(1), body)
		s.Equal(dErrors.CodeInvalidInput, tr[1].ExitCode)
	})

	s.Run("rejects a zero holder", func() {
		body := s.validCreate()
		body.Holder = domain.Address{}
		tr := s.create(collection, domain.Coins(1), body)
		s.Equal(dErrors.CodeInvalidInput, tr[1].ExitCode)
	})

	s.Run("rejects value below reserve plus fee", func() {
		tr := s.create(collection, domain.MustParseAmount("0.02"), s.validCreate())
		s.Equal(dErrors.CodeInsufficientPayment, tr[1].ExitCode)

		_, err := s.rt.Query(s.ctx, s.addr, item.GetData{})
		s.True(dErrors.HasCode(err, dErrors.CodeUninitialized))
	})

	s.Run("stores data and refunds the excess to the holder", func() {
		tr := s.create(collection, domain.Coins(1), s.validCreate())
		s.Require().Len(tr, 3)
		s.True(tr[1].Deployed)
		s.Equal(holder, tr[2].To)
		s.Equal(message.KindExcess, tr[2].Kind)
		s.Equal("0.975", tr[2].Value.String())

		b, err := s.rt.Balance(s.ctx, s.addr)
		s.Require().NoError(err)
		s.Equal("0.02", b.String())

		data := s.data()
		s.True(data.Initialized)
		s.Equal(collection, data.Collection)
		s.Equal(uint64(0), data.Index)
		s.Equal(holder, data.Holder)
		s.Equal([]byte("lesson"), data.ContentRef)
	})

	s.Run("second create conflicts", func() {
		body := s.validCreate()
		body.Holder = intruder
		tr := s.create(collection, domain.Coins(1), body)
		s.Equal(dErrors.CodeConflict, tr[1].ExitCode)
		s.Equal(holder, s.data().Holder)
	})
}

func (s *ItemSuite) TestTransferLock() {
	transfer := message.Transfer{
		QueryID:             7,
		NewHolder:           intruder,
		ResponseDestination: holder,
		ForwardAmount:       domain.MustParseAmount("0.01"),
	}

	s.Run("uninitialized item without code", func() {
		tr := s.send(holder, domain.MustParseAmount("0.1"), transfer, nil)
		s.False(tr[1].Success)
		s.Equal(dErrors.CodeUninitialized, tr[1].ExitCode)
	})

	s.Run("uninitialized item with deployment data", func() {
		tr := s.send(holder, domain.MustParseAmount("0.1"), transfer, &s.init)
		s.Equal(dErrors.CodeTransferNotSupported, tr[1].ExitCode)
		s.False(tr[1].Deployed)
	})

	s.create(collection, domain.Coins(1), s.validCreate())
	for _, sender := range []domain.Address{holder, intruder, collection} {
		s.Run("initialized item from "+sender.Short(), func() {
			before, err := s.rt.Balance(s.ctx, sender)
			s.Require().NoError(err)

			tr := s.send(sender, domain.MustParseAmount("0.1"), transfer, nil)
			s.Equal(dErrors.CodeTransferNotSupported, tr[1].ExitCode)
			s.Equal("0.095", tr[2].Value.String())
			s.Equal(holder, s.data().Holder)

			after, err := s.rt.Balance(s.ctx, sender)
			s.Require().NoError(err)
			spent, err := before.Sub(after)
			s.Require().NoError(err)
			s.Equal("0.005", spent.String())
		})
	}
}

func (s *ItemSuite) TestPlainValueAccepted() {
	s.create(collection, domain.Coins(1), s.validCreate())
	tr := s.send(intruder, domain.MustParseAmount("0.5"), nil, nil)
	s.True(tr[1].Success)

	b, err := s.rt.Balance(s.ctx, s.addr)
	s.Require().NoError(err)
	s.Equal("0.515", b.String())
}

func (s *ItemSuite) TestQueryBeforeCreate() {
	_, err := s.rt.Query(s.ctx, s.addr, item.GetData{})
	s.True(dErrors.HasCode(err, dErrors.CodeUninitialized))
}
