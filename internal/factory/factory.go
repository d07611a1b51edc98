// Package factory implements the collection contract that mints items in
// exchange for a configured price.
package factory

import (
	"mintledger/internal/addressing"
	"mintledger/internal/message"
	"mintledger/internal/runtime"
	"mintledger/pkg/domain"
	dErrors "mintledger/pkg/domain-errors"
)

// Config holds the economic constants of the factory contract.
type Config struct {
	// Reserve is the balance the factory keeps after every successful message.
	Reserve domain.Amount
	// ItemReserve is the balance forwarded to fund each minted item.
	ItemReserve domain.Amount
	// RefundConfigureExcess returns value attached to Configure above Reserve.
	RefundConfigureExcess bool
}

// DefaultConfig returns the reserves used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Reserve:     domain.MustParseAmount("0.02"),
		ItemReserve: domain.MustParseAmount("0.02"),
	}
}

// Contract is the factory code. It is stateless; state travels in the account.
type Contract struct {
	cfg Config
}

func New(cfg Config) *Contract {
	return &Contract{cfg: cfg}
}

func (c *Contract) Code() message.CodeKind {
	return message.CodeFactory
}

// Deploy fixes the owner from the init data. The factory stays uninitialized
// until its owner sends the first Configure.
func (c *Contract) Deploy(init message.Init) ([]byte, error) {
	owner, err := addressing.ParseFactoryInit(init.Data)
	if err != nil {
		return nil, err
	}
	if owner.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "factory owner is required")
	}
	return encodeState(State{Owner: owner})
}

func (c *Contract) Receive(tc *runtime.TxContext, body message.Message) error {
	st, err := decodeState(tc.State())
	if err != nil {
		return err
	}

	if tc.Bounced() {
		// A failed Create returns its value here. The counter stays advanced.
		return nil
	}

	switch m := body.(type) {
	case nil, message.Excess:
		if !st.Initialized {
			return errUninitialized
		}
		return nil
	case message.Configure:
		err = c.configure(tc, &st, m)
	case message.Promote:
		err = c.promote(tc, &st, m)
	case message.Withdraw:
		err = c.withdraw(tc, &st)
	default:
		return dErrors.New(dErrors.CodeInvalidInput, "factory does not accept "+string(message.KindOf(body)))
	}
	if err != nil {
		return err
	}

	encoded, err := encodeState(st)
	if err != nil {
		return err
	}
	tc.SetState(encoded)
	return nil
}

func (c *Contract) configure(tc *runtime.TxContext, st *State, m message.Configure) error {
	if tc.Sender() != st.Owner {
		return errNotOwner
	}
	if tc.Balance().LessThan(c.cfg.Reserve) {
		return dErrors.New(dErrors.CodeInsufficientPayment, "balance would fall below the factory reserve")
	}

	st.Metadata = m.Content
	st.Price = m.Price
	st.Initialized = true

	if !c.cfg.RefundConfigureExcess {
		return nil
	}
	spare := tc.Value().SubFloor(tc.Fee())
	refund := domain.Min(spare, tc.Balance().SubFloor(c.cfg.Reserve))
	if refund.IsZero() {
		return nil
	}
	return tc.Send(message.Envelope{
		To:    tc.Sender(),
		Value: refund,
		Body:  message.Excess{},
	})
}

func (c *Contract) promote(tc *runtime.TxContext, st *State, m message.Promote) error {
	if !st.Initialized {
		return errUninitialized
	}
	residual, err := tc.Value().Sub(st.Price)
	if err != nil {
		return dErrors.New(dErrors.CodeInsufficientPayment, "attached value is below the mint price")
	}

	index := st.MintCounter
	init := addressing.ItemInit(tc.Self(), index)
	err = tc.Send(message.Envelope{
		To:    addressing.Of(init),
		Value: domain.Sum(residual, c.cfg.ItemReserve, tc.Fee()),
		Init:  &init,
		Body: message.Create{
			Collection: tc.Self(),
			Index:      index,
			Holder:     tc.Sender(),
			ContentRef: m.ContentRef,
		},
		Bounce: true,
	})
	if err != nil {
		return err
	}
	if tc.Balance().LessThan(c.cfg.Reserve) {
		return dErrors.New(dErrors.CodeInsufficientPayment, "price does not cover the item reserve")
	}
	st.MintCounter++
	return nil
}

func (c *Contract) withdraw(tc *runtime.TxContext, st *State) error {
	if !st.Initialized {
		return errUninitialized
	}
	if tc.Sender() != st.Owner {
		return errNotOwner
	}
	amount, err := tc.Balance().Sub(c.cfg.Reserve)
	if err != nil {
		return dErrors.New(dErrors.CodeInsufficientPayment, "balance would fall below the factory reserve")
	}
	if amount.IsZero() {
		return nil
	}
	return tc.Send(message.Envelope{
		To:    st.Owner,
		Value: amount,
	})
}
