// Package item implements the non-transferable record minted by a factory.
package item

import (
	"bytes"

	"mintledger/internal/addressing"
	"mintledger/internal/message"
	"mintledger/internal/runtime"
	"mintledger/pkg/codec"
	"mintledger/pkg/domain"
	dErrors "mintledger/pkg/domain-errors"
)

// DefaultReserve is the balance an item keeps after creation.
var DefaultReserve = domain.MustParseAmount("0.02")

var (
	errUninitialized = dErrors.New(dErrors.CodeUninitialized, "item is not initialized")
	errTransferLock  = dErrors.New(dErrors.CodeTransferNotSupported, "item ownership cannot be transferred")
)

// State is the persisted item state. Collection and Index come from the
// deployment payload; Holder and ContentRef are written once by Create.
type State struct {
	Collection  domain.Address `cbor:"1,keyasint"`
	Index       uint64         `cbor:"2,keyasint"`
	Holder      domain.Address `cbor:"3,keyasint"`
	ContentRef  []byte         `cbor:"4,keyasint,omitempty"`
	Initialized bool           `cbor:"5,keyasint"`
}

// Contract is the item code.
type Contract struct {
	reserve domain.Amount
}

func New(reserve domain.Amount) *Contract {
	return &Contract{reserve: reserve}
}

func (c *Contract) Code() message.CodeKind {
	return message.CodeItem
}

func (c *Contract) Deploy(init message.Init) ([]byte, error) {
	collection, index, err := addressing.ParseItemInit(init.Data)
	if err != nil {
		return nil, err
	}
	return encodeState(State{Collection: collection, Index: index})
}

func (c *Contract) Receive(tc *runtime.TxContext, body message.Message) error {
	if tc.Bounced() {
		return nil
	}
	switch m := body.(type) {
	case nil, message.Excess:
		return nil
	case message.Transfer:
		return errTransferLock
	case message.Create:
		return c.create(tc, m)
	default:
		return dErrors.New(dErrors.CodeInvalidInput, "item does not accept "+string(message.KindOf(body)))
	}
}

func (c *Contract) create(tc *runtime.TxContext, m message.Create) error {
	st, err := decodeState(tc.State())
	if err != nil {
		return err
	}
	if tc.Sender() != st.Collection {
		return dErrors.New(dErrors.CodeUnauthorized, "only the collection may create its items")
	}
	if st.Initialized {
		return dErrors.New(dErrors.CodeConflict, "item is already initialized")
	}
	if m.Collection != st.Collection || m.Index != st.Index {
		return dErrors.New(dErrors.CodeInvalidInput, "create does not match the item's deployment data")
	}
	if m.Holder.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "holder is required")
	}
	excess, err := tc.Balance().Sub(c.reserve)
	if err != nil {
		return dErrors.New(dErrors.CodeInsufficientPayment, "value does not cover the item reserve")
	}

	st.Holder = m.Holder
	st.ContentRef = bytes.Clone(m.ContentRef)
	st.Initialized = true
	encoded, err := encodeState(st)
	if err != nil {
		return err
	}
	tc.SetState(encoded)

	if excess.IsZero() {
		return nil
	}
	return tc.Send(message.Envelope{
		To:    m.Holder,
		Value: excess,
		Body:  message.Excess{},
	})
}

// GetData reads the item record.
type GetData struct{}

func (GetData) Method() string { return "get_nft_data" }

// Data is the result of GetData.
type Data struct {
	Initialized bool           `json:"initialized"`
	Collection  domain.Address `json:"collection"`
	Index       uint64         `json:"index"`
	Holder      domain.Address `json:"holder"`
	ContentRef  []byte         `json:"content_ref"`
}

func (c *Contract) Query(_ domain.Address, state []byte, q runtime.Query) (any, error) {
	st, err := decodeState(state)
	if err != nil {
		return nil, err
	}
	if _, ok := q.(GetData); !ok {
		return nil, dErrors.New(dErrors.CodeBadRequest, "item has no getter "+q.Method())
	}
	if !st.Initialized {
		return nil, errUninitialized
	}
	return Data{
		Initialized: true,
		Collection:  st.Collection,
		Index:       st.Index,
		Holder:      st.Holder,
		ContentRef:  st.ContentRef,
	}, nil
}

func encodeState(st State) ([]byte, error) {
	data, err := codec.Marshal(st)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encode item state")
	}
	return data, nil
}

func decodeState(data []byte) (State, error) {
	var st State
	if err := codec.Unmarshal(data, &st); err != nil {
		return State{}, dErrors.Wrap(err, dErrors.CodeInternal, "decode item state")
	}
	return st, nil
}
