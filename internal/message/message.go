// Package message defines the envelopes exchanged between ledger accounts and
// the tagged union of bodies understood by the factory and item contracts.
package message

import (
	"mintledger/pkg/codec"
	"mintledger/pkg/domain"
	dErrors "mintledger/pkg/domain-errors"
)

// Kind tags a message body.
type Kind string

const (
	KindConfigure Kind = "configure"
	KindPromote   Kind = "promote"
	KindWithdraw  Kind = "withdraw"
	KindCreate    Kind = "create"
	KindTransfer  Kind = "transfer"
	KindExcess    Kind = "excess"
	// KindNone marks a plain value transfer without a body.
	KindNone Kind = "none"
)

// Message is one variant of the body union.
type Message interface {
	Kind() Kind
}

// Configure sets factory metadata and mint price. The first accepted Configure
// initializes the factory.
type Configure struct {
	Content []byte        `cbor:"1,keyasint"`
	Price   domain.Amount `cbor:"2,keyasint"`
}

// Promote requests a new item for the sender.
type Promote struct {
	ContentRef []byte `cbor:"1,keyasint"`
}

// Withdraw moves the factory balance above its reserve to the owner.
type Withdraw struct{}

// Create initializes an item. Only the item's collection may send it.
type Create struct {
	Collection domain.Address `cbor:"1,keyasint"`
	Index      uint64         `cbor:"2,keyasint"`
	Holder     domain.Address `cbor:"3,keyasint"`
	ContentRef []byte         `cbor:"4,keyasint"`
}

// Transfer is the standard ownership transfer request. Items always reject it.
type Transfer struct {
	QueryID             uint64         `cbor:"1,keyasint"`
	NewHolder           domain.Address `cbor:"2,keyasint"`
	ResponseDestination domain.Address `cbor:"3,keyasint"`
	CustomPayload       []byte         `cbor:"4,keyasint,omitempty"`
	ForwardAmount       domain.Amount  `cbor:"5,keyasint"`
	ForwardPayload      []byte         `cbor:"6,keyasint,omitempty"`
}

// Excess returns unconsumed value to a sender.
type Excess struct {
	QueryID uint64 `cbor:"1,keyasint"`
}

func (Configure) Kind() Kind { return KindConfigure }
func (Promote) Kind() Kind   { return KindPromote }
func (Withdraw) Kind() Kind  { return KindWithdraw }
func (Create) Kind() Kind    { return KindCreate }
func (Transfer) Kind() Kind  { return KindTransfer }
func (Excess) Kind() Kind    { return KindExcess }

// KindOf returns the kind of body, or KindNone for a plain transfer.
func KindOf(body Message) Kind {
	if body == nil {
		return KindNone
	}
	return body.Kind()
}

type wireBody struct {
	Kind    Kind             `cbor:"1,keyasint"`
	Payload codec.RawMessage `cbor:"2,keyasint,omitempty"`
}

// Encode returns the deterministic wire form of body. A nil body encodes to nil.
func Encode(body Message) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	payload, err := codec.Marshal(body)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encode message body")
	}
	return codec.Marshal(wireBody{Kind: body.Kind(), Payload: payload})
}

// Decode parses a wire body produced by Encode.
func Decode(data []byte) (Message, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var w wireBody
	if err := codec.Unmarshal(data, &w); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "malformed message body")
	}
	var body Message
	var err error
	switch w.Kind {
	case KindConfigure:
		var m Configure
		err = codec.Unmarshal(w.Payload, &m)
		body = m
	case KindPromote:
		var m Promote
		err = codec.Unmarshal(w.Payload, &m)
		body = m
	case KindWithdraw:
		body = Withdraw{}
	case KindCreate:
		var m Create
		err = codec.Unmarshal(w.Payload, &m)
		body = m
	case KindTransfer:
		var m Transfer
		err = codec.Unmarshal(w.Payload, &m)
		body = m
	case KindExcess:
		var m Excess
		err = codec.Unmarshal(w.Payload, &m)
		body = m
	default:
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown message kind: "+string(w.Kind))
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "malformed "+string(w.Kind)+" payload")
	}
	return body, nil
}
