package message

import (
	"mintledger/pkg/codec"
	"mintledger/pkg/domain"
	dErrors "mintledger/pkg/domain-errors"
)

// CodeKind names a contract implementation. Together with constructor data it
// determines a contract address.
type CodeKind string

const (
	CodeFactory CodeKind = "mintledger.factory.v1"
	CodeItem    CodeKind = "mintledger.item.v1"
)

// Init is the deployment payload attached to a message that may create the
// destination contract.
type Init struct {
	Code CodeKind `cbor:"1,keyasint"`
	Data []byte   `cbor:"2,keyasint"`
}

// Envelope is a message in flight. Value is moved from From to To when the
// message is delivered.
type Envelope struct {
	From    domain.Address
	To      domain.Address
	Value   domain.Amount
	Body    Message
	Init    *Init
	Bounce  bool
	Bounced bool
}

// Kind returns the body kind.
func (e Envelope) Kind() Kind {
	return KindOf(e.Body)
}

// Bounceback builds the message returning value to the sender of e.
func (e Envelope) Bounceback(value domain.Amount) Envelope {
	return Envelope{
		From:    e.To,
		To:      e.From,
		Value:   value,
		Body:    e.Body,
		Bounced: true,
	}
}

type wireEnvelope struct {
	From    domain.Address `cbor:"1,keyasint"`
	To      domain.Address `cbor:"2,keyasint"`
	Value   domain.Amount  `cbor:"3,keyasint"`
	Body    []byte         `cbor:"4,keyasint,omitempty"`
	Init    *Init          `cbor:"5,keyasint,omitempty"`
	Bounce  bool           `cbor:"6,keyasint,omitempty"`
	Bounced bool           `cbor:"7,keyasint,omitempty"`
}

// EncodeQueue returns the wire form of messages still waiting for delivery.
// An empty queue encodes to nil.
func EncodeQueue(queue []Envelope) ([]byte, error) {
	if len(queue) == 0 {
		return nil, nil
	}
	wire := make([]wireEnvelope, 0, len(queue))
	for _, env := range queue {
		body, err := Encode(env.Body)
		if err != nil {
			return nil, err
		}
		wire = append(wire, wireEnvelope{
			From:    env.From,
			To:      env.To,
			Value:   env.Value,
			Body:    body,
			Init:    env.Init,
			Bounce:  env.Bounce,
			Bounced: env.Bounced,
		})
	}
	data, err := codec.Marshal(wire)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encode message queue")
	}
	return data, nil
}

// DecodeQueue parses a queue produced by EncodeQueue, preserving order.
func DecodeQueue(data []byte) ([]Envelope, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var wire []wireEnvelope
	if err := codec.Unmarshal(data, &wire); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "decode message queue")
	}
	queue := make([]Envelope, 0, len(wire))
	for _, w := range wire {
		body, err := Decode(w.Body)
		if err != nil {
			return nil, err
		}
		queue = append(queue, Envelope{
			From:    w.From,
			To:      w.To,
			Value:   w.Value,
			Body:    body,
			Init:    w.Init,
			Bounce:  w.Bounce,
			Bounced: w.Bounced,
		})
	}
	return queue, nil
}
