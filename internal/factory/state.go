package factory

import (
	"mintledger/pkg/codec"
	"mintledger/pkg/domain"
	dErrors "mintledger/pkg/domain-errors"
)

var (
	errUninitialized = dErrors.New(dErrors.CodeUninitialized, "factory is not configured")
	errNotOwner      = dErrors.New(dErrors.CodeUnauthorized, "sender is not the factory owner")
)

// State is the persisted factory state.
//
// Invariants:
//   - Owner never changes after deployment
//   - MintCounter equals the number of successful Promote messages and is the next item index
type State struct {
	Owner       domain.Address `cbor:"1,keyasint"`
	Metadata    []byte         `cbor:"2,keyasint,omitempty"`
	Price       domain.Amount  `cbor:"3,keyasint"`
	MintCounter uint64         `cbor:"4,keyasint"`
	Initialized bool           `cbor:"5,keyasint"`
}

func encodeState(st State) ([]byte, error) {
	data, err := codec.Marshal(st)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encode factory state")
	}
	return data, nil
}

func decodeState(data []byte) (State, error) {
	var st State
	if err := codec.Unmarshal(data, &st); err != nil {
		return State{}, dErrors.Wrap(err, dErrors.CodeInternal, "decode factory state")
	}
	return st, nil
}
