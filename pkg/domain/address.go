package domain

import (
	"bytes"

	"github.com/mr-tron/base58"

	dErrors "mintledger/pkg/domain-errors"
)

// AddressLen is the size of an account address in bytes.
const AddressLen = 32

// Address identifies an account on the ledger. Contract addresses are derived
// from their deployment payload; wallet addresses are chosen by their owners.
type Address [AddressLen]byte

// ParseAddress decodes the base58 text form of an address. The zero address is
// rejected because no sender or holder may use it.
func ParseAddress(s string) (Address, error) {
	a, err := decodeAddress(s)
	if err != nil {
		return Address{}, err
	}
	if a.IsZero() {
		return Address{}, dErrors.New(dErrors.CodeInvalidInput, "zero address is not allowed")
	}
	return a, nil
}

func decodeAddress(s string) (Address, error) {
	if s == "" {
		return Address{}, dErrors.New(dErrors.CodeInvalidInput, "address is required")
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return Address{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "address is not valid base58")
	}
	return AddressFromBytes(raw)
}

// MustParseAddress is ParseAddress for constants and tests.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// AddressFromBytes copies b into an Address. b must be exactly AddressLen long.
func AddressFromBytes(b []byte) (Address, error) {
	if len(b) != AddressLen {
		return Address{}, dErrors.New(dErrors.CodeInvalidInput, "address must be 32 bytes")
	}
	var a Address
	copy(a[:], b)
	return a, nil
}

// String returns the base58 text form.
func (a Address) String() string {
	return base58.Encode(a[:])
}

// Short returns a truncated form for log lines.
func (a Address) Short() string {
	s := a.String()
	if len(s) <= 10 {
		return s
	}
	return s[:4] + ".." + s[len(s)-4:]
}

// Bytes returns a copy of the raw address bytes.
func (a Address) Bytes() []byte {
	b := make([]byte, AddressLen)
	copy(b, a[:])
	return b
}

func (a Address) IsZero() bool {
	return a == Address{}
}

func (a Address) Equal(other Address) bool {
	return bytes.Equal(a[:], other[:])
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText accepts the zero address so optional fields survive encoding.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := decodeAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
