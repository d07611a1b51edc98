// Package addressing derives contract addresses from deployment payloads.
// Derivation is pure: no registry is consulted and equal inputs always yield
// the same address.
package addressing

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"

	"mintledger/internal/message"
	"mintledger/pkg/domain"
	dErrors "mintledger/pkg/domain-errors"
)

// Of returns BLAKE2b-256(code || 0x00 || data).
func Of(init message.Init) domain.Address {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(init.Code))
	h.Write([]byte{0})
	h.Write(init.Data)
	var a domain.Address
	copy(a[:], h.Sum(nil))
	return a
}

// FactoryInit is the deployment payload of the factory owned by owner.
func FactoryInit(owner domain.Address) message.Init {
	return message.Init{Code: message.CodeFactory, Data: owner.Bytes()}
}

// ItemInit is the deployment payload of item index in collection.
func ItemInit(collection domain.Address, index uint64) message.Init {
	data := make([]byte, domain.AddressLen+8)
	copy(data, collection[:])
	binary.BigEndian.PutUint64(data[domain.AddressLen:], index)
	return message.Init{Code: message.CodeItem, Data: data}
}

// ForFactory derives the factory address for owner.
func ForFactory(owner domain.Address) domain.Address {
	return Of(FactoryInit(owner))
}

// ForItem derives the address of item index in collection.
func ForItem(collection domain.Address, index uint64) domain.Address {
	return Of(ItemInit(collection, index))
}

// ParseFactoryInit recovers the owner from factory init data.
func ParseFactoryInit(data []byte) (domain.Address, error) {
	return domain.AddressFromBytes(data)
}

// ParseItemInit recovers collection and index from item init data.
func ParseItemInit(data []byte) (domain.Address, uint64, error) {
	if len(data) != domain.AddressLen+8 {
		return domain.Address{}, 0, dErrors.New(dErrors.CodeInvalidInput, "item init data must be 40 bytes")
	}
	collection, err := domain.AddressFromBytes(data[:domain.AddressLen])
	if err != nil {
		return domain.Address{}, 0, err
	}
	return collection, binary.BigEndian.Uint64(data[domain.AddressLen:]), nil
}
