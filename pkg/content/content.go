// Package content encodes off-chain metadata references. The ledger stores
// the resulting bytes verbatim and never interprets them.
package content

import (
	"unicode/utf8"

	dErrors "mintledger/pkg/domain-errors"
)

// Layout prefixes.
const (
	OnChainPrefix  byte = 0x00
	OffChainPrefix byte = 0x01
)

// EncodeOffChain returns 0x01 followed by the UTF-8 bytes of uri.
func EncodeOffChain(uri string) []byte {
	out := make([]byte, 0, len(uri)+1)
	out = append(out, OffChainPrefix)
	return append(out, uri...)
}

// DecodeOffChain reverses EncodeOffChain.
func DecodeOffChain(data []byte) (string, error) {
	if len(data) == 0 || data[0] != OffChainPrefix {
		return "", dErrors.New(dErrors.CodeInvalidInput, "content is not an off-chain reference")
	}
	uri := data[1:]
	if !utf8.Valid(uri) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "off-chain uri is not valid utf-8")
	}
	return string(uri), nil
}

// IsOffChain reports whether data carries the off-chain prefix.
func IsOffChain(data []byte) bool {
	return len(data) > 0 && data[0] == OffChainPrefix
}
