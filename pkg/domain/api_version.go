package domain

import (
	dErrors "mintledger/pkg/domain-errors"
)

// APIVersion names a versioned route tree of the ledger API. Access tokens
// carry the version they were minted for.
type APIVersion string

const (
	APIVersionV1 APIVersion = "v1"
)

// versionOrder ranks known versions; higher is newer.
var versionOrder = map[APIVersion]int{
	APIVersionV1: 1,
}

// ParseAPIVersion rejects versions the server does not serve.
func ParseAPIVersion(s string) (APIVersion, error) {
	v := APIVersion(s)
	if _, ok := versionOrder[v]; !ok {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown API version: "+s)
	}
	return v, nil
}

func (v APIVersion) String() string {
	return string(v)
}

func (v APIVersion) IsNil() bool {
	return v == ""
}

// IsAtLeast reports whether v is the same as or newer than other. Unknown
// versions rank below every known one.
func (v APIVersion) IsAtLeast(other APIVersion) bool {
	thisOrder, thisOK := versionOrder[v]
	if !thisOK {
		return false
	}
	otherOrder, otherOK := versionOrder[other]
	if !otherOK {
		return true
	}
	return thisOrder >= otherOrder
}

// DefaultVersion is stamped into tokens that do not request a version.
func DefaultVersion() APIVersion {
	return APIVersionV1
}
