// Package domain holds the identifier types shared across the registry.
//
// Both types are validated at trust boundaries (HTTP handlers, token claims)
// so everything behind the boundary can assume well-formed values. The zero
// value of each type is deliberately invalid: a zero Address is the sentinel
// no operation may accept as a caller or delegate, and a zero DID never names
// a record.
package domain

import (
	"strings"
	"unicode/utf8"

	dErrors "did-registry/pkg/domain-errors"
)

// DID is a decentralized identifier of the form did:<method>:<specific-id>.
// The registry treats the specific-id as opaque; only the overall shape is
// validated.
type DID string

// Address is an opaque principal identity supplied by the execution
// environment. The registry never interprets it beyond equality checks.
type Address string

const (
	didPrefix    = "did:"
	maxDIDLen    = 256
	maxAddrLen   = 256
	methodChars  = "abcdefghijklmnopqrstuvwxyz0123456789"
	specificSkip = "\x00 \t\r\n"
)

// ParseDID validates and returns a DID. Rejects empty input, missing scheme,
// empty method or specific-id segments, uppercase methods, and oversized or
// non-UTF8 input.
func ParseDID(raw string) (DID, error) {
	if raw == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "did is required")
	}
	if len(raw) > maxDIDLen {
		return "", dErrors.New(dErrors.CodeInvalidInput, "did exceeds maximum length")
	}
	if !utf8.ValidString(raw) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "did must be valid UTF-8")
	}
	if !strings.HasPrefix(raw, didPrefix) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "did must start with did:")
	}
	rest := raw[len(didPrefix):]
	method, specific, ok := strings.Cut(rest, ":")
	if !ok || method == "" || specific == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "did must have method and specific-id segments")
	}
	for _, r := range method {
		if !strings.ContainsRune(methodChars, r) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "did method must be lowercase alphanumeric")
		}
	}
	if strings.ContainsAny(specific, specificSkip) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "did specific-id contains forbidden characters")
	}
	return DID(raw), nil
}

func (d DID) String() string { return string(d) }

// Method returns the DID method segment, or "" for a zero DID.
func (d DID) Method() string {
	rest := strings.TrimPrefix(string(d), didPrefix)
	method, _, _ := strings.Cut(rest, ":")
	return method
}

// ParseAddress validates and returns a principal Address. The zero identity is
// rejected here so it can never enter the system through a trust boundary.
func ParseAddress(raw string) (Address, error) {
	if raw == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "address is required")
	}
	if len(raw) > maxAddrLen {
		return "", dErrors.New(dErrors.CodeInvalidInput, "address exceeds maximum length")
	}
	if !utf8.ValidString(raw) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "address must be valid UTF-8")
	}
	if strings.ContainsAny(raw, specificSkip) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "address contains forbidden characters")
	}
	return Address(raw), nil
}

func (a Address) String() string { return string(a) }

// IsZero reports whether a is the invalid sentinel identity.
func (a Address) IsZero() bool { return a == "" }
