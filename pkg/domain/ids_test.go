package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "did-registry/pkg/domain-errors"
)

func TestParseDID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseDID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects missing scheme", func(t *testing.T) {
		_, err := ParseDID("example:alpha")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects missing segments", func(t *testing.T) {
		for _, input := range []string{"did:example", "did:example:", "did::alpha"} {
			_, err := ParseDID(input)
			require.Error(t, err, input)
		}
	})

	t.Run("rejects uppercase method", func(t *testing.T) {
		_, err := ParseDID("did:Example:alpha")
		require.Error(t, err)
	})

	t.Run("accepts method-specific colons", func(t *testing.T) {
		did, err := ParseDID("did:web:example.com:user:alice")
		require.NoError(t, err)
		assert.Equal(t, DID("did:web:example.com:user:alice"), did)
		assert.Equal(t, "web", did.Method())
	})

	t.Run("accepts minimal identifier", func(t *testing.T) {
		did, err := ParseDID("did:x:1")
		require.NoError(t, err)
		assert.Equal(t, "did:x:1", did.String())
	})
}

// Trust boundary parsing must reject attack-shaped input before it reaches
// stores or the event log.
func TestParseDID_SecurityInvariants(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"null byte injection", "did:example:alpha\x00beta", true},
		{"embedded whitespace", "did:example:alpha beta", true},
		{"newline injection", "did:example:alpha\nbeta", true},
		{"oversized input", "did:example:" + strings.Repeat("a", 300), true},
		{"non-UTF8 bytes", "did:example:\xff\xfe", true},
		{"empty method", "did::alpha", true},

		{"valid lowercase", "did:example:alpha", false},
		{"digits in method", "did:ethr2:0xabc", false},
		{"uppercase specific-id", "did:example:ALPHA", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestParseAddress_Invariants(t *testing.T) {
	t.Run("rejects the zero identity", func(t *testing.T) {
		_, err := ParseAddress("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects control characters", func(t *testing.T) {
		for _, input := range []string{"0x00\x00", "addr with space", "addr\ttab"} {
			_, err := ParseAddress(input)
			require.Error(t, err, input)
		}
	})

	t.Run("rejects oversized input", func(t *testing.T) {
		_, err := ParseAddress(strings.Repeat("a", 300))
		require.Error(t, err)
	})

	t.Run("accepts opaque identities", func(t *testing.T) {
		for _, input := range []string{"0xabc123", "alice@example.org", "spiffe://cluster/ns/default"} {
			addr, err := ParseAddress(input)
			require.NoError(t, err, input)
			assert.Equal(t, input, addr.String())
			assert.False(t, addr.IsZero())
		}
	})

	t.Run("zero value is the invalid sentinel", func(t *testing.T) {
		var addr Address
		assert.True(t, addr.IsZero())
	})
}
