package id57

import (
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name     string
		num      int64
		expected string
	}{
		{name: "zero", num: 0, expected: "A"},
		{name: "one", num: 1, expected: "B"},
		{name: "base minus one", num: 56, expected: "9"},
		{name: "base", num: 57, expected: "BA"},
		{name: "base squared", num: 57 * 57, expected: "BAA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, EncodeInt64(tt.num))
		})
	}
}

func TestGenerateLength(t *testing.T) {
	for i := 0; i < 100; i++ {
		id := Generate()
		require.Len(t, id, Length)
	}
}

func TestGenerateAlphabet(t *testing.T) {
	id := Generate()
	for _, c := range id {
		assert.True(t, strings.ContainsRune(Alphabet, c), "unexpected character %q", c)
	}
}

func TestGenerateSortsByTimestamp(t *testing.T) {
	earlier := generateAt(time.UnixMilli(1_700_000_000_000), uuid.New())
	later := generateAt(time.UnixMilli(1_700_000_000_001), uuid.New())
	assert.Less(t, earlier[:8], later[:8])
}

func TestEncodeRoundTrip(t *testing.T) {
	// Decoding by hand verifies positional encoding.
	n := big.NewInt(123456789)
	encoded := Encode(n)

	decoded := new(big.Int)
	base := big.NewInt(int64(len(Alphabet)))
	for _, c := range encoded {
		decoded.Mul(decoded, base)
		decoded.Add(decoded, big.NewInt(int64(strings.IndexRune(Alphabet, c))))
	}
	assert.Equal(t, 0, n.Cmp(decoded))
}
