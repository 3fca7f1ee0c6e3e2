// Package id57 generates lexicographically sortable 128-bit ids encoded in a
// 57-character alphabet, prefixed by a millisecond timestamp.
package id57

import (
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Alphabet is the Base57 alphabet: alphanumerics minus the ambiguous
// characters 0, O, I, l and 1.
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789"

const (
	timestampWidth = 8
	uuidWidth      = 22

	// Length is the fixed width of a generated id.
	Length = timestampWidth + uuidWidth
)

// Encode converts a non-negative integer to a Base57 string.
func Encode(num *big.Int) string {
	if num.Sign() == 0 {
		return string(Alphabet[0])
	}

	base := big.NewInt(int64(len(Alphabet)))
	rem := new(big.Int)
	n := new(big.Int).Set(num)

	var sb strings.Builder
	for n.Sign() > 0 {
		n.DivMod(n, base, rem)
		sb.WriteByte(Alphabet[rem.Int64()])
	}

	// Digits were produced least-significant first.
	encoded := []byte(sb.String())
	for i, j := 0, len(encoded)-1; i < j; i, j = i+1, j-1 {
		encoded[i], encoded[j] = encoded[j], encoded[i]
	}
	return string(encoded)
}

// EncodeInt64 converts a non-negative int64 to a Base57 string.
func EncodeInt64(num int64) string {
	return Encode(big.NewInt(num))
}

// Generate returns a 30-character id: a Base57 millisecond timestamp padded to
// 8 characters followed by a Base57 UUIDv4 padded to 22 characters. Ids
// generated later always sort lexicographically after earlier ones.
func Generate() string {
	return generateAt(time.Now(), uuid.New())
}

func generateAt(t time.Time, u uuid.UUID) string {
	ts := EncodeInt64(t.UnixMilli())

	n := new(big.Int).SetBytes(u[:])
	random := Encode(n)

	return pad(ts, timestampWidth) + pad(random, uuidWidth)
}

// pad left-pads s with the zero digit of the alphabet to the given width.
func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat(string(Alphabet[0]), width-len(s)) + s
}
