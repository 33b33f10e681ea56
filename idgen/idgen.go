// Package idgen generates short, URL-safe identifiers for datasets, rows and columns.
package idgen

import (
	"math/big"

	"github.com/google/uuid"
)

const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// DefaultSize is the length of identifiers returned by New.
// 12 base62 digits of a random UUID keep roughly 69 bits of entropy.
const DefaultSize = 12

// maxSize is the number of base62 digits needed for a full 128-bit UUID.
const maxSize = 22

var base = big.NewInt(int64(len(alphabet)))

// New returns a fresh DefaultSize identifier.
func New() string {
	return NewN(DefaultSize)
}

// NewN returns a fresh identifier of size characters, clamped to 1..22.
// The least significant base62 digits of a random UUID are used.
func NewN(size int) string {
	if size < 1 {
		size = 1
	}
	if size > maxSize {
		size = maxSize
	}

	u := uuid.New()
	n := new(big.Int).SetBytes(u[:])
	mod := new(big.Int)

	out := make([]byte, size)
	for i := size - 1; i >= 0; i-- {
		n.DivMod(n, base, mod)
		out[i] = alphabet[mod.Int64()]
	}
	return string(out)
}
