package Codec

import (
	"math/big"

	"github.com/holiman/uint256"
)

// Value is one node of an encodable tree. The set of implementations is
// closed: Uint, Bytes and List.
type Value interface {
	isValue()
}

// Uint is an unsigned integer that must fit in Bits bits.
type Uint struct {
	Bits int
	X    *big.Int
}

// Bytes is a byte string, encoded as is.
type Bytes []byte

// List is an ordered list of values.
type List []Value

func (Uint) isValue()  {}
func (Bytes) isValue() {}
func (List) isValue()  {}

// Uint64 wraps a 64-bit field.
func Uint64(v uint64) Uint {
	return Uint{Bits: 64, X: new(big.Int).SetUint64(v)}
}

// Uint8 wraps a single byte integer field such as a recovery id.
func Uint8(v uint8) Uint {
	return Uint{Bits: 8, X: big.NewInt(int64(v))}
}

// Uint256 wraps a 256-bit field. A nil pointer encodes as zero.
func Uint256(v *uint256.Int) Uint {
	if v == nil {
		return Uint{Bits: 256, X: new(big.Int)}
	}
	return Uint{Bits: 256, X: v.ToBig()}
}

// BigUint wraps an arbitrary big integer that is declared to fit in bits.
// A nil pointer encodes as zero.
func BigUint(bits int, x *big.Int) Uint {
	if x == nil {
		x = new(big.Int)
	}
	return Uint{Bits: bits, X: x}
}

// Fits reports whether x is non-negative and at most bits wide.
func Fits(bits int, x *big.Int) bool {
	if x == nil {
		return true
	}
	return x.Sign() >= 0 && x.BitLen() <= bits
}
