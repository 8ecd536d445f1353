// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package encode provides the byte-encoding helpers for on-chain cell data.
// The on-chain verifier reads little-endian packed structs, so unlike most
// network protocols every integer here is little-endian.
package encode

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"ckbdex.org/ckbdex/dex"
)

// IntCoder is the byte-encoding order for all cell data. The on-chain
// verifier fixes it as little-endian.
var IntCoder = binary.LittleEndian

// Uint128Size is the byte length of an encoded unsigned 128-bit integer.
const Uint128Size = 16

var maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// Uint32Bytes converts the uint32 to a length-4, little-endian encoded byte
// slice.
func Uint32Bytes(i uint32) []byte {
	b := make([]byte, 4)
	IntCoder.PutUint32(b, i)
	return b
}

// Uint64Bytes converts the uint64 to a length-8, little-endian encoded byte
// slice.
func Uint64Bytes(i uint64) []byte {
	b := make([]byte, 8)
	IntCoder.PutUint64(b, i)
	return b
}

// Uint128Bytes converts the big integer to a length-16, little-endian encoded
// byte slice. Values that do not fit an unsigned 128-bit integer do not
// round-trip and are rejected with dex.ErrOverflow.
func Uint128Bytes(i *big.Int) ([]byte, error) {
	if i.Sign() < 0 {
		return nil, dex.NewError(dex.ErrOverflow, fmt.Sprintf("negative amount %s", i))
	}
	if i.Cmp(maxUint128) > 0 {
		return nil, dex.NewError(dex.ErrOverflow, fmt.Sprintf("%s exceeds 128 bits", i))
	}
	b := make([]byte, Uint128Size)
	i.FillBytes(b) // big-endian
	reverse(b)
	return b, nil
}

// BytesToUint128 converts the length-16, little-endian encoded byte slice to
// a big integer.
func BytesToUint128(b []byte) *big.Int {
	be := make([]byte, Uint128Size)
	copy(be, b[:Uint128Size])
	reverse(be)
	return new(big.Int).SetBytes(be)
}

func reverse(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}

// CopySlice makes a copy of the slice.
func CopySlice(b []byte) []byte {
	newB := make([]byte, len(b))
	copy(newB, b)
	return newB
}

// Decoder is a cursor over a byte slice that reads the little-endian packed
// fields of a cell data payload. The first short read poisons the Decoder;
// check Err once after the last read.
type Decoder struct {
	b   []byte
	pos int
	err error
}

// NewDecoder creates a Decoder over the byte slice.
func NewDecoder(b []byte) *Decoder {
	return &Decoder{b: b}
}

func (d *Decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if len(d.b)-d.pos < n {
		d.err = dex.NewError(dex.ErrDecode,
			fmt.Sprintf("short read: want %d bytes at offset %d of %d", n, d.pos, len(d.b)))
		return nil
	}
	v := d.b[d.pos : d.pos+n]
	d.pos += n
	return v
}

// Byte reads a single byte.
func (d *Decoder) Byte() byte {
	v := d.take(1)
	if v == nil {
		return 0
	}
	return v[0]
}

// Bytes reads n bytes, copied out of the underlying slice.
func (d *Decoder) Bytes(n int) []byte {
	v := d.take(n)
	if v == nil {
		return nil
	}
	return CopySlice(v)
}

// Uint32 reads a little-endian uint32.
func (d *Decoder) Uint32() uint32 {
	v := d.take(4)
	if v == nil {
		return 0
	}
	return IntCoder.Uint32(v)
}

// Uint64 reads a little-endian uint64.
func (d *Decoder) Uint64() uint64 {
	v := d.take(8)
	if v == nil {
		return 0
	}
	return IntCoder.Uint64(v)
}

// Int32 reads a little-endian two's-complement int32.
func (d *Decoder) Int32() int32 {
	return int32(d.Uint32())
}

// Uint128 reads a little-endian unsigned 128-bit integer.
func (d *Decoder) Uint128() *big.Int {
	v := d.take(Uint128Size)
	if v == nil {
		return new(big.Int)
	}
	return BytesToUint128(v)
}

// Leftover returns the number of unread bytes.
func (d *Decoder) Leftover() int {
	if d.err != nil {
		return 0
	}
	return len(d.b) - d.pos
}

// Err returns the first error encountered, if any.
func (d *Decoder) Err() error {
	return d.err
}
