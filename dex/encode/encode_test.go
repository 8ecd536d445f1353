// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package encode

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"ckbdex.org/ckbdex/dex"
)

func TestUint128Bytes(t *testing.T) {
	b, err := Uint128Bytes(big.NewInt(1_000_000))
	if err != nil {
		t.Fatalf("Uint128Bytes error: %v", err)
	}
	want := []byte{0x40, 0x42, 0x0f, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	if !bytes.Equal(b, want) {
		t.Errorf("got %x, want %x", b, want)
	}
	if BytesToUint128(b).Cmp(big.NewInt(1_000_000)) != 0 {
		t.Errorf("round trip failed: %s", BytesToUint128(b))
	}
}

func TestUint128BytesLimits(t *testing.T) {
	max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
	b, err := Uint128Bytes(max)
	if err != nil {
		t.Fatalf("max uint128 rejected: %v", err)
	}
	if BytesToUint128(b).Cmp(max) != 0 {
		t.Errorf("max round trip failed")
	}

	over := new(big.Int).Lsh(big.NewInt(1), 128)
	if _, err := Uint128Bytes(over); !errors.Is(err, dex.ErrOverflow) {
		t.Errorf("2^128 not rejected: %v", err)
	}
	if _, err := Uint128Bytes(big.NewInt(-1)); !errors.Is(err, dex.ErrOverflow) {
		t.Errorf("negative not rejected: %v", err)
	}
}

func TestDecoder(t *testing.T) {
	var buf []byte
	buf = append(buf, Uint64Bytes(77)...)
	buf = append(buf, Uint32Bytes(5)...)
	amt, _ := Uint128Bytes(big.NewInt(12345))
	buf = append(buf, amt...)
	buf = append(buf, 0xab)

	d := NewDecoder(buf)
	if v := d.Uint64(); v != 77 {
		t.Errorf("Uint64 = %d", v)
	}
	if v := d.Uint32(); v != 5 {
		t.Errorf("Uint32 = %d", v)
	}
	if v := d.Uint128(); v.Cmp(big.NewInt(12345)) != 0 {
		t.Errorf("Uint128 = %s", v)
	}
	if v := d.Byte(); v != 0xab {
		t.Errorf("Byte = %x", v)
	}
	if d.Leftover() != 0 {
		t.Errorf("Leftover = %d", d.Leftover())
	}
	if d.Err() != nil {
		t.Errorf("Err = %v", d.Err())
	}

	// One more read poisons the Decoder.
	d.Uint32()
	if !errors.Is(d.Err(), dex.ErrDecode) {
		t.Errorf("short read not flagged: %v", d.Err())
	}
}

func TestDecoderInt32(t *testing.T) {
	d := NewDecoder(Uint32Bytes(0xffffffff))
	if v := d.Int32(); v != -1 {
		t.Errorf("Int32 = %d, want -1", v)
	}
}
