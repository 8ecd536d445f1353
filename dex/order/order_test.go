// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package order

import (
	"bytes"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
	"testing"

	"ckbdex.org/ckbdex/dex"
	"ckbdex.org/ckbdex/dex/chain"
)

var testTxHash = chain.Hash{
	0x22, 0x4c, 0xba, 0xaa, 0xfa, 0x80, 0xbf, 0x3b, 0xd1, 0xff, 0x73, 0x15,
	0x90, 0xbc, 0xbd, 0xda, 0x5a, 0x76, 0xf9, 0x1e, 0x60, 0xa1, 0x56, 0x99,
	0x46, 0x34, 0xe9, 0x1c, 0xec, 0x25, 0xd5, 0x40,
}

func TestOrderDataSerialize(t *testing.T) {
	data := &OrderData{
		UdtAmount: big.NewInt(1_000_000),
		Master:    RelativeMaster(1),
		Info: Info{
			CkbToUdt:       Ratio{10, 1},
			CkbMinMatchLog: 33,
		},
	}
	b, err := data.Serialize()
	if err != nil {
		t.Fatalf("Serialize error: %v", err)
	}
	want := "40420f00000000000000000000000000" + // udt amount, u128
		"00" + // relative master tag
		strings.Repeat("00", 32) + // padding
		"01000000" + // distance +1
		"0a00000000000000" + "0100000000000000" + // ckbToUdt 10/1
		"0000000000000000" + "0000000000000000" + // udtToCkb empty
		"21" // min match log 33
	if hex.EncodeToString(b) != want {
		t.Fatalf("serialized\n%x, want\n%s", b, want)
	}
	if len(b) != DataLen {
		t.Errorf("length %d, want %d", len(b), DataLen)
	}

	back, err := DecodeOrderData(b)
	if err != nil {
		t.Fatalf("DecodeOrderData error: %v", err)
	}
	if back.UdtAmount.Cmp(data.UdtAmount) != 0 || back.Master != data.Master || !back.Info.Equal(data.Info) {
		t.Errorf("round trip mismatch: %+v", back)
	}
	if !back.IsMint() {
		t.Errorf("relative-master order not a mint")
	}
}

func TestOrderDataAbsoluteRoundTrip(t *testing.T) {
	data := &OrderData{
		UdtAmount: new(big.Int).Lsh(big.NewInt(1), 100),
		Master:    AbsoluteMaster(chain.OutPoint{TxHash: testTxHash, Index: 7}),
		Info: Info{
			CkbToUdt:       Ratio{5, 3},
			UdtToCkb:       Ratio{2, 7},
			CkbMinMatchLog: 20,
		},
	}
	b, err := data.Serialize()
	if err != nil {
		t.Fatalf("Serialize error: %v", err)
	}
	if len(b) != DataLen {
		t.Errorf("length %d, want %d", len(b), DataLen)
	}
	back, err := DecodeOrderData(b)
	if err != nil {
		t.Fatalf("DecodeOrderData error: %v", err)
	}
	if back.UdtAmount.Cmp(data.UdtAmount) != 0 || back.Master != data.Master || !back.Info.Equal(data.Info) {
		t.Errorf("round trip mismatch: %+v", back)
	}
	if back.IsMint() {
		t.Errorf("absolute-master order is a mint")
	}
}

func TestDecodeOrderDataRejections(t *testing.T) {
	good, err := (&OrderData{
		UdtAmount: big.NewInt(1),
		Master:    RelativeMaster(1),
		Info:      Info{CkbToUdt: Ratio{1, 1}, CkbMinMatchLog: 33},
	}).Serialize()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		mangle func([]byte) []byte
	}{{
		name:   "nonzero padding",
		mangle: func(b []byte) []byte { b[17] = 1; return b },
	}, {
		name:   "unknown master tag",
		mangle: func(b []byte) []byte { b[16] = 2; return b },
	}, {
		name:   "trailing bytes",
		mangle: func(b []byte) []byte { return append(b, 0) },
	}, {
		name:   "truncated",
		mangle: func(b []byte) []byte { return b[:len(b)-1] },
	}, {
		name:   "empty",
		mangle: func(b []byte) []byte { return nil },
	}}
	for _, test := range tests {
		b := test.mangle(bytes.Clone(good))
		if _, err := DecodeOrderData(b); !errors.Is(err, dex.ErrDecode) {
			t.Errorf("%s: err = %v, want decode failure", test.name, err)
		}
	}
}

func TestSerializeRejections(t *testing.T) {
	base := OrderData{
		UdtAmount: big.NewInt(1),
		Master:    RelativeMaster(1),
		Info:      Info{CkbToUdt: Ratio{1, 1}, CkbMinMatchLog: 33},
	}

	d := base
	d.UdtAmount = big.NewInt(-1)
	if _, err := d.Serialize(); !errors.Is(err, dex.ErrInvalidEntity) {
		t.Errorf("negative amount: %v", err)
	}

	d = base
	d.UdtAmount = new(big.Int).Lsh(big.NewInt(1), 128)
	if _, err := d.Serialize(); !errors.Is(err, dex.ErrOverflow) {
		t.Errorf("oversized amount: %v", err)
	}

	d = base
	d.Master = AbsoluteMaster(chain.OutPoint{TxHash: testTxHash, Index: 1 << 40})
	if _, err := d.Serialize(); !errors.Is(err, dex.ErrOverflow) {
		t.Errorf("oversized index: %v", err)
	}

	d = base
	d.Info = Info{CkbMinMatchLog: 33}
	if _, err := d.Serialize(); !errors.Is(err, dex.ErrInvalidEntity) {
		t.Errorf("invalid info: %v", err)
	}
}

func TestMasterResolve(t *testing.T) {
	current := chain.OutPoint{TxHash: testTxHash, Index: 5}

	tests := []struct {
		name    string
		ref     MasterRef
		want    chain.OutPoint
		wantErr bool
	}{{
		name: "relative +1",
		ref:  RelativeMaster(1),
		want: chain.OutPoint{TxHash: testTxHash, Index: 6},
	}, {
		name: "relative -2",
		ref:  RelativeMaster(-2),
		want: chain.OutPoint{TxHash: testTxHash, Index: 3},
	}, {
		name:    "relative underflow",
		ref:     RelativeMaster(-6),
		wantErr: true,
	}, {
		name: "absolute",
		ref:  AbsoluteMaster(chain.OutPoint{TxHash: chain.Hash{9}, Index: 0}),
		want: chain.OutPoint{TxHash: chain.Hash{9}, Index: 0},
	}}
	for _, test := range tests {
		got, err := test.ref.Resolve(current)
		if (err != nil) != test.wantErr {
			t.Errorf("%s: err = %v", test.name, err)
			continue
		}
		if err == nil && got != test.want {
			t.Errorf("%s: resolved %s, want %s", test.name, got, test.want)
		}
	}
}
