// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package market

import (
	"math/big"
	"testing"

	"ckbdex.org/ckbdex/dex/chain"
	"ckbdex.org/ckbdex/dex/order"
	"ckbdex.org/ckbdex/server/matcher"
)

func drain(s *Sequence) []*matcher.Match {
	var out []*matcher.Match
	for {
		m, ok := s.Next()
		if !ok {
			return out
		}
		out = append(out, m)
	}
}

func TestSequenceFairDistribution(t *testing.T) {
	// Order A trades at 1:1, order B gives only half a ckb per udt; A must be
	// walked first.
	a := makeOrderCell(t, chain.OutPoint{TxHash: txA, Index: 0}, order.RelativeMaster(1),
		order.Info{CkbToUdt: order.Ratio{1, 1}}, bi(1000), bi(0))
	b := makeOrderCell(t, chain.OutPoint{TxHash: txB, Index: 0}, order.RelativeMaster(1),
		order.Info{CkbToUdt: order.Ratio{2, 1}}, bi(500), bi(0))

	seq := NewSequence([]*order.OrderCell{b, a}, true, bi(300), bi(0))
	yields := drain(seq)

	// 1 empty + 4 chunks of A + 4 chunks of B.
	if len(yields) != 9 {
		t.Fatalf("%d yields, want 9", len(yields))
	}
	if len(yields[0].Partials) != 0 || yields[0].CkbDelta.Sign() != 0 {
		t.Fatalf("first yield not empty")
	}
	if yields[1].Partials[0].Order != a {
		t.Fatalf("pool not ranked by rate")
	}

	// Chunks of 1000/4 = 250 udt walk A's allowance cumulatively.
	for i, want := range []int64{250, 500, 750, 1000} {
		y := yields[1+i]
		if y.UdtDelta.Cmp(bi(-want)) != 0 {
			t.Errorf("yield %d: udtDelta %s, want -%d", 1+i, y.UdtDelta, want)
		}
		if len(y.Partials) != 1 {
			t.Errorf("yield %d: %d partials", 1+i, len(y.Partials))
		}
	}
	if !yields[4].Fulfilled {
		t.Errorf("A's last chunk not a full fill")
	}

	// B's yields accumulate on top of A's committed full fill.
	for i, wantUdt := range []int64{1250, 1500, 1750, 2000} {
		y := yields[5+i]
		if y.UdtDelta.Cmp(bi(-wantUdt)) != 0 {
			t.Errorf("yield %d: udtDelta %s, want -%d", 5+i, y.UdtDelta, wantUdt)
		}
		if len(y.Partials) != 2 {
			t.Errorf("yield %d: %d partials", 5+i, len(y.Partials))
		}
	}

	// Monotonicity of |ckbDelta| + |udtDelta| across yields.
	prev := new(big.Int)
	for i, y := range yields {
		mag := new(big.Int).Abs(y.CkbDelta)
		mag.Add(mag, new(big.Int).Abs(y.UdtDelta))
		if mag.Cmp(prev) < 0 {
			t.Errorf("yield %d: magnitude %s < %s", i, mag, prev)
		}
		prev = mag
	}
}

func TestSequenceRemainderChunks(t *testing.T) {
	// 1001 udt across ceil(1001/300) = 4 chunks: 251, 250, 250, 250.
	a := makeOrderCell(t, chain.OutPoint{TxHash: txA, Index: 0}, order.RelativeMaster(1),
		order.Info{CkbToUdt: order.Ratio{1, 1}}, bi(1001), bi(0))
	yields := drain(NewSequence([]*order.OrderCell{a}, true, bi(300), bi(0)))
	if len(yields) != 5 {
		t.Fatalf("%d yields, want 5", len(yields))
	}
	for i, want := range []int64{251, 501, 751, 1001} {
		if yields[1+i].UdtDelta.Cmp(bi(-want)) != 0 {
			t.Errorf("yield %d: udtDelta %s, want -%d", 1+i, yields[1+i].UdtDelta, want)
		}
	}
}

func TestSequenceAbandonsBelowFloor(t *testing.T) {
	// The order's minimum match (2^10, clamped to its 1000 max) is far above
	// the 250-udt first chunk, so the matcher is abandoned outright.
	a := makeOrderCell(t, chain.OutPoint{TxHash: txA, Index: 0}, order.RelativeMaster(1),
		order.Info{CkbToUdt: order.Ratio{1, 1}, CkbMinMatchLog: 10}, bi(1000), bi(0))
	good := makeOrderCell(t, chain.OutPoint{TxHash: txB, Index: 0}, order.RelativeMaster(1),
		order.Info{CkbToUdt: order.Ratio{2, 1}}, bi(500), bi(0))

	yields := drain(NewSequence([]*order.OrderCell{a, good}, true, bi(300), bi(0)))
	// 1 empty + 4 chunks of good; a contributes nothing.
	if len(yields) != 5 {
		t.Fatalf("%d yields, want 5", len(yields))
	}
	for _, y := range yields[1:] {
		if len(y.Partials) != 1 || y.Partials[0].Order != good {
			t.Fatalf("abandoned order leaked into the stream")
		}
	}
}

func TestSequenceSkipsUnmatchable(t *testing.T) {
	// A udt2ckb-only order contributes nothing to a ckb2udt walk.
	wrongWay := makeOrderCell(t, chain.OutPoint{TxHash: txA, Index: 0}, order.RelativeMaster(1),
		order.Info{UdtToCkb: order.Ratio{1, 1}}, bi(0), bi(1000))
	yields := drain(NewSequence([]*order.OrderCell{wrongWay}, true, bi(300), bi(0)))
	if len(yields) != 1 || len(yields[0].Partials) != 0 {
		t.Fatalf("unmatchable order yielded matches")
	}
}
