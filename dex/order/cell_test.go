// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package order

import (
	"errors"
	"math/big"
	"testing"

	"ckbdex.org/ckbdex/dex"
	"ckbdex.org/ckbdex/dex/chain"
)

var (
	orderScript = chain.Script{CodeHash: chain.Hash{0xaa}, HashType: chain.HashTypeType}
	udtScript   = chain.Script{CodeHash: chain.Hash{0xbb}, HashType: chain.HashTypeType, Args: make([]byte, 32)}

	txA = chain.Hash{1}
	txB = chain.Hash{2}
	txC = chain.Hash{3}
)

// makeOrderCell builds a live order cell with the given free capacity and
// token balance and decodes it.
func makeOrderCell(t *testing.T, op chain.OutPoint, master MasterRef, info Info, unoccupied, udtAmount int64) *OrderCell {
	t.Helper()
	data := &OrderData{
		UdtAmount: big.NewInt(udtAmount),
		Master:    master,
		Info:      info,
	}
	payload, err := data.Serialize()
	if err != nil {
		t.Fatalf("Serialize error: %v", err)
	}
	cell := &chain.Cell{
		OutPoint: op,
		Lock:     orderScript,
		Type:     &udtScript,
		Data:     payload,
	}
	cell.Capacity = new(big.Int).Add(cell.OccupiedCapacity(), big.NewInt(unoccupied))
	o, err := NewOrderCell(cell)
	if err != nil {
		t.Fatalf("NewOrderCell error: %v", err)
	}
	return o
}

func TestOrderCellDerived(t *testing.T) {
	info := Info{CkbToUdt: Ratio{1, 1}}
	o := makeOrderCell(t, chain.OutPoint{TxHash: txA}, RelativeMaster(1), info, 1000, 0)

	wantOccupied := big.NewInt((8 + 33 + 65 + DataLen) * chain.ShannonsPerCKByte)
	if o.CkbOccupied.Cmp(wantOccupied) != 0 {
		t.Errorf("occupied %s, want %s", o.CkbOccupied, wantOccupied)
	}
	if o.CkbUnoccupied.Cmp(big.NewInt(1000)) != 0 {
		t.Errorf("unoccupied %s, want 1000", o.CkbUnoccupied)
	}
	if o.AbsTotal.Cmp(big.NewInt(1000)) != 0 {
		t.Errorf("absTotal %s, want 1000", o.AbsTotal)
	}
	if o.AbsProgress.Sign() != 0 {
		t.Errorf("absProgress %s, want 0", o.AbsProgress)
	}
	if !o.IsCkb2UdtMatchable() || o.IsUdt2CkbMatchable() {
		t.Errorf("matchability: c2u %v, u2c %v", o.IsCkb2UdtMatchable(), o.IsUdt2CkbMatchable())
	}
}

func TestOrderCellDualRatio(t *testing.T) {
	info := Info{CkbToUdt: Ratio{2, 1}, UdtToCkb: Ratio{1, 1}}
	o := makeOrderCell(t, chain.OutPoint{TxHash: txA}, RelativeMaster(1), info, 1000, 10)

	// ckb2UdtValue = 1000·2 + 10·1 = 2010, udt2CkbValue = 1000·1 + 10·1 = 1010,
	// absTotal = (2010·1·1 + 1010·2·1) >> 1 = 2015.
	if o.AbsTotal.Cmp(big.NewInt(2015)) != 0 {
		t.Errorf("absTotal %s, want 2015", o.AbsTotal)
	}
	if o.AbsProgress.Cmp(o.AbsTotal) != 0 {
		t.Errorf("dual-ratio absProgress %s != absTotal %s", o.AbsProgress, o.AbsTotal)
	}
	if !o.IsCkb2UdtMatchable() || !o.IsUdt2CkbMatchable() {
		t.Errorf("dual-ratio order not matchable both ways")
	}
}

func TestTryOrderCell(t *testing.T) {
	cell := &chain.Cell{
		OutPoint: chain.OutPoint{TxHash: txA},
		Lock:     orderScript,
		Type:     &udtScript,
		Data:     []byte{1, 2, 3},
	}
	cell.Capacity = cell.OccupiedCapacity()
	if TryOrderCell(cell) != nil {
		t.Errorf("malformed cell decoded")
	}
	if _, err := NewOrderCell(cell); !errors.Is(err, dex.ErrDecode) {
		t.Errorf("explicit decode: %v", err)
	}
}

func TestValidateDescendant(t *testing.T) {
	info := Info{CkbToUdt: Ratio{1, 1}}
	masterOP := chain.OutPoint{TxHash: txA, Index: 1}
	origin := makeOrderCell(t, chain.OutPoint{TxHash: txA, Index: 0}, RelativeMaster(1), info, 1000, 0)

	if mp, err := origin.Master(); err != nil || mp != masterOP {
		t.Fatalf("origin master %s (%v), want %s", mp, err, masterOP)
	}
	if err := origin.ValidateDescendant(origin); err != nil {
		t.Errorf("self validation: %v", err)
	}

	// A legal partial: 600 CKB went out, 600 UDT came in.
	good := makeOrderCell(t, chain.OutPoint{TxHash: txB}, AbsoluteMaster(masterOP), info, 400, 600)
	if err := origin.ValidateDescendant(good); err != nil {
		t.Errorf("legal descendant rejected: %v", err)
	}

	// Value leaked: total 999 < 1000.
	leaky := makeOrderCell(t, chain.OutPoint{TxHash: txB}, AbsoluteMaster(masterOP), info, 400, 599)
	if err := origin.ValidateDescendant(leaky); !errors.Is(err, dex.ErrInvalidDescendant) {
		t.Errorf("leaky descendant: %v", err)
	}

	wrongInfo := makeOrderCell(t, chain.OutPoint{TxHash: txB}, AbsoluteMaster(masterOP),
		Info{CkbToUdt: Ratio{1, 1}, CkbMinMatchLog: 1}, 400, 600)
	if err := origin.ValidateDescendant(wrongInfo); !errors.Is(err, dex.ErrInvalidDescendant) {
		t.Errorf("info mismatch: %v", err)
	}

	wrongMaster := makeOrderCell(t, chain.OutPoint{TxHash: txB},
		AbsoluteMaster(chain.OutPoint{TxHash: txA, Index: 0}), info, 400, 600)
	if err := origin.ValidateDescendant(wrongMaster); !errors.Is(err, dex.ErrInvalidDescendant) {
		t.Errorf("master mismatch: %v", err)
	}
}

func TestResolveConfusionAttack(t *testing.T) {
	info := Info{CkbToUdt: Ratio{1, 1}}
	masterOP := chain.OutPoint{TxHash: txA, Index: 1}
	// Origin with absProgress 10 of absTotal 100.
	origin := makeOrderCell(t, chain.OutPoint{TxHash: txA, Index: 0}, RelativeMaster(1), info, 90, 10)
	if origin.AbsTotal.Cmp(big.NewInt(100)) != 0 || origin.AbsProgress.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("fixture: total %s, progress %s", origin.AbsTotal, origin.AbsProgress)
	}

	// A cell that rolled progress back to 9.
	rollback := makeOrderCell(t, chain.OutPoint{TxHash: txB}, AbsoluteMaster(masterOP), info, 91, 9)
	if err := origin.ValidateDescendant(rollback); !errors.Is(err, dex.ErrInvalidDescendant) {
		t.Errorf("rollback accepted: %v", err)
	}
	if origin.Resolve([]*OrderCell{rollback}) != nil {
		t.Errorf("Resolve returned a rollback descendant")
	}
}

func TestResolve(t *testing.T) {
	info := Info{CkbToUdt: Ratio{1, 1}}
	masterOP := chain.OutPoint{TxHash: txA, Index: 1}
	origin := makeOrderCell(t, chain.OutPoint{TxHash: txA, Index: 0}, RelativeMaster(1), info, 90, 10)

	// Same progress as the origin, but matched (absolute master).
	twin := makeOrderCell(t, chain.OutPoint{TxHash: txB}, AbsoluteMaster(masterOP), info, 90, 10)
	// Further along.
	ahead := makeOrderCell(t, chain.OutPoint{TxHash: txC}, AbsoluteMaster(masterOP), info, 80, 20)

	// The tie prefers the non-mint cell.
	if got := origin.Resolve([]*OrderCell{origin, twin}); got != twin {
		t.Errorf("tie break picked %v", got.Cell.OutPoint)
	}
	if got := origin.Resolve([]*OrderCell{twin, origin}); got != twin {
		t.Errorf("tie break order-sensitive: %v", got.Cell.OutPoint)
	}
	// Highest progress wins.
	if got := origin.Resolve([]*OrderCell{origin, ahead, twin}); got != ahead {
		t.Errorf("Resolve picked %v, want the most progressed", got.Cell.OutPoint)
	}
	if origin.Resolve(nil) != nil {
		t.Errorf("Resolve of nothing returned something")
	}
}

func TestOrderGroupValidate(t *testing.T) {
	info := Info{CkbToUdt: Ratio{1, 1}}
	masterOP := chain.OutPoint{TxHash: txA, Index: 1}
	origin := makeOrderCell(t, chain.OutPoint{TxHash: txA, Index: 0}, RelativeMaster(1), info, 1000, 0)
	live := makeOrderCell(t, chain.OutPoint{TxHash: txB}, AbsoluteMaster(masterOP), info, 400, 600)

	master := &chain.Cell{
		OutPoint: masterOP,
		Lock:     chain.Script{CodeHash: chain.Hash{0xcc}, HashType: chain.HashTypeType},
		Type:     &orderScript,
	}
	master.Capacity = master.OccupiedCapacity()

	g := &OrderGroup{Master: master, Order: live, Origin: origin}
	if err := g.Validate(); err != nil {
		t.Errorf("group validation: %v", err)
	}

	badMaster := &chain.Cell{OutPoint: chain.OutPoint{TxHash: txC, Index: 1}, Lock: master.Lock, Type: &orderScript}
	badMaster.Capacity = badMaster.OccupiedCapacity()
	g = &OrderGroup{Master: badMaster, Order: live, Origin: origin}
	if err := g.Validate(); !errors.Is(err, dex.ErrInvalidDescendant) {
		t.Errorf("wrong master accepted: %v", err)
	}
}
