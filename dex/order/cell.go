// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package order

import (
	"fmt"
	"math/big"

	"ckbdex.org/ckbdex/dex"
	"ckbdex.org/ckbdex/dex/chain"
)

// OrderCell is the decoded view of a live order cell, immutable after
// construction. A successor OrderCell is a new cell produced by a transaction
// that matched this one.
type OrderCell struct {
	Cell *chain.Cell
	Data *OrderData

	// CkbOccupied is the minimal capacity the cell requires to exist;
	// CkbUnoccupied is the remainder available for matching.
	CkbOccupied   *big.Int
	CkbUnoccupied *big.Int

	// AbsTotal and AbsProgress measure the order's size and settled share in
	// a ratio-weighted unit, comparable across descendants of one order.
	AbsTotal    *big.Int
	AbsProgress *big.Int
}

// NewOrderCell decodes and validates a chain cell as an order. Errors carry
// the reason; use TryOrderCell where malformed cells must be skipped
// silently.
func NewOrderCell(cell *chain.Cell) (*OrderCell, error) {
	if cell.Type == nil {
		return nil, dex.NewError(dex.ErrDecode, "order cell without a type script")
	}
	data, err := DecodeOrderData(cell.Data)
	if err != nil {
		return nil, err
	}
	if err := data.Validate(); err != nil {
		return nil, err
	}
	if err := cell.Validate(); err != nil {
		return nil, err
	}
	o := &OrderCell{
		Cell:        cell,
		Data:        data,
		CkbOccupied: cell.OccupiedCapacity(),
	}
	o.CkbUnoccupied = new(big.Int).Sub(cell.Capacity, o.CkbOccupied)
	o.AbsTotal = o.absTotal()
	o.AbsProgress = o.absProgress()
	return o, nil
}

// TryOrderCell decodes a chain cell as an order, absorbing all failures.
// Discovery uses it to skip malformed on-chain data without blocking the
// stream.
func TryOrderCell(cell *chain.Cell) *OrderCell {
	o, err := NewOrderCell(cell)
	if err != nil {
		return nil
	}
	return o
}

// ckb2UdtValue is the cell's weighted value in the ckb -> udt direction,
// zero when that direction is not populated.
func (o *OrderCell) ckb2UdtValue() *big.Int {
	r := o.Data.Info.CkbToUdt
	if !r.IsPopulated() {
		return new(big.Int)
	}
	return weightedValue(o.CkbUnoccupied, o.Data.UdtAmount, r)
}

// udt2CkbValue is the symmetric measure for the udt -> ckb direction.
func (o *OrderCell) udt2CkbValue() *big.Int {
	r := o.Data.Info.UdtToCkb
	if !r.IsPopulated() {
		return new(big.Int)
	}
	return weightedValue(o.CkbUnoccupied, o.Data.UdtAmount, r)
}

// weightedValue computes ckb·CkbScale + udt·UdtScale.
func weightedValue(ckb, udt *big.Int, r Ratio) *big.Int {
	v := new(big.Int).Mul(ckb, new(big.Int).SetUint64(r.CkbScale))
	return v.Add(v, new(big.Int).Mul(udt, new(big.Int).SetUint64(r.UdtScale)))
}

// absTotal is the order's total size. For a dual-ratio order it is the
// integer average of the two cross-weighted measures, so both directions
// contribute on the same scale.
func (o *OrderCell) absTotal() *big.Int {
	c2u, u2c := o.ckb2UdtValue(), o.udt2CkbValue()
	switch {
	case c2u.Sign() == 0:
		return u2c
	case u2c.Sign() == 0:
		return c2u
	}
	r, rr := o.Data.Info.CkbToUdt, o.Data.Info.UdtToCkb
	lhs := new(big.Int).Mul(c2u, new(big.Int).SetUint64(rr.CkbScale))
	lhs.Mul(lhs, new(big.Int).SetUint64(rr.UdtScale))
	rhs := new(big.Int).Mul(u2c, new(big.Int).SetUint64(r.CkbScale))
	rhs.Mul(rhs, new(big.Int).SetUint64(r.UdtScale))
	return lhs.Add(lhs, rhs).Rsh(lhs, 1)
}

// absProgress is the settled share of absTotal. A dual-ratio order is fully
// settled accounting by construction; a single-direction order has progressed
// by what it has already received.
func (o *OrderCell) absProgress() *big.Int {
	info := o.Data.Info
	switch {
	case info.IsDualRatio():
		return new(big.Int).Set(o.AbsTotal)
	case info.CkbToUdt.IsPopulated():
		return new(big.Int).Mul(o.Data.UdtAmount, new(big.Int).SetUint64(info.CkbToUdt.UdtScale))
	default:
		return new(big.Int).Mul(o.CkbUnoccupied, new(big.Int).SetUint64(info.UdtToCkb.CkbScale))
	}
}

// Master resolves the order's master outpoint.
func (o *OrderCell) Master() (chain.OutPoint, error) {
	return o.Data.Master.Resolve(o.Cell.OutPoint)
}

// IsCkb2UdtMatchable reports whether the order can still give CKB for UDT.
func (o *OrderCell) IsCkb2UdtMatchable() bool {
	return o.Data.Info.CkbToUdt.IsPopulated() && o.CkbUnoccupied.Sign() > 0
}

// IsUdt2CkbMatchable reports whether the order can still give UDT for CKB.
func (o *OrderCell) IsUdt2CkbMatchable() bool {
	return o.Data.Info.UdtToCkb.IsPopulated() && o.Data.UdtAmount.Sign() > 0
}

// IsMatchable reports whether the order can be matched in either direction.
func (o *OrderCell) IsMatchable() bool {
	return o.IsCkb2UdtMatchable() || o.IsUdt2CkbMatchable()
}

// ValidateDescendant checks that desc is a legal descendant of this order. A
// transaction output claiming descent must keep the scripts, master and price
// descriptors intact and must not have lost value or progress; anything else
// is a confusion attack on the order's identity.
func (o *OrderCell) ValidateDescendant(desc *OrderCell) error {
	if o.Cell.OutPoint == desc.Cell.OutPoint {
		return nil
	}
	if !o.Cell.Lock.Equal(&desc.Cell.Lock) {
		return dex.NewError(dex.ErrInvalidDescendant, "lock script mismatch")
	}
	if !o.Cell.Type.Equal(desc.Cell.Type) {
		return dex.NewError(dex.ErrInvalidDescendant, "type script mismatch")
	}
	m, err := o.Master()
	if err != nil {
		return dex.NewError(dex.ErrInvalidDescendant, err.Error())
	}
	dm, err := desc.Master()
	if err != nil {
		return dex.NewError(dex.ErrInvalidDescendant, err.Error())
	}
	if m != dm {
		return dex.NewError(dex.ErrInvalidDescendant,
			fmt.Sprintf("master %s != %s", dm, m))
	}
	if !o.Data.Info.Equal(desc.Data.Info) {
		return dex.NewError(dex.ErrInvalidDescendant, "info mismatch")
	}
	if o.AbsTotal.Cmp(desc.AbsTotal) > 0 {
		return dex.NewError(dex.ErrInvalidDescendant,
			fmt.Sprintf("total decreased %s -> %s", o.AbsTotal, desc.AbsTotal))
	}
	if o.AbsProgress.Cmp(desc.AbsProgress) > 0 {
		return dex.NewError(dex.ErrInvalidDescendant,
			fmt.Sprintf("progress decreased %s -> %s", o.AbsProgress, desc.AbsProgress))
	}
	return nil
}

// Resolve picks the live descendant of this order from a set of candidate
// cells sharing its master reference: the validating candidate with the
// largest progress, ties preferring a non-mint cell. Returns nil if no
// candidate validates.
func (o *OrderCell) Resolve(descendants []*OrderCell) *OrderCell {
	var best *OrderCell
	for _, d := range descendants {
		if o.ValidateDescendant(d) != nil {
			continue
		}
		if best == nil {
			best = d
			continue
		}
		switch d.AbsProgress.Cmp(best.AbsProgress) {
		case 1:
			best = d
		case 0:
			if best.Data.IsMint() && !d.Data.IsMint() {
				best = d
			}
		}
	}
	return best
}

// OrderGroup ties a master witness cell to the current live descendant and
// the originally minted order.
type OrderGroup struct {
	Master *chain.Cell
	Order  *OrderCell
	Origin *OrderCell
}

// Validate checks the group jointly: the origin must accept the live order as
// a descendant, and both must reference the master cell.
func (g *OrderGroup) Validate() error {
	if err := g.Origin.ValidateDescendant(g.Order); err != nil {
		return err
	}
	m, err := g.Origin.Master()
	if err != nil {
		return err
	}
	if m != g.Master.OutPoint {
		return dex.NewError(dex.ErrInvalidDescendant,
			fmt.Sprintf("origin master %s is not the group master %s", m, g.Master.OutPoint))
	}
	return nil
}
