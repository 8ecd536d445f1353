// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package matcher computes legal partial and full fills of a single order
// cell. All arithmetic is exact: the non-decreasing value rule below is also
// enforced by the chain-side verifier, so the integer rounding here must be
// preserved bit for bit.
package matcher

import (
	"fmt"
	"math/big"

	"ckbdex.org/ckbdex/dex"
	"ckbdex.org/ckbdex/dex/order"
)

// NonDecreasing returns the minimum integer bOut such that
//
//	aScale·aOut + bScale·bOut >= aScale·aIn + bScale·bIn
//
// computed in the exact integer form
//
//	bOut = (aScale·(aIn − aOut) + bScale·(bIn + 1) − 1) / bScale
//
// The +1/−1 adjustment keeps the result consistent with chain-side
// verification and must not be rewritten as a ceiling division.
func NonDecreasing(aScale, bScale, aIn, bIn, aOut *big.Int) *big.Int {
	num := new(big.Int).Sub(aIn, aOut)
	num.Mul(num, aScale)
	bPlus := new(big.Int).Add(bIn, big.NewInt(1))
	num.Add(num, bPlus.Mul(bPlus, bScale))
	num.Sub(num, big.NewInt(1))
	return num.Quo(num, bScale)
}

// Partial describes the transformation of one order cell by a match: the
// order consumed and the capacity and UDT balance of its successor cell.
type Partial struct {
	Order  *order.OrderCell
	CkbOut *big.Int
	UdtOut *big.Int
}

// Match is the outcome of matching against an allowance. Deltas are from the
// matcher's perspective: CkbDelta is the net CKB gained by the matcher,
// positive when the matcher receives CKB, and likewise UdtDelta. An empty
// Match has no partials and zero deltas.
type Match struct {
	CkbDelta  *big.Int
	UdtDelta  *big.Int
	Partials  []*Partial
	Fulfilled bool
}

// EmptyMatch creates a zero-delta Match with no partials.
func EmptyMatch() *Match {
	return &Match{CkbDelta: new(big.Int), UdtDelta: new(big.Int)}
}

// Combine adds the other match's deltas and partials into a new Match.
func (m *Match) Combine(other *Match) *Match {
	c := &Match{
		CkbDelta: new(big.Int).Add(m.CkbDelta, other.CkbDelta),
		UdtDelta: new(big.Int).Add(m.UdtDelta, other.UdtDelta),
		Partials: make([]*Partial, 0, len(m.Partials)+len(other.Partials)),
	}
	c.Partials = append(c.Partials, m.Partials...)
	c.Partials = append(c.Partials, other.Partials...)
	return c
}

// Matcher binds one order cell to a match direction and a per-partial mining
// fee, precomputing the scales and bounds used by Match. The mining fee is
// credited to the matcher and debited from the CKB side of the trade.
type Matcher struct {
	Order     *order.OrderCell
	IsCkb2Udt bool

	aScale, bScale *big.Int
	aIn, bIn       *big.Int
	aMin           *big.Int
	bMinMatch      *big.Int
	bMaxMatch      *big.Int
	bMaxOut        *big.Int

	// realRatio = ratioNum / ratioDen is the effective rate used only for
	// ranking matchers against each other.
	ratioNum, ratioDen *big.Int
}

// New computes a Matcher for the order in the given direction. It returns nil
// when no legal match exists: the direction's ratio is missing, the giving
// side cannot cover its minimum plus the mining fee, or the effective rate is
// not positive.
func New(o *order.OrderCell, isCkb2Udt bool, ckbMiningFee *big.Int) *Matcher {
	var ratio order.Ratio
	if isCkb2Udt {
		ratio = o.Data.Info.CkbToUdt
	} else {
		ratio = o.Data.Info.UdtToCkb
	}
	if !ratio.IsPopulated() {
		return nil
	}

	m := &Matcher{Order: o, IsCkb2Udt: isCkb2Udt}
	var aMiningFee, bMiningFee *big.Int
	if isCkb2Udt {
		// The cell gives CKB (a) and receives UDT (b). It cannot give away
		// its storage minimum, and the mining fee comes out of the CKB it
		// gives.
		m.aScale = new(big.Int).SetUint64(ratio.CkbScale)
		m.bScale = new(big.Int).SetUint64(ratio.UdtScale)
		m.aIn = o.Cell.Capacity
		m.bIn = o.Data.UdtAmount
		m.aMin = o.CkbOccupied
		aMiningFee, bMiningFee = ckbMiningFee, new(big.Int)
	} else {
		// The cell gives UDT (a) and receives CKB (b).
		m.aScale = new(big.Int).SetUint64(ratio.UdtScale)
		m.bScale = new(big.Int).SetUint64(ratio.CkbScale)
		m.aIn = o.Data.UdtAmount
		m.bIn = o.Cell.Capacity
		m.aMin = new(big.Int)
		aMiningFee, bMiningFee = new(big.Int), ckbMiningFee
	}

	floor := new(big.Int).Add(m.aMin, aMiningFee)
	if m.aIn.Cmp(floor) <= 0 {
		return nil
	}

	m.bMaxOut = NonDecreasing(m.aScale, m.bScale, m.aIn, m.bIn, m.aMin)
	m.bMaxMatch = new(big.Int).Sub(m.bMaxOut, m.bIn)

	// The anti-dust floor on the receiving side, converted into b units for
	// the ckb -> udt case.
	ckbMin := o.Data.Info.CkbMinMatch()
	if isCkb2Udt {
		m.bMinMatch = ceilDiv(new(big.Int).Mul(ckbMin, m.aScale), m.bScale)
	} else {
		m.bMinMatch = ckbMin
	}
	if m.bMinMatch.Cmp(m.bMaxMatch) > 0 {
		m.bMinMatch = new(big.Int).Set(m.bMaxMatch)
	}

	m.ratioNum = new(big.Int).Sub(m.aIn, floor)
	m.ratioDen = new(big.Int).Add(m.bMaxMatch, bMiningFee)
	if m.ratioNum.Sign() <= 0 || m.ratioDen.Sign() <= 0 {
		return nil
	}
	return m
}

// ceilDiv returns ceil(num / den) for den > 0.
func ceilDiv(num, den *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(num, den, new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

// BMinMatch is the smallest allowance that produces a partial.
func (m *Matcher) BMinMatch() *big.Int {
	return new(big.Int).Set(m.bMinMatch)
}

// BMaxMatch is the allowance that fills the order completely.
func (m *Matcher) BMaxMatch() *big.Int {
	return new(big.Int).Set(m.bMaxMatch)
}

// RatioCmp ranks two matchers by effective rate, comparing the exact
// fractions by cross multiplication.
func (m *Matcher) RatioCmp(other *Matcher) int {
	lhs := new(big.Int).Mul(m.ratioNum, other.ratioDen)
	rhs := new(big.Int).Mul(other.ratioNum, m.ratioDen)
	return lhs.Cmp(rhs)
}

// RatioFloat is a floating-point approximation of the effective rate. It is
// an ordering hint only; ranking decisions use RatioCmp.
func (m *Matcher) RatioFloat() float64 {
	num, _ := new(big.Float).SetInt(m.ratioNum).Float64()
	den, _ := new(big.Float).SetInt(m.ratioDen).Float64()
	return num / den
}

// Match computes the largest legal fill for the given allowance on the
// receiving side. Allowances below the order's minimum match size produce an
// empty Match; allowances at or above BMaxMatch produce the full fill. The
// result is stable: once fulfilled, larger allowances return the same fill.
func (m *Matcher) Match(bAllowance *big.Int) *Match {
	if bAllowance.Cmp(m.bMinMatch) < 0 {
		return EmptyMatch()
	}
	var aOut, bOut *big.Int
	var fulfilled bool
	if bAllowance.Cmp(m.bMaxMatch) >= 0 {
		aOut = new(big.Int).Set(m.aMin)
		bOut = new(big.Int).Set(m.bMaxOut)
		fulfilled = true
	} else {
		bOut = new(big.Int).Add(m.bIn, bAllowance)
		aOut = NonDecreasing(m.bScale, m.aScale, m.bIn, m.aIn, bOut)
	}

	aDelta := new(big.Int).Sub(m.aIn, aOut)
	bDelta := new(big.Int).Sub(m.bIn, bOut)
	match := &Match{Fulfilled: fulfilled}
	p := &Partial{Order: m.Order}
	if m.IsCkb2Udt {
		match.CkbDelta, match.UdtDelta = aDelta, bDelta
		p.CkbOut, p.UdtOut = aOut, bOut
	} else {
		match.CkbDelta, match.UdtDelta = bDelta, aDelta
		p.CkbOut, p.UdtOut = bOut, aOut
	}
	match.Partials = []*Partial{p}
	return match
}

// MatchCkb2Udt matches the order in the ckb -> udt direction, raising instead
// of returning an empty match. The udtAllowance is what the matcher is
// willing to pay in UDT.
func MatchCkb2Udt(o *order.OrderCell, udtAllowance, ckbMiningFee *big.Int) (*Match, error) {
	return demand(New(o, true, ckbMiningFee), udtAllowance, "ckb2udt")
}

// MatchUdt2Ckb matches the order in the udt -> ckb direction, raising instead
// of returning an empty match. The ckbAllowance is what the matcher is
// willing to pay in CKB.
func MatchUdt2Ckb(o *order.OrderCell, ckbAllowance, ckbMiningFee *big.Int) (*Match, error) {
	return demand(New(o, false, ckbMiningFee), ckbAllowance, "udt2ckb")
}

func demand(m *Matcher, bAllowance *big.Int, dir string) (*Match, error) {
	if m == nil {
		return nil, dex.NewError(dex.ErrIncompatibleOrder,
			fmt.Sprintf("order not matchable %s", dir))
	}
	match := m.Match(bAllowance)
	if len(match.Partials) == 0 {
		return nil, dex.NewError(dex.ErrInfeasibleMatch,
			fmt.Sprintf("allowance %s below minimum match %s", bAllowance, m.bMinMatch))
	}
	return match, nil
}
