// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package market

import (
	"math/big"

	"ckbdex.org/ckbdex/dex"
	"ckbdex.org/ckbdex/dex/order"
	"ckbdex.org/ckbdex/server/matcher"
)

// lookAheadSize is the window each direction's stream is scored over. The
// rate-descending sort makes each stream individually monotone in marginal
// gain, so a 2-wide window is enough to reconcile the two streams against a
// shared two-dimensional budget without enumerating the full product.
const lookAheadSize = 2

// lookAhead is a small buffered stream over a Sequence supporting peeking at
// the current window and advancing by an absolute index.
type lookAhead struct {
	seq *Sequence
	buf []*matcher.Match
}

func newLookAhead(seq *Sequence) *lookAhead {
	la := &lookAhead{seq: seq}
	la.fill()
	return la
}

func (la *lookAhead) fill() {
	for len(la.buf) < lookAheadSize {
		m, ok := la.seq.Next()
		if !ok {
			return
		}
		la.buf = append(la.buf, m)
	}
}

// advance consumes n elements, so the previous buf[n] becomes buf[0], and
// refills the window.
func (la *lookAhead) advance(n int) {
	if n == 0 {
		return
	}
	la.buf = la.buf[n:]
	la.fill()
}

// Allowance is the matcher's per-asset budget.
type Allowance struct {
	Ckb *big.Int
	Udt *big.Int
}

// BestMatchOpts are the optional parameters of BestMatch.
type BestMatchOpts struct {
	FeeRate          uint64   // shannons per 1000 bytes, 0 means DefaultFeeRate
	CkbAllowanceStep *big.Int // nil means DefaultCkbAllowanceStep
}

// BestMatchResult is the selected set of fills and its net effect on the
// matcher's balances. CkbFee is the mining-fee overhead already accounted
// for in feasibility, not yet subtracted from CkbDelta.
type BestMatchResult struct {
	CkbDelta *big.Int
	UdtDelta *big.Int
	Partials []*matcher.Partial
	CkbFee   *big.Int
	Gain     *big.Int
}

// BestMatch picks the set of partial and full fills across both directions
// that maximizes the matcher's net gain at the exchange rate, while
// respecting both asset budgets, per-order minimum-match thresholds and the
// mining-fee overhead of every consumed order.
func (m *Manager) BestMatch(pool []*order.OrderCell, allowance Allowance, exchangeRate order.Ratio, opts *BestMatchOpts) (*BestMatchResult, error) {
	if !exchangeRate.IsPopulated() {
		return nil, dex.NewError(dex.ErrInvalidEntity, "empty exchange rate")
	}
	var o BestMatchOpts
	if opts != nil {
		o = *opts
	}
	if o.FeeRate == 0 {
		o.FeeRate = DefaultFeeRate
	}
	ckbStep := o.CkbAllowanceStep
	if ckbStep == nil {
		ckbStep = DefaultCkbAllowanceStep
	}

	ckbScale := new(big.Int).SetUint64(exchangeRate.CkbScale)
	udtScale := new(big.Int).SetUint64(exchangeRate.UdtScale)

	// One consumed order adds an input plus a successor cell to the
	// transaction; the matcher fronts the fee for those bytes.
	feeBytes := new(big.Int).SetUint64(inputFootprint + m.orderCellSize())
	ckbMiningFee := ceilDiv(feeBytes.Mul(feeBytes, new(big.Int).SetUint64(o.FeeRate)), big.NewInt(1000))

	udtStep := ceilDiv(new(big.Int).Mul(ckbStep, ckbScale), udtScale)

	c2u := newLookAhead(NewSequence(pool, true, udtStep, ckbMiningFee))
	u2c := newLookAhead(NewSequence(pool, false, ckbStep, ckbMiningFee))

	score := func(a, b *matcher.Match) *BestMatchResult {
		r := &BestMatchResult{
			CkbDelta: new(big.Int).Add(a.CkbDelta, b.CkbDelta),
			UdtDelta: new(big.Int).Add(a.UdtDelta, b.UdtDelta),
			Partials: append(append([]*matcher.Partial{}, a.Partials...), b.Partials...),
		}
		r.CkbFee = new(big.Int).Mul(ckbMiningFee, big.NewInt(int64(len(r.Partials))))
		ckbLeft := new(big.Int).Add(allowance.Ckb, r.CkbDelta)
		ckbLeft.Sub(ckbLeft, r.CkbFee)
		udtLeft := new(big.Int).Add(allowance.Udt, r.UdtDelta)
		if ckbLeft.Sign() < 0 || udtLeft.Sign() < 0 {
			return nil // infeasible
		}
		r.Gain = new(big.Int).Mul(r.CkbDelta, ckbScale)
		r.Gain.Add(r.Gain, new(big.Int).Mul(r.UdtDelta, udtScale))
		return r
	}

	var best *BestMatchResult
	for {
		bestI, bestJ := 0, 0
		var windowGain *big.Int
		for i, a := range c2u.buf {
			for j, b := range u2c.buf {
				r := score(a, b)
				if r == nil {
					continue
				}
				if windowGain == nil || r.Gain.Cmp(windowGain) > 0 {
					windowGain, bestI, bestJ = r.Gain, i, j
				}
				if best == nil || r.Gain.Cmp(best.Gain) > 0 {
					best = r
				}
			}
		}
		if windowGain == nil || (bestI == 0 && bestJ == 0) {
			break
		}
		c2u.advance(bestI)
		u2c.advance(bestJ)
	}
	if best == nil {
		// Even the empty pairing breaks a negative budget.
		return nil, dex.NewError(dex.ErrInfeasibleMatch, "no feasible match under the allowance")
	}
	return best, nil
}
