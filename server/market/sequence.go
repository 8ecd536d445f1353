// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package market

import (
	"bytes"
	"math"
	"math/big"

	"ckbdex.org/ckbdex/dex/order"
	"ckbdex.org/ckbdex/server/matcher"
	"github.com/huandu/skiplist"
)

// matcherComparable is a skiplist.Comparable implementation for *Matcher. It
// sorts matchers by effective rate, best first, breaking ties by the order's
// outpoint so equal-rate matchers keep distinct entries.
type matcherComparable struct{}

var _ skiplist.Comparable = matcherComparable{}

func (matcherComparable) Compare(lhs, rhs interface{}) int {
	l := lhs.(*matcher.Matcher)
	r := rhs.(*matcher.Matcher)
	if c := r.RatioCmp(l); c != 0 {
		return c
	}
	lop, rop := l.Order.Cell.OutPoint, r.Order.Cell.OutPoint
	if c := bytes.Compare(lop.TxHash[:], rop.TxHash[:]); c != 0 {
		return c
	}
	switch {
	case lop.Index < rop.Index:
		return -1
	case lop.Index > rop.Index:
		return 1
	}
	return 0
}

func (matcherComparable) CalcScore(key interface{}) float64 {
	return math.MaxFloat64 - key.(*matcher.Matcher).RatioFloat()
}

// Sequence is the sequential fair-distribution match generator: a pull
// stream of cumulative matches over a pool of orders, best effective rate
// first. Yields are strictly cumulative and monotone in allowance; consumers
// pull only as many as they need and stop by not calling Next again.
type Sequence struct {
	matchers []*matcher.Matcher
	step     *big.Int

	baseline *matcher.Match
	started  bool

	// Walk state within the current matcher. n, q and r partition the
	// matcher's bMaxMatch into n chunks of q, the first r of them q+1, so
	// chunks differ by at most one and the count is maximal under the step
	// constraint.
	mi        int
	n, q, r   *big.Int
	idx       *big.Int
	allowance *big.Int
	last      *matcher.Match
}

// NewSequence builds matchers for every order in the pool that can be
// matched in the direction, ranks them by effective rate descending, and
// returns the generator. The first yield is always the empty cumulative
// match.
func NewSequence(pool []*order.OrderCell, isCkb2Udt bool, allowanceStep, ckbMiningFee *big.Int) *Sequence {
	ranked := skiplist.New(matcherComparable{})
	for _, o := range pool {
		if m := matcher.New(o, isCkb2Udt, ckbMiningFee); m != nil {
			ranked.Set(m, m)
		}
	}
	ms := make([]*matcher.Matcher, 0, ranked.Len())
	for el := ranked.Front(); el != nil; el = el.Next() {
		ms = append(ms, el.Value.(*matcher.Matcher))
	}
	return &Sequence{
		matchers: ms,
		step:     new(big.Int).Set(allowanceStep),
		baseline: matcher.EmptyMatch(),
	}
}

// enter initializes the chunk walk for the matcher at mi.
func (s *Sequence) enter() {
	bMax := s.matchers[s.mi].BMaxMatch()
	s.n = ceilDiv(bMax, s.step)
	if s.n.Sign() > 0 {
		s.q, s.r = new(big.Int).QuoRem(bMax, s.n, new(big.Int))
	} else {
		s.q, s.r = new(big.Int), new(big.Int)
	}
	s.idx = new(big.Int)
	s.allowance = new(big.Int)
	s.last = nil
}

// leave commits the matcher's final cumulative, if any, as the baseline for
// the next matcher and moves on.
func (s *Sequence) leave(commit bool) {
	if commit && s.last != nil {
		s.baseline = s.last
	}
	s.mi++
	s.n = nil
}

// Next yields the next cumulative match. The second return is false when the
// stream is exhausted.
func (s *Sequence) Next() (*matcher.Match, bool) {
	if !s.started {
		s.started = true
		return s.baseline, true
	}
	one := big.NewInt(1)
	for s.mi < len(s.matchers) {
		m := s.matchers[s.mi]
		if s.n == nil {
			s.enter()
		}
		if s.idx.Cmp(s.n) >= 0 {
			s.leave(true)
			continue
		}
		chunk := new(big.Int).Set(s.q)
		if s.idx.Cmp(s.r) < 0 {
			chunk.Add(chunk, one)
		}
		s.allowance.Add(s.allowance, chunk)
		s.idx.Add(s.idx, one)

		res := m.Match(s.allowance)
		if len(res.Partials) == 0 {
			// The allowance is still below the order's minimum match. This
			// matcher's rate is inferior to everything already walked, so no
			// smaller allowance will be worth revisiting; abandon it.
			log.Tracef("abandoning matcher for order %s at allowance %s",
				m.Order.Cell.OutPoint, s.allowance)
			s.leave(false)
			continue
		}
		cum := s.baseline.Combine(res)
		cum.Fulfilled = res.Fulfilled
		s.last = cum
		return cum, true
	}
	return nil, false
}
