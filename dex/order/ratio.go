// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package order

import (
	"fmt"
	"math/big"

	"ckbdex.org/ckbdex/dex"
)

// Ratio is an immutable price descriptor. A populated Ratio attached to a
// conversion direction represents the exchange rate CkbScale / UdtScale for
// that direction: value parity holds when ckbAmount·CkbScale equals
// udtAmount·UdtScale.
type Ratio struct {
	CkbScale uint64
	UdtScale uint64
}

// IsEmpty reports whether both scales are zero.
func (r Ratio) IsEmpty() bool {
	return r.CkbScale == 0 && r.UdtScale == 0
}

// IsPopulated reports whether both scales are strictly positive.
func (r Ratio) IsPopulated() bool {
	return r.CkbScale > 0 && r.UdtScale > 0
}

// Validate rejects half-populated ratios. A Ratio is either empty or
// populated; any other combination is invalid.
func (r Ratio) Validate() error {
	if r.IsEmpty() || r.IsPopulated() {
		return nil
	}
	return dex.NewError(dex.ErrInvalidEntity,
		fmt.Sprintf("half-populated ratio %d/%d", r.CkbScale, r.UdtScale))
}

// Cmp compares two populated ratios lexicographically in the cross-product
// domain: r < other iff r.CkbScale·other.UdtScale < other.CkbScale·r.UdtScale.
// Returns -1, 0 or 1.
func (r Ratio) Cmp(other Ratio) int {
	// Fast paths when one component is equal.
	if r.UdtScale == other.UdtScale {
		return cmpUint64(r.CkbScale, other.CkbScale)
	}
	if r.CkbScale == other.CkbScale {
		// Smaller UdtScale means a larger rate.
		return cmpUint64(other.UdtScale, r.UdtScale)
	}
	lhs := new(big.Int).Mul(
		new(big.Int).SetUint64(r.CkbScale),
		new(big.Int).SetUint64(other.UdtScale),
	)
	rhs := new(big.Int).Mul(
		new(big.Int).SetUint64(other.CkbScale),
		new(big.Int).SetUint64(r.UdtScale),
	)
	return lhs.Cmp(rhs)
}

func cmpUint64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// MaxCkbMinMatchLog is the largest legal minimum-match exponent.
const MaxCkbMinMatchLog = 64

// DefaultCkbMinMatchLog is the default minimum-match exponent, 2^33 shannons,
// about 86 CKB.
const DefaultCkbMinMatchLog = 33

// Info carries an order's price descriptors for both conversion directions
// and its anti-dust minimum-match exponent. At least one ratio is populated;
// a single-direction order leaves the other empty.
type Info struct {
	CkbToUdt       Ratio
	UdtToCkb       Ratio
	CkbMinMatchLog uint8
}

// Validate rejects an out-of-range minimum-match exponent, half-populated or
// all-empty ratio pairs, and any dual-ratio pair whose composite round trip
// would extract value from the cell.
func (i Info) Validate() error {
	if i.CkbMinMatchLog > MaxCkbMinMatchLog {
		return dex.NewError(dex.ErrInvalidEntity,
			fmt.Sprintf("ckbMinMatchLog %d out of range [0,%d]", i.CkbMinMatchLog, MaxCkbMinMatchLog))
	}
	if err := i.CkbToUdt.Validate(); err != nil {
		return err
	}
	if err := i.UdtToCkb.Validate(); err != nil {
		return err
	}
	if i.CkbToUdt.IsEmpty() && i.UdtToCkb.IsEmpty() {
		return dex.NewError(dex.ErrInvalidEntity, "no populated ratio")
	}
	if i.CkbToUdt.IsPopulated() && i.UdtToCkb.IsPopulated() {
		// The round trip ckb -> udt -> ckb must not create value:
		// ckbToUdt.CkbScale·udtToCkb.UdtScale >= ckbToUdt.UdtScale·udtToCkb.CkbScale.
		lhs := new(big.Int).Mul(
			new(big.Int).SetUint64(i.CkbToUdt.CkbScale),
			new(big.Int).SetUint64(i.UdtToCkb.UdtScale),
		)
		rhs := new(big.Int).Mul(
			new(big.Int).SetUint64(i.CkbToUdt.UdtScale),
			new(big.Int).SetUint64(i.UdtToCkb.CkbScale),
		)
		if lhs.Cmp(rhs) < 0 {
			return dex.NewError(dex.ErrInvalidEntity,
				fmt.Sprintf("dual ratio %d/%d, %d/%d extracts value",
					i.CkbToUdt.CkbScale, i.CkbToUdt.UdtScale,
					i.UdtToCkb.CkbScale, i.UdtToCkb.UdtScale))
		}
	}
	return nil
}

// CkbMinMatch is the minimum CKB-equivalent size of any partial match,
// 1 << CkbMinMatchLog shannons.
func (i Info) CkbMinMatch() *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), uint(i.CkbMinMatchLog))
}

// Equal reports byte-exact equality of two Infos.
func (i Info) Equal(other Info) bool {
	return i == other
}

// IsDualRatio reports whether both directions are populated.
func (i Info) IsDualRatio() bool {
	return i.CkbToUdt.IsPopulated() && i.UdtToCkb.IsPopulated()
}
