// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package order defines the on-chain encoding of a limit order cell, the
// master-reference scheme that gives an order a stable identity across
// matches, and the derived OrderCell view consumed by the matching engine.
package order

import (
	"fmt"
	"math"
	"math/big"

	"ckbdex.org/ckbdex/dex"
	"ckbdex.org/ckbdex/dex/chain"
	"ckbdex.org/ckbdex/dex/encode"
)

// MasterKind discriminates the two master-reference encodings.
type MasterKind uint8

// A master reference is either relative, pointing a signed distance from the
// order's own outpoint within its originating transaction, or absolute,
// naming the master cell's outpoint directly.
const (
	MasterRelative MasterKind = 0
	MasterAbsolute MasterKind = 1
)

// masterPadSize is the zero-padding prefix length of a relative master
// reference. It keeps the relative variant the same width as a tx hash so
// chain-side verifiers can address the distance at a fixed offset.
const masterPadSize = 32

// MasterRef is an order's reference to its master cell.
type MasterRef struct {
	Kind     MasterKind
	Distance int32          // relative only
	OutPoint chain.OutPoint // absolute only
}

// RelativeMaster creates a relative master reference with the given signed
// distance.
func RelativeMaster(distance int32) MasterRef {
	return MasterRef{Kind: MasterRelative, Distance: distance}
}

// AbsoluteMaster creates an absolute master reference to the given outpoint.
func AbsoluteMaster(op chain.OutPoint) MasterRef {
	return MasterRef{Kind: MasterAbsolute, OutPoint: op}
}

// IsRelative reports whether the reference is relative. A freshly minted
// order carries a relative reference; every descendant carries an absolute
// one.
func (m MasterRef) IsRelative() bool {
	return m.Kind == MasterRelative
}

// Resolve returns the master cell's outpoint given the outpoint of the cell
// carrying the reference. A relative reference shifts the current index by
// the signed distance; negative distances address cells placed before the
// order in its originating transaction.
func (m MasterRef) Resolve(current chain.OutPoint) (chain.OutPoint, error) {
	switch m.Kind {
	case MasterAbsolute:
		return m.OutPoint, nil
	case MasterRelative:
		if current.Index > math.MaxInt64-uint64(math.MaxInt32) {
			return chain.OutPoint{}, dex.NewError(dex.ErrInvalidEntity,
				fmt.Sprintf("index %d out of range", current.Index))
		}
		idx := int64(current.Index) + int64(m.Distance)
		if idx < 0 {
			return chain.OutPoint{}, dex.NewError(dex.ErrInvalidEntity,
				fmt.Sprintf("master distance %d out of range from %s", m.Distance, current))
		}
		return chain.OutPoint{TxHash: current.TxHash, Index: uint64(idx)}, nil
	}
	return chain.OutPoint{}, dex.NewError(dex.ErrInvalidEntity,
		fmt.Sprintf("unknown master kind %d", m.Kind))
}

// Validate checks the reference's tag.
func (m MasterRef) Validate() error {
	if m.Kind != MasterRelative && m.Kind != MasterAbsolute {
		return dex.NewError(dex.ErrInvalidEntity,
			fmt.Sprintf("unknown master kind %d", m.Kind))
	}
	return nil
}

// OrderData is the payload of an order cell: the cell's UDT balance, the
// master reference, and the price descriptors. The layout is a little-endian
// packed struct fixed by the on-chain verifier.
type OrderData struct {
	UdtAmount *big.Int
	Master    MasterRef
	Info      Info
}

const infoLen = 8 + 8 + 8 + 8 + 1

// DataLen is the serialized length of an OrderData. The two master variants
// are deliberately the same width (the pad mirrors a tx hash, the i32
// distance mirrors a u32 outpoint index), so an order cell's occupied
// capacity never changes across descendants.
const DataLen = encode.Uint128Size + 1 + chain.HashSize + 4 + infoLen

// SerializeSize gives the length of the serialized OrderData in bytes.
func (d *OrderData) SerializeSize() int {
	return DataLen
}

// Serialize marshals the OrderData into the exact packed layout the chain
// verifies. Values that do not round-trip are rejected.
func (d *OrderData) Serialize() ([]byte, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	amt, err := encode.Uint128Bytes(d.UdtAmount)
	if err != nil {
		return nil, err
	}
	b := make([]byte, 0, d.SerializeSize())
	b = append(b, amt...)
	b = append(b, byte(d.Master.Kind))
	switch d.Master.Kind {
	case MasterRelative:
		b = append(b, make([]byte, masterPadSize)...)
		b = append(b, encode.Uint32Bytes(uint32(d.Master.Distance))...)
	case MasterAbsolute:
		if d.Master.OutPoint.Index > math.MaxUint32 {
			return nil, dex.NewError(dex.ErrOverflow,
				fmt.Sprintf("outpoint index %d exceeds 32 bits", d.Master.OutPoint.Index))
		}
		b = append(b, d.Master.OutPoint.TxHash[:]...)
		b = append(b, encode.Uint32Bytes(uint32(d.Master.OutPoint.Index))...)
	}
	b = append(b, encode.Uint64Bytes(d.Info.CkbToUdt.CkbScale)...)
	b = append(b, encode.Uint64Bytes(d.Info.CkbToUdt.UdtScale)...)
	b = append(b, encode.Uint64Bytes(d.Info.UdtToCkb.CkbScale)...)
	b = append(b, encode.Uint64Bytes(d.Info.UdtToCkb.UdtScale)...)
	b = append(b, d.Info.CkbMinMatchLog)
	return b, nil
}

// DecodeOrderData parses a cell data payload. The payload must be exactly one
// packed OrderData; trailing bytes and nonzero relative padding are decode
// failures.
func DecodeOrderData(b []byte) (*OrderData, error) {
	dec := encode.NewDecoder(b)
	d := &OrderData{UdtAmount: dec.Uint128()}
	tag := dec.Byte()
	switch MasterKind(tag) {
	case MasterRelative:
		pad := dec.Bytes(masterPadSize)
		for _, p := range pad {
			if p != 0 {
				return nil, dex.NewError(dex.ErrDecode, "nonzero master padding")
			}
		}
		d.Master = RelativeMaster(dec.Int32())
	case MasterAbsolute:
		var op chain.OutPoint
		copy(op.TxHash[:], dec.Bytes(chain.HashSize))
		op.Index = uint64(dec.Uint32())
		d.Master = AbsoluteMaster(op)
	default:
		return nil, dex.NewError(dex.ErrDecode, fmt.Sprintf("unknown master tag %d", tag))
	}
	d.Info.CkbToUdt.CkbScale = dec.Uint64()
	d.Info.CkbToUdt.UdtScale = dec.Uint64()
	d.Info.UdtToCkb.CkbScale = dec.Uint64()
	d.Info.UdtToCkb.UdtScale = dec.Uint64()
	d.Info.CkbMinMatchLog = dec.Byte()
	if err := dec.Err(); err != nil {
		return nil, err
	}
	if dec.Leftover() != 0 {
		return nil, dex.NewError(dex.ErrDecode,
			fmt.Sprintf("%d trailing bytes", dec.Leftover()))
	}
	return d, nil
}

// Validate checks the semantic invariants of the parsed payload.
func (d *OrderData) Validate() error {
	if d.UdtAmount == nil || d.UdtAmount.Sign() < 0 {
		return dex.NewError(dex.ErrInvalidEntity, "negative udt amount")
	}
	if err := d.Master.Validate(); err != nil {
		return err
	}
	return d.Info.Validate()
}

// IsMint reports whether this is a freshly minted order, identified by a
// relative master reference.
func (d *OrderData) IsMint() bool {
	return d.Master.IsRelative()
}
