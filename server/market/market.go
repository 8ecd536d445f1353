// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package market shapes order transactions and selects fills across a pool
// of open orders. A Manager is bound to one (order script, UDT script) pair;
// all state lives on-chain, so a Manager is cheap and carries no locks.
package market

import (
	"fmt"
	"math/big"

	"ckbdex.org/ckbdex/dex"
	"ckbdex.org/ckbdex/dex/chain"
	"ckbdex.org/ckbdex/dex/order"
	"ckbdex.org/ckbdex/server/matcher"
)

// Fee defaults. FeeRate is in shannons per 1000 bytes.
const (
	DefaultFeeBase          = 100000
	DefaultFeeRate          = 1000
	inputFootprint          = 36 // serialized outpoint of a consumed cell
)

// DefaultCkbAllowanceStep is 1000 CKB in shannons.
var DefaultCkbAllowanceStep = new(big.Int).Mul(big.NewInt(1000), big.NewInt(chain.ShannonsPerCKByte))

// Config is the Manager configuration.
type Config struct {
	// OrderScript identifies an order's lock and a master cell's type.
	OrderScript chain.Script
	// UdtScript identifies the token type.
	UdtScript chain.Script
	// OrderScriptDep and UdtScriptDep are the code cells transactions built
	// by this Manager must reference.
	OrderScriptDep chain.CellDep
	UdtScriptDep   chain.CellDep
}

// Manager shapes mint, match and melt transactions and runs order discovery
// for one trading pair.
type Manager struct {
	orderScript chain.Script
	udtScript   chain.Script
	orderDep    chain.CellDep
	udtDep      chain.CellDep
}

// NewManager creates a Manager for the configured pair.
func NewManager(cfg *Config) *Manager {
	return &Manager{
		orderScript: cfg.OrderScript,
		udtScript:   cfg.UdtScript,
		orderDep:    cfg.OrderScriptDep,
		udtDep:      cfg.UdtScriptDep,
	}
}

func (m *Manager) addDeps(tx *TxSkeleton) {
	tx.AddCellDep(m.orderDep)
	tx.AddCellDep(m.udtDep)
	tx.AddUdtHandler(m.udtScript)
}

// orderCellSize is the occupied size in bytes of a matched order cell. Every
// order of the pair has the same footprint, since both master forms encode
// to the same width (order.DataLen).
func (m *Manager) orderCellSize() uint64 {
	return 8 + m.orderScript.OccupiedSize() + m.udtScript.OccupiedSize() + order.DataLen
}

// ConvertOpts are the optional parameters of Convert.
type ConvertOpts struct {
	// Fee out of FeeBase is how much worse than the midpoint the submitter's
	// rate is. Zero fee converts at the midpoint.
	Fee     uint64
	FeeBase uint64 // 0 means DefaultFeeBase
	// CkbMinMatchLog overrides order.DefaultCkbMinMatchLog.
	CkbMinMatchLog *uint8
}

// Conversion is the result of a conversion preview.
type Conversion struct {
	// ConvertedAmount is what the submitter would receive at the adjusted
	// rate, rounded up.
	ConvertedAmount *big.Int
	// CkbFee is the difference to the midpoint conversion, priced in CKB at
	// the midpoint rate.
	CkbFee *big.Int
	// Info encodes the adjusted ratio in the submitter's direction; the
	// opposite direction is empty.
	Info order.Info
}

// Convert previews a conversion of the input side at the midpoint ratio less
// the fee. For ckb -> udt the input is ckbValue, for udt -> ckb it is
// udtValue; the other argument is ignored.
func Convert(isCkb2Udt bool, midpoint order.Ratio, ckbValue, udtValue *big.Int, opts *ConvertOpts) (*Conversion, error) {
	if !midpoint.IsPopulated() {
		return nil, dex.NewError(dex.ErrInvalidEntity, "empty midpoint ratio")
	}
	var o ConvertOpts
	if opts != nil {
		o = *opts
	}
	if o.FeeBase == 0 {
		o.FeeBase = DefaultFeeBase
	}
	if o.Fee >= o.FeeBase {
		return nil, dex.NewError(dex.ErrInvalidEntity,
			fmt.Sprintf("fee %d not below fee base %d", o.Fee, o.FeeBase))
	}
	minMatchLog := uint8(order.DefaultCkbMinMatchLog)
	if o.CkbMinMatchLog != nil {
		minMatchLog = *o.CkbMinMatchLog
	}

	ckbScale := new(big.Int).SetUint64(midpoint.CkbScale)
	udtScale := new(big.Int).SetUint64(midpoint.UdtScale)
	keep := new(big.Int).SetUint64(o.FeeBase - o.Fee)
	base := new(big.Int).SetUint64(o.FeeBase)

	// The submitter's rate is (feeBase-fee)/feeBase worse than the midpoint:
	// scale down what the submitter receives per unit given.
	var adjCkb, adjUdt *big.Int
	if isCkb2Udt {
		adjCkb = new(big.Int).Mul(ckbScale, keep)
		adjUdt = new(big.Int).Mul(udtScale, base)
	} else {
		adjCkb = new(big.Int).Mul(ckbScale, base)
		adjUdt = new(big.Int).Mul(udtScale, keep)
	}
	adjRatio, err := reduceRatio(adjCkb, adjUdt)
	if err != nil {
		return nil, err
	}

	conv := &Conversion{CkbFee: new(big.Int)}
	if isCkb2Udt {
		conv.ConvertedAmount = ceilDiv(new(big.Int).Mul(ckbValue, adjCkb), adjUdt)
		mid := ceilDiv(new(big.Int).Mul(ckbValue, ckbScale), udtScale)
		diff := mid.Sub(mid, conv.ConvertedAmount)
		conv.CkbFee = ceilDiv(diff.Mul(diff, udtScale), ckbScale)
		conv.Info = order.Info{CkbToUdt: adjRatio, CkbMinMatchLog: minMatchLog}
	} else {
		conv.ConvertedAmount = ceilDiv(new(big.Int).Mul(udtValue, adjUdt), adjCkb)
		mid := ceilDiv(new(big.Int).Mul(udtValue, udtScale), ckbScale)
		conv.CkbFee = mid.Sub(mid, conv.ConvertedAmount)
		conv.Info = order.Info{UdtToCkb: adjRatio, CkbMinMatchLog: minMatchLog}
	}
	if err := conv.Info.Validate(); err != nil {
		return nil, err
	}
	return conv, nil
}

// reduceRatio divides out the gcd and checks the scales still fit their
// encoded width.
func reduceRatio(ckb, udt *big.Int) (order.Ratio, error) {
	g := new(big.Int).GCD(nil, nil, ckb, udt)
	rc := new(big.Int).Quo(ckb, g)
	ru := new(big.Int).Quo(udt, g)
	if !rc.IsUint64() || !ru.IsUint64() {
		return order.Ratio{}, dex.NewError(dex.ErrOverflow,
			fmt.Sprintf("adjusted ratio %s/%s exceeds 64 bits", rc, ru))
	}
	return order.Ratio{CkbScale: rc.Uint64(), UdtScale: ru.Uint64()}, nil
}

// ceilDiv returns ceil(num / den) for den > 0.
func ceilDiv(num, den *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(num, den, new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

// Mint appends the two consecutive outputs of a fresh order: the order cell
// holding ckbValue of free capacity and udtValue of tokens, then the master
// witness cell under the caller's lock. The order's relative master distance
// of +1 makes the master's resolved outpoint point to itself. Returns the
// order and master output indices.
func (m *Manager) Mint(tx *TxSkeleton, ownerLock chain.Script, ckbValue, udtValue *big.Int, info order.Info) (orderIdx, masterIdx int, err error) {
	data := &order.OrderData{
		UdtAmount: udtValue,
		Master:    order.RelativeMaster(1),
		Info:      info,
	}
	payload, err := data.Serialize()
	if err != nil {
		return 0, 0, err
	}
	m.addDeps(tx)
	occupied := (&chain.Cell{Lock: m.orderScript, Type: &m.udtScript, Data: payload}).OccupiedCapacity()
	capacity := occupied.Add(occupied, ckbValue)
	orderIdx = tx.AddOutput(m.orderScript, &m.udtScript, capacity, payload)
	masterIdx = tx.AddOutput(ownerLock, &m.orderScript, nil, nil)
	return orderIdx, masterIdx, nil
}

// AddMatch consumes each matched order and produces its successor cell with
// identical scripts. The successor's master reference is converted from
// relative to absolute so every future descendant keeps pointing at the same
// witness cell.
func (m *Manager) AddMatch(tx *TxSkeleton, match *matcher.Match) error {
	if len(match.Partials) == 0 {
		return dex.NewError(dex.ErrInfeasibleMatch, "empty match")
	}
	m.addDeps(tx)
	for _, p := range match.Partials {
		master, err := p.Order.Master()
		if err != nil {
			return err
		}
		data := &order.OrderData{
			UdtAmount: p.UdtOut,
			Master:    order.AbsoluteMaster(master),
			Info:      p.Order.Data.Info,
		}
		payload, err := data.Serialize()
		if err != nil {
			return err
		}
		tx.AddInput(p.Order.Cell)
		tx.AddOutput(p.Order.Cell.Lock, p.Order.Cell.Type, p.CkbOut, payload)
	}
	return nil
}

// Melt consumes each group's order cell and master cell, recovering their
// capacity to the transaction. With onlyFulfilled set, groups whose order can
// still be matched in some direction are left open. Returns the number of
// groups melted.
func (m *Manager) Melt(tx *TxSkeleton, groups []*order.OrderGroup, onlyFulfilled bool) int {
	m.addDeps(tx)
	var melted int
	for _, g := range groups {
		if onlyFulfilled && g.Order.IsMatchable() {
			continue
		}
		tx.AddInput(g.Order.Cell)
		tx.AddInput(g.Master)
		melted++
	}
	return melted
}
