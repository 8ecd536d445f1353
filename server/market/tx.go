// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package market

import (
	"math/big"

	"ckbdex.org/ckbdex/dex/chain"
)

// Output is a pending transaction output. Capacity is addressable and may be
// adjusted in place after the output is appended, which fee balancing relies
// on.
type Output struct {
	Lock     chain.Script
	Type     *chain.Script
	Capacity *big.Int
	Data     []byte
}

// TxSkeleton is a transaction under construction. It is exclusively owned by
// the calling flow: mint, addMatch and melt mutate it in place, and
// concurrent use of one skeleton is undefined.
type TxSkeleton struct {
	CellDeps    []chain.CellDep
	UdtHandlers []chain.Script
	Inputs      []*chain.Cell
	Outputs     []*Output
}

// NewTxSkeleton creates an empty transaction skeleton.
func NewTxSkeleton() *TxSkeleton {
	return &TxSkeleton{}
}

// AddCellDep registers a cell dep. Registration is idempotent.
func (tx *TxSkeleton) AddCellDep(dep chain.CellDep) {
	for _, d := range tx.CellDeps {
		if d == dep {
			return
		}
	}
	tx.CellDeps = append(tx.CellDeps, dep)
}

// AddUdtHandler registers a UDT script whose token balance the assembled
// transaction must account for. Registration is idempotent.
func (tx *TxSkeleton) AddUdtHandler(script chain.Script) {
	h := script.Hash()
	for i := range tx.UdtHandlers {
		if tx.UdtHandlers[i].Hash() == h {
			return
		}
	}
	tx.UdtHandlers = append(tx.UdtHandlers, script)
}

// AddInput appends a cell to be consumed.
func (tx *TxSkeleton) AddInput(cell *chain.Cell) {
	tx.Inputs = append(tx.Inputs, cell)
}

// AddOutput appends an output and returns its position index. A nil capacity
// means the output's occupied minimum.
func (tx *TxSkeleton) AddOutput(lock chain.Script, typ *chain.Script, capacity *big.Int, data []byte) int {
	out := &Output{Lock: lock, Type: typ, Data: data}
	if capacity != nil {
		out.Capacity = new(big.Int).Set(capacity)
	} else {
		out.Capacity = (&chain.Cell{Lock: lock, Type: typ, Data: data}).OccupiedCapacity()
	}
	tx.Outputs = append(tx.Outputs, out)
	return len(tx.Outputs) - 1
}
