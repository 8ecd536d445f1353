// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package market

import (
	"context"

	"ckbdex.org/ckbdex/dex/chain"
)

// CellSource is the blockchain client contract consumed by order discovery.
// Implementations must be safe for concurrent use.
type CellSource interface {
	// FindCells streams every live cell matching the query to f, in no
	// particular order, until the stream is exhausted or f returns false.
	FindCells(ctx context.Context, q *chain.CellQuery, f func(*chain.Cell) bool) error
	// GetCell fetches the cell created as the given transaction output,
	// whether or not it is still live. A missing cell is (nil, nil).
	GetCell(ctx context.Context, op chain.OutPoint) (*chain.Cell, error)
}
