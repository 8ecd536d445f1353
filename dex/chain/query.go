// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package chain

// ScriptType selects which of a cell's scripts a query matches against.
type ScriptType uint8

// The queryable script positions.
const (
	ScriptTypeLock ScriptType = iota
	ScriptTypeType
)

// String returns the script type's RPC name.
func (st ScriptType) String() string {
	if st == ScriptTypeType {
		return "type"
	}
	return "lock"
}

// CellQuery selects live cells by script. Matching is always exact. Filter,
// when set, is a secondary exact match against the other script position.
type CellQuery struct {
	Script     Script
	ScriptType ScriptType
	Filter     *Script
	WithData   bool
}
