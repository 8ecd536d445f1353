// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package chain defines the primitive on-chain types of a cell-based chain:
// hashes, outpoints, scripts and live cells. Scripts are opaque identifiers
// to the matching core, but their byte footprints feed the occupied-capacity
// rule, so the encoding here must agree with the chain.
package chain

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math/big"

	"ckbdex.org/ckbdex/dex"
	"ckbdex.org/ckbdex/dex/encode"
	"github.com/dchest/blake2b"
)

// HashSize is the length in bytes of a transaction or script hash.
const HashSize = 32

// ShannonsPerCKByte converts a byte of on-chain state to the capacity it
// occupies. 1 CKByte = 1e8 shannons.
const ShannonsPerCKByte = 100_000_000

// hashPersonalization is the blake2b-256 personalization the chain uses for
// every script and transaction hash.
var hashPersonalization = []byte("ckb-default-hash")

// Hash identifies a transaction or a script.
type Hash [HashSize]byte

// String returns a hexadecimal representation of the Hash. String implements
// fmt.Stringer.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// NewHashFromStr decodes a 64-character hexadecimal string, with or without a
// 0x prefix, into a Hash.
func NewHashFromStr(s string) (Hash, error) {
	var h Hash
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, err
	}
	if len(b) != HashSize {
		return h, fmt.Errorf("hash length %d, expected %d", len(b), HashSize)
	}
	copy(h[:], b)
	return h, nil
}

// Blake256 computes the chain's personalized blake2b-256 hash of the input.
func Blake256(b []byte) Hash {
	h, err := blake2b.New(&blake2b.Config{Size: HashSize, Person: hashPersonalization})
	if err != nil {
		panic("blake2b config: " + err.Error())
	}
	h.Write(b)
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// OutPoint identifies a cell as an output of a past transaction.
type OutPoint struct {
	TxHash Hash
	Index  uint64
}

// String returns the outpoint in txhash:index form. String implements
// fmt.Stringer.
func (op OutPoint) String() string {
	return fmt.Sprintf("%s:%d", op.TxHash, op.Index)
}

// ScriptHashType discriminates how a script's code hash is matched against
// on-chain code.
type ScriptHashType byte

// The recognized hash types and their on-chain byte codes.
const (
	HashTypeData  ScriptHashType = 0
	HashTypeType  ScriptHashType = 1
	HashTypeData1 ScriptHashType = 2
	HashTypeData2 ScriptHashType = 4
)

// String returns the hash type's canonical name.
func (ht ScriptHashType) String() string {
	switch ht {
	case HashTypeData:
		return "data"
	case HashTypeType:
		return "type"
	case HashTypeData1:
		return "data1"
	case HashTypeData2:
		return "data2"
	default:
		return "unknown"
	}
}

// ParseScriptHashType converts a canonical hash type name to its byte code.
func ParseScriptHashType(s string) (ScriptHashType, error) {
	switch s {
	case "data":
		return HashTypeData, nil
	case "type":
		return HashTypeType, nil
	case "data1":
		return HashTypeData1, nil
	case "data2":
		return HashTypeData2, nil
	}
	return 0, fmt.Errorf("unknown script hash type %q", s)
}

// Script is a typed handle referencing on-chain code. Cells carry one lock
// script and an optional type script.
type Script struct {
	CodeHash Hash
	HashType ScriptHashType
	Args     []byte
}

// Equal reports whether two scripts are identical.
func (s *Script) Equal(other *Script) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.CodeHash == other.CodeHash && s.HashType == other.HashType &&
		bytes.Equal(s.Args, other.Args)
}

// OccupiedSize is the script's contribution to its cell's occupied capacity,
// in bytes: code hash, hash type byte, and raw args.
func (s *Script) OccupiedSize() uint64 {
	return HashSize + 1 + uint64(len(s.Args))
}

// serializeMolecule encodes the script as the chain's canonical molecule
// table (code_hash: Byte32, hash_type: byte, args: Bytes), which is the
// preimage of the script hash.
func (s *Script) serializeMolecule() []byte {
	const headerLen = 4 + 3*4 // full size + three field offsets
	argsLen := uint32(len(s.Args))
	fullLen := uint32(headerLen) + HashSize + 1 + 4 + argsLen
	b := make([]byte, 0, fullLen)
	b = append(b, encode.Uint32Bytes(fullLen)...)
	b = append(b, encode.Uint32Bytes(headerLen)...)
	b = append(b, encode.Uint32Bytes(headerLen+HashSize)...)
	b = append(b, encode.Uint32Bytes(headerLen+HashSize+1)...)
	b = append(b, s.CodeHash[:]...)
	b = append(b, byte(s.HashType))
	b = append(b, encode.Uint32Bytes(argsLen)...)
	b = append(b, s.Args...)
	return b
}

// Hash computes the script hash that on-chain cells are indexed by.
func (s *Script) Hash() Hash {
	return Blake256(s.serializeMolecule())
}

// DepType discriminates how a cell dep's target is interpreted.
type DepType byte

// The recognized dep types.
const (
	DepTypeCode DepType = iota
	DepTypeDepGroup
)

// CellDep references a cell carrying code or a dep group required by a
// transaction.
type CellDep struct {
	OutPoint OutPoint
	DepType  DepType
}

// Cell is the unit of on-chain state.
type Cell struct {
	OutPoint OutPoint
	Capacity *big.Int // shannons
	Lock     Script
	Type     *Script
	Data     []byte
}

// OccupiedCapacity is the minimal capacity, in shannons, the cell requires
// to exist: 8 bytes for the capacity field itself, the script footprints,
// and the data payload, each byte costing ShannonsPerCKByte.
func (c *Cell) OccupiedCapacity() *big.Int {
	sz := uint64(8) + c.Lock.OccupiedSize() + uint64(len(c.Data))
	if c.Type != nil {
		sz += c.Type.OccupiedSize()
	}
	occ := new(big.Int).SetUint64(sz)
	return occ.Mul(occ, big.NewInt(ShannonsPerCKByte))
}

// Validate checks the cell's internal consistency: non-negative capacity not
// below the occupied minimum.
func (c *Cell) Validate() error {
	if c.Capacity == nil || c.Capacity.Sign() < 0 {
		return dex.NewError(dex.ErrInvalidEntity, "negative capacity")
	}
	if c.Capacity.Cmp(c.OccupiedCapacity()) < 0 {
		return dex.NewError(dex.ErrInvalidEntity,
			fmt.Sprintf("capacity %s below occupied %s for cell %s",
				c.Capacity, c.OccupiedCapacity(), c.OutPoint))
	}
	return nil
}
