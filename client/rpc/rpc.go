// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package rpc is the JSON-RPC 2.0 client for a chain node with the indexer
// module enabled. It satisfies the cell-source contract consumed by order
// discovery: paginated live-cell search and single-output fetches.
package rpc

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"ckbdex.org/ckbdex/dex"
	"ckbdex.org/ckbdex/dex/chain"
)

// DefaultPageLimit is the number of cells fetched per get_cells page.
const DefaultPageLimit = 400

const requestTimeout = time.Minute

// Client talks to one node.
type Client struct {
	url       string
	http      *http.Client
	log       dex.Logger
	pageLimit uint32
	reqID     atomic.Uint64
}

// New creates a Client for the node at url.
func New(url string, logger dex.Logger) *Client {
	return &Client{
		url:       url,
		http:      &http.Client{Timeout: requestTimeout},
		log:       logger,
		pageLimit: DefaultPageLimit,
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// call performs one JSON-RPC request, unmarshaling the result into thing.
func (c *Client) call(ctx context.Context, method string, params any, thing any) error {
	reqBody, err := json.Marshal(&rpcRequest{
		JSONRPC: "2.0",
		ID:      c.reqID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("error constructing request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("error performing request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http status %d from %s", resp.StatusCode, method)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return fmt.Errorf("error decoding response to %s: %w", method, err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if thing != nil {
		return json.Unmarshal(rpcResp.Result, thing)
	}
	return nil
}

// Wire representations. The node hex-encodes every number.

type jsonScript struct {
	CodeHash string `json:"code_hash"`
	HashType string `json:"hash_type"`
	Args     string `json:"args"`
}

func scriptToJSON(s *chain.Script) *jsonScript {
	if s == nil {
		return nil
	}
	return &jsonScript{
		CodeHash: "0x" + s.CodeHash.String(),
		HashType: s.HashType.String(),
		Args:     hexFromBytes(s.Args),
	}
}

func (js *jsonScript) parse() (*chain.Script, error) {
	if js == nil {
		return nil, nil
	}
	codeHash, err := chain.NewHashFromStr(js.CodeHash)
	if err != nil {
		return nil, err
	}
	ht, err := chain.ParseScriptHashType(js.HashType)
	if err != nil {
		return nil, err
	}
	args, err := bytesFromHex(js.Args)
	if err != nil {
		return nil, err
	}
	return &chain.Script{CodeHash: codeHash, HashType: ht, Args: args}, nil
}

type jsonOutPoint struct {
	TxHash string `json:"tx_hash"`
	Index  string `json:"index"`
}

func (jop *jsonOutPoint) parse() (chain.OutPoint, error) {
	txHash, err := chain.NewHashFromStr(jop.TxHash)
	if err != nil {
		return chain.OutPoint{}, err
	}
	idx, err := uint64FromHex(jop.Index)
	if err != nil {
		return chain.OutPoint{}, err
	}
	return chain.OutPoint{TxHash: txHash, Index: idx}, nil
}

type jsonOutput struct {
	Capacity string      `json:"capacity"`
	Lock     *jsonScript `json:"lock"`
	Type     *jsonScript `json:"type"`
}

func (jo *jsonOutput) parse(op chain.OutPoint, data string) (*chain.Cell, error) {
	capacity, err := bigFromHex(jo.Capacity)
	if err != nil {
		return nil, err
	}
	lock, err := jo.Lock.parse()
	if err != nil {
		return nil, err
	}
	typ, err := jo.Type.parse()
	if err != nil {
		return nil, err
	}
	payload, err := bytesFromHex(data)
	if err != nil {
		return nil, err
	}
	return &chain.Cell{
		OutPoint: op,
		Capacity: capacity,
		Lock:     *lock,
		Type:     typ,
		Data:     payload,
	}, nil
}

type searchKey struct {
	Script           *jsonScript   `json:"script"`
	ScriptType       string        `json:"script_type"`
	ScriptSearchMode string        `json:"script_search_mode"`
	Filter           *searchFilter `json:"filter,omitempty"`
	WithData         bool          `json:"with_data"`
}

type searchFilter struct {
	Script *jsonScript `json:"script"`
}

type cellsPage struct {
	LastCursor string `json:"last_cursor"`
	Objects    []struct {
		OutPoint   jsonOutPoint `json:"out_point"`
		Output     jsonOutput   `json:"output"`
		OutputData string       `json:"output_data"`
	} `json:"objects"`
}

// FindCells streams every live cell matching the query to f, paging through
// get_cells until the node runs dry or f returns false.
func (c *Client) FindCells(ctx context.Context, q *chain.CellQuery, f func(*chain.Cell) bool) error {
	key := &searchKey{
		Script:           scriptToJSON(&q.Script),
		ScriptType:       q.ScriptType.String(),
		ScriptSearchMode: "exact",
		WithData:         q.WithData,
	}
	if q.Filter != nil {
		key.Filter = &searchFilter{Script: scriptToJSON(q.Filter)}
	}
	var cursor any
	for {
		var page cellsPage
		params := []any{key, "asc", hexFromUint64(uint64(c.pageLimit)), cursor}
		if err := c.call(ctx, "get_cells", params, &page); err != nil {
			return err
		}
		c.log.Tracef("get_cells %s page: %d cells", q.ScriptType, len(page.Objects))
		for _, obj := range page.Objects {
			op, err := obj.OutPoint.parse()
			if err != nil {
				return err
			}
			cell, err := obj.Output.parse(op, obj.OutputData)
			if err != nil {
				return err
			}
			if !f(cell) {
				return nil
			}
		}
		if uint32(len(page.Objects)) < c.pageLimit {
			return nil
		}
		cursor = page.LastCursor
	}
}

type txResult struct {
	Transaction *struct {
		Outputs     []jsonOutput `json:"outputs"`
		OutputsData []string     `json:"outputs_data"`
	} `json:"transaction"`
}

// GetCell fetches the output op of its creating transaction, live or spent.
// A missing transaction or out-of-range index is (nil, nil).
func (c *Client) GetCell(ctx context.Context, op chain.OutPoint) (*chain.Cell, error) {
	var res txResult
	err := c.call(ctx, "get_transaction", []any{"0x" + op.TxHash.String()}, &res)
	if err != nil {
		return nil, err
	}
	if res.Transaction == nil || op.Index >= uint64(len(res.Transaction.Outputs)) {
		return nil, nil
	}
	var data string
	if op.Index < uint64(len(res.Transaction.OutputsData)) {
		data = res.Transaction.OutputsData[op.Index]
	}
	return res.Transaction.Outputs[op.Index].parse(op, data)
}

// Hex helpers. The node prefixes every hex quantity with 0x.

func hexFromBytes(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

func hexFromUint64(i uint64) string {
	return "0x" + strconv.FormatUint(i, 16)
}

func trimHexPrefix(s string) (string, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return "", dex.NewError(dex.ErrDecode, fmt.Sprintf("hex quantity %q without 0x prefix", s))
	}
	return s[2:], nil
}

func bytesFromHex(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	t, err := trimHexPrefix(s)
	if err != nil {
		return nil, err
	}
	return hex.DecodeString(t)
}

func uint64FromHex(s string) (uint64, error) {
	t, err := trimHexPrefix(s)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(t, 16, 64)
}

func bigFromHex(s string) (*big.Int, error) {
	t, err := trimHexPrefix(s)
	if err != nil {
		return nil, err
	}
	i, ok := new(big.Int).SetString(t, 16)
	if !ok {
		return nil, dex.NewError(dex.ErrDecode, fmt.Sprintf("bad hex quantity %q", s))
	}
	return i, nil
}
