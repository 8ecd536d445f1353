// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// ckbdex lists the open order groups of a configured trading pair.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"ckbdex.org/ckbdex/client/rpc"
	"ckbdex.org/ckbdex/dex"
	"ckbdex.org/ckbdex/dex/chain"
	"ckbdex.org/ckbdex/dex/order"
	"ckbdex.org/ckbdex/server/market"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.LogDir != "" {
		if err := initLogRotator(filepath.Join(cfg.LogDir, defaultLogFilename), cfg.MaxLogZips); err != nil {
			return err
		}
		defer closeLogRotator()
	}
	logMaker, err := dex.NewLoggerMaker(logWriter{}, cfg.DebugLevel)
	if err != nil {
		return err
	}
	log := logMaker.NewLogger("MAIN")
	market.UseLogger(logMaker.NewLogger("MRKT"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := rpc.New(cfg.RPCURL, logMaker.NewLogger("RPC"))
	mgr := market.NewManager(&cfg.Market)

	var open, fulfilled int
	err = mgr.FindOrders(ctx, client, func(g *order.OrderGroup) {
		state := "open"
		if !g.Order.IsMatchable() {
			state = "fulfilled"
			fulfilled++
		} else {
			open++
		}
		fmt.Printf("%s  master=%s  ckb=%s  udt=%s  progress=%s/%s  [%s]\n",
			g.Order.Cell.OutPoint, g.Master.OutPoint, g.Order.CkbUnoccupied,
			g.Order.Data.UdtAmount, g.Order.AbsProgress, g.Order.AbsTotal, state)
	})
	if err != nil {
		return err
	}
	log.Infof("%d open, %d fulfilled order groups", open, fulfilled)
	return nil
}

// parseScript assembles a chain script from its flag parts.
func parseScript(codeHash, hashType, args string) (*chain.Script, error) {
	h, err := chain.NewHashFromStr(codeHash)
	if err != nil {
		return nil, err
	}
	ht, err := chain.ParseScriptHashType(hashType)
	if err != nil {
		return nil, err
	}
	argBytes, err := hex.DecodeString(strings.TrimPrefix(args, "0x"))
	if err != nil {
		return nil, err
	}
	return &chain.Script{CodeHash: h, HashType: ht, Args: argBytes}, nil
}

// parseDep parses a txhash:index cell dep reference.
func parseDep(s string) (chain.CellDep, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return chain.CellDep{}, fmt.Errorf("bad dep reference %q", s)
	}
	h, err := chain.NewHashFromStr(parts[0])
	if err != nil {
		return chain.CellDep{}, err
	}
	idx, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return chain.CellDep{}, err
	}
	return chain.CellDep{
		OutPoint: chain.OutPoint{TxHash: h, Index: idx},
		DepType:  chain.DepTypeCode,
	}, nil
}
