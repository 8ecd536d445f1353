// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package main

import (
	"fmt"
	"os"

	"ckbdex.org/ckbdex/dex/config"
	"ckbdex.org/ckbdex/server/market"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultRPCURL      = "http://127.0.0.1:8114"
	defaultLogLevel    = "info"
	defaultLogFilename = "ckbdex.log"
	defaultMaxLogZips  = 16
)

type flagsData struct {
	ConfigFile string `short:"C" long:"configfile" description:"Path to configuration file"`
	RPCURL     string `long:"rpc" description:"Node JSON-RPC URL"`
	DebugLevel string `short:"d" long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical}"`
	LogDir     string `long:"logdir" description:"Directory to log output. Logging to a file is disabled when empty"`
	MaxLogZips int    `long:"maxlogzips" description:"The number of zipped log files created by the log rotator to be retained. Setting to 0 will keep all"`

	OrderCodeHash string `long:"ordercodehash" description:"Order script code hash"`
	OrderHashType string `long:"orderhashtype" description:"Order script hash type"`
	OrderArgs     string `long:"orderargs" description:"Order script args, hex"`
	OrderDep      string `long:"orderdep" description:"Order script code cell, txhash:index"`

	UdtCodeHash string `long:"udtcodehash" description:"UDT script code hash"`
	UdtHashType string `long:"udthashtype" description:"UDT script hash type"`
	UdtArgs     string `long:"udtargs" description:"UDT script args, hex"`
	UdtDep      string `long:"udtdep" description:"UDT script code cell, txhash:index"`
}

type appConfig struct {
	RPCURL     string
	DebugLevel string
	LogDir     string
	MaxLogZips int
	Market     market.Config
}

// loadConfig parses command-line flags, merges the optional ini config file
// underneath them, and assembles the market configuration. Flags win over
// file settings.
func loadConfig() (*appConfig, error) {
	opts := flagsData{
		RPCURL:        defaultRPCURL,
		DebugLevel:    defaultLogLevel,
		MaxLogZips:    defaultMaxLogZips,
		OrderHashType: "type",
		UdtHashType:   "type",
	}
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		return nil, err
	}

	if opts.ConfigFile != "" {
		fileOpts, err := config.Options(opts.ConfigFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		apply := func(dst *string, key string) {
			if *dst == "" {
				*dst = fileOpts[key]
			}
		}
		if opts.RPCURL == defaultRPCURL && fileOpts["rpc"] != "" {
			opts.RPCURL = fileOpts["rpc"]
		}
		apply(&opts.LogDir, "logdir")
		apply(&opts.OrderCodeHash, "ordercodehash")
		apply(&opts.OrderArgs, "orderargs")
		apply(&opts.OrderDep, "orderdep")
		apply(&opts.UdtCodeHash, "udtcodehash")
		apply(&opts.UdtArgs, "udtargs")
		apply(&opts.UdtDep, "udtdep")
	}

	orderScript, err := parseScript(opts.OrderCodeHash, opts.OrderHashType, opts.OrderArgs)
	if err != nil {
		return nil, fmt.Errorf("order script: %w", err)
	}
	udtScript, err := parseScript(opts.UdtCodeHash, opts.UdtHashType, opts.UdtArgs)
	if err != nil {
		return nil, fmt.Errorf("udt script: %w", err)
	}
	orderDep, err := parseDep(opts.OrderDep)
	if err != nil {
		return nil, fmt.Errorf("order dep: %w", err)
	}
	udtDep, err := parseDep(opts.UdtDep)
	if err != nil {
		return nil, fmt.Errorf("udt dep: %w", err)
	}

	return &appConfig{
		RPCURL:     opts.RPCURL,
		DebugLevel: opts.DebugLevel,
		LogDir:     opts.LogDir,
		MaxLogZips: opts.MaxLogZips,
		Market: market.Config{
			OrderScript:    *orderScript,
			UdtScript:      *udtScript,
			OrderScriptDep: orderDep,
			UdtScriptDep:   udtDep,
		},
	}, nil
}
