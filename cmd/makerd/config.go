package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/btcutil"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultDataDirname  = "makerd"
	defaultListenAddr   = ":7070"
	defaultRPCHost      = "localhost:8332"
	defaultMinSize      = int64(100_000)
	defaultMaxSize      = int64(10_000_000)
	defaultBaseAbsolute = int64(500)
	defaultRelAmountPPB = int64(1_000_000) // 0.1%
	defaultRelTimePPB   = int64(100)
	defaultMinReaction  = int64(3 * 3600) // 3 hours
	defaultConfirms     = int64(1)
)

var coinswapHomeDir = btcutil.AppDataDir("coinswap-go", false)

// config mirrors the teacher's lnd config struct shape one level down:
// a flat set of go-flags options, no ini-file layering, since this
// exercise's config surface is a fraction of lnd's.
type config struct {
	DataDir  string `long:"datadir" description:"directory to store the maker's wallet DB"`
	ListenAddr string `long:"listenaddr" description:"address to accept Taker connections on"`

	RPCHost string `long:"rpchost" description:"bitcoind RPC host:port"`
	RPCUser string `long:"rpcuser" description:"bitcoind RPC username"`
	RPCPass string `long:"rpcpass" description:"bitcoind RPC password"`
	RPCCert string `long:"rpccert" description:"path to bitcoind RPC TLS certificate, empty to disable TLS"`

	BaseKeyWIF string `long:"basekey" description:"hex-encoded long-lived base private key"`

	MinSize int64 `long:"minsize" description:"minimum swap amount this maker accepts"`
	MaxSize int64 `long:"maxsize" description:"maximum swap amount this maker accepts"`

	BaseAbsoluteFee      int64 `long:"baseabsolutefee" description:"flat per-swap fee in satoshis"`
	RelativeAmountFeePPB int64 `long:"relamountfeeppb" description:"fee rate on swapped amount, parts per billion"`
	RelativeTimeFeePPB   int64 `long:"reltimefeeppb" description:"fee rate on hop reaction time, parts per billion"`

	MinContractReactionTime int64 `long:"minreactiontime" description:"minimum seconds of reaction time this maker requires"`
	RequiredConfirms        int64 `long:"requiredconfirms" description:"confirmation depth required on a prior hop's funding output"`

	FidelityBondTxid       string `long:"bondtxid" description:"txid of this maker's fidelity bond UTXO"`
	FidelityBondVout       uint32 `long:"bondvout" description:"output index of this maker's fidelity bond UTXO"`
	FidelityBondAmt        int64  `long:"bondamount" description:"value in satoshis of this maker's fidelity bond UTXO"`
	FidelityLocktime       int64  `long:"bondlocktime" description:"absolute locktime (unix seconds) of this maker's fidelity bond"`
	FidelityBondConfHeight int64  `long:"bondconfheight" description:"confirmation height of this maker's fidelity bond UTXO, 0 if not yet known"`

	DirectoryURL string `long:"directoryurl" description:"base URL of the offer directory to advertise to"`
}

func defaultConfig() *config {
	return &config{
		DataDir:                  filepath.Join(coinswapHomeDir, defaultDataDirname),
		ListenAddr:               defaultListenAddr,
		RPCHost:                  defaultRPCHost,
		MinSize:                  defaultMinSize,
		MaxSize:                  defaultMaxSize,
		BaseAbsoluteFee:          defaultBaseAbsolute,
		RelativeAmountFeePPB:     defaultRelAmountPPB,
		RelativeTimeFeePPB:       defaultRelTimePPB,
		MinContractReactionTime:  defaultMinReaction,
		RequiredConfirms:         defaultConfirms,
	}
}

func loadConfig() (*config, error) {
	cfg := defaultConfig()
	parser := flags.NewParser(cfg, flags.Default)
	if _, err := parser.Parse(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return cfg, nil
}
