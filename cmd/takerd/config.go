package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/btcutil"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultDataDirname   = "takerd"
	defaultControlAddr   = "localhost:7170"
	defaultRPCHost       = "localhost:8332"
	defaultHopCount      = 2
	defaultSplitCount    = 1
	defaultConfirms      = int64(1)
	defaultMessageTimeoutSec = 120
	defaultPollIntervalSec   = 5
)

var coinswapHomeDir = btcutil.AppDataDir("coinswap-go", false)

// config is takerd's go-flags option set, the counterpart of makerd's:
// a control-plane address instead of a Taker-facing listener, plus a
// directory URL the offerbook syncs against.
type config struct {
	DataDir     string `long:"datadir" description:"directory to store the taker's wallet DB and bad-maker list"`
	ControlAddr string `long:"controladdr" description:"address the local control API listens on for coinswap-cli"`

	RPCHost string `long:"rpchost" description:"bitcoind RPC host:port"`
	RPCUser string `long:"rpcuser" description:"bitcoind RPC username"`
	RPCPass string `long:"rpcpass" description:"bitcoind RPC password"`
	RPCCert string `long:"rpccert" description:"path to bitcoind RPC TLS certificate, empty to disable TLS"`

	BaseKeyHex string `long:"basekey" description:"hex-encoded long-lived wallet private key"`
	UTXOTxid   string `long:"utxotxid" description:"txid of the wallet's seed UTXO"`
	UTXOVout   uint32 `long:"utxovout" description:"output index of the wallet's seed UTXO"`
	UTXOValue  int64  `long:"utxovalue" description:"value in satoshis of the wallet's seed UTXO"`

	DirectoryURL string `long:"directoryurl" description:"base URL of the offer directory to sync against"`
	BadMakerFile string `long:"badmakerfile" description:"path to persist the banned-maker list across restarts"`

	HopCount         int   `long:"hopcount" description:"number of Maker hops per swap"`
	SplitCount       int   `long:"splitcount" description:"number of funding lanes per leg (not read by the orchestrator, which funds one lane per leg)"`
	RequiredConfirms int64 `long:"requiredconfirms" description:"confirmation depth required on a prior hop's funding output"`
}

func defaultConfig() *config {
	return &config{
		DataDir:          filepath.Join(coinswapHomeDir, defaultDataDirname),
		ControlAddr:      defaultControlAddr,
		RPCHost:          defaultRPCHost,
		HopCount:         defaultHopCount,
		SplitCount:       defaultSplitCount,
		RequiredConfirms: defaultConfirms,
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
	if cfg.BadMakerFile == "" {
		cfg.BadMakerFile = filepath.Join(cfg.DataDir, "badmakers.json")
	}
	return cfg, nil
}
