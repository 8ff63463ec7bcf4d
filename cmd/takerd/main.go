// Command takerd runs a standalone coinswap Taker: on request from
// coinswap-cli it syncs the offer directory, builds a route across
// cfg.HopCount Makers, and drives one swap to completion or recovery
// (spec.md §4.5, taker.Taker).
//
// Grounded on the teacher's lnd.go nested-main pattern, minus the gRPC/
// REST control plane (SPEC_FULL.md Non-goals) -- see control.go for the
// minimal local control surface this binary exposes instead.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/citadel-tech/coinswap-go/chainrpc"
	"github.com/citadel-tech/coinswap-go/cmd/internal/refwallet"
	"github.com/citadel-tech/coinswap-go/contract"
	"github.com/citadel-tech/coinswap-go/fidelity"
	flags "github.com/jessevdk/go-flags"
	"github.com/citadel-tech/coinswap-go/offerbook"
	"github.com/citadel-tech/coinswap-go/taker"
	"github.com/citadel-tech/coinswap-go/walletstore"
)

const (
	defaultMessageTimeout = time.Duration(defaultMessageTimeoutSec) * time.Second
	defaultPollInterval   = time.Duration(defaultPollIntervalSec) * time.Second
)

func main() {
	if err := takerMain(); err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func takerMain() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	useLoggers()

	basePriv, err := decodePrivKeyHex(cfg.BaseKeyHex)
	if err != nil {
		return fmt.Errorf("base key: %w", err)
	}
	utxo, err := parseUTXO(cfg.UTXOTxid, cfg.UTXOVout)
	if err != nil {
		return fmt.Errorf("seed utxo: %w", err)
	}
	wallet, err := refwallet.New(basePriv, utxo, cfg.UTXOValue)
	if err != nil {
		return fmt.Errorf("building wallet: %w", err)
	}

	chainCfg := chainrpc.Config{
		Host:       cfg.RPCHost,
		User:       cfg.RPCUser,
		Pass:       cfg.RPCPass,
		DisableTLS: cfg.RPCCert == "",
	}
	if cfg.RPCCert != "" {
		certBytes, err := os.ReadFile(cfg.RPCCert)
		if err != nil {
			return fmt.Errorf("reading rpc cert: %w", err)
		}
		chainCfg.Certificates = certBytes
	}
	chain, err := chainrpc.NewRPCClient(chainCfg)
	if err != nil {
		return fmt.Errorf("connecting to chain backend: %w", err)
	}
	defer chain.Shutdown()

	store, err := walletstore.Open(filepath.Join(cfg.DataDir, "wallet.db"), "takerd")
	if err != nil {
		return fmt.Errorf("opening wallet store: %w", err)
	}
	defer store.Close()

	badList, err := offerbook.LoadBadMakerList(cfg.BadMakerFile)
	if err != nil {
		return fmt.Errorf("loading bad-maker list: %w", err)
	}

	dialer := &taker.Dialer{MessageTimeout: defaultMessageTimeout}
	directory := offerbook.NewClient(offerbook.DefaultClientConfig(cfg.DirectoryURL))
	validator := &fidelity.Validator{Backend: chain}
	book := offerbook.NewOfferBook(directory, dialer, validator, badList)

	tk := taker.New(&taker.Config{
		Wallet:           wallet,
		Chain:            chain,
		OfferBook:        book,
		Store:            store,
		HopCount:         cfg.HopCount,
		SplitCount:       cfg.SplitCount,
		RequiredConfirms: cfg.RequiredConfirms,
		MessageTimeout:   defaultMessageTimeout,
		PollInterval:     defaultPollInterval,
		SweepFee:         contract.ContractFeeProduction,
	})

	ctrl := newControlServer(tk)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	closeCtrl, err := ctrl.serve(ctx, cfg.ControlAddr)
	if err != nil {
		return fmt.Errorf("starting control server: %w", err)
	}
	defer closeCtrl()

	log.Infof("takerd control API listening on %s", cfg.ControlAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Infof("shutting down")
	return nil
}

func decodePrivKeyHex(hexKey string) (*btcec.PrivateKey, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, err
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("expected 32-byte key, got %d bytes", len(raw))
	}
	priv, _ := btcec.PrivKeyFromBytes(raw)
	return priv, nil
}

func parseUTXO(txid string, vout uint32) (wire.OutPoint, error) {
	hash, err := chainhash.NewHashFromStr(txid)
	if err != nil {
		return wire.OutPoint{}, err
	}
	return wire.OutPoint{Hash: *hash, Index: vout}, nil
}
