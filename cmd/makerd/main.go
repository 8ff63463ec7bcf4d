// Command makerd runs a standalone coinswap Maker: it accepts inbound
// Taker connections, countersigns and monitors contracts, and recovers
// on-chain if a swap stalls (spec.md §4, maker.Server).
//
// Grounded on the teacher's lnd.go nested-main pattern (lndMain under
// main, so deferred cleanups run before os.Exit) minus the gRPC/REST
// control plane lnd.go also starts -- that surface is explicitly out of
// scope here (SPEC_FULL.md Non-goals, "gRPC control plane").
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/citadel-tech/coinswap-go/chainrpc"
	"github.com/citadel-tech/coinswap-go/contract"
	"github.com/citadel-tech/coinswap-go/fidelity"
	"github.com/citadel-tech/coinswap-go/maker"
	"github.com/citadel-tech/coinswap-go/offerbook"
	"github.com/citadel-tech/coinswap-go/recovery"
	"github.com/citadel-tech/coinswap-go/walletstore"
	flags "github.com/jessevdk/go-flags"
)

// log is this binary's own top-level logger, distinct from each package's
// subsystem logger wired in useLoggers.
var log = backendLog.Logger("MAKD")

func main() {
	if err := makerMain(); err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func makerMain() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	useLoggers()

	basePriv, err := decodePrivKeyHex(cfg.BaseKeyWIF)
	if err != nil {
		return fmt.Errorf("base key: %w", err)
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

	store, err := walletstore.Open(filepath.Join(cfg.DataDir, "wallet.db"), "makerd")
	if err != nil {
		return fmt.Errorf("opening wallet store: %w", err)
	}
	defer store.Close()

	bondProof, err := buildFidelityBondProof(cfg, basePriv)
	if err != nil {
		return fmt.Errorf("building fidelity bond proof: %w", err)
	}

	sweepScript, err := sweepScriptFor(basePriv)
	if err != nil {
		return fmt.Errorf("deriving sweep script: %w", err)
	}

	makerCfg := &maker.Config{
		BasePrivKey:             basePriv,
		MinSize:                 cfg.MinSize,
		MaxSize:                 cfg.MaxSize,
		Fees: contract.FeeSchedule{
			BaseAbsolute:      cfg.BaseAbsoluteFee,
			RelativeAmountPPB: cfg.RelativeAmountFeePPB,
			RelativeTimePPB:   cfg.RelativeTimeFeePPB,
		},
		MinContractReactionTime: cfg.MinContractReactionTime,
		RequiredConfirms:        cfg.RequiredConfirms,
		FidelityBondProof:       bondProof,
		IdleTimeout:             maker.DefaultIdleTimeout,
		MessageTimeout:          maker.DefaultMessageTimeout,
		MonitorPollInterval:     recovery.DefaultPollInterval,
		SweepScript:             sweepScript,
		SweepFee:                contract.ContractFeeProduction,
	}

	server, err := maker.NewServer(cfg.ListenAddr, makerCfg, store, chain)
	if err != nil {
		return fmt.Errorf("binding listener: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	defer server.Stop()

	if cfg.DirectoryURL != "" {
		if err := advertise(ctx, cfg, bondProof); err != nil {
			log.Warnf("advertising to directory: %v", err)
		}
	}

	log.Infof("makerd listening on %s", cfg.ListenAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Infof("shutting down")
	return nil
}

// advertise publishes this maker's host to the offer directory, the
// publish half of offerbook.Client's "POST maker-url + fidelity-proof;
// GET list of maker-urls" surface (offerbook/client.go).
func advertise(ctx context.Context, cfg *config, bondProof []byte) error {
	client := offerbook.NewClient(offerbook.DefaultClientConfig(cfg.DirectoryURL))
	return client.Advertise(ctx, cfg.ListenAddr, bondProof)
}

func buildFidelityBondProof(cfg *config, basePriv *btcec.PrivateKey) ([]byte, error) {
	if cfg.FidelityBondTxid == "" {
		return nil, nil
	}
	txid, err := chainhash.NewHashFromStr(cfg.FidelityBondTxid)
	if err != nil {
		return nil, fmt.Errorf("bond txid: %w", err)
	}

	bond := &fidelity.Bond{
		Outpoint:   wire.OutPoint{Hash: *txid, Index: cfg.FidelityBondVout},
		AmountSat:  cfg.FidelityBondAmt,
		Locktime:   cfg.FidelityLocktime,
		PubKey:     basePriv.PubKey(),
		ConfHeight: cfg.FidelityBondConfHeight,
		CertExpiry: fidelity.FidelityExpiry(cfg.FidelityBondConfHeight),
	}
	proof, err := fidelity.GenerateProof(basePriv, bond, cfg.ListenAddr)
	if err != nil {
		return nil, err
	}
	return proof.EncodeBytes()
}

func sweepScriptFor(basePriv *btcec.PrivateKey) ([]byte, error) {
	nonce, err := contract.NewNonce()
	if err != nil {
		return nil, err
	}
	priv, err := contract.DeriveTweakedPrivKey(basePriv, nonce)
	if err != nil {
		return nil, err
	}
	return p2wkhScript(priv.PubKey())
}

// p2wkhScript mirrors refwallet's own P2WKH builder; duplicated here
// rather than imported since makerd has no refwallet.Wallet of its own to
// otherwise depend on that package for.
func p2wkhScript(pub *btcec.PublicKey) ([]byte, error) {
	hash := btcutil.Hash160(pub.SerializeCompressed())
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(hash).
		Script()
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
