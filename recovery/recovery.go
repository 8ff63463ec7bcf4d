// Package recovery implements the shared recovery routine spec.md §4.4
// describes: once a hop's contract path must be settled on-chain rather
// than cooperatively, broadcast every pending contract transaction, wait
// out the Outgoing side's timelocks, and sweep them back to the wallet.
// Both the Maker's broadcast-contract monitor and the Taker's post-commit
// recovery path drive the same Recovery value.
//
// Grounded on contractcourt/htlc_timeout_resolver.go's Resolve loop: poll
// the chain backend for confirmation depth, act once a height condition is
// met, and treat "already broadcast" as a no-op rather than an error.
package recovery

import (
	"context"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/citadel-tech/coinswap-go/chainrpc"
	"github.com/citadel-tech/coinswap-go/contract"
	"github.com/citadel-tech/coinswap-go/swapcoin"
	"github.com/citadel-tech/coinswap-go/walletstore"
	"github.com/lightningnetwork/lnd/clock"
)

// DefaultPollInterval is the production poll cadence spec.md §4.4 names
// ("≈10 min production, 10 s test").
const DefaultPollInterval = 10 * time.Minute

// TestPollInterval is the accelerated cadence integration tests should use.
const TestPollInterval = 10 * time.Second

// Config wires a Recovery to its collaborators.
type Config struct {
	// Chain is the node RPC used to broadcast contract/sweep
	// transactions and poll confirmation depth.
	Chain chainrpc.ChainBackend

	// Store holds the Incoming/Outgoing swapcoins being recovered.
	Store *walletstore.Store

	// SweepScript is the wallet-derived internal destination
	// scriptPubKey Outgoing timelock spends pay to (spec §4.4, step 3).
	SweepScript []byte

	// SweepFee is the miner fee subtracted from a timelock-spend's
	// single output.
	SweepFee contract.ContractFee

	// PollInterval paces step 3's confirmation-depth poll.
	PollInterval time.Duration

	// Clock is the source of wall time for the poll loop, so tests can
	// drive it deterministically with clock.NewTestClock instead of
	// sleeping on real time. Defaults to clock.NewDefaultClock if unset.
	Clock clock.Clock
}

// Recovery drives spec.md §4.4's 4-step routine to completion for whatever
// Incoming/Outgoing swapcoins are currently persisted in its Store.
type Recovery struct {
	cfg Config
}

// New builds a Recovery from cfg, defaulting PollInterval to
// DefaultPollInterval if unset.
func New(cfg Config) *Recovery {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}
	return &Recovery{cfg: cfg}
}

// Run drives the routine to completion: it broadcasts every pending
// contract, then polls until every Outgoing hop's timelock has matured and
// its sweep has been broadcast, returning once nothing is left to recover
// or ctx is cancelled.
func (r *Recovery) Run(ctx context.Context) error {
	if err := r.broadcastIncoming(ctx); err != nil {
		return err
	}
	if err := r.broadcastOutgoing(ctx); err != nil {
		return err
	}

	for {
		done, err := r.sweepMatureOutgoing(ctx)
		if err != nil {
			return err
		}
		if done {
			return r.syncWallet()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.cfg.Clock.TickAfter(r.cfg.PollInterval):
		}
	}
}

// ensureBroadcast sends tx unless the chain backend already knows about it.
func (r *Recovery) ensureBroadcast(ctx context.Context, tx *wire.MsgTx) error {
	txid := contract.TxID(tx)
	if _, err := r.cfg.Chain.TxConfirmations(ctx, &txid); err == nil {
		return nil
	}

	if _, err := r.cfg.Chain.SendRawTransaction(ctx, tx); err != nil {
		return newErr(ErrBroadcastFailed, "broadcast %s: %v", txid, err)
	}
	return nil
}

// broadcastIncoming implements step 1: push every pending Incoming
// contract tx on-chain, then drop it. Once posted, whichever side can
// claim it does so by the normal hashlock/timelock paths; this side has
// nothing further to contribute.
func (r *Recovery) broadcastIncoming(ctx context.Context) error {
	var settled [][]byte

	err := r.cfg.Store.ForEachIncoming(func(coin *swapcoin.Incoming) error {
		if coin.ContractTx == nil {
			settled = append(settled, coin.MultisigRedeemScript)
			return nil
		}
		if err := r.ensureBroadcast(ctx, coin.ContractTx); err != nil {
			log.Errorf("recovery: broadcast incoming contract: %v", err)
			return nil
		}
		settled = append(settled, coin.MultisigRedeemScript)
		return nil
	})
	if err != nil {
		return err
	}

	for _, script := range settled {
		if err := r.cfg.Store.DeleteIncoming(script); err != nil {
			return err
		}
	}
	return nil
}

// broadcastOutgoing implements step 2: push every pending Outgoing
// contract tx on-chain. Swapcoins stay persisted until their timelock
// spend is swept in step 3.
func (r *Recovery) broadcastOutgoing(ctx context.Context) error {
	return r.cfg.Store.ForEachOutgoing(func(coin *swapcoin.Outgoing) error {
		if coin.ContractTx == nil {
			return nil
		}
		if err := r.ensureBroadcast(ctx, coin.ContractTx); err != nil {
			log.Errorf("recovery: broadcast outgoing contract: %v", err)
		}
		return nil
	})
}

// sweepMatureOutgoing implements step 3: for every Outgoing swapcoin whose
// contract tx has reached its absolute timelock L (measured, per spec.md
// §4.4, as the contract tx's own confirmation depth reaching L), build,
// sign, and broadcast the timelock-spend sweep. It returns done=true once
// no Outgoing swapcoins remain.
func (r *Recovery) sweepMatureOutgoing(ctx context.Context) (done bool, err error) {
	remaining := 0
	var swept [][]byte

	err = r.cfg.Store.ForEachOutgoing(func(coin *swapcoin.Outgoing) error {
		remaining++

		if coin.ContractTx == nil {
			return nil
		}

		htlcScript, perr := contract.ParseHTLCScript(coin.HTLCRedeemScript)
		if perr != nil {
			log.Errorf("recovery: parse htlc script: %v", perr)
			return nil
		}

		txid := contract.TxID(coin.ContractTx)
		conf, cerr := r.cfg.Chain.TxConfirmations(ctx, &txid)
		if cerr != nil || conf == nil || conf.Confirmations < htlcScript.Locktime {
			return nil
		}

		if err := r.sweepOne(ctx, coin, htlcScript, txid); err != nil {
			log.Errorf("recovery: sweep outgoing contract %s: %v", txid, err)
			return nil
		}

		swept = append(swept, coin.MultisigRedeemScript)
		remaining--
		return nil
	})
	if err != nil {
		return false, err
	}

	for _, script := range swept {
		if err := r.cfg.Store.DeleteOutgoing(script); err != nil {
			return false, err
		}
	}

	return remaining == 0, nil
}

// sweepOne builds, signs, and broadcasts the timelock-branch spend of a
// single Outgoing hop's contract tx.
func (r *Recovery) sweepOne(ctx context.Context, coin *swapcoin.Outgoing,
	htlcScript *contract.HTLCScript, contractTxid chainhash.Hash) error {

	contractOut := coin.ContractTx.TxOut[0]

	sweepAmount := contractOut.Value - int64(r.cfg.SweepFee)
	if sweepAmount <= 0 {
		return newErr(ErrSweepFailed, "sweep fee %d exceeds contract output %d",
			r.cfg.SweepFee, contractOut.Value)
	}

	spendTx := wire.NewMsgTx(2)
	spendTx.LockTime = uint32(htlcScript.Locktime)
	spendTx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Hash: contractTxid, Index: 0},
		Sequence:         wire.MaxTxInSequenceNum - 1,
	})
	spendTx.AddTxOut(&wire.TxOut{
		Value:    sweepAmount,
		PkScript: r.cfg.SweepScript,
	})

	sig, err := contract.SignHTLCBranch(
		spendTx, 0, coin.HTLCRedeemScript, contractOut.Value, coin.MyTimelockPrivKey)
	if err != nil {
		return newErr(ErrSweepFailed, "sign timelock branch: %v", err)
	}
	spendTx.TxIn[0].Witness = contract.BuildTimelockWitness(sig, coin.HTLCRedeemScript)

	if _, err := r.cfg.Chain.SendRawTransaction(ctx, spendTx); err != nil {
		return newErr(ErrSweepFailed, "broadcast sweep: %v", err)
	}
	return nil
}

// syncWallet implements step 4's wallet-sync half: once every Outgoing
// swapcoin has been swept and removed, nothing further is tracked by this
// Recovery and the caller's wallet view is already consistent with Store.
func (r *Recovery) syncWallet() error {
	log.Infof("recovery: complete, no outstanding swapcoins remain")
	return nil
}
