// Package refwallet is a minimal reference implementation of the external
// wallet collaborator spec.md §1 leaves to "the wallet": a single
// long-lived UTXO, spent and chained forward one output at a time, used to
// satisfy taker.Wallet, including the sweep destination for the Taker's
// recovery path.
//
// Coin selection, change management, and fee estimation across many UTXOs
// is explicitly out of scope (SPEC_FULL.md Non-goals, "general wallet
// hosting") -- this package is the demo/reference wallet cmd/takerd wires
// in by default (cmd/makerd does not use it), not a production UTXO wallet. Grounded on
// contract/tx.go's SignMultisigInput for the P2WKH-equivalent sighash
// construction (same RawTxInWitnessSignature call, different script) and
// on contract/keys.go's nonce-tweak derivation for fresh keypairs, so this
// package needs no dependency this module doesn't already carry.
package refwallet

import (
	"context"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/citadel-tech/coinswap-go/contract"
	"github.com/citadel-tech/coinswap-go/taker"
)

var _ taker.Wallet = (*Wallet)(nil)

// defaultFee is the flat fee this wallet subtracts from its own change
// output on every funding tx it builds. Production-grade fee estimation
// is out of scope; see the package doc.
const defaultFee = 300

// Wallet is a single-UTXO chained wallet: every BuildFundingTxs call
// spends the wallet's current UTXO into the requested outputs plus one
// change output, and the change output becomes the wallet's new UTXO.
type Wallet struct {
	mu sync.Mutex

	base *btcec.PrivateKey

	utxo      wire.OutPoint
	utxoValue int64
	pkScript  []byte
}

// New builds a Wallet seeded with a single seen UTXO (the operator funds
// it out of band, e.g. by paying base's P2WKH address) and the base
// privkey every subsequent keypair is tweaked from.
func New(base *btcec.PrivateKey, utxo wire.OutPoint, utxoValue int64) (*Wallet, error) {
	pkScript, err := p2wkhScript(base.PubKey())
	if err != nil {
		return nil, fmt.Errorf("refwallet: deriving base pkScript: %w", err)
	}
	return &Wallet{base: base, utxo: utxo, utxoValue: utxoValue, pkScript: pkScript}, nil
}

func p2wkhScript(pub *btcec.PublicKey) ([]byte, error) {
	hash := btcutil.Hash160(pub.SerializeCompressed())
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(hash).
		Script()
}

// p2pkhScript is the classic script used as the "redeem script" input to
// BIP143 sighash computation for a P2WKH output (same convention
// contract.SignMultisigInput uses for the multisig case, just with a
// single-key script instead of the 2-of-2 one).
func p2pkhScript(pub *btcec.PublicKey) ([]byte, error) {
	hash := btcutil.Hash160(pub.SerializeCompressed())
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_DUP).
		AddOp(txscript.OP_HASH160).
		AddData(hash).
		AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_CHECKSIG).
		Script()
}

// Balance returns the wallet's current single-UTXO value.
func (w *Wallet) Balance(ctx context.Context) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.utxoValue, nil
}

// NewKeyPair derives a fresh keypair off base via a random nonce tweak,
// the same derivation contract.DeriveTweakedPubKey gives every Maker
// connection -- the Taker's own last-hop and first-hop keys need exactly
// the same "never reuse base on-chain" property a Maker's connection key
// does.
func (w *Wallet) NewKeyPair(ctx context.Context) (*btcec.PrivateKey, error) {
	nonce, err := contract.NewNonce()
	if err != nil {
		return nil, fmt.Errorf("refwallet: new nonce: %w", err)
	}
	return contract.DeriveTweakedPrivKey(w.base, nonce)
}

// BuildFundingTxs spends the wallet's current UTXO across every requested
// output in a single transaction, with one trailing change output back to
// the wallet's own P2WKH address. The change output becomes the wallet's
// new UTXO once the caller broadcasts the transaction -- this method only
// updates internal book-keeping optimistically, mirroring a single-address
// hot wallet rather than a UTXO-indexing one.
func (w *Wallet) BuildFundingTxs(ctx context.Context, outputs []taker.FundingOutput) ([]*wire.MsgTx, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var total int64
	for _, out := range outputs {
		total += out.Amount
	}
	change := w.utxoValue - total - defaultFee
	if change < 0 {
		return nil, fmt.Errorf("refwallet: balance %d insufficient for %d outputs + %d fee", w.utxoValue, total, defaultFee)
	}

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: w.utxo})
	for _, out := range outputs {
		pkScript, err := contract.P2WSH(out.RedeemScript)
		if err != nil {
			return nil, fmt.Errorf("refwallet: P2WSH output: %w", err)
		}
		tx.AddTxOut(&wire.TxOut{Value: out.Amount, PkScript: pkScript})
	}
	changeIndex := len(tx.TxOut)
	tx.AddTxOut(&wire.TxOut{Value: change, PkScript: w.pkScript})

	redeemScript, err := p2pkhScript(w.base.PubKey())
	if err != nil {
		return nil, fmt.Errorf("refwallet: redeem script: %w", err)
	}
	hashCache := txscript.NewTxSigHashes(tx, txscript.NewCannedPrevOutputFetcher(nil, 0))
	sig, err := txscript.RawTxInWitnessSignature(tx, hashCache, 0, w.utxoValue, redeemScript, txscript.SigHashAll, w.base)
	if err != nil {
		return nil, fmt.Errorf("refwallet: signing input: %w", err)
	}
	tx.TxIn[0].Witness = wire.TxWitness{sig, w.base.PubKey().SerializeCompressed()}

	w.utxo = wire.OutPoint{Hash: tx.TxHash(), Index: uint32(changeIndex)}
	w.utxoValue = change

	return []*wire.MsgTx{tx}, nil
}

// SweepAddress returns a fresh P2WKH output script for recovery timelock
// spends, derived the same way NewKeyPair is.
func (w *Wallet) SweepAddress(ctx context.Context) ([]byte, error) {
	priv, err := w.NewKeyPair(ctx)
	if err != nil {
		return nil, err
	}
	return p2wkhScript(priv.PubKey())
}
