package contract

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// BuildFundingOutput builds the 2-of-2 P2WSH output both parties fund a hop
// with, and returns the redeem script alongside it so the caller can
// persist it for later multisig spends.
func BuildFundingOutput(pubA, pubB *btcec.PublicKey, amount int64) (*wire.TxOut, []byte, error) {
	redeemScript, err := MultisigRedeemScript(pubA, pubB)
	if err != nil {
		return nil, nil, err
	}

	pkScript, err := P2WSH(redeemScript)
	if err != nil {
		return nil, nil, err
	}

	return &wire.TxOut{
		Value:    amount,
		PkScript: pkScript,
	}, redeemScript, nil
}

// BuildContractTx builds the contract transaction spending a hop's funding
// outpoint into the single HTLC output both parties agreed on. Per the
// shape invariant (spec §3, §7 ErrShapeMismatch) a contract tx has exactly
// one input and one output.
func BuildContractTx(fundingOutpoint wire.OutPoint, fundingAmount int64,
	hashlockPubKey, timelockPubKey *btcec.PublicKey, hashValue [HashSize]byte,
	locktime int64, minerFee ContractFee) (*wire.MsgTx, []byte, error) {

	htlcScript, err := HTLCRedeemScript(hashlockPubKey, timelockPubKey, hashValue, locktime)
	if err != nil {
		return nil, nil, err
	}

	pkScript, err := P2WSH(htlcScript)
	if err != nil {
		return nil, nil, err
	}

	outputAmount := fundingAmount - int64(minerFee)
	if outputAmount <= 0 {
		return nil, nil, newErr(ErrFeeMismatch,
			"contract fee %d exceeds funding amount %d", minerFee, fundingAmount)
	}

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: fundingOutpoint,
		Sequence:         wire.MaxTxInSequenceNum,
	})
	tx.AddTxOut(&wire.TxOut{
		Value:    outputAmount,
		PkScript: pkScript,
	})

	return tx, htlcScript, nil
}

// ValidateContractTx enforces the contract-tx shape and content invariants
// a counterparty's offered contract transaction must satisfy: exactly one
// input spending the expected funding outpoint, exactly one output paying
// the expected HTLC script and amount (spec §3 Invariants, §7
// ErrShapeMismatch/ErrMultipleContract).
func ValidateContractTx(tx *wire.MsgTx, fundingOutpoint wire.OutPoint,
	expectedHTLCScript []byte, expectedAmount int64) error {

	if len(tx.TxIn) != 1 {
		return newErr(ErrShapeMismatch, "expected 1 input, got %d", len(tx.TxIn))
	}
	if len(tx.TxOut) != 1 {
		return newErr(ErrShapeMismatch, "expected 1 output, got %d", len(tx.TxOut))
	}
	if tx.TxIn[0].PreviousOutPoint != fundingOutpoint {
		return newErr(ErrShapeMismatch, "input does not spend the funding outpoint")
	}

	expectedPkScript, err := P2WSH(expectedHTLCScript)
	if err != nil {
		return err
	}
	out := tx.TxOut[0]
	if !bytesEqual(out.PkScript, expectedPkScript) {
		return newErr(ErrMultipleContract, "output script does not match the negotiated contract")
	}
	if out.Value != expectedAmount {
		return newErr(ErrShapeMismatch,
			"expected output value %d, got %d", expectedAmount, out.Value)
	}

	return nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// SignMultisigInput produces one party's BIP143 signature over a tx input
// spending a 2-of-2 P2WSH multisig output, for the caller to combine with
// the counterparty's via MultisigWitnessStack. Grounded on the teacher's
// commitSpendTimeout/commitSpendRevoke RawTxInWitnessSignature usage.
//
// Deviates from spec §4.1's low-R signature requirement: btcec's ecdsa
// package exposes no grinding variant of RawTxInWitnessSignature, so this
// produces an ordinary (non-grafted) ECDSA signature rather than grinding
// the nonce for a guaranteed 32-byte R. See DESIGN.md.
func SignMultisigInput(tx *wire.MsgTx, inputIndex int, redeemScript []byte,
	fundingAmount int64, privKey *btcec.PrivateKey) ([]byte, error) {

	hashCache := txscript.NewTxSigHashes(tx, noPrevOutFetcher())
	sig, err := txscript.RawTxInWitnessSignature(
		tx, hashCache, inputIndex, fundingAmount, redeemScript,
		txscript.SigHashAll, privKey)
	if err != nil {
		return nil, newErr(ErrBadSignature, "sign multisig input: %v", err)
	}
	return sig, nil
}

// VerifyMultisigSig checks a counterparty's BIP143 signature over a tx
// input spending a 2-of-2 P2WSH multisig output against the expected
// pubkey.
func VerifyMultisigSig(tx *wire.MsgTx, inputIndex int, redeemScript []byte,
	fundingAmount int64, pubKey *btcec.PublicKey, sig []byte) error {

	hashCache := txscript.NewTxSigHashes(tx, noPrevOutFetcher())
	sigHash, err := txscript.CalcWitnessSigHash(
		redeemScript, hashCache, txscript.SigHashAll, tx, inputIndex, fundingAmount)
	if err != nil {
		return newErr(ErrBadSignature, "compute sighash: %v", err)
	}

	parsedSig, err := ecdsa.ParseDERSignature(trimSigHashType(sig))
	if err != nil {
		return newErr(ErrBadSignature, "parse signature: %v", err)
	}
	if !parsedSig.Verify(sigHash, pubKey) {
		return newErr(ErrBadSignature, "signature does not verify against expected pubkey")
	}
	return nil
}

func trimSigHashType(sig []byte) []byte {
	if len(sig) == 0 {
		return sig
	}
	return sig[:len(sig)-1]
}

// noPrevOutFetcher returns a no-op PrevOutputFetcher: every witness
// signature and sighash computation in this package passes the spent
// amount and script explicitly (legacy P2WSH sighash, not taproot), so the
// fetcher is never consulted.
func noPrevOutFetcher() txscript.PrevOutputFetcher {
	return txscript.NewCannedPrevOutputFetcher(nil, 0)
}

// BuildHashlockWitness builds the witness spending the HTLC's hashlock
// branch: the spender reveals the preimage and signs with the hashlock
// key. The 32-byte preimage on the stack is what routes script execution
// into the OP_SIZE/OP_IF hashlock-and-relative-timelock clause.
func BuildHashlockWitness(sig []byte, preimage [PreimageSize]byte, redeemScript []byte) wire.TxWitness {
	return wire.TxWitness{sig, preimage[:], redeemScript}
}

// BuildTimelockWitness builds the witness spending the HTLC's timelock
// branch: the spender signs with the timelock key once the absolute
// locktime has matured. An empty (non-32-byte) stack item routes script
// execution into the OP_ELSE/OP_CLTV clause.
func BuildTimelockWitness(sig []byte, redeemScript []byte) wire.TxWitness {
	return wire.TxWitness{sig, nil, redeemScript}
}

// SignHTLCBranch produces a BIP143 signature spending the HTLC output with
// the given private key, for use by BuildHashlockWitness/BuildTimelockWitness.
// sequence must already carry the relative-locktime encoding
// (SequenceForRelativeLocktime) when spending the hashlock/CSV branch.
func SignHTLCBranch(spendTx *wire.MsgTx, inputIndex int, htlcScript []byte,
	htlcAmount int64, privKey *btcec.PrivateKey) ([]byte, error) {

	hashCache := txscript.NewTxSigHashes(spendTx, noPrevOutFetcher())
	sig, err := txscript.RawTxInWitnessSignature(
		spendTx, hashCache, inputIndex, htlcAmount, htlcScript,
		txscript.SigHashAll, privKey)
	if err != nil {
		return nil, newErr(ErrBadSignature, "sign htlc branch: %v", err)
	}
	return sig, nil
}

// SequenceForRelativeLocktime converts a relative block-height locktime
// into the nSequence value OP_CHECKSEQUENCEVERIFY expects (BIP68),
// mirroring the teacher's lockTimeToSequence helper.
func SequenceForRelativeLocktime(blocks uint32) uint32 {
	return blocks & wire.SequenceLockTimeMask
}

// TxID returns the transaction's hash (tx.TxHash()), for logging; its
// String method prints the byte-reversed display txid.
func TxID(tx *wire.MsgTx) chainhash.Hash {
	return tx.TxHash()
}
