// Package contract implements the HTLC and 2-of-2 multisig redeem scripts,
// their funding/spending transactions, and the signature protocol over them
// (spec §4.1, "Contract").
//
// Redeem-script construction is grounded on the teacher's
// lnwallet/script_utils.go (genMultiSigScript, witnessScriptHash,
// senderHTLCScript/receiverHTLCScript), ported from the retired
// roasbeef/btcd big.Int curve API to the btcec/v2 API the go.mod pins.
package contract

import (
	"bytes"
	"crypto/sha256"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// HashSize is the length in bytes of the RIPEMD160(SHA256(·)) digest used as
// the HTLC hashvalue (spec §3, "Hash160").
const HashSize = 20

// PreimageSize is the length in bytes of the preimage drawn by the Taker.
const PreimageSize = 32

// Hash160 computes RIPEMD160(SHA256(data)).
func Hash160(data []byte) [HashSize]byte {
	var out [HashSize]byte
	copy(out[:], btcutil.Hash160(data))
	return out
}

// sortPubKeys returns the two compressed pubkeys in canonical (lexicographic,
// ascending) order, per the Invariant-1 sorted-multisig rule.
func sortPubKeys(a, b []byte) (lo, hi []byte) {
	if bytes.Compare(a, b) <= 0 {
		return a, b
	}
	return b, a
}

// MultisigRedeemScript builds the canonical sorted 2-of-2 multisig redeem
// script: OP_2 <pkA> <pkB> OP_2 OP_CHECKMULTISIG, with pkA < pkB
// lexicographically (spec §6).
func MultisigRedeemScript(pubA, pubB *btcec.PublicKey) ([]byte, error) {
	a := pubA.SerializeCompressed()
	b := pubB.SerializeCompressed()
	if len(a) != 33 || len(b) != 33 {
		return nil, newErr(ErrMalformedScript, "compressed pubkeys only")
	}

	lo, hi := sortPubKeys(a, b)

	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_2)
	builder.AddData(lo)
	builder.AddData(hi)
	builder.AddOp(txscript.OP_2)
	builder.AddOp(txscript.OP_CHECKMULTISIG)
	return builder.Script()
}

// P2WSH computes the deterministic witness-script-hash scriptPubKey for the
// given redeem script: OP_0 <sha256(redeemScript)>.
func P2WSH(redeemScript []byte) ([]byte, error) {
	scriptHash := sha256.Sum256(redeemScript)

	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_0)
	builder.AddData(scriptHash[:])
	return builder.Script()
}

// MultisigWitnessStack builds the witness stack spending a 2-of-2 P2WSH
// multisig output, placing the two signatures in the order that matches the
// sorted-pubkey order the redeem script was built with.
func MultisigWitnessStack(redeemScript []byte, pubA []byte, sigA []byte,
	pubB []byte, sigB []byte) wire.TxWitness {

	witness := make(wire.TxWitness, 4)

	// OP_CHECKMULTISIG's off-by-one bug requires a leading dummy element.
	witness[0] = nil

	if bytes.Compare(pubA, pubB) <= 0 {
		witness[1] = sigA
		witness[2] = sigB
	} else {
		witness[1] = sigB
		witness[2] = sigA
	}

	witness[3] = redeemScript
	return witness
}

// HTLCRedeemScript builds the bit-exact HTLC redeem script from spec §6:
//
//	<hashlock_pubkey> OP_CHECKSIGVERIFY <timelock_pubkey> OP_SWAP OP_SIZE <32>
//	OP_EQUAL OP_IF OP_SHA256 <hashvalue> OP_EQUALVERIFY <1> OP_CSV OP_DROP
//	OP_ELSE OP_DROP <locktime_bytes> OP_CLTV OP_DROP OP_ENDIF OP_CHECKSIG
//
// Both the hashlock branch (preimage + a sequence>=1 relative timelock) and
// the timelock branch (absolute locktime L) are encoded in this single
// template; the two pubkeys, the hashvalue, and the locktime are read back
// byte-for-byte by ParseHTLCScript, never by evaluating the script.
func HTLCRedeemScript(hashlockPubKey, timelockPubKey *btcec.PublicKey,
	hashValue [HashSize]byte, locktime int64) ([]byte, error) {

	if locktime <= 0 {
		return nil, newErr(ErrMalformedScript, "locktime must be positive")
	}

	builder := txscript.NewScriptBuilder()

	builder.AddData(hashlockPubKey.SerializeCompressed())
	builder.AddOp(txscript.OP_CHECKSIGVERIFY)
	builder.AddData(timelockPubKey.SerializeCompressed())
	builder.AddOp(txscript.OP_SWAP)
	builder.AddOp(txscript.OP_SIZE)
	builder.AddInt64(PreimageSize)
	builder.AddOp(txscript.OP_EQUAL)

	builder.AddOp(txscript.OP_IF)
	builder.AddOp(txscript.OP_SHA256)
	builder.AddData(hashValue[:])
	builder.AddOp(txscript.OP_EQUALVERIFY)
	builder.AddInt64(1)
	builder.AddOp(txscript.OP_CHECKSEQUENCEVERIFY)
	builder.AddOp(txscript.OP_DROP)
	builder.AddOp(txscript.OP_ELSE)
	builder.AddOp(txscript.OP_DROP)
	builder.AddInt64(locktime)
	builder.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)
	builder.AddOp(txscript.OP_DROP)
	builder.AddOp(txscript.OP_ENDIF)

	builder.AddOp(txscript.OP_CHECKSIG)

	return builder.Script()
}

// HTLCScript is the result of parsing an HTLC redeem script: the two pubkeys,
// the hashvalue, and the absolute locktime.
type HTLCScript struct {
	HashlockPubKey *btcec.PublicKey
	TimelockPubKey *btcec.PublicKey
	HashValue      [HashSize]byte
	Locktime       int64
}

// ParseHTLCScript parses an HTLC redeem script built by HTLCRedeemScript,
// reading the hashvalue, locktime, and both pubkeys by fixed instruction
// offset rather than by evaluating the script -- the template is fixed, and
// any deviation from it is a ContractError (spec §6).
func ParseHTLCScript(redeemScript []byte) (*HTLCScript, error) {
	tokenizer := txscript.MakeScriptTokenizer(0, redeemScript)

	pushes := make([][]byte, 0, 5)

	for tokenizer.Next() {
		if d := tokenizer.Data(); d != nil {
			pushes = append(pushes, d)
		}
	}
	if err := tokenizer.Err(); err != nil {
		return nil, newErr(ErrMalformedScript, "tokenize: %v", err)
	}

	// Fixed shape, by data push (the literal 1 in "<1> OP_CSV" is small
	// enough to be encoded as the bare opcode OP_1, not a data push):
	// [hashlock_pk] CHECKSIGVERIFY [timelock_pk] SWAP SIZE [32] EQUAL IF
	// SHA256 [hashvalue] EQUALVERIFY OP_1 CSV DROP ELSE DROP [locktime]
	// CLTV DROP ENDIF CHECKSIG
	if len(pushes) != 5 {
		return nil, newErr(ErrMalformedScript,
			"expected 5 pushed data items, got %d", len(pushes))
	}

	hashlockPubKey, err := btcec.ParsePubKey(pushes[0])
	if err != nil {
		return nil, newErr(ErrMalformedScript, "hashlock pubkey: %v", err)
	}
	timelockPubKey, err := btcec.ParsePubKey(pushes[1])
	if err != nil {
		return nil, newErr(ErrMalformedScript, "timelock pubkey: %v", err)
	}

	if len(pushes[3]) != HashSize {
		return nil, newErr(ErrMalformedScript,
			"hashvalue must be %d bytes, got %d", HashSize, len(pushes[3]))
	}
	var hashValue [HashSize]byte
	copy(hashValue[:], pushes[3])

	locktimeNum, err := txscript.MakeScriptNum(pushes[4], true, 5)
	if err != nil {
		return nil, newErr(ErrMalformedScript, "locktime: %v", err)
	}
	locktime := int64(locktimeNum)
	if locktime <= 0 {
		return nil, newErr(ErrMalformedScript, "non-positive locktime")
	}

	return &HTLCScript{
		HashlockPubKey: hashlockPubKey,
		TimelockPubKey: timelockPubKey,
		HashValue:      hashValue,
		Locktime:       locktime,
	}, nil
}

// ParseMultisigScript extracts the two sorted pubkeys from a 2-of-2 multisig
// redeem script built by MultisigRedeemScript.
func ParseMultisigScript(redeemScript []byte) (lo, hi *btcec.PublicKey, err error) {
	tokenizer := txscript.MakeScriptTokenizer(0, redeemScript)

	var pushes [][]byte
	for tokenizer.Next() {
		if d := tokenizer.Data(); d != nil {
			pushes = append(pushes, d)
		}
	}
	if tokenizer.Err() != nil {
		return nil, nil, newErr(ErrMalformedScript, "tokenize: %v", tokenizer.Err())
	}
	if len(pushes) != 2 {
		return nil, nil, newErr(ErrMalformedScript,
			"expected 2 pubkeys, got %d", len(pushes))
	}

	lo, err = btcec.ParsePubKey(pushes[0])
	if err != nil {
		return nil, nil, newErr(ErrMalformedScript, "first pubkey: %v", err)
	}
	hi, err = btcec.ParsePubKey(pushes[1])
	if err != nil {
		return nil, nil, newErr(ErrMalformedScript, "second pubkey: %v", err)
	}
	return lo, hi, nil
}
