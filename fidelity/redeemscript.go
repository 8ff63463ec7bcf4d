// Package fidelity implements the fidelity-bond value formula and
// certificate verification spec.md §6 references but never spells out --
// Supplemented from original_source/src/wallet/fidelity.rs, the only place
// the original system specifies either. This package only *consumes*
// bonds (validates proofs presented by a Maker); the bond's underlying
// UTXO, confirmation, and locktime maturity are the external wallet/
// node-RPC collaborators' concern (spec.md §1).
package fidelity

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/citadel-tech/coinswap-go/contract"
)

// RedeemScript builds the fidelity-bond redeem script:
//
//	<pubkey> OP_CHECKSIGVERIFY <locktime> OP_CHECKLOCKTIMEVERIFY
//
// This is the "new" two-opcode-shorter template from
// original_source/src/wallet/fidelity.rs's fidelity_redeemscript doc
// comment (it drops the OP_DROP the old JoinMarket template needed,
// relying on OP_CHECKSIGVERIFY instead of OP_CHECKSIG + OP_DROP).
func RedeemScript(pubKey *btcec.PublicKey, locktime int64) ([]byte, error) {
	builder := txscript.NewScriptBuilder()
	builder.AddData(pubKey.SerializeCompressed())
	builder.AddOp(txscript.OP_CHECKSIGVERIFY)
	builder.AddInt64(locktime)
	builder.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)
	return builder.Script()
}

// ScriptPubKey returns the P2WSH output script committing to a fidelity
// bond's redeem script.
func ScriptPubKey(redeemScript []byte) ([]byte, error) {
	return contract.P2WSH(redeemScript)
}

// ParsedRedeemScript is the decoded form of a fidelity redeem script.
type ParsedRedeemScript struct {
	PubKey   *btcec.PublicKey
	Locktime int64
}

// ParseRedeemScript parses a fidelity redeem script back into its pubkey
// and locktime, by fixed instruction offset -- mirroring
// read_pubkey_from_fidelity_script/read_locktime_from_fidelity_script's
// `.instructions().nth(n)` idiom, ported to txscript's tokenizer.
func ParseRedeemScript(redeemScript []byte) (*ParsedRedeemScript, error) {
	tokenizer := txscript.MakeScriptTokenizer(0, redeemScript)

	var pushes [][]byte
	for tokenizer.Next() {
		if tokenizer.Data() != nil {
			pushes = append(pushes, tokenizer.Data())
		}
	}
	if err := tokenizer.Err(); err != nil {
		return nil, newErr(ErrWrongScriptType, "tokenize: %v", err)
	}
	if len(pushes) != 2 {
		return nil, newErr(ErrWrongScriptType, "expected 2 data pushes, got %d", len(pushes))
	}

	pubKey, err := btcec.ParsePubKey(pushes[0])
	if err != nil {
		return nil, newErr(ErrWrongScriptType, "parse pubkey: %v", err)
	}

	locktime, err := txscript.MakeScriptNum(pushes[1], true, 5)
	if err != nil {
		return nil, newErr(ErrWrongScriptType, "parse locktime: %v", err)
	}

	return &ParsedRedeemScript{PubKey: pubKey, Locktime: int64(locktime)}, nil
}
