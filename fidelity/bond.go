package fidelity

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Bond describes a fidelity bond: a timelocked UTXO a Maker presents to
// gate admission to the swap network, grounded on
// original_source/src/wallet/fidelity.rs's FidelityBond struct.
type Bond struct {
	Outpoint   wire.OutPoint
	AmountSat  int64
	Locktime   int64 // absolute, block-height or Unix-time per BIP65 convention
	PubKey     *btcec.PublicKey
	ConfHeight int64 // 0 until confirmed
	CertExpiry int64 // 0 until computed (see FidelityExpiry)
}

// RedeemScript returns this bond's fidelity redeem script.
func (b *Bond) RedeemScript() ([]byte, error) {
	return RedeemScript(b.PubKey, b.Locktime)
}

// ScriptPubKey returns this bond's P2WSH output script.
func (b *Bond) ScriptPubKey() ([]byte, error) {
	redeemScript, err := b.RedeemScript()
	if err != nil {
		return nil, err
	}
	return ScriptPubKey(redeemScript)
}

// certMessage builds the certificate message string a bond's owner signs
// to prove control over it to a specific host, per
// FidelityBond::generate_cert_hash's "fidelity-bond-cert|..." template.
func certMessage(outpoint wire.OutPoint, pubKey *btcec.PublicKey, certExpiry, locktime, amountSat int64, host string) []byte {
	msg := fmt.Sprintf(
		"fidelity-bond-cert|%s|%x|%d|%d|%d|%s",
		outpoint.String(), pubKey.SerializeCompressed(), certExpiry, locktime, amountSat, host,
	)
	return []byte(msg)
}

// certHash computes the Bitcoin Signed Message double-SHA256 digest of
// the certificate message, matching generate_cert_hash's use of the
// standard "\x18Bitcoin Signed Message:\n" message-signing envelope.
func certHash(msg []byte) chainhash.Hash {
	var buf bytes.Buffer
	buf.WriteString("\x18Bitcoin Signed Message:\n")
	buf.WriteByte(byte(len(msg)))
	buf.Write(msg)
	return chainhash.DoubleHashH(buf.Bytes())
}

// encodeBond writes a Bond's fields for embedding in a Proof.
func encodeBond(w io.Writer, b *Bond) error {
	if err := binary.Write(w, binary.BigEndian, b.Outpoint.Hash); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, b.Outpoint.Index); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, b.AmountSat); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, b.Locktime); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, b.ConfHeight); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, b.CertExpiry); err != nil {
		return err
	}
	pubKeyBytes := b.PubKey.SerializeCompressed()
	if _, err := w.Write(pubKeyBytes); err != nil {
		return err
	}
	return nil
}

func decodeBond(r io.Reader) (*Bond, error) {
	b := &Bond{}
	if err := binary.Read(r, binary.BigEndian, &b.Outpoint.Hash); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &b.Outpoint.Index); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &b.AmountSat); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &b.Locktime); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &b.ConfHeight); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &b.CertExpiry); err != nil {
		return nil, err
	}
	pubKeyBytes := make([]byte, 33)
	if _, err := io.ReadFull(r, pubKeyBytes); err != nil {
		return nil, err
	}
	pubKey, err := btcec.ParsePubKey(pubKeyBytes)
	if err != nil {
		return nil, err
	}
	b.PubKey = pubKey
	return b, nil
}
