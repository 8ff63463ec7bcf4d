package fidelity

import (
	"bytes"
	"context"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/citadel-tech/coinswap-go/chainrpc"
	"github.com/citadel-tech/coinswap-go/offerbook"
)

var _ offerbook.FidelityValidator = (*Validator)(nil)

// Proof is the wire-transmissible fidelity bond certificate: the bond
// itself plus a signature proving the presenter controls its locking
// pubkey for a specific Maker host, per
// original_source/src/wallet/fidelity.rs's FidelityProof
// (generate_fidelity_proof/verify_fidelity_proof).
type Proof struct {
	Bond    Bond
	CertSig []byte // DER-encoded ECDSA signature
}

// GenerateProof signs a certificate binding bond to host, proving control
// of the bond's locking privkey. Mirrors generate_fidelity_proof.
func GenerateProof(privKey *btcec.PrivateKey, bond *Bond, host string) (*Proof, error) {
	msg := certMessage(bond.Outpoint, bond.PubKey, bond.CertExpiry, bond.Locktime, bond.AmountSat, host)
	hash := certHash(msg)

	sig := ecdsa.Sign(privKey, hash[:])

	return &Proof{Bond: *bond, CertSig: sig.Serialize()}, nil
}

// Encode serializes a Proof for embedding in swapwire.Offer's
// FidelityBondProof field.
func (p *Proof) Encode(w io.Writer) error {
	if err := encodeBond(w, &p.Bond); err != nil {
		return err
	}
	if len(p.CertSig) > 255 {
		return newErr(ErrInvalidCertSignature, "signature too long: %d bytes", len(p.CertSig))
	}
	if _, err := w.Write([]byte{byte(len(p.CertSig))}); err != nil {
		return err
	}
	_, err := w.Write(p.CertSig)
	return err
}

// Decode deserializes a Proof from its wire form.
func (p *Proof) Decode(r io.Reader) error {
	bond, err := decodeBond(r)
	if err != nil {
		return err
	}
	p.Bond = *bond

	var sigLen [1]byte
	if _, err := io.ReadFull(r, sigLen[:]); err != nil {
		return err
	}
	sig := make([]byte, sigLen[0])
	if _, err := io.ReadFull(r, sig); err != nil {
		return err
	}
	p.CertSig = sig
	return nil
}

// EncodeBytes is a convenience wrapper around Encode for callers that just
// want the raw bytes (e.g. populating swapwire.Offer.FidelityBondProof).
func (p *Proof) EncodeBytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := p.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// verifySignature checks that CertSig is a valid signature over the
// recomputed certificate hash for host, under the bond's own pubkey.
func (p *Proof) verifySignature(host string) (chainhash.Hash, error) {
	msg := certMessage(p.Bond.Outpoint, p.Bond.PubKey, p.Bond.CertExpiry, p.Bond.Locktime, p.Bond.AmountSat, host)
	hash := certHash(msg)

	sig, err := ecdsa.ParseDERSignature(p.CertSig)
	if err != nil {
		return hash, newErr(ErrInvalidCertSignature, "parse signature: %v", err)
	}
	if !sig.Verify(hash[:], p.Bond.PubKey) {
		return hash, newErr(ErrInvalidCertSignature, "signature does not verify against bond pubkey")
	}
	return hash, nil
}

// Validator implements offerbook.FidelityValidator against a live chain
// backend: it verifies the certificate signature, checks the bond's
// certificate-expiry window, and confirms the bond's UTXO is still
// unspent. Per spec.md §7, any failure here excludes the Maker from the
// offerbook rather than failing the whole sync.
type Validator struct {
	Backend chainrpc.ChainBackend
}

// ValidateProof decodes and checks a fidelity bond proof presented by the
// Maker at host.
func (v *Validator) ValidateProof(proofBytes []byte, host string) error {
	var proof Proof
	if err := proof.Decode(bytes.NewReader(proofBytes)); err != nil {
		return newErr(ErrWrongScriptType, "decode proof: %v", err)
	}

	if _, err := proof.verifySignature(host); err != nil {
		return err
	}

	ctx := context.Background()

	if proof.Bond.ConfHeight > 0 {
		tip, err := v.Backend.BlockCount(ctx)
		if err == nil {
			expiryHeight := proof.Bond.ConfHeight + proof.Bond.CertExpiry*2016
			if tip > expiryHeight {
				return newErr(ErrCertExpired, "cert expired at height %d, tip is %d", expiryHeight, tip)
			}
		}
	}

	confs, err := v.Backend.TxOutConfirmations(ctx, proof.Bond.Outpoint)
	if err != nil {
		return newErr(ErrBondAlreadySpent, "tx-out lookup failed: %v", err)
	}
	if confs == 0 {
		return newErr(ErrBondAlreadySpent, "bond outpoint %s has no confirmed, unspent output", proof.Bond.Outpoint)
	}

	return nil
}
