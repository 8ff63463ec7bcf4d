package contract

import (
	"crypto/rand"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
)

// DeriveTweakedPubKey computes basePubKey + tweak*G, the non-interactive
// per-swap key derivation a Maker uses to hand the Taker a fresh multisig
// and HTLC pubkey pair off a single long-lived base key without an extra
// protocol round trip.
//
// Ported from the teacher's script_utils.go revocation-key tweak
// (deriveRevocationPubkey in the pre-btcec/v2 big.Int curve API) onto the
// btcec/v2 ModNScalar/JacobianPoint API this module's go.mod actually pins.
func DeriveTweakedPubKey(basePubKey *btcec.PublicKey, tweak [32]byte) (*btcec.PublicKey, error) {
	var tweakScalar btcec.ModNScalar
	overflow := tweakScalar.SetBytes(&tweak)
	if overflow != 0 {
		return nil, newErr(ErrMalformedScript, "tweak scalar overflows curve order")
	}
	if tweakScalar.IsZero() {
		return nil, newErr(ErrMalformedScript, "zero tweak")
	}

	var tweakPoint, basePoint, sumPoint btcec.JacobianPoint
	btcec.ScalarBaseMultNonConst(&tweakScalar, &tweakPoint)
	basePubKey.AsJacobian(&basePoint)

	btcec.AddNonConst(&basePoint, &tweakPoint, &sumPoint)
	sumPoint.ToAffine()

	return btcec.NewPublicKey(&sumPoint.X, &sumPoint.Y), nil
}

// DeriveTweakedPrivKey computes basePrivKey + tweak mod N, the private-key
// counterpart of DeriveTweakedPubKey. Only the party holding basePrivKey
// can compute this; the counterparty only ever sees the derived pubkey.
func DeriveTweakedPrivKey(basePrivKey *btcec.PrivateKey, tweak [32]byte) (*btcec.PrivateKey, error) {
	var tweakScalar btcec.ModNScalar
	overflow := tweakScalar.SetBytes(&tweak)
	if overflow != 0 {
		return nil, newErr(ErrMalformedScript, "tweak scalar overflows curve order")
	}
	if tweakScalar.IsZero() {
		return nil, newErr(ErrMalformedScript, "zero tweak")
	}

	baseScalar := basePrivKey.Key
	baseScalar.Add(&tweakScalar)
	if baseScalar.IsZero() {
		return nil, newErr(ErrMalformedScript, "tweaked privkey is zero")
	}

	return &btcec.PrivateKey{Key: baseScalar}, nil
}

// NewNonce draws a fresh 32-byte nonce used as a tweak input, from
// crypto/rand the way the teacher draws its per-channel revocation seeds.
func NewNonce() ([32]byte, error) {
	var nonce [32]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nonce, newErr(ErrMalformedScript, "read random nonce: %v", err)
	}
	return nonce, nil
}

// NewPreimage draws the 32-byte hashlock preimage the Taker picks once per
// swap and reveals to settle every hop's HTLC in sequence.
func NewPreimage() ([PreimageSize]byte, error) {
	var preimage [PreimageSize]byte
	if _, err := io.ReadFull(rand.Reader, preimage[:]); err != nil {
		return preimage, newErr(ErrMalformedScript, "read random preimage: %v", err)
	}
	return preimage, nil
}
