// Package swapcoin defines the per-hop protocol state unit (spec §3,
// "Swapcoin") shared between the maker, taker, and recovery packages: a
// single 2-of-2 multisig output, its HTLC contract transaction, and
// whichever of the two branch privkeys the holder controls.
//
// Structured as plain encode/decode-able structs the way the teacher's
// contract resolvers are (contractcourt/htlc_timeout_resolver.go's
// Encode/Decode pair), since lnd itself has no swapcoin concept to adapt.
package swapcoin

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"
)

var endian = binary.BigEndian

// Role distinguishes which side of a hop a swapcoin represents.
type Role uint8

const (
	// RoleOutgoing is held by the party funding the hop.
	RoleOutgoing Role = iota
	// RoleIncoming is held by the party receiving the hop.
	RoleIncoming
	// RoleWatchOnly is held by the Taker for an intermediate
	// Maker-to-Maker hop it routes through but holds no keys for.
	RoleWatchOnly
)

// Base holds the attributes every swapcoin variant shares (spec §3).
type Base struct {
	MultisigRedeemScript []byte
	FundingAmount        int64
	FundingOutpoint      wire.OutPoint
	ContractTx           *wire.MsgTx
	HTLCRedeemScript     []byte
}

// Outgoing is held by the party that funded a hop: it knows its own
// multisig privkey, the counterparty's multisig pubkey, and its own
// timelock privkey for the recovery path.
type Outgoing struct {
	Base

	MyMultisigPrivKey    *btcec.PrivateKey
	TheirMultisigPubKey  *btcec.PublicKey
	MyTimelockPrivKey    *btcec.PrivateKey
	CounterpartySig      []byte
	Preimage             *[32]byte
}

// Incoming is held by the party receiving a hop: it knows its own multisig
// privkey, the counterparty's multisig pubkey, and its own hashlock
// privkey. Once settlement completes it also learns the counterparty's
// multisig privkey, at which point the contract path is dead (spec §3
// Invariant 6).
type Incoming struct {
	Base

	MyMultisigPrivKey    *btcec.PrivateKey
	TheirMultisigPubKey  *btcec.PublicKey
	MyHashlockPrivKey    *btcec.PrivateKey
	CounterpartySig      []byte
	Preimage             *[32]byte
	LearnedOtherPrivKey  *btcec.PrivateKey
}

// WatchOnly is held by the Taker for a hop it routes through but has no
// key material for: it exists purely so the Taker can independently detect
// a unilateral contract broadcast along the full route.
type WatchOnly struct {
	Base

	SenderPubKey   *btcec.PublicKey
	ReceiverPubKey *btcec.PublicKey
}

// IsSettled reports whether this Incoming swapcoin has progressed past the
// contract path (spec §3 Invariant 6, third state): both the counterparty
// signature and the learned privkey are present.
func (c *Incoming) IsSettled() bool {
	return c.CounterpartySig != nil && c.LearnedOtherPrivKey != nil
}

// IsSettled reports the Outgoing equivalent: a counterparty signature and a
// revealed preimage together mean the sender side has nothing left to do
// but hand its privkey over.
func (c *Outgoing) IsSettled() bool {
	return c.CounterpartySig != nil && c.Preimage != nil
}

func writeBytesVec(w io.Writer, b []byte) error {
	if err := binary.Write(w, endian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBytesVec(r io.Reader) ([]byte, error) {
	var l uint32
	if err := binary.Read(r, endian, &l); err != nil {
		return nil, err
	}
	b := make([]byte, l)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func writePubKey(w io.Writer, pub *btcec.PublicKey) error {
	if pub == nil {
		return writeBytesVec(w, nil)
	}
	return writeBytesVec(w, pub.SerializeCompressed())
}

func readPubKey(r io.Reader) (*btcec.PublicKey, error) {
	b, err := readBytesVec(r)
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, nil
	}
	return btcec.ParsePubKey(b)
}

func writePrivKey(w io.Writer, priv *btcec.PrivateKey) error {
	if priv == nil {
		return writeBytesVec(w, nil)
	}
	return writeBytesVec(w, priv.Serialize())
}

func readPrivKey(r io.Reader) (*btcec.PrivateKey, error) {
	b, err := readBytesVec(r)
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, nil
	}
	priv, _ := btcec.PrivKeyFromBytes(b)
	return priv, nil
}

func writeTx(w io.Writer, tx *wire.MsgTx) error {
	var buf bytes.Buffer
	if tx != nil {
		if err := tx.Serialize(&buf); err != nil {
			return err
		}
	}
	return writeBytesVec(w, buf.Bytes())
}

func readTx(r io.Reader) (*wire.MsgTx, error) {
	b, err := readBytesVec(r)
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, nil
	}
	tx := wire.NewMsgTx(2)
	if err := tx.Deserialize(bytes.NewReader(b)); err != nil {
		return nil, err
	}
	return tx, nil
}

func encodeBase(w io.Writer, b *Base) error {
	if err := writeBytesVec(w, b.MultisigRedeemScript); err != nil {
		return err
	}
	if err := binary.Write(w, endian, b.FundingAmount); err != nil {
		return err
	}
	if err := binary.Write(w, endian, b.FundingOutpoint.Hash); err != nil {
		return err
	}
	if err := binary.Write(w, endian, b.FundingOutpoint.Index); err != nil {
		return err
	}
	if err := writeTx(w, b.ContractTx); err != nil {
		return err
	}
	return writeBytesVec(w, b.HTLCRedeemScript)
}

func decodeBase(r io.Reader, b *Base) error {
	var err error
	if b.MultisigRedeemScript, err = readBytesVec(r); err != nil {
		return err
	}
	if err := binary.Read(r, endian, &b.FundingAmount); err != nil {
		return err
	}
	if err := binary.Read(r, endian, &b.FundingOutpoint.Hash); err != nil {
		return err
	}
	if err := binary.Read(r, endian, &b.FundingOutpoint.Index); err != nil {
		return err
	}
	if b.ContractTx, err = readTx(r); err != nil {
		return err
	}
	if b.HTLCRedeemScript, err = readBytesVec(r); err != nil {
		return err
	}
	return nil
}

// Encode serializes an Outgoing swapcoin for persistence.
func (c *Outgoing) Encode(w io.Writer) error {
	if err := encodeBase(w, &c.Base); err != nil {
		return err
	}
	if err := writePrivKey(w, c.MyMultisigPrivKey); err != nil {
		return err
	}
	if err := writePubKey(w, c.TheirMultisigPubKey); err != nil {
		return err
	}
	if err := writePrivKey(w, c.MyTimelockPrivKey); err != nil {
		return err
	}
	if err := writeBytesVec(w, c.CounterpartySig); err != nil {
		return err
	}
	if c.Preimage != nil {
		if err := writeBytesVec(w, c.Preimage[:]); err != nil {
			return err
		}
	} else {
		if err := writeBytesVec(w, nil); err != nil {
			return err
		}
	}
	return nil
}

// Decode deserializes an Outgoing swapcoin from persisted bytes.
func (c *Outgoing) Decode(r io.Reader) error {
	if err := decodeBase(r, &c.Base); err != nil {
		return err
	}
	var err error
	if c.MyMultisigPrivKey, err = readPrivKey(r); err != nil {
		return err
	}
	if c.TheirMultisigPubKey, err = readPubKey(r); err != nil {
		return err
	}
	if c.MyTimelockPrivKey, err = readPrivKey(r); err != nil {
		return err
	}
	if c.CounterpartySig, err = readBytesVec(r); err != nil {
		return err
	}
	preimageBytes, err := readBytesVec(r)
	if err != nil {
		return err
	}
	if len(preimageBytes) == 32 {
		var p [32]byte
		copy(p[:], preimageBytes)
		c.Preimage = &p
	}
	return nil
}

// Encode serializes an Incoming swapcoin for persistence.
func (c *Incoming) Encode(w io.Writer) error {
	if err := encodeBase(w, &c.Base); err != nil {
		return err
	}
	if err := writePrivKey(w, c.MyMultisigPrivKey); err != nil {
		return err
	}
	if err := writePubKey(w, c.TheirMultisigPubKey); err != nil {
		return err
	}
	if err := writePrivKey(w, c.MyHashlockPrivKey); err != nil {
		return err
	}
	if err := writeBytesVec(w, c.CounterpartySig); err != nil {
		return err
	}
	if c.Preimage != nil {
		if err := writeBytesVec(w, c.Preimage[:]); err != nil {
			return err
		}
	} else if err := writeBytesVec(w, nil); err != nil {
		return err
	}
	return writePrivKey(w, c.LearnedOtherPrivKey)
}

// Decode deserializes an Incoming swapcoin from persisted bytes.
func (c *Incoming) Decode(r io.Reader) error {
	if err := decodeBase(r, &c.Base); err != nil {
		return err
	}
	var err error
	if c.MyMultisigPrivKey, err = readPrivKey(r); err != nil {
		return err
	}
	if c.TheirMultisigPubKey, err = readPubKey(r); err != nil {
		return err
	}
	if c.MyHashlockPrivKey, err = readPrivKey(r); err != nil {
		return err
	}
	if c.CounterpartySig, err = readBytesVec(r); err != nil {
		return err
	}
	preimageBytes, err := readBytesVec(r)
	if err != nil {
		return err
	}
	if len(preimageBytes) == 32 {
		var p [32]byte
		copy(p[:], preimageBytes)
		c.Preimage = &p
	}
	if c.LearnedOtherPrivKey, err = readPrivKey(r); err != nil {
		return err
	}
	return nil
}

// Encode serializes a WatchOnly swapcoin for persistence.
func (c *WatchOnly) Encode(w io.Writer) error {
	if err := encodeBase(w, &c.Base); err != nil {
		return err
	}
	if err := writePubKey(w, c.SenderPubKey); err != nil {
		return err
	}
	return writePubKey(w, c.ReceiverPubKey)
}

// Decode deserializes a WatchOnly swapcoin from persisted bytes.
func (c *WatchOnly) Decode(r io.Reader) error {
	if err := decodeBase(r, &c.Base); err != nil {
		return err
	}
	var err error
	if c.SenderPubKey, err = readPubKey(r); err != nil {
		return err
	}
	if c.ReceiverPubKey, err = readPubKey(r); err != nil {
		return err
	}
	return nil
}
