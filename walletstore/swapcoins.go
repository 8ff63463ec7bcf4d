package walletstore

import (
	"bytes"
	"fmt"

	"github.com/citadel-tech/coinswap-go/swapcoin"
)

// PutOutgoing persists an Outgoing swapcoin keyed by its multisig redeem
// script, the key every lookup in the protocol uses (spec §3).
func (s *Store) PutOutgoing(coin *swapcoin.Outgoing) error {
	var buf bytes.Buffer
	if err := coin.Encode(&buf); err != nil {
		return err
	}
	return s.put(outgoingSwapcoinBucket, coin.MultisigRedeemScript, buf.Bytes())
}

// GetOutgoing looks up an Outgoing swapcoin by multisig redeem script. It
// returns (nil, nil) if not found.
func (s *Store) GetOutgoing(redeemScript []byte) (*swapcoin.Outgoing, error) {
	raw, err := s.get(outgoingSwapcoinBucket, redeemScript)
	if err != nil || raw == nil {
		return nil, err
	}
	var coin swapcoin.Outgoing
	if err := coin.Decode(bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return &coin, nil
}

// DeleteOutgoing removes an Outgoing swapcoin once it settles or its
// contract path resolves (spec §3 Lifecycle).
func (s *Store) DeleteOutgoing(redeemScript []byte) error {
	return s.del(outgoingSwapcoinBucket, redeemScript)
}

// ForEachOutgoing walks every persisted Outgoing swapcoin.
func (s *Store) ForEachOutgoing(fn func(*swapcoin.Outgoing) error) error {
	return s.forEach(outgoingSwapcoinBucket, func(_, v []byte) error {
		var coin swapcoin.Outgoing
		if err := coin.Decode(bytes.NewReader(v)); err != nil {
			return err
		}
		return fn(&coin)
	})
}

// PutIncoming persists an Incoming swapcoin keyed by its multisig redeem
// script.
func (s *Store) PutIncoming(coin *swapcoin.Incoming) error {
	var buf bytes.Buffer
	if err := coin.Encode(&buf); err != nil {
		return err
	}
	return s.put(incomingSwapcoinBucket, coin.MultisigRedeemScript, buf.Bytes())
}

// GetIncoming looks up an Incoming swapcoin by multisig redeem script.
func (s *Store) GetIncoming(redeemScript []byte) (*swapcoin.Incoming, error) {
	raw, err := s.get(incomingSwapcoinBucket, redeemScript)
	if err != nil || raw == nil {
		return nil, err
	}
	var coin swapcoin.Incoming
	if err := coin.Decode(bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return &coin, nil
}

// DeleteIncoming removes an Incoming swapcoin.
func (s *Store) DeleteIncoming(redeemScript []byte) error {
	return s.del(incomingSwapcoinBucket, redeemScript)
}

// ForEachIncoming walks every persisted Incoming swapcoin.
func (s *Store) ForEachIncoming(fn func(*swapcoin.Incoming) error) error {
	return s.forEach(incomingSwapcoinBucket, func(_, v []byte) error {
		var coin swapcoin.Incoming
		if err := coin.Decode(bytes.NewReader(v)); err != nil {
			return err
		}
		return fn(&coin)
	})
}

// PutWatchOnly persists a Taker-side WatchOnly swapcoin.
func (s *Store) PutWatchOnly(coin *swapcoin.WatchOnly) error {
	var buf bytes.Buffer
	if err := coin.Encode(&buf); err != nil {
		return err
	}
	return s.put(watchOnlyBucket, coin.MultisigRedeemScript, buf.Bytes())
}

// ForEachWatchOnly walks every persisted WatchOnly swapcoin.
func (s *Store) ForEachWatchOnly(fn func(*swapcoin.WatchOnly) error) error {
	return s.forEach(watchOnlyBucket, func(_, v []byte) error {
		var coin swapcoin.WatchOnly
		if err := coin.Decode(bytes.NewReader(v)); err != nil {
			return err
		}
		return fn(&coin)
	})
}

// BindPrevoutToContract records that a funding prevout has been
// irrevocably committed to a specific HTLC contract script, enforcing
// spec §3 Invariant 5 (no multiple-contract attack): the Maker refuses to
// sign a second, different contract script for the same prevout.
//
// prevoutKey should uniquely identify the funding outpoint (txid:index).
func (s *Store) BindPrevoutToContract(prevoutKey, contractScript []byte) error {
	existing, err := s.get(prevoutCacheBucket, prevoutKey)
	if err != nil {
		return err
	}
	if existing != nil && !bytes.Equal(existing, contractScript) {
		return fmt.Errorf("prevout already bound to a different contract script")
	}
	return s.put(prevoutCacheBucket, prevoutKey, contractScript)
}

// LookupContractForPrevout returns the contract script previously bound to
// a prevout, or nil if none is bound yet.
func (s *Store) LookupContractForPrevout(prevoutKey []byte) ([]byte, error) {
	return s.get(prevoutCacheBucket, prevoutKey)
}

// UnbindPrevout drops a prevout's contract binding. Nothing in the module
// calls it: the idle monitor's reap and swap completion leave bindings in
// place.
func (s *Store) UnbindPrevout(prevoutKey []byte) error {
	return s.del(prevoutCacheBucket, prevoutKey)
}
