package walletstore

// PutFidelityBondRaw stores the raw encoded fidelity bond certificate
// (produced by the fidelity package) keyed by its UTXO outpoint, and indexes
// it by the bond's locking pubkey so a Maker's advertised proof can be
// looked up without a full bucket scan.
func (s *Store) PutFidelityBondRaw(outpointKey, lockingPubKey, encoded []byte) error {
	if err := s.put(fidelityBondBucket, outpointKey, encoded); err != nil {
		return err
	}
	return s.put(fidelityScriptIndex, lockingPubKey, outpointKey)
}

// GetFidelityBondRaw looks up a bond certificate by its UTXO outpoint key.
func (s *Store) GetFidelityBondRaw(outpointKey []byte) ([]byte, error) {
	return s.get(fidelityBondBucket, outpointKey)
}

// GetFidelityBondByPubKey resolves a locking pubkey to its bond certificate
// via the script index, returning (nil, nil) if no bond is indexed under it.
func (s *Store) GetFidelityBondByPubKey(lockingPubKey []byte) ([]byte, error) {
	outpointKey, err := s.get(fidelityScriptIndex, lockingPubKey)
	if err != nil || outpointKey == nil {
		return nil, err
	}
	return s.get(fidelityBondBucket, outpointKey)
}

// ForEachFidelityBond walks every persisted bond certificate.
func (s *Store) ForEachFidelityBond(fn func(outpointKey, encoded []byte) error) error {
	return s.forEach(fidelityBondBucket, fn)
}

// DeleteFidelityBond removes a bond and its script-index entry once it
// expires or is redeemed.
func (s *Store) DeleteFidelityBond(outpointKey, lockingPubKey []byte) error {
	if err := s.del(fidelityScriptIndex, lockingPubKey); err != nil {
		return err
	}
	return s.del(fidelityBondBucket, outpointKey)
}
