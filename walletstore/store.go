// Package walletstore is a reference/test-double implementation of the
// per-wallet persistent state spec §6 describes: a single embedded
// key-value database holding the incoming/outgoing swapcoin maps, the
// prevout->contract-spk cache, and the fidelity-bond/fidelity-script
// indices. The real wallet is an external collaborator (spec §1); this
// package exists so maker/taker/recovery have a concrete store to drive
// against in tests and in the reference cmd/ binaries.
//
// Grounded on channeldb/db.go's bucket-per-concern bbolt layout, ported
// from the teacher's direct boltdb/bolt usage onto the
// lightningnetwork/lnd/kvdb backend abstraction this module's go.mod pins.
package walletstore

import (
	"fmt"

	"github.com/lightningnetwork/lnd/kvdb"
)

var (
	incomingSwapcoinBucket = []byte("incoming-swapcoins")
	outgoingSwapcoinBucket = []byte("outgoing-swapcoins")
	watchOnlyBucket        = []byte("watch-only-swapcoins")
	prevoutCacheBucket     = []byte("prevout-contract-cache")
	fidelityBondBucket     = []byte("fidelity-bonds")
	fidelityScriptIndex    = []byte("fidelity-script-index")
	metaBucket             = []byte("meta")
)

var topLevelBuckets = [][]byte{
	incomingSwapcoinBucket,
	outgoingSwapcoinBucket,
	watchOnlyBucket,
	prevoutCacheBucket,
	fidelityBondBucket,
	fidelityScriptIndex,
	metaBucket,
}

const dbFileName = "wallet.db"

// Store is the primary datastore for one coinswap wallet: swapcoin state,
// the prevout->contract cache that enforces the no-multiple-contract
// invariant (spec §3 Invariant 5), and fidelity-bond bookkeeping.
type Store struct {
	backend kvdb.Backend
}

// Open opens (creating if necessary) the wallet store rooted at dbPath,
// under the file name walletName+".db".
func Open(dbPath, walletName string) (*Store, error) {
	backend, err := kvdb.Create(
		kvdb.BoltBackendName, dbPath, true, kvdb.DefaultDBTimeout,
	)
	if err != nil {
		return nil, fmt.Errorf("open wallet store: %w", err)
	}

	store := &Store{backend: backend}
	if err := store.initBuckets(); err != nil {
		backend.Close()
		return nil, err
	}

	return store, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) initBuckets() error {
	return s.backend.Update(func(tx kvdb.RwTx) error {
		for _, name := range topLevelBuckets {
			if _, err := tx.CreateTopLevelBucket(name); err != nil {
				return err
			}
		}
		return nil
	}, func() {})
}

// put writes key/value into the named top-level bucket inside a single
// read-write transaction.
func (s *Store) put(bucket, key, value []byte) error {
	return s.backend.Update(func(tx kvdb.RwTx) error {
		b := tx.ReadWriteBucket(bucket)
		if b == nil {
			return fmt.Errorf("bucket %s not found", bucket)
		}
		return b.Put(key, value)
	}, func() {})
}

// get reads a value from the named top-level bucket; it returns (nil, nil)
// if the key is absent, matching bolt's own Get semantics.
func (s *Store) get(bucket, key []byte) ([]byte, error) {
	var value []byte
	err := s.backend.View(func(tx kvdb.RTx) error {
		b := tx.ReadBucket(bucket)
		if b == nil {
			return fmt.Errorf("bucket %s not found", bucket)
		}
		v := b.Get(key)
		if v != nil {
			value = append([]byte(nil), v...)
		}
		return nil
	}, func() {})
	return value, err
}

// del removes a key from the named top-level bucket.
func (s *Store) del(bucket, key []byte) error {
	return s.backend.Update(func(tx kvdb.RwTx) error {
		b := tx.ReadWriteBucket(bucket)
		if b == nil {
			return fmt.Errorf("bucket %s not found", bucket)
		}
		return b.Delete(key)
	}, func() {})
}

// forEach walks every key/value pair in the named top-level bucket.
func (s *Store) forEach(bucket []byte, fn func(k, v []byte) error) error {
	return s.backend.View(func(tx kvdb.RTx) error {
		b := tx.ReadBucket(bucket)
		if b == nil {
			return fmt.Errorf("bucket %s not found", bucket)
		}
		return b.ForEach(fn)
	}, func() {})
}
