package chainrpc

import (
	"context"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// FakeChainBackend is an in-memory ChainBackend for driving maker/taker/
// recovery tests without a real node, grounded on the same
// test-double-over-an-interface pattern the teacher uses for
// lnwallet.BlockChainIO in its channel-state-machine tests.
type FakeChainBackend struct {
	mu sync.Mutex

	height          int64
	txConfirmations map[chainhash.Hash]int64
	outConfirmation map[wire.OutPoint]int64
	broadcast       []*wire.MsgTx
	mempoolAccept   bool
}

var _ ChainBackend = (*FakeChainBackend)(nil)

// NewFakeChainBackend returns a FakeChainBackend that accepts every
// broadcast and test-mempool-accept check by default.
func NewFakeChainBackend() *FakeChainBackend {
	return &FakeChainBackend{
		txConfirmations: make(map[chainhash.Hash]int64),
		outConfirmation: make(map[wire.OutPoint]int64),
		mempoolAccept:   true,
	}
}

// SetHeight sets the chain tip returned by BlockCount/BlockchainInfo.
func (f *FakeChainBackend) SetHeight(height int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.height = height
}

// SetTxConfirmations sets the confirmation depth reported for a txid.
func (f *FakeChainBackend) SetTxConfirmations(txid chainhash.Hash, confs int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txConfirmations[txid] = confs
}

// SetOutConfirmations sets the confirmation depth reported for an outpoint.
func (f *FakeChainBackend) SetOutConfirmations(op wire.OutPoint, confs int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outConfirmation[op] = confs
}

// SetMempoolAccept controls whether TestMempoolAccept reports acceptance.
func (f *FakeChainBackend) SetMempoolAccept(accept bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mempoolAccept = accept
}

// Broadcast returns every transaction handed to SendRawTransaction so far,
// in broadcast order.
func (f *FakeChainBackend) Broadcast() []*wire.MsgTx {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*wire.MsgTx, len(f.broadcast))
	copy(out, f.broadcast)
	return out
}

func (f *FakeChainBackend) BlockchainInfo(ctx context.Context) (*BlockchainInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &BlockchainInfo{Blocks: f.height, Headers: f.height, Chain: "regtest"}, nil
}

func (f *FakeChainBackend) BlockCount(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.height, nil
}

func (f *FakeChainBackend) BlockHash(ctx context.Context, height int64) (*chainhash.Hash, error) {
	var h chainhash.Hash
	h[0] = byte(height)
	return &h, nil
}

func (f *FakeChainBackend) TxConfirmations(ctx context.Context, txid *chainhash.Hash) (*TxConfirmation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	confs, known := f.txConfirmations[*txid]
	if !known {
		return nil, newErr(ErrRPCUnavailable, "TxConfirmations", fmt.Errorf("no such transaction %s", txid))
	}
	return &TxConfirmation{Confirmations: confs}, nil
}

func (f *FakeChainBackend) TxOutConfirmations(ctx context.Context, op wire.OutPoint) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outConfirmation[op], nil
}

func (f *FakeChainBackend) TxOutProof(ctx context.Context, txid *chainhash.Hash) ([]byte, error) {
	return []byte("fake-merkle-proof"), nil
}

func (f *FakeChainBackend) SendRawTransaction(ctx context.Context, tx *wire.MsgTx) (*chainhash.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcast = append(f.broadcast, tx)
	txid := tx.TxHash()
	if _, known := f.txConfirmations[txid]; !known {
		f.txConfirmations[txid] = 0
	}
	return &txid, nil
}

func (f *FakeChainBackend) TestMempoolAccept(ctx context.Context, tx *wire.MsgTx) (bool, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mempoolAccept {
		return true, "", nil
	}
	return false, "fake rejection", nil
}
