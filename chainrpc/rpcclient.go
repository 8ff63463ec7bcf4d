package chainrpc

import (
	"context"
	"encoding/hex"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
)

// Config mirrors the subset of rpcclient.ConnConfig the teacher's
// chainregistry.go populates for its own btcd websocket client: host,
// credentials, and TLS material. DisableConnectOnNew and
// DisableAutoReconnect are fixed by NewRPCClient rather than exposed, since
// this adapter always wants an eagerly-connected, auto-reconnecting
// client.
type Config struct {
	Host         string
	User         string
	Pass         string
	Certificates []byte
	DisableTLS   bool
}

var _ ChainBackend = (*RPCClient)(nil)

// RPCClient implements ChainBackend over btcsuite/btcd/rpcclient, wrapping
// every call in withRetry so a transient connection drop doesn't
// immediately surface as a fatal WalletError to maker/taker/recovery.
type RPCClient struct {
	client *rpcclient.Client
}

// NewRPCClient dials the node RPC, following the same ConnConfig shape the
// teacher's newChainControlFromConfig builds for its btcd client.
func NewRPCClient(cfg Config) (*RPCClient, error) {
	connCfg := &rpcclient.ConnConfig{
		Host:                 cfg.Host,
		User:                 cfg.User,
		Pass:                 cfg.Pass,
		Certificates:         cfg.Certificates,
		DisableTLS:           cfg.DisableTLS,
		DisableConnectOnNew:  false,
		DisableAutoReconnect: false,
		HTTPPostMode:         true,
	}

	client, err := rpcclient.New(connCfg, nil)
	if err != nil {
		return nil, newErr(ErrRPCUnavailable, "dial", err)
	}

	return &RPCClient{client: client}, nil
}

// Shutdown disconnects from the node RPC.
func (c *RPCClient) Shutdown() {
	c.client.Shutdown()
}

func (c *RPCClient) BlockchainInfo(ctx context.Context) (*BlockchainInfo, error) {
	var info *BlockchainInfo
	err := withRetry(ctx, func() error {
		raw, err := c.client.GetBlockChainInfo()
		if err != nil {
			return err
		}
		info = &BlockchainInfo{
			Blocks:  int64(raw.Blocks),
			Headers: int64(raw.Headers),
			Chain:   raw.Chain,
		}
		return nil
	})
	if err != nil {
		return nil, newErr(ErrRPCUnavailable, "get-blockchain-info", err)
	}
	return info, nil
}

func (c *RPCClient) BlockCount(ctx context.Context) (int64, error) {
	var height int64
	err := withRetry(ctx, func() error {
		h, err := c.client.GetBlockCount()
		if err != nil {
			return err
		}
		height = h
		return nil
	})
	if err != nil {
		return 0, newErr(ErrRPCUnavailable, "get-block-count", err)
	}
	return height, nil
}

func (c *RPCClient) BlockHash(ctx context.Context, height int64) (*chainhash.Hash, error) {
	var hash *chainhash.Hash
	err := withRetry(ctx, func() error {
		h, err := c.client.GetBlockHash(height)
		if err != nil {
			return err
		}
		hash = h
		return nil
	})
	if err != nil {
		return nil, newErr(ErrRPCUnavailable, "get-block-hash", err)
	}
	return hash, nil
}

func (c *RPCClient) TxConfirmations(ctx context.Context, txid *chainhash.Hash) (*TxConfirmation, error) {
	var result *TxConfirmation
	err := withRetry(ctx, func() error {
		raw, err := c.client.GetRawTransactionVerbose(txid)
		if err != nil {
			return err
		}

		conf := &TxConfirmation{Confirmations: int64(raw.Confirmations)}
		if raw.BlockHash != "" {
			blockHash, err := chainhash.NewHashFromStr(raw.BlockHash)
			if err != nil {
				return err
			}
			conf.BlockHash = blockHash
		}
		result = conf
		return nil
	})
	if err != nil {
		return nil, newErr(ErrRPCUnavailable, "get-raw-transaction-info", err)
	}
	return result, nil
}

func (c *RPCClient) TxOutConfirmations(ctx context.Context, op wire.OutPoint) (int64, error) {
	var confs int64
	err := withRetry(ctx, func() error {
		out, err := c.client.GetTxOut(&op.Hash, op.Index, true)
		if err != nil {
			return err
		}
		if out == nil {
			confs = 0
			return nil
		}
		confs = out.Confirmations
		return nil
	})
	if err != nil {
		return 0, newErr(ErrRPCUnavailable, "get-tx-out", err)
	}
	return confs, nil
}

func (c *RPCClient) TxOutProof(ctx context.Context, txid *chainhash.Hash) ([]byte, error) {
	var proof []byte
	err := withRetry(ctx, func() error {
		hexProof, err := c.client.GetTxOutProof([]*chainhash.Hash{txid}, nil)
		if err != nil {
			return err
		}
		decoded, err := hex.DecodeString(hexProof)
		if err != nil {
			return err
		}
		proof = decoded
		return nil
	})
	if err != nil {
		return nil, newErr(ErrRPCUnavailable, "get-tx-out-proof", err)
	}
	return proof, nil
}

func (c *RPCClient) SendRawTransaction(ctx context.Context, tx *wire.MsgTx) (*chainhash.Hash, error) {
	var txid *chainhash.Hash
	err := withRetry(ctx, func() error {
		id, err := c.client.SendRawTransaction(tx, false)
		if err != nil {
			return err
		}
		txid = id
		return nil
	})
	if err != nil {
		return nil, newErr(ErrRPCUnavailable, "send-raw-transaction", err)
	}
	return txid, nil
}

func (c *RPCClient) TestMempoolAccept(ctx context.Context, tx *wire.MsgTx) (bool, string, error) {
	var allowed bool
	var reason string
	err := withRetry(ctx, func() error {
		results, err := c.client.TestMempoolAccept([]*wire.MsgTx{tx}, 0)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			return newErr(ErrRejectedByNode, "test-mempool-accept", nil)
		}
		allowed = results[0].Allowed
		reason = results[0].RejectReason
		return nil
	})
	if err != nil {
		return false, "", newErr(ErrRPCUnavailable, "test-mempool-accept", err)
	}
	return allowed, reason, nil
}
