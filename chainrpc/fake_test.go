package chainrpc

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func TestFakeChainBackendBroadcastAndConfirmations(t *testing.T) {
	t.Parallel()

	backend := NewFakeChainBackend()
	backend.SetHeight(100)

	ctx := context.Background()

	height, err := backend.BlockCount(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(100), height)

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{})
	txid, err := backend.SendRawTransaction(ctx, tx)
	require.NoError(t, err)
	require.NotNil(t, txid)
	require.Len(t, backend.Broadcast(), 1)

	backend.SetTxConfirmations(*txid, 6)
	conf, err := backend.TxConfirmations(ctx, txid)
	require.NoError(t, err)
	require.Equal(t, int64(6), conf.Confirmations)

	allowed, _, err := backend.TestMempoolAccept(ctx, tx)
	require.NoError(t, err)
	require.True(t, allowed)

	backend.SetMempoolAccept(false)
	allowed, reason, err := backend.TestMempoolAccept(ctx, tx)
	require.NoError(t, err)
	require.False(t, allowed)
	require.NotEmpty(t, reason)
}
