package walletstore

import (
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/citadel-tech/coinswap-go/swapcoin"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(t.TempDir(), "test-wallet")
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })
	return store
}

func TestPutGetDeleteOutgoing(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)

	coin := &swapcoin.Outgoing{
		Base: swapcoin.Base{
			MultisigRedeemScript: []byte{0xde, 0xad, 0xbe, 0xef},
			FundingAmount:        250_000,
			FundingOutpoint:      wire.OutPoint{Index: 1},
		},
	}

	require.NoError(t, store.PutOutgoing(coin))

	got, err := store.GetOutgoing(coin.MultisigRedeemScript)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, coin.FundingAmount, got.FundingAmount)

	require.NoError(t, store.DeleteOutgoing(coin.MultisigRedeemScript))

	got, err = store.GetOutgoing(coin.MultisigRedeemScript)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestForEachIncoming(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)

	for i := 0; i < 3; i++ {
		coin := &swapcoin.Incoming{
			Base: swapcoin.Base{
				MultisigRedeemScript: []byte{byte(i), byte(i + 1)},
				FundingAmount:        int64(i) * 1000,
			},
		}
		require.NoError(t, store.PutIncoming(coin))
	}

	count := 0
	require.NoError(t, store.ForEachIncoming(func(c *swapcoin.Incoming) error {
		count++
		return nil
	}))
	require.Equal(t, 3, count)
}

func TestBindPrevoutToContractRejectsSecondContract(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)

	prevoutKey := []byte("outpoint-1")
	scriptA := []byte("contract-script-a")
	scriptB := []byte("contract-script-b")

	require.NoError(t, store.BindPrevoutToContract(prevoutKey, scriptA))

	// Binding the same script again is idempotent.
	require.NoError(t, store.BindPrevoutToContract(prevoutKey, scriptA))

	// Binding a different script for the same prevout must fail -- this
	// is the multiple-contract attack the invariant exists to prevent.
	err := store.BindPrevoutToContract(prevoutKey, scriptB)
	require.Error(t, err)

	stored, err := store.LookupContractForPrevout(prevoutKey)
	require.NoError(t, err)
	require.Equal(t, scriptA, stored)
}

func TestUnbindPrevout(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)

	prevoutKey := []byte("outpoint-2")
	require.NoError(t, store.BindPrevoutToContract(prevoutKey, []byte("script")))
	require.NoError(t, store.UnbindPrevout(prevoutKey))

	stored, err := store.LookupContractForPrevout(prevoutKey)
	require.NoError(t, err)
	require.Nil(t, stored)
}

func TestFidelityBondPutGetDelete(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)

	outpointKey := []byte("bond-outpoint-1")
	lockingPubKey := []byte{0x02, 0xaa, 0xbb}
	encoded := []byte("encoded-bond-cert")

	require.NoError(t, store.PutFidelityBondRaw(outpointKey, lockingPubKey, encoded))

	got, err := store.GetFidelityBondRaw(outpointKey)
	require.NoError(t, err)
	require.Equal(t, encoded, got)

	byPubKey, err := store.GetFidelityBondByPubKey(lockingPubKey)
	require.NoError(t, err)
	require.Equal(t, encoded, byPubKey)

	count := 0
	require.NoError(t, store.ForEachFidelityBond(func(_, _ []byte) error {
		count++
		return nil
	}))
	require.Equal(t, 1, count)

	require.NoError(t, store.DeleteFidelityBond(outpointKey, lockingPubKey))

	got, err = store.GetFidelityBondRaw(outpointKey)
	require.NoError(t, err)
	require.Nil(t, got)

	byPubKey, err = store.GetFidelityBondByPubKey(lockingPubKey)
	require.NoError(t, err)
	require.Nil(t, byPubKey)
}
