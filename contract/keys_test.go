package contract

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveTweakedKeyPairConsistent(t *testing.T) {
	t.Parallel()

	basePriv, basePub := genTestKeyPair(t, 42)

	tweak, err := NewNonce()
	require.NoError(t, err)

	derivedPub, err := DeriveTweakedPubKey(basePub, tweak)
	require.NoError(t, err)

	derivedPriv, err := DeriveTweakedPrivKey(basePriv, tweak)
	require.NoError(t, err)

	require.True(t, derivedPriv.PubKey().IsEqual(derivedPub),
		"tweaking the pubkey and the matching privkey must land on the same point")
}

func TestDeriveTweakedPubKeyRejectsZeroTweak(t *testing.T) {
	t.Parallel()

	_, basePub := genTestKeyPair(t, 1)

	var zero [32]byte
	_, err := DeriveTweakedPubKey(basePub, zero)
	require.Error(t, err)
}

func TestDeriveTweakedPubKeyDifferentTweaksDifferentKeys(t *testing.T) {
	t.Parallel()

	_, basePub := genTestKeyPair(t, 7)

	tweak1, err := NewNonce()
	require.NoError(t, err)
	tweak2, err := NewNonce()
	require.NoError(t, err)
	require.NotEqual(t, tweak1, tweak2)

	derived1, err := DeriveTweakedPubKey(basePub, tweak1)
	require.NoError(t, err)
	derived2, err := DeriveTweakedPubKey(basePub, tweak2)
	require.NoError(t, err)

	require.False(t, derived1.IsEqual(derived2))
}

func TestNewPreimageIsUniqueAndSized(t *testing.T) {
	t.Parallel()

	p1, err := NewPreimage()
	require.NoError(t, err)
	p2, err := NewPreimage()
	require.NoError(t, err)

	require.Len(t, p1, PreimageSize)
	require.NotEqual(t, p1, p2)
}
