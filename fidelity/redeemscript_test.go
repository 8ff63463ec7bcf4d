package fidelity

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"
)

func TestRedeemScriptMatchesReferenceVectors(t *testing.T) {
	t.Parallel()

	vectors := []struct {
		pubKeyHex string
		locktime  int64
		scriptHex string
	}{
		{
			"03ffe2b8b46eb21eadc3b535e9f57054213a1775b035faba6c5b3368b3a0ab5a5c",
			15000,
			"2103ffe2b8b46eb21eadc3b535e9f57054213a1775b035faba6c5b3368b3a0ab5a5cad02983ab1",
		},
		{
			"031499764842691088897cff51efd85347dd3215912cbb8fb9b121b1da3b15bec8",
			30000,
			"21031499764842691088897cff51efd85347dd3215912cbb8fb9b121b1da3b15bec8ad023075b1",
		},
		{
			"022714334f189db14fabd3dd893bbb913b8c3ddff245f7094cdc0b24c2fabb3570",
			45000,
			"21022714334f189db14fabd3dd893bbb913b8c3ddff245f7094cdc0b24c2fabb3570ad03c8af00b1",
		},
		{
			"02145a1d2bd118edcb3fe85495192d44e1d09f75ab4f0fe98269f61ff672860dae",
			60000,
			"2102145a1d2bd118edcb3fe85495192d44e1d09f75ab4f0fe98269f61ff672860daead0360ea00b1",
		},
	}

	for _, v := range vectors {
		pubKeyBytes, err := hex.DecodeString(v.pubKeyHex)
		require.NoError(t, err)
		pubKey, err := btcec.ParsePubKey(pubKeyBytes)
		require.NoError(t, err)

		script, err := RedeemScript(pubKey, v.locktime)
		require.NoError(t, err)
		require.Equal(t, v.scriptHex, hex.EncodeToString(script))

		parsed, err := ParseRedeemScript(script)
		require.NoError(t, err)
		require.True(t, pubKey.IsEqual(parsed.PubKey))
		require.Equal(t, v.locktime, parsed.Locktime)
	}
}

func TestParseRedeemScriptRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := ParseRedeemScript([]byte{0x00, 0x01, 0x02})
	require.Error(t, err)
}
