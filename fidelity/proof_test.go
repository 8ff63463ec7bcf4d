package fidelity

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"
	"github.com/citadel-tech/coinswap-go/chainrpc"
	"github.com/stretchr/testify/require"
)

func testBond(t *testing.T) (*btcec.PrivateKey, *Bond) {
	t.Helper()

	privKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	return privKey, &Bond{
		Outpoint:   wire.OutPoint{Index: 0},
		AmountSat:  5_000_000,
		Locktime:   800_000,
		PubKey:     privKey.PubKey(),
		ConfHeight: 700_000,
		CertExpiry: 5,
	}
}

func TestGenerateAndValidateProofRoundTrip(t *testing.T) {
	t.Parallel()

	privKey, bond := testBond(t)
	proof, err := GenerateProof(privKey, bond, "maker.example:9999")
	require.NoError(t, err)

	encoded, err := proof.EncodeBytes()
	require.NoError(t, err)

	backend := chainrpc.NewFakeChainBackend()
	backend.SetHeight(bond.ConfHeight + 10)
	backend.SetOutConfirmations(bond.Outpoint, 10)

	validator := &Validator{Backend: backend}
	require.NoError(t, validator.ValidateProof(encoded, "maker.example:9999"))
}

func TestValidateProofRejectsWrongHost(t *testing.T) {
	t.Parallel()

	privKey, bond := testBond(t)
	proof, err := GenerateProof(privKey, bond, "maker.example:9999")
	require.NoError(t, err)

	encoded, err := proof.EncodeBytes()
	require.NoError(t, err)

	backend := chainrpc.NewFakeChainBackend()
	backend.SetOutConfirmations(bond.Outpoint, 10)

	validator := &Validator{Backend: backend}
	err = validator.ValidateProof(encoded, "attacker.example:9999")
	require.Error(t, err)
}

func TestValidateProofRejectsSpentBond(t *testing.T) {
	t.Parallel()

	privKey, bond := testBond(t)
	proof, err := GenerateProof(privKey, bond, "maker.example:9999")
	require.NoError(t, err)

	encoded, err := proof.EncodeBytes()
	require.NoError(t, err)

	backend := chainrpc.NewFakeChainBackend() // no confirmations set -> treated as spent/unknown

	validator := &Validator{Backend: backend}
	err = validator.ValidateProof(encoded, "maker.example:9999")
	require.Error(t, err)

	var fidelityErr *Error
	require.ErrorAs(t, err, &fidelityErr)
	require.Equal(t, ErrBondAlreadySpent, fidelityErr.Kind)
}

func TestValueEstimateLocktimeFromHeight(t *testing.T) {
	t.Parallel()

	estimate, err := EstimateLocktimeFromHeight(700_000, 1_700_000_000, 700_100)
	require.NoError(t, err)
	require.Equal(t, int64(1_700_000_000+100*10*60), estimate)

	_, err = EstimateLocktimeFromHeight(700_100, 1_700_000_000, 700_000)
	require.Error(t, err)
}
