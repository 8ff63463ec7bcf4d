package contract

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func fakeOutpoint(t *testing.T, seed byte) wire.OutPoint {
	t.Helper()

	var hashBytes [chainhash.HashSize]byte
	for i := range hashBytes {
		hashBytes[i] = seed + byte(i)
	}
	hash, err := chainhash.NewHash(hashBytes[:])
	require.NoError(t, err)

	return wire.OutPoint{Hash: *hash, Index: 0}
}

func TestBuildFundingOutputIsSpendableMultisig(t *testing.T) {
	t.Parallel()

	privA, pubA := genTestKeyPair(t, 1)
	privB, pubB := genTestKeyPair(t, 2)

	const fundingAmount = int64(1_000_000)

	txOut, redeemScript, err := BuildFundingOutput(pubA, pubB, fundingAmount)
	require.NoError(t, err)
	require.Equal(t, fundingAmount, txOut.Value)

	fundingOutpoint := fakeOutpoint(t, 5)

	spendTx := wire.NewMsgTx(2)
	spendTx.AddTxIn(&wire.TxIn{PreviousOutPoint: fundingOutpoint})
	spendTx.AddTxOut(&wire.TxOut{Value: fundingAmount - 300, PkScript: txOut.PkScript})

	sigA, err := SignMultisigInput(spendTx, 0, redeemScript, fundingAmount, privA)
	require.NoError(t, err)
	sigB, err := SignMultisigInput(spendTx, 0, redeemScript, fundingAmount, privB)
	require.NoError(t, err)

	require.NoError(t, VerifyMultisigSig(spendTx, 0, redeemScript, fundingAmount, pubA, sigA))
	require.NoError(t, VerifyMultisigSig(spendTx, 0, redeemScript, fundingAmount, pubB, sigB))

	witness := MultisigWitnessStack(redeemScript,
		pubA.SerializeCompressed(), sigA, pubB.SerializeCompressed(), sigB)
	spendTx.TxIn[0].Witness = witness

	prevFetcher := txscript.NewCannedPrevOutputFetcher(txOut.PkScript, fundingAmount)
	sigHashes := txscript.NewTxSigHashes(spendTx, prevFetcher)
	engine, err := txscript.NewEngine(
		txOut.PkScript, spendTx, 0, txscript.StandardVerifyFlags, nil,
		sigHashes, fundingAmount, prevFetcher)
	require.NoError(t, err)
	require.NoError(t, engine.Execute())
}

func TestVerifyMultisigSigRejectsWrongKey(t *testing.T) {
	t.Parallel()

	privA, pubA := genTestKeyPair(t, 1)
	_, pubB := genTestKeyPair(t, 2)
	_, pubC := genTestKeyPair(t, 3)

	const fundingAmount = int64(500_000)
	redeemScript, err := MultisigRedeemScript(pubA, pubB)
	require.NoError(t, err)

	spendTx := wire.NewMsgTx(2)
	spendTx.AddTxIn(&wire.TxIn{PreviousOutPoint: fakeOutpoint(t, 9)})
	spendTx.AddTxOut(&wire.TxOut{Value: fundingAmount - 300})

	sigA, err := SignMultisigInput(spendTx, 0, redeemScript, fundingAmount, privA)
	require.NoError(t, err)

	err = VerifyMultisigSig(spendTx, 0, redeemScript, fundingAmount, pubC, sigA)
	require.Error(t, err)
}

func TestBuildAndValidateContractTx(t *testing.T) {
	t.Parallel()

	_, hashlockPub := genTestKeyPair(t, 11)
	_, timelockPub := genTestKeyPair(t, 21)

	var hashValue [HashSize]byte
	copy(hashValue[:], []byte("0123456789abcdefghij"))

	fundingOutpoint := fakeOutpoint(t, 3)
	const fundingAmount = int64(2_000_000)
	const locktime = int64(850_000)

	tx, htlcScript, err := BuildContractTx(
		fundingOutpoint, fundingAmount, hashlockPub, timelockPub,
		hashValue, locktime, ContractFeeProduction)
	require.NoError(t, err)
	require.Len(t, tx.TxIn, 1)
	require.Len(t, tx.TxOut, 1)

	expectedAmount := fundingAmount - int64(ContractFeeProduction)
	require.Equal(t, expectedAmount, tx.TxOut[0].Value)

	err = ValidateContractTx(tx, fundingOutpoint, htlcScript, expectedAmount)
	require.NoError(t, err)
}

func TestValidateContractTxRejectsWrongShape(t *testing.T) {
	t.Parallel()

	_, hashlockPub := genTestKeyPair(t, 11)
	_, timelockPub := genTestKeyPair(t, 21)
	var hashValue [HashSize]byte

	fundingOutpoint := fakeOutpoint(t, 3)
	const fundingAmount = int64(2_000_000)

	tx, htlcScript, err := BuildContractTx(
		fundingOutpoint, fundingAmount, hashlockPub, timelockPub,
		hashValue, 800_000, ContractFeeProduction)
	require.NoError(t, err)

	// Tamper: add a second output, breaking the one-output invariant.
	tx.AddTxOut(&wire.TxOut{Value: 1000, PkScript: tx.TxOut[0].PkScript})

	err = ValidateContractTx(tx, fundingOutpoint, htlcScript,
		fundingAmount-int64(ContractFeeProduction))
	require.Error(t, err)

	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, ErrShapeMismatch, cerr.Kind)
}

func TestValidateContractTxRejectsSubstitutedContract(t *testing.T) {
	t.Parallel()

	_, hashlockPub := genTestKeyPair(t, 11)
	_, timelockPub := genTestKeyPair(t, 21)
	_, foreignPub := genTestKeyPair(t, 99)
	var hashValue [HashSize]byte

	fundingOutpoint := fakeOutpoint(t, 3)
	const fundingAmount = int64(2_000_000)

	tx, htlcScript, err := BuildContractTx(
		fundingOutpoint, fundingAmount, hashlockPub, timelockPub,
		hashValue, 800_000, ContractFeeProduction)
	require.NoError(t, err)

	foreignScript, err := HTLCRedeemScript(foreignPub, timelockPub, hashValue, 800_000)
	require.NoError(t, err)

	err = ValidateContractTx(tx, fundingOutpoint, foreignScript,
		fundingAmount-int64(ContractFeeProduction))
	require.Error(t, err)

	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, ErrMultipleContract, cerr.Kind)

	// The original script is untouched and still validates.
	require.NoError(t, ValidateContractTx(tx, fundingOutpoint, htlcScript,
		fundingAmount-int64(ContractFeeProduction)))
}

func TestHTLCWitnessShapes(t *testing.T) {
	t.Parallel()

	privHashlock, hashlockPub := genTestKeyPair(t, 31)
	_, timelockPub := genTestKeyPair(t, 41)
	var hashValue [HashSize]byte

	htlcScript, err := HTLCRedeemScript(hashlockPub, timelockPub, hashValue, 800_000)
	require.NoError(t, err)

	spendTx := wire.NewMsgTx(2)
	spendTx.AddTxIn(&wire.TxIn{PreviousOutPoint: fakeOutpoint(t, 50)})
	spendTx.AddTxOut(&wire.TxOut{Value: 900})

	sig, err := SignHTLCBranch(spendTx, 0, htlcScript, 1000, privHashlock)
	require.NoError(t, err)

	preimage, err := NewPreimage()
	require.NoError(t, err)

	hashWitness := BuildHashlockWitness(sig, preimage, htlcScript)
	require.Len(t, hashWitness, 3)
	require.Equal(t, preimage[:], hashWitness[1])

	timeWitness := BuildTimelockWitness(sig, htlcScript)
	require.Len(t, timeWitness, 3)
	require.Nil(t, timeWitness[1])
}

func TestSequenceForRelativeLocktime(t *testing.T) {
	t.Parallel()

	require.Equal(t, uint32(144), SequenceForRelativeLocktime(144))
}
