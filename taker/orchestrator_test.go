package taker

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"
	"github.com/citadel-tech/coinswap-go/chainrpc"
	"github.com/citadel-tech/coinswap-go/contract"
	"github.com/citadel-tech/coinswap-go/swapwire"
	"github.com/stretchr/testify/require"
)

func rawKeyPair(seed byte) (*btcec.PrivateKey, *btcec.PublicKey) {
	var raw [32]byte
	for i := range raw {
		raw[i] = seed + byte(i)
	}
	return btcec.PrivKeyFromBytes(raw[:])
}

func genTestKeyPair(t *testing.T, seed byte) (*btcec.PrivateKey, *btcec.PublicKey) {
	t.Helper()
	return rawKeyPair(seed)
}

// fakeWallet is an in-memory Wallet double: fixed balance, deterministic
// keys from a counter, and a funding tx that spends a made-up outpoint into
// exactly the requested outputs (no real UTXO selection, matching how
// maker_test.go never touches a real wallet either).
type fakeWallet struct {
	balance int64
	seed    byte
}

func (w *fakeWallet) Balance(ctx context.Context) (int64, error) {
	return w.balance, nil
}

func (w *fakeWallet) NewKeyPair(ctx context.Context) (*btcec.PrivateKey, error) {
	w.seed++
	priv, _ := rawKeyPair(w.seed)
	return priv, nil
}

func (w *fakeWallet) BuildFundingTxs(ctx context.Context, outputs []FundingOutput) ([]*wire.MsgTx, error) {
	txs := make([]*wire.MsgTx, len(outputs))
	for i, out := range outputs {
		tx := wire.NewMsgTx(2)
		tx.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Index: uint32(i)}})
		pkScript, err := contract.P2WSH(out.RedeemScript)
		if err != nil {
			return nil, err
		}
		tx.AddTxOut(&wire.TxOut{Value: out.Amount, PkScript: pkScript})
		txs[i] = tx
	}
	return txs, nil
}

func (w *fakeWallet) SweepAddress(ctx context.Context) ([]byte, error) {
	_, pub := rawKeyPair(0xF0)
	script, err := contract.P2WSH(pub.SerializeCompressed())
	if err != nil {
		return nil, err
	}
	return script, nil
}

func testTaker(t *testing.T, balance int64) (*Taker, *fakeWallet, *chainrpc.FakeChainBackend) {
	t.Helper()

	wallet := &fakeWallet{balance: balance}
	chain := chainrpc.NewFakeChainBackend()
	cfg := &Config{
		Wallet:           wallet,
		Chain:            chain,
		HopCount:         1,
		SplitCount:       1,
		RequiredConfirms: 0,
		MessageTimeout:   time.Second,
		PollInterval:     time.Millisecond,
	}
	return &Taker{cfg: cfg, dialer: &Dialer{MessageTimeout: cfg.MessageTimeout}}, wallet, chain
}

func TestLegLocktimeDecreasesTowardTheLastHop(t *testing.T) {
	t.Parallel()

	tk, _, _ := testTaker(t, 1_000_000)
	tk.cfg.HopCount = 3

	require.Greater(t, tk.legLocktime(0), tk.legLocktime(1))
	require.Greater(t, tk.legLocktime(1), tk.legLocktime(2))
	require.Equal(t, int64(RefundLocktime), tk.legLocktime(3))
}

func TestCheckBalanceRejectsInsufficientFunds(t *testing.T) {
	t.Parallel()

	tk, _, _ := testTaker(t, 10_000)

	err := tk.checkBalance(context.Background(), 1_000_000)
	require.Error(t, err)
	var takerErr *Error
	require.ErrorAs(t, err, &takerErr)
	require.Equal(t, ErrInsufficientBalance, takerErr.Kind)
}

func TestCheckBalanceAcceptsSufficientFunds(t *testing.T) {
	t.Parallel()

	tk, _, _ := testTaker(t, 1_000_000)
	require.NoError(t, tk.checkBalance(context.Background(), 500_000))
}

// TestBuildLegProducesASpendableContract checks that buildLeg's funding tx
// and contract tx agree: the contract spends the funding tx's sole output,
// and the HTLC output pays the expected amount after the production fee.
func TestBuildLegProducesASpendableContract(t *testing.T) {
	t.Parallel()

	tk, _, _ := testTaker(t, 1_000_000)

	senderPriv, senderPub := genTestKeyPair(t, 0x10)
	_, receiverPub := genTestKeyPair(t, 0x20)
	_ = senderPriv

	var hashValue [contract.HashSize]byte
	copy(hashValue[:], []byte("taker-test-hashvalue"))

	leg, err := tk.buildLeg(context.Background(), senderPub, receiverPub, 500_000, 10_000, hashValue)
	require.NoError(t, err)

	require.Equal(t, leg.fundingTx.TxHash(), leg.contractTx.TxIn[0].PreviousOutPoint.Hash)
	require.Equal(t, uint32(0), leg.contractTx.TxIn[0].PreviousOutPoint.Index)
	require.Equal(t, int64(500_000)-int64(contract.ContractFeeProduction), leg.contractTx.TxOut[0].Value)

	expectedPkScript, err := contract.P2WSH(leg.htlcScript)
	require.NoError(t, err)
	require.Equal(t, expectedPkScript, leg.contractTx.TxOut[0].PkScript)
}

// scriptedMaker drives the counterparty half of one orchestrator helper
// call over a net.Pipe, the same style maker_test.go uses for its
// handler-level tests, here applied from the Taker's side of the wire.
type scriptedMaker struct {
	conn net.Conn
}

func (m *scriptedMaker) read(t *testing.T) swapwire.Message {
	t.Helper()
	msg, err := swapwire.ReadMessage(m.conn)
	require.NoError(t, err)
	return msg
}

func (m *scriptedMaker) write(t *testing.T, msg swapwire.Message) {
	t.Helper()
	require.NoError(t, swapwire.WriteMessage(m.conn, msg))
}

// TestSendReqContractSigsForSenderVerifiesMakerSig drives
// sendReqContractSigsForSender against a scripted Maker that countersigns
// with the expected receiver key, and checks the Taker rejects a bad sig.
func TestSendReqContractSigsForSenderVerifiesMakerSig(t *testing.T) {
	t.Parallel()

	tk, _, _ := testTaker(t, 1_000_000)

	senderPriv, senderPub := genTestKeyPair(t, 0x30)
	receiverPriv, receiverPub := genTestKeyPair(t, 0x40)
	_ = senderPriv

	var hashValue [contract.HashSize]byte
	copy(hashValue[:], []byte("sender-sig-test-hash"))

	leg, err := tk.buildLeg(context.Background(), senderPub, receiverPub, 300_000, 20_000, hashValue)
	require.NoError(t, err)

	nonce, err := contract.NewNonce()
	require.NoError(t, err)

	taker, maker := net.Pipe()
	defer taker.Close()
	defer maker.Close()
	scripted := &scriptedMaker{conn: maker}

	done := make(chan struct {
		sig []byte
		err error
	}, 1)
	go func() {
		sig, err := tk.sendReqContractSigsForSender(taker, leg, nonce, hashValue)
		done <- struct {
			sig []byte
			err error
		}{sig, err}
	}()

	msg := scripted.read(t)
	req, ok := msg.(*swapwire.ReqContractSigsForSender)
	require.True(t, ok)
	require.Len(t, req.Requests, 1)
	require.Equal(t, leg.amount, req.Requests[0].FundingAmount)

	sig, err := contract.SignMultisigInput(leg.contractTx, 0, leg.redeemScript, leg.amount, receiverPriv)
	require.NoError(t, err)
	scripted.write(t, &swapwire.RespContractSigsForSender{Sigs: [][]byte{sig}})

	result := <-done
	require.NoError(t, result.err)
	require.Equal(t, sig, result.sig)
}

func TestSendReqContractSigsForSenderRejectsBadSig(t *testing.T) {
	t.Parallel()

	tk, _, _ := testTaker(t, 1_000_000)

	senderPriv, senderPub := genTestKeyPair(t, 0x50)
	wrongPriv, _ := genTestKeyPair(t, 0x60)
	_, receiverPub := genTestKeyPair(t, 0x70)
	_ = senderPriv

	var hashValue [contract.HashSize]byte
	copy(hashValue[:], []byte("sender-sig-bad-test-h"))

	leg, err := tk.buildLeg(context.Background(), senderPub, receiverPub, 300_000, 20_000, hashValue)
	require.NoError(t, err)

	nonce, err := contract.NewNonce()
	require.NoError(t, err)

	taker, maker := net.Pipe()
	defer taker.Close()
	defer maker.Close()
	scripted := &scriptedMaker{conn: maker}

	errCh := make(chan error, 1)
	go func() {
		_, err := tk.sendReqContractSigsForSender(taker, leg, nonce, hashValue)
		errCh <- err
	}()

	scripted.read(t)
	badSig, err := contract.SignMultisigInput(leg.contractTx, 0, leg.redeemScript, leg.amount, wrongPriv)
	require.NoError(t, err)
	scripted.write(t, &swapwire.RespContractSigsForSender{Sigs: [][]byte{badSig}})

	err = <-errCh
	require.Error(t, err)
	var takerErr *Error
	require.ErrorAs(t, err, &takerErr)
	require.Equal(t, ErrMakerProtocol, takerErr.Kind)
}

// TestSendRespProofOfFundingForwardsNextHopKeys checks the Taker hands the
// Maker the multisig redeem script under ContractRedeemScript (not the
// HTLC script), per the walletstore keying convention, and both next-hop
// pubkeys as the same bytes.
func TestSendRespProofOfFundingForwardsNextHopKeys(t *testing.T) {
	t.Parallel()

	tk, _, _ := testTaker(t, 1_000_000)

	_, senderPub := genTestKeyPair(t, 0x80)
	_, receiverPub := genTestKeyPair(t, 0x90)
	_, nextPub := genTestKeyPair(t, 0xA0)

	var hashValue [contract.HashSize]byte
	copy(hashValue[:], []byte("proof-of-funding-test"))

	leg, err := tk.buildLeg(context.Background(), senderPub, receiverPub, 400_000, 30_000, hashValue)
	require.NoError(t, err)

	taker, maker := net.Pipe()
	defer taker.Close()
	defer maker.Close()
	scripted := &scriptedMaker{conn: maker}

	nextReq := swapwire.ContractSigRequest{
		FundingAmount:      250_000,
		CounterpartyPubKey: senderPub.SerializeCompressed(),
		Locktime:           15_000,
	}

	type result struct {
		req swapwire.ContractSigRequest
		err error
	}
	done := make(chan result, 1)
	go func() {
		req, err := tk.sendRespProofOfFunding(context.Background(), taker, leg, nextPub)
		done <- result{req, err}
	}()

	msg := scripted.read(t)
	proof, ok := msg.(*swapwire.RespProofOfFunding)
	require.True(t, ok)
	require.Len(t, proof.Proofs, 1)
	require.Equal(t, leg.redeemScript, proof.Proofs[0].ContractRedeemScript)
	require.Equal(t, nextPub.SerializeCompressed(), proof.Proofs[0].NextMultisigPubKey)
	require.Equal(t, nextPub.SerializeCompressed(), proof.Proofs[0].NextHashlockPubKey)

	var fundingBuf bytes.Buffer
	require.NoError(t, leg.fundingTx.Serialize(&fundingBuf))
	require.Equal(t, fundingBuf.Bytes(), proof.Proofs[0].FundingTx)

	scripted.write(t, &swapwire.ReqContractSigsAsRecvrAndSender{SenderRequests: []swapwire.ContractSigRequest{nextReq}})

	out := <-done
	require.NoError(t, out.err)
	require.Equal(t, nextReq.FundingAmount, out.req.FundingAmount)
	require.Equal(t, senderPub.SerializeCompressed(), out.req.CounterpartyPubKey)
}

// TestCloseConnectionExchangesSigsForRecvrRole drives closeConnection's two
// messages (RespContractSigsForRecvrAndSender, then
// ReqContractSigsForRecvr) and checks it verifies the Maker's reply against
// the leg's sender pubkey.
func TestCloseConnectionExchangesSigsForRecvrRole(t *testing.T) {
	t.Parallel()

	tk, _, _ := testTaker(t, 1_000_000)

	senderPriv, senderPub := genTestKeyPair(t, 0xB0)
	_, receiverPub := genTestKeyPair(t, 0xC0)

	var hashValue [contract.HashSize]byte
	copy(hashValue[:], []byte("close-connection-test"))

	leg, err := tk.buildLeg(context.Background(), senderPub, receiverPub, 200_000, 5_000, hashValue)
	require.NoError(t, err)

	taker, maker := net.Pipe()
	defer taker.Close()
	defer maker.Close()
	scripted := &scriptedMaker{conn: maker}

	selfSig := []byte("fake-hashlock-self-sig")
	receiverSig := []byte("fake-prior-leg-receiver-sig")

	type result struct {
		sig []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		sig, err := tk.closeConnection(taker, leg, selfSig, receiverSig)
		done <- result{sig, err}
	}()

	msg := scripted.read(t)
	handoverMsg, ok := msg.(*swapwire.RespContractSigsForRecvrAndSender)
	require.True(t, ok)
	require.Equal(t, [][]byte{receiverSig}, handoverMsg.ReceiverSigs)
	require.Equal(t, [][]byte{selfSig}, handoverMsg.SenderSigs)

	msg = scripted.read(t)
	recvReq, ok := msg.(*swapwire.ReqContractSigsForRecvr)
	require.True(t, ok)
	require.Len(t, recvReq.Requests, 1)
	require.Equal(t, leg.amount, recvReq.Requests[0].FundingAmount)

	sig, err := contract.SignMultisigInput(leg.contractTx, 0, leg.redeemScript, leg.amount, senderPriv)
	require.NoError(t, err)
	scripted.write(t, &swapwire.RespContractSigsForRecvr{Sigs: [][]byte{sig}})

	out := <-done
	require.NoError(t, out.err)
	require.Equal(t, sig, out.sig)
}
