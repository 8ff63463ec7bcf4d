package maker

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
	"github.com/citadel-tech/coinswap-go/swapcoin"
	"github.com/citadel-tech/coinswap-go/swapwire"
	"github.com/citadel-tech/coinswap-go/walletstore"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"
)

func genTestKeyPair(t *testing.T, seed byte) (*btcec.PrivateKey, *btcec.PublicKey) {
	t.Helper()

	var raw [32]byte
	for i := range raw {
		raw[i] = seed + byte(i)
	}
	priv, pub := btcec.PrivKeyFromBytes(raw[:])
	return priv, pub
}

func openTestStore(t *testing.T) *walletstore.Store {
	t.Helper()

	store, err := walletstore.Open(t.TempDir(), "maker-test-wallet")
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })
	return store
}

func testConfig(t *testing.T) *Config {
	t.Helper()
	basePriv, _ := genTestKeyPair(t, 0x10)
	return &Config{
		BasePrivKey:             basePriv,
		MinSize:                 1_000,
		MaxSize:                 10_000_000,
		Fees:                    contract.FeeSchedule{BaseAbsolute: 100, RelativeAmountPPB: 1000, RelativeTimePPB: 1},
		MinContractReactionTime: 3600,
		RequiredConfirms:        1,
		MessageTimeout:          TestMessageTimeout,
		IdleTimeout:             TestIdleTimeout,
	}
}

func TestFSMAllowedTransitions(t *testing.T) {
	t.Parallel()

	require.True(t, StateNewlyConnectedTaker.allowed(swapwire.MsgReqGiveOffer))
	require.True(t, StateNewlyConnectedTaker.allowed(swapwire.MsgReqContractSigsForSender))
	require.False(t, StateNewlyConnectedTaker.allowed(swapwire.MsgRespHashPreimage))

	require.True(t, StateProofOfFundingOrContractSigsForRecvrAndSender.allowed(swapwire.MsgRespProofOfFunding))
	require.True(t, StateProofOfFundingOrContractSigsForRecvrAndSender.allowed(swapwire.MsgRespContractSigsForRecvrAndSender))
	require.False(t, StateProofOfFundingOrContractSigsForRecvrAndSender.allowed(swapwire.MsgReqGiveOffer))

	require.True(t, StatePrivateKeyHandover.allowed(swapwire.MsgRespPrivKeyHandover))
	require.False(t, StateClosed.allowed(swapwire.MsgReqGiveOffer))
}

func TestHandleReqGiveOfferSendsAdvertisedTerms(t *testing.T) {
	t.Parallel()

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	cfg := testConfig(t)
	store := openTestStore(t)
	c := newConn(serverConn, cfg, store, nil)

	done := make(chan error, 1)
	go func() { done <- c.handleReqGiveOffer() }()

	msg, err := swapwire.ReadMessage(clientConn)
	require.NoError(t, err)
	require.NoError(t, <-done)

	resp, ok := msg.(*swapwire.RespOffer)
	require.True(t, ok)
	require.Equal(t, cfg.MinSize, resp.Offer.MinSize)
	require.Equal(t, cfg.MaxSize, resp.Offer.MaxSize)
	require.Equal(t, cfg.BasePrivKey.PubKey().SerializeCompressed(), resp.Offer.TweakablePoint)
}

// TestSignSenderContractSignsAndPersistsIncoming builds a contract tx where
// the Taker funds a multisig and proposes an HTLC output this Maker
// receives on (hashlock branch), then checks the Maker's signature
// verifies and the resulting Incoming swapcoin is durably recorded.
func TestSignSenderContractSignsAndPersistsIncoming(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	store := openTestStore(t)
	c := newConn(&fakeNetConn{}, cfg, store, nil)

	nonce, err := contract.NewNonce()
	require.NoError(t, err)
	myPriv, err := contract.DeriveTweakedPrivKey(cfg.BasePrivKey, nonce)
	require.NoError(t, err)

	_, counterpartyPub := genTestKeyPair(t, 0x20)

	var hashValue [contract.HashSize]byte
	copy(hashValue[:], []byte("maker-test-hashvalue"))
	const locktime = 10_000

	fundingAmount := int64(500_000)
	htlcScript, err := contract.HTLCRedeemScript(myPriv.PubKey(), counterpartyPub, hashValue, locktime)
	require.NoError(t, err)
	htlcPkScript, err := contract.P2WSH(htlcScript)
	require.NoError(t, err)

	contractTx := wire.NewMsgTx(2)
	contractTx.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Index: 0}})
	contractTx.AddTxOut(&wire.TxOut{Value: fundingAmount - 300, PkScript: htlcPkScript})

	var buf bytes.Buffer
	require.NoError(t, contractTx.Serialize(&buf))

	req := swapwire.ContractSigRequest{
		FundingAmount:      fundingAmount,
		Nonce:              nonce,
		CounterpartyPubKey: counterpartyPub.SerializeCompressed(),
		ContractTx:         buf.Bytes(),
		HashValue:          hashValue,
		Locktime:           locktime,
	}

	sig, err := c.signSenderContract(req)
	require.NoError(t, err)

	fundingRedeemScript, err := contract.MultisigRedeemScript(myPriv.PubKey(), counterpartyPub)
	require.NoError(t, err)
	require.NoError(t, contract.VerifyMultisigSig(
		&contractTx, 0, fundingRedeemScript, fundingAmount, myPriv.PubKey(), sig))

	stored, err := store.GetIncoming(fundingRedeemScript)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, fundingAmount, stored.FundingAmount)
}

func TestSignSenderContractRejectsOutOfRangeAmount(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	store := openTestStore(t)
	c := newConn(&fakeNetConn{}, cfg, store, nil)

	nonce, err := contract.NewNonce()
	require.NoError(t, err)

	req := swapwire.ContractSigRequest{
		FundingAmount: cfg.MaxSize + 1,
		Nonce:         nonce,
		Locktime:      10_000,
	}

	_, err = c.signSenderContract(req)
	require.Error(t, err)
	var makerErr *Error
	require.ErrorAs(t, err, &makerErr)
	require.Equal(t, ErrFeeMismatch, makerErr.Kind)
}

// fakeNetConn satisfies net.Conn for tests that never actually read/write
// over the wire (signSenderContract is a pure function of its argument and
// the store).
type fakeNetConn struct{ net.Conn }

func (f *fakeNetConn) RemoteAddr() net.Addr { return fakeAddr("test") }
func (f *fakeNetConn) Close() error         { return nil }

type fakeAddr string

func (a fakeAddr) Network() string { return "test" }
func (a fakeAddr) String() string  { return string(a) }

// TestIdleSinceTracksInjectedClock verifies the idle monitor's wall-time
// reads go through cfg.Clock rather than the real system clock, so a test
// can advance "now" deterministically instead of sleeping.
func TestIdleSinceTracksInjectedClock(t *testing.T) {
	t.Parallel()

	start := time.Now()
	testClock := clock.NewTestClock(start)

	cfg := testConfig(t)
	cfg.Clock = testClock
	store := openTestStore(t)
	c := newConn(&fakeNetConn{}, cfg, store, nil)

	require.Equal(t, time.Duration(0), c.IdleSince())

	testClock.SetTime(start.Add(5 * time.Minute))
	require.Equal(t, 5*time.Minute, c.IdleSince())

	c.touch()
	require.Equal(t, time.Duration(0), c.IdleSince())
}

// TestSweepIdleTriggersRecoveryForConnectionWithSwapcoins checks spec §4.4's
// idle-monitor recovery trigger: a connection reaped for inactivity after it
// has already recorded swapcoins must have the shared recovery routine run
// for it, not just be closed and dropped.
func TestSweepIdleTriggersRecoveryForConnectionWithSwapcoins(t *testing.T) {
	t.Parallel()

	start := time.Now()
	testClock := clock.NewTestClock(start)

	cfg := testConfig(t)
	cfg.Clock = testClock
	cfg.IdleTimeout = time.Minute
	cfg.SweepFee = contract.ContractFeeIntegrationTest

	store := openTestStore(t)
	backend := chainrpc.NewFakeChainBackend()

	c := newConn(&fakeNetConn{}, cfg, store, backend)

	myPriv, myPub := genTestKeyPair(t, 0x40)
	_, theirPub := genTestKeyPair(t, 0x41)
	timelockPriv, timelockPub := genTestKeyPair(t, 0x42)
	_, hashlockPub := genTestKeyPair(t, 0x43)

	var hashValue [contract.HashSize]byte
	copy(hashValue[:], []byte("sweep-idle-recovery-test"))

	const locktime = 500_000
	fundingOut, multisigRedeem, err := contract.BuildFundingOutput(myPub, theirPub, 250_000)
	require.NoError(t, err)

	fundingOutpoint := wire.OutPoint{Index: 0}
	contractTx, htlcRedeem, err := contract.BuildContractTx(
		fundingOutpoint, fundingOut.Value, hashlockPub, timelockPub,
		hashValue, locktime, contract.ContractFeeIntegrationTest)
	require.NoError(t, err)

	// Already matured, so recovery's poll loop completes on its first
	// synchronous pass and triggerRecovery never has to wait on the
	// injected clock to tick.
	backend.SetTxConfirmations(contract.TxID(contractTx), locktime)

	outgoing := &swapcoin.Outgoing{
		Base: swapcoin.Base{
			MultisigRedeemScript: multisigRedeem,
			FundingAmount:        fundingOut.Value,
			FundingOutpoint:      fundingOutpoint,
			ContractTx:           contractTx,
			HTLCRedeemScript:     htlcRedeem,
		},
		MyMultisigPrivKey:   myPriv,
		TheirMultisigPubKey: theirPub,
		MyTimelockPrivKey:   timelockPriv,
		CounterpartySig:     []byte{0x01},
	}
	c.rememberOutgoing(outgoing)
	require.NoError(t, store.PutOutgoing(outgoing))

	tracker := newConnTracker()
	tracker.add(c)

	monitors := NewMonitors(cfg, store, backend, tracker)

	testClock.SetTime(start.Add(2 * cfg.IdleTimeout))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	monitors.sweepIdle(ctx)

	require.True(t, tracker.recoveryCalled)
	_, stillTracked := tracker.conns[c.RemoteAddr()]
	require.False(t, stillTracked)

	remaining, err := store.GetOutgoing(multisigRedeem)
	require.NoError(t, err)
	require.Nil(t, remaining, "matured outgoing swapcoin should have been swept by the triggered recovery run")
}

// TestSweepIdleDoesNotTriggerRecoveryForBareConnection ensures a connection
// reaped before it ever recorded a swapcoin is just dropped, not routed
// through the (synchronous, potentially slow) recovery routine.
func TestSweepIdleDoesNotTriggerRecoveryForBareConnection(t *testing.T) {
	t.Parallel()

	start := time.Now()
	testClock := clock.NewTestClock(start)

	cfg := testConfig(t)
	cfg.Clock = testClock
	cfg.IdleTimeout = time.Minute

	store := openTestStore(t)
	backend := chainrpc.NewFakeChainBackend()
	c := newConn(&fakeNetConn{}, cfg, store, backend)

	tracker := newConnTracker()
	tracker.add(c)

	monitors := NewMonitors(cfg, store, backend, tracker)

	testClock.SetTime(start.Add(2 * cfg.IdleTimeout))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	monitors.sweepIdle(ctx)

	require.False(t, tracker.recoveryCalled)
	_, stillTracked := tracker.conns[c.RemoteAddr()]
	require.False(t, stillTracked)
}
