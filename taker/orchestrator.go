// Package taker implements the Taker side of the coinswap protocol: the
// single-threaded orchestrator that drives a swap across H hops (spec.md
// §4.5), banning misbehaving Makers and entering recovery if any tracked
// contract surfaces on chain outside the cooperative path.
//
// Grounded on the teacher's fundingmanager.go: a single cooperative state
// machine driving a multi-step funding flow end to end, one peer connection
// at a time, with explicit timeouts at every blocking step -- adapted here
// from a two-party channel open to an H-party swap route.
//
// A swap of H makers involves H+1 contracts end to end: leg 0 is funded
// directly by the Taker's own wallet with maker[0] as hashlock holder; leg
// k (0 < k < H) is funded by the Taker on maker[k-1]'s behalf, using the
// sender pubkey maker[k-1] derived for its own outgoing side and the
// hashlock pubkey the Taker derives from maker[k]'s tweakable point for
// maker[k]'s incoming side; leg H is the
// Taker's own final incoming contract, with maker[H-1] as the sender. Every
// Maker connection stays open for the whole route: closing maker[k-1]'s
// RespContractSigsForRecvrAndSender round needs leg k's freshly-signed
// contract, so connections finish out of the order they were opened in,
// one step behind the funding frontier.
package taker

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"
	"github.com/citadel-tech/coinswap-go/contract"
	"github.com/citadel-tech/coinswap-go/offerbook"
	"github.com/citadel-tech/coinswap-go/recovery"
	"github.com/citadel-tech/coinswap-go/swapcoin"
	"github.com/citadel-tech/coinswap-go/swapwire"
)

// pollTick returns a channel that fires once after interval, the same
// single-shot wait primitive recovery.Run uses between poll iterations
// (grounded on recovery/recovery.go's confirmation-depth poll loop).
func pollTick(interval time.Duration) <-chan time.Time {
	return time.After(interval)
}

// Taker drives one swap at a time.
type Taker struct {
	cfg    *Config
	dialer *Dialer
}

// New builds a Taker ready to run swaps against cfg.
func New(cfg *Config) *Taker {
	return &Taker{cfg: cfg, dialer: &Dialer{MessageTimeout: cfg.MessageTimeout}}
}

// Result is what a successful swap returns.
type Result struct {
	Preimage [contract.PreimageSize]byte
	SwapID   string
	Hops     []string // maker hosts, in route order
}

// contractLeg is one of the H+1 HTLC contracts chained across the route.
// leg k's hashlock side is maker[k] (or the Taker itself for leg H); its
// timelock side is maker[k-1] (or the Taker itself for leg 0).
type contractLeg struct {
	senderPub   *btcec.PublicKey // timelock/refund side
	receiverPub *btcec.PublicKey // hashlock side

	amount   int64
	locktime int64

	redeemScript []byte
	htlcScript   []byte
	contractTx   *wire.MsgTx
	fundingTx    *wire.MsgTx
}

// Run executes spec.md §4.5's full 8-step sequence for one swap of amount
// satoshis across cfg.HopCount hops.
func (t *Taker) Run(ctx context.Context, amount int64) (*Result, error) {
	if err := t.checkBalance(ctx, amount); err != nil {
		return nil, err
	}

	if err := t.cfg.OfferBook.Sync(ctx); err != nil {
		return nil, fmt.Errorf("taker: offerbook sync: %w", err)
	}
	if t.cfg.OfferBook.UntriedCount(amount) < t.cfg.HopCount {
		return nil, newErr(ErrNotEnoughMakers, "",
			"need %d usable makers for amount %d, fewer available", t.cfg.HopCount, amount)
	}

	preimage, err := contract.NewPreimage()
	if err != nil {
		return nil, fmt.Errorf("taker: generate preimage: %w", err)
	}
	hashValue := contract.Hash160(preimage[:])

	r, err := t.buildRoute(ctx, amount, hashValue)
	if err != nil {
		return nil, err
	}
	defer r.closeAll()

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	watchErrCh := make(chan error, 1)
	go func() { watchErrCh <- t.watchForContractBroadcast(watchCtx, r) }()

	if err := t.settle(ctx, r, preimage); err != nil {
		return nil, err
	}

	hosts := make([]string, len(r.candidates))
	for i, cand := range r.candidates {
		hosts[i] = cand.Host
		t.cfg.OfferBook.MarkGood(cand.Host)
	}

	swapID := fmt.Sprintf("%x", preimage[:8])
	return &Result{Preimage: preimage, SwapID: swapID, Hops: hosts}, nil
}

// checkBalance implements spec.md §4.5 step 1.
func (t *Taker) checkBalance(ctx context.Context, amount int64) error {
	const minerFeeBuffer = 10_000

	balance, err := t.cfg.Wallet.Balance(ctx)
	if err != nil {
		return fmt.Errorf("taker: wallet balance: %w", err)
	}
	if balance < amount+minerFeeBuffer {
		return newErr(ErrInsufficientBalance, "",
			"balance %d below amount %d plus fee buffer %d", balance, amount, minerFeeBuffer)
	}
	return nil
}

// route holds everything the orchestrator tracks across one swap's
// lifetime: the open connections, their candidates, the H+1 chained
// contract legs, and the Taker's own key material at the two ends of the
// chain it directly owns.
type route struct {
	candidates []offerbook.MakerCandidate
	conns      []net.Conn
	legs       []*contractLeg // length HopCount+1
	firstPriv  *btcec.PrivateKey
	finalPriv  *btcec.PrivateKey
	outgoing0  *swapcoin.Outgoing
	incomingH  *swapcoin.Incoming
}

func (r *route) closeAll() {
	for _, c := range r.conns {
		if c != nil {
			c.Close()
		}
	}
}

// buildRoute selects HopCount reachable Makers, then drives the chained
// funding/signing pipeline across all H+1 contract legs (spec.md §4.5
// steps 4-6). A failure anywhere in the signing pipeline aborts the whole
// swap rather than retrying that hop in place: by the time a mid-pipeline
// error surfaces, real wallet funds are already committed to earlier legs,
// so the caller's recovery path (not a fresh route) is what protects them.
func (t *Taker) buildRoute(ctx context.Context, amount int64, hashValue [contract.HashSize]byte) (*route, error) {
	H := t.cfg.HopCount

	candidates, conns, err := t.selectReachableMakers(ctx, amount, H)
	if err != nil {
		return nil, err
	}
	r := &route{candidates: candidates, conns: conns, legs: make([]*contractLeg, H+1)}

	nonces := make([][32]byte, H)
	receiverPubs := make([]*btcec.PublicKey, H+1)
	for k := 0; k < H; k++ {
		nonce, err := contract.NewNonce()
		if err != nil {
			r.closeAll()
			return nil, fmt.Errorf("taker: generate nonce: %w", err)
		}
		nonces[k] = nonce

		point, err := btcec.ParsePubKey(candidates[k].Offer.TweakablePoint)
		if err != nil {
			r.closeAll()
			return nil, fmt.Errorf("taker: parse tweakable point for %s: %w", candidates[k].Host, err)
		}
		pub, err := contract.DeriveTweakedPubKey(point, nonce)
		if err != nil {
			r.closeAll()
			return nil, fmt.Errorf("taker: derive maker pubkey: %w", err)
		}
		receiverPubs[k] = pub
	}

	r.finalPriv, err = t.cfg.Wallet.NewKeyPair(ctx)
	if err != nil {
		r.closeAll()
		return nil, fmt.Errorf("taker: wallet keypair: %w", err)
	}
	receiverPubs[H] = r.finalPriv.PubKey()

	r.firstPriv, err = t.cfg.Wallet.NewKeyPair(ctx)
	if err != nil {
		r.closeAll()
		return nil, fmt.Errorf("taker: wallet keypair: %w", err)
	}

	selfSigs := make([][]byte, H+1) // hashlock side's own sig over leg k
	var pendingReceiverSig []byte   // ReceiverSig needed to close the previous connection, one iteration behind

	senderPub := r.firstPriv.PubKey()
	legAmount := amount
	legLocktime := t.legLocktime(0)

	for k := 0; k < H; k++ {
		leg, err := t.buildLeg(ctx, senderPub, receiverPubs[k], legAmount, legLocktime, hashValue)
		if err != nil {
			r.closeAll()
			return nil, fmt.Errorf("taker: build leg %d: %w", k, err)
		}
		r.legs[k] = leg

		sig, err := t.sendReqContractSigsForSender(r.conns[k], leg, nonces[k], hashValue)
		if err != nil {
			t.cfg.OfferBook.MarkBad(candidates[k].Host)
			r.closeAll()
			return nil, err
		}
		selfSigs[k] = sig

		if err := t.broadcastAndWait(ctx, leg.fundingTx); err != nil {
			r.closeAll()
			return nil, fmt.Errorf("taker: confirm leg %d funding: %w", k, err)
		}

		senderReq, err := t.sendRespProofOfFunding(ctx, r.conns[k], leg, receiverPubs[k+1])
		if err != nil {
			t.cfg.OfferBook.MarkBad(candidates[k].Host)
			r.closeAll()
			return nil, err
		}

		if k == 0 {
			pendingReceiverSig, err = t.selfSign(leg, r.firstPriv)
			if err != nil {
				r.closeAll()
				return nil, fmt.Errorf("taker: self-sign leg 0: %w", err)
			}
		} else {
			recvSig, err := t.closeConnection(r.conns[k-1], leg, selfSigs[k], pendingReceiverSig)
			if err != nil {
				t.cfg.OfferBook.MarkBad(candidates[k-1].Host)
				r.closeAll()
				return nil, err
			}
			pendingReceiverSig = recvSig
		}

		nextSenderPub, err := btcec.ParsePubKey(senderReq.CounterpartyPubKey)
		if err != nil {
			r.closeAll()
			return nil, fmt.Errorf("taker: parse next sender pubkey: %w", err)
		}
		senderPub = nextSenderPub
		legAmount = senderReq.FundingAmount
		legLocktime = senderReq.Locktime
	}

	legH, err := t.buildLeg(ctx, senderPub, receiverPubs[H], legAmount, legLocktime, hashValue)
	if err != nil {
		r.closeAll()
		return nil, fmt.Errorf("taker: build final leg: %w", err)
	}
	r.legs[H] = legH

	if err := t.broadcastAndWait(ctx, legH.fundingTx); err != nil {
		r.closeAll()
		return nil, fmt.Errorf("taker: confirm final leg funding: %w", err)
	}

	finalSelfSig, err := t.selfSign(legH, r.finalPriv)
	if err != nil {
		r.closeAll()
		return nil, fmt.Errorf("taker: self-sign final leg: %w", err)
	}

	finalReceiverSig, err := t.closeConnection(r.conns[H-1], legH, finalSelfSig, pendingReceiverSig)
	if err != nil {
		t.cfg.OfferBook.MarkBad(candidates[H-1].Host)
		r.closeAll()
		return nil, err
	}

	r.incomingH = &swapcoin.Incoming{
		Base: swapcoin.Base{
			MultisigRedeemScript: legH.redeemScript,
			FundingAmount:        legH.amount,
			FundingOutpoint:      wire.OutPoint{Hash: legH.fundingTx.TxHash(), Index: 0},
			ContractTx:           legH.contractTx,
			HTLCRedeemScript:     legH.htlcScript,
		},
		MyMultisigPrivKey:   r.finalPriv,
		TheirMultisigPubKey: senderPub,
		MyHashlockPrivKey:   r.finalPriv,
		CounterpartySig:     finalReceiverSig,
	}
	if err := t.cfg.Store.PutIncoming(r.incomingH); err != nil {
		r.closeAll()
		return nil, fmt.Errorf("taker: persist final incoming swapcoin: %w", err)
	}

	r.outgoing0 = &swapcoin.Outgoing{
		Base: swapcoin.Base{
			MultisigRedeemScript: r.legs[0].redeemScript,
			FundingAmount:        r.legs[0].amount,
			FundingOutpoint:      wire.OutPoint{Hash: r.legs[0].fundingTx.TxHash(), Index: 0},
			ContractTx:           r.legs[0].contractTx,
			HTLCRedeemScript:     r.legs[0].htlcScript,
		},
		MyMultisigPrivKey:   r.firstPriv,
		TheirMultisigPubKey: receiverPubs[0],
		MyTimelockPrivKey:   r.firstPriv,
		CounterpartySig:     selfSigs[0],
	}
	if err := t.cfg.Store.PutOutgoing(r.outgoing0); err != nil {
		return nil, fmt.Errorf("taker: persist first outgoing swapcoin: %w", err)
	}

	for k := 1; k < H; k++ {
		w := &swapcoin.WatchOnly{
			Base: swapcoin.Base{
				MultisigRedeemScript: r.legs[k].redeemScript,
				FundingAmount:        r.legs[k].amount,
				FundingOutpoint:      wire.OutPoint{Hash: r.legs[k].fundingTx.TxHash(), Index: 0},
				ContractTx:           r.legs[k].contractTx,
				HTLCRedeemScript:     r.legs[k].htlcScript,
			},
			SenderPubKey:   r.legs[k].senderPub,
			ReceiverPubKey: r.legs[k].receiverPub,
		}
		if err := t.cfg.Store.PutWatchOnly(w); err != nil {
			log.Warnf("taker: persist watch-only record for leg %d: %v", k, err)
		}
	}

	return r, nil
}

// legLocktime implements spec.md §4.5 steps 4c/5a: later legs mature
// earlier, so every upstream party has reaction time before its own
// refund path opens.
func (t *Taker) legLocktime(k int) int64 {
	remaining := t.cfg.HopCount - k
	return RefundLocktime + RefundLocktimeStep*int64(remaining)
}

// selectReachableMakers dials HopCount untried candidates, keeping every
// connection open for reuse by the funding pipeline, and bans + retries
// any candidate that fails the handshake.
func (t *Taker) selectReachableMakers(ctx context.Context, amount int64, count int) ([]offerbook.MakerCandidate, []net.Conn, error) {
	candidates := make([]offerbook.MakerCandidate, 0, count)
	conns := make([]net.Conn, 0, count)

	for len(candidates) < count {
		cand, ok := t.cfg.OfferBook.UntriedFor(amount)
		if !ok {
			for _, c := range conns {
				c.Close()
			}
			return nil, nil, newErr(ErrNotEnoughMakers, "",
				"no untried candidate left, have %d of %d", len(candidates), count)
		}

		conn, err := t.dialer.connect(ctx, cand.Host)
		if err != nil {
			log.Warnf("taker: connect to %s failed: %v", cand.Host, err)
			t.cfg.OfferBook.MarkBad(cand.Host)
			continue
		}

		candidates = append(candidates, cand)
		conns = append(conns, conn)
	}

	return candidates, conns, nil
}

// buildLeg funds redeemScript's contract from the Taker's own wallet:
// every leg in this build, intermediate or not, draws on the Taker's
// liquidity directly rather than chaining a prior leg's still-timelocked
// output, per this orchestrator's documented funding-model simplification
// (see DESIGN.md's taker entry).
func (t *Taker) buildLeg(ctx context.Context, senderPub, receiverPub *btcec.PublicKey,
	amount, locktime int64, hashValue [contract.HashSize]byte) (*contractLeg, error) {

	redeemScript, err := contract.MultisigRedeemScript(receiverPub, senderPub)
	if err != nil {
		return nil, fmt.Errorf("build multisig redeem script: %w", err)
	}

	fundingTxs, err := t.cfg.Wallet.BuildFundingTxs(ctx, []FundingOutput{{RedeemScript: redeemScript, Amount: amount}})
	if err != nil {
		return nil, fmt.Errorf("build funding tx: %w", err)
	}
	if len(fundingTxs) != 1 {
		return nil, fmt.Errorf("wallet returned %d funding txs, expected 1", len(fundingTxs))
	}
	fundingTx := fundingTxs[0]

	fundingOutpoint := wire.OutPoint{Hash: fundingTx.TxHash(), Index: 0}
	contractTx, htlcScript, err := contract.BuildContractTx(
		fundingOutpoint, amount, receiverPub, senderPub, hashValue, locktime, contract.ContractFeeProduction)
	if err != nil {
		return nil, fmt.Errorf("build contract tx: %w", err)
	}

	return &contractLeg{
		senderPub:    senderPub,
		receiverPub:  receiverPub,
		amount:       amount,
		locktime:     locktime,
		redeemScript: redeemScript,
		htlcScript:   htlcScript,
		contractTx:   contractTx,
		fundingTx:    fundingTx,
	}, nil
}

// sendReqContractSigsForSender asks leg's hashlock-side Maker to countersign
// it (spec §4.3 ReqContractSigsForSender handler), verifying the reply
// against the pubkey the Taker itself derived for that Maker.
func (t *Taker) sendReqContractSigsForSender(conn net.Conn, leg *contractLeg, nonce [32]byte,
	hashValue [contract.HashSize]byte) ([]byte, error) {

	var buf bytes.Buffer
	if err := leg.contractTx.Serialize(&buf); err != nil {
		return nil, err
	}

	req := swapwire.ContractSigRequest{
		FundingAmount:      leg.amount,
		Nonce:              nonce,
		CounterpartyPubKey: leg.senderPub.SerializeCompressed(),
		ContractTx:         buf.Bytes(),
		HashValue:          hashValue,
		Locktime:           leg.locktime,
	}
	if err := t.dialer.writeMessage(conn, &swapwire.ReqContractSigsForSender{Requests: []swapwire.ContractSigRequest{req}}); err != nil {
		return nil, err
	}

	msg, err := t.dialer.readMessage(conn)
	if err != nil {
		return nil, err
	}
	resp, ok := msg.(*swapwire.RespContractSigsForSender)
	if !ok || len(resp.Sigs) != 1 {
		return nil, newErr(ErrMakerProtocol, "", "expected a single RespContractSigsForSender sig, got %T", msg)
	}

	if err := contract.VerifyMultisigSig(
		leg.contractTx, 0, leg.redeemScript, leg.amount, leg.receiverPub, resp.Sigs[0]); err != nil {
		return nil, newErr(ErrMakerProtocol, "", "bad contract sig: %v", err)
	}
	return resp.Sigs[0], nil
}

// sendRespProofOfFunding hands the Maker proof that leg's funding tx has
// matured, along with the next hop's hashlock pubkey, and returns the
// ContractSigRequest the Maker produced for that next hop (spec §4.3
// Proof-of-funding handler).
func (t *Taker) sendRespProofOfFunding(ctx context.Context, conn net.Conn, leg *contractLeg,
	nextReceiverPub *btcec.PublicKey) (swapwire.ContractSigRequest, error) {

	var fundingBuf bytes.Buffer
	if err := leg.fundingTx.Serialize(&fundingBuf); err != nil {
		return swapwire.ContractSigRequest{}, err
	}

	txid := leg.fundingTx.TxHash()
	merkleProof, err := t.cfg.Chain.TxOutProof(ctx, &txid)
	if err != nil {
		merkleProof = nil
	}

	proof := swapwire.FundingProof{
		FundingTx:   fundingBuf.Bytes(),
		MerkleProof: merkleProof,
		// ContractRedeemScript is the multisig redeem script, the key
		// every swapcoin store lookup in this protocol uses -- not the
		// HTLC script, despite the field name.
		ContractRedeemScript: leg.redeemScript,
		NextMultisigPubKey:   nextReceiverPub.SerializeCompressed(),
		NextHashlockPubKey:   nextReceiverPub.SerializeCompressed(),
	}
	if err := t.dialer.writeMessage(conn, &swapwire.RespProofOfFunding{
		Proofs:         []swapwire.FundingProof{proof},
		RefundLocktime: leg.locktime,
	}); err != nil {
		return swapwire.ContractSigRequest{}, err
	}

	msg, err := t.dialer.readMessage(conn)
	if err != nil {
		return swapwire.ContractSigRequest{}, err
	}
	resp, ok := msg.(*swapwire.ReqContractSigsAsRecvrAndSender)
	if !ok || len(resp.SenderRequests) != 1 {
		return swapwire.ContractSigRequest{}, newErr(ErrMakerProtocol, "",
			"expected a single next-hop sender request, got %T", msg)
	}
	return resp.SenderRequests[0], nil
}

// selfSign produces the Taker's own signature over one of the two legs it
// directly owns a key for (leg 0's timelock side, leg H's hashlock side),
// with no Maker round trip required.
func (t *Taker) selfSign(leg *contractLeg, priv *btcec.PrivateKey) ([]byte, error) {
	return contract.SignMultisigInput(leg.contractTx, 0, leg.redeemScript, leg.amount, priv)
}

// closeConnection finishes a Maker connection's handshake now that the
// next leg in the chain has been funded and signed: it hands back the
// counterparty signature over the Maker's own incoming contract (legIn)
// together with the next hop's own hashlock signature over legOut, then
// immediately asks the Maker to countersign legOut as its timelock side
// (spec §4.3's RespContractSigsForRecvrAndSender and ReqContractSigsForRecvr
// handlers, spec.md §4.5 step 5).
func (t *Taker) closeConnection(conn net.Conn, legOut *contractLeg,
	legOutReceiverSelfSig, legInReceiverSig []byte) ([]byte, error) {

	if err := t.dialer.writeMessage(conn, &swapwire.RespContractSigsForRecvrAndSender{
		ReceiverSigs: [][]byte{legInReceiverSig},
		SenderSigs:   [][]byte{legOutReceiverSelfSig},
	}); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := legOut.contractTx.Serialize(&buf); err != nil {
		return nil, err
	}
	if err := t.dialer.writeMessage(conn, &swapwire.ReqContractSigsForRecvr{
		Requests: []swapwire.ContractSigRequest{{
			FundingAmount: legOut.amount,
			ContractTx:    buf.Bytes(),
			Locktime:      legOut.locktime,
		}},
	}); err != nil {
		return nil, err
	}

	msg, err := t.dialer.readMessage(conn)
	if err != nil {
		return nil, err
	}
	resp, ok := msg.(*swapwire.RespContractSigsForRecvr)
	if !ok || len(resp.Sigs) != 1 {
		return nil, newErr(ErrMakerProtocol, "", "expected a single RespContractSigsForRecvr sig, got %T", msg)
	}

	if err := contract.VerifyMultisigSig(
		legOut.contractTx, 0, legOut.redeemScript, legOut.amount, legOut.senderPub, resp.Sigs[0]); err != nil {
		return nil, newErr(ErrMakerProtocol, "", "bad receiver-contract sig: %v", err)
	}
	return resp.Sigs[0], nil
}

// broadcastAndWait publishes a funding tx and blocks until it reaches
// RequiredConfirms, polling at PollInterval (spec.md §4.5 step 4f).
func (t *Taker) broadcastAndWait(ctx context.Context, tx *wire.MsgTx) error {
	if _, err := t.cfg.Chain.SendRawTransaction(ctx, tx); err != nil {
		return fmt.Errorf("broadcast funding tx: %w", err)
	}

	txid := tx.TxHash()
	for {
		conf, err := t.cfg.Chain.TxConfirmations(ctx, &txid)
		if err == nil && conf.Confirmations >= t.cfg.RequiredConfirms {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-pollTick(t.cfg.PollInterval):
		}
	}
}

// settle implements spec.md §4.5 step 7: reveal the preimage on every
// connection, collect each Maker's own incoming privkey, then hand each
// Maker the privkey it needs for its own outgoing contract -- which is
// exactly the privkey the *next* hop revealed, so this half of settlement
// runs back-to-front relative to funding: connection k's reply depends on
// connection k+1's reveal (or the Taker's own final key, for the last
// hop), never the other way around.
func (t *Taker) settle(ctx context.Context, r *route, preimage [contract.PreimageSize]byte) error {
	H := t.cfg.HopCount
	revealed := make([][]byte, H)

	for k := 0; k < H; k++ {
		leg := r.legs[k]
		if err := t.dialer.writeMessage(r.conns[k], &swapwire.RespHashPreimage{
			SenderRedeemScripts:   [][]byte{r.legs[k+1].redeemScript},
			ReceiverRedeemScripts: [][]byte{leg.redeemScript},
			Preimage:              preimage,
		}); err != nil {
			return err
		}

		msg, err := t.dialer.readMessage(r.conns[k])
		if err != nil {
			return err
		}
		handover, ok := msg.(*swapwire.MakerPrivKeyHandover)
		if !ok || len(handover.Entries) != 1 {
			return newErr(ErrMakerProtocol, r.candidates[k].Host,
				"expected a single MakerPrivKeyHandover entry, got %T", msg)
		}
		revealed[k] = handover.Entries[0].PrivKey
	}

	for k := 0; k < H; k++ {
		var nextPriv []byte
		if k == H-1 {
			nextPriv = r.finalPriv.Serialize()
		} else {
			nextPriv = revealed[k+1]
		}

		if err := t.dialer.writeMessage(r.conns[k], &swapwire.RespPrivKeyHandover{
			Entries: []swapwire.PrivKeyEntry{{
				MultisigRedeemScript: r.legs[k+1].redeemScript,
				PrivKey:              nextPriv,
			}},
		}); err != nil {
			return err
		}
	}

	r.incomingH.Preimage = &preimage
	if err := t.cfg.Store.PutIncoming(r.incomingH); err != nil {
		return fmt.Errorf("taker: persist settled incoming swapcoin: %w", err)
	}

	r.outgoing0.Preimage = &preimage
	if err := t.cfg.Store.PutOutgoing(r.outgoing0); err != nil {
		return fmt.Errorf("taker: persist settled outgoing swapcoin: %w", err)
	}

	return nil
}

// watchForContractBroadcast implements spec.md §4.5's Contract-broadcast
// watcher: poll the chain for every leg's contract txid and enter the
// Taker's own recovery routine the first time one appears.
func (t *Taker) watchForContractBroadcast(ctx context.Context, r *route) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pollTick(t.cfg.PollInterval):
		}

		for _, leg := range r.legs {
			if leg == nil || leg.contractTx == nil {
				continue
			}
			if t.contractOnChain(ctx, leg.contractTx) {
				return t.enterRecovery(ctx)
			}
		}
	}
}

func (t *Taker) contractOnChain(ctx context.Context, tx *wire.MsgTx) bool {
	txid := contract.TxID(tx)
	_, err := t.cfg.Chain.TxConfirmations(ctx, &txid)
	return err == nil
}

// enterRecovery runs the shared recovery subroutine against the Taker's
// own store, broadcasting its Outgoing contracts and sweeping them via the
// timelock branch once matured (same structure as maker's own recovery use,
// per spec.md §4.5's Contract-broadcast watcher note).
func (t *Taker) enterRecovery(ctx context.Context) error {
	log.Warnf("taker: contract tx observed on chain, entering recovery")

	sweepScript, err := t.cfg.Wallet.SweepAddress(ctx)
	if err != nil {
		return fmt.Errorf("taker: sweep address: %w", err)
	}

	rec := recovery.New(recovery.Config{
		Chain:        t.cfg.Chain,
		Store:        t.cfg.Store,
		SweepScript:  sweepScript,
		SweepFee:     t.cfg.SweepFee,
		PollInterval: t.cfg.PollInterval,
	})
	return rec.Run(ctx)
}
