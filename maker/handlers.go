package maker

import (
	"bytes"
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"
	"github.com/citadel-tech/coinswap-go/contract"
	"github.com/citadel-tech/coinswap-go/swapcoin"
	"github.com/citadel-tech/coinswap-go/swapwire"
)

// handleReqGiveOffer answers a ReqGiveOffer with this Maker's advertised
// terms (spec §4, Offer fields). The connection stays in
// StateNewlyConnectedTaker: a Taker may ask for the offer more than once
// before committing to a swap.
func (c *Conn) handleReqGiveOffer() error {
	offer := swapwire.Offer{
		TweakablePoint:          c.cfg.BasePrivKey.PubKey().SerializeCompressed(),
		MinSize:                 c.cfg.MinSize,
		MaxSize:                 c.cfg.MaxSize,
		BaseAbsoluteFee:         c.cfg.Fees.BaseAbsolute,
		RelativeAmountFeePPB:    c.cfg.Fees.RelativeAmountPPB,
		RelativeTimeFeePPB:      c.cfg.Fees.RelativeTimePPB,
		MinContractReactionTime: c.cfg.MinContractReactionTime,
		FundingTxVByteConstant:  contract.FundingTxVByteConstant,
		RequiredConfirms:        c.cfg.RequiredConfirms,
		FidelityBondProof:       c.cfg.FidelityBondProof,
	}
	return c.writeMessage(&swapwire.RespOffer{Offer: offer})
}

// signSenderContract validates one ContractSigRequest and signs it as the
// multisig counterparty, persisting the resulting Incoming swapcoin (spec
// §4.3 ReqContractSigsForSender handler).
func (c *Conn) signSenderContract(req swapwire.ContractSigRequest) ([]byte, error) {
	if req.FundingAmount < c.cfg.MinSize || req.FundingAmount > c.cfg.MaxSize {
		return nil, newErr(ErrFeeMismatch,
			"funding amount %d outside [%d, %d]", req.FundingAmount, c.cfg.MinSize, c.cfg.MaxSize)
	}
	if req.Locktime <= c.cfg.MinContractReactionTime {
		return nil, newErr(ErrFeeMismatch,
			"locktime %d does not exceed min contract reaction time %d",
			req.Locktime, c.cfg.MinContractReactionTime)
	}

	myPrivKey, err := contract.DeriveTweakedPrivKey(c.cfg.BasePrivKey, req.Nonce)
	if err != nil {
		return nil, fmt.Errorf("maker: derive tweaked privkey: %w", err)
	}
	myPubKey := myPrivKey.PubKey()

	counterpartyPubKey, err := btcec.ParsePubKey(req.CounterpartyPubKey)
	if err != nil {
		return nil, fmt.Errorf("maker: parse counterparty pubkey: %w", err)
	}

	var contractTx wire.MsgTx
	if err := contractTx.Deserialize(bytes.NewReader(req.ContractTx)); err != nil {
		return nil, fmt.Errorf("maker: decode contract tx: %w", err)
	}
	if len(contractTx.TxIn) != 1 || len(contractTx.TxOut) != 1 {
		return nil, newErr(ErrFeeMismatch, "contract tx must have exactly one input and one output")
	}

	// This Maker is the receiver on this hop: it holds the hashlock
	// branch, the counterparty (the funder) holds the timelock/refund
	// branch.
	htlcScript, err := contract.HTLCRedeemScript(
		myPubKey, counterpartyPubKey, req.HashValue, req.Locktime)
	if err != nil {
		return nil, fmt.Errorf("maker: build HTLC script: %w", err)
	}
	expectedPkScript, err := contract.P2WSH(htlcScript)
	if err != nil {
		return nil, fmt.Errorf("maker: build HTLC P2WSH: %w", err)
	}
	if !bytes.Equal(contractTx.TxOut[0].PkScript, expectedPkScript) {
		return nil, newErr(ErrFeeMismatch, "contract tx output does not match the claimed HTLC parameters")
	}

	fundingOutpoint := contractTx.TxIn[0].PreviousOutPoint
	if err := c.store.BindPrevoutToContract(outpointKey(fundingOutpoint), htlcScript); err != nil {
		return nil, fmt.Errorf("maker: bind prevout: %w", err)
	}

	fundingRedeemScript, err := contract.MultisigRedeemScript(myPubKey, counterpartyPubKey)
	if err != nil {
		return nil, fmt.Errorf("maker: build funding redeem script: %w", err)
	}
	sig, err := contract.SignMultisigInput(&contractTx, 0, fundingRedeemScript, req.FundingAmount, myPrivKey)
	if err != nil {
		return nil, fmt.Errorf("maker: sign contract tx: %w", err)
	}

	coin := &swapcoin.Incoming{
		Base: swapcoin.Base{
			MultisigRedeemScript: fundingRedeemScript,
			FundingAmount:        req.FundingAmount,
			FundingOutpoint:      fundingOutpoint,
			ContractTx:           &contractTx,
			HTLCRedeemScript:     htlcScript,
		},
		MyMultisigPrivKey:   myPrivKey,
		TheirMultisigPubKey: counterpartyPubKey,
		MyHashlockPrivKey:   myPrivKey,
	}
	c.rememberIncoming(coin)
	if err := c.store.PutIncoming(coin); err != nil {
		return nil, fmt.Errorf("maker: persist incoming swapcoin: %w", err)
	}

	return sig, nil
}

// handleReqContractSigsForSender implements spec §4.3's ReqContractSigsForSender
// handler: sign every proposed sender-side contract tx and reply in the
// same order, then wait for the Taker's proof of funding.
func (c *Conn) handleReqContractSigsForSender(msg *swapwire.ReqContractSigsForSender) error {
	sigs := make([][]byte, len(msg.Requests))
	for i, req := range msg.Requests {
		sig, err := c.signSenderContract(req)
		if err != nil {
			return err
		}
		sigs[i] = sig
	}

	if err := c.writeMessage(&swapwire.RespContractSigsForSender{Sigs: sigs}); err != nil {
		return err
	}

	c.mu.Lock()
	c.state = StateProofOfFunding
	c.mu.Unlock()
	return nil
}

// handleRespProofOfFunding implements spec §4.3's Proof-of-funding handler:
// validate each claimed prior-hop funding output has matured to the
// required confirmation depth, then ask the next hop's Maker to cosign
// this Maker's own sender-side contract while handing the Taker this
// Maker's own receiver-side contract txs to countersign.
func (c *Conn) handleRespProofOfFunding(ctx context.Context, msg *swapwire.RespProofOfFunding) error {
	receiverTxs := make([][]byte, 0, len(msg.Proofs))
	senderRequests := make([]swapwire.ContractSigRequest, 0, len(msg.Proofs))

	var batchHashValue *[contract.HashSize]byte

	for _, proof := range msg.Proofs {
		var fundingTx wire.MsgTx
		if err := fundingTx.Deserialize(bytes.NewReader(proof.FundingTx)); err != nil {
			return fmt.Errorf("maker: decode funding tx: %w", err)
		}
		txid := fundingTx.TxHash()

		confs, err := c.chain.TxConfirmations(ctx, &txid)
		if err != nil {
			return fmt.Errorf("maker: funding tx %s not found: %w", txid, err)
		}
		if confs.Confirmations < c.cfg.RequiredConfirms {
			return newErr(ErrFeeMismatch,
				"funding tx %s has %d confirmations, need %d",
				txid, confs.Confirmations, c.cfg.RequiredConfirms)
		}

		incoming, err := c.store.GetIncoming(proof.ContractRedeemScript)
		if err != nil {
			return newErr(ErrUnknownSwapcoin, "no incoming swapcoin for redeem script in funding proof: %v", err)
		}

		// The funding tx must actually pay into the multisig this
		// hop's contract spends from; the confirmation check above
		// only proves the tx exists on chain, not that it funds the
		// output it claims to.
		if err := validateFundingPaysMultisig(&fundingTx, incoming); err != nil {
			return err
		}

		receiverTxs = append(receiverTxs, encodeTx(incoming.ContractTx))

		incomingHTLC, err := contract.ParseHTLCScript(incoming.HTLCRedeemScript)
		if err != nil {
			return fmt.Errorf("maker: parse incoming HTLC script: %w", err)
		}

		if batchHashValue == nil {
			hv := incomingHTLC.HashValue
			batchHashValue = &hv
		} else if *batchHashValue != incomingHTLC.HashValue {
			return newErr(ErrContractMismatch,
				"hashvalue %x disagrees with earlier proof's %x in the same batch",
				incomingHTLC.HashValue, *batchHashValue)
		}

		nextPubKey, err := btcec.ParsePubKey(proof.NextMultisigPubKey)
		if err != nil {
			return fmt.Errorf("maker: parse next-hop multisig pubkey: %w", err)
		}
		nextHashlockPubKey, err := btcec.ParsePubKey(proof.NextHashlockPubKey)
		if err != nil {
			return fmt.Errorf("maker: parse next-hop hashlock pubkey: %w", err)
		}

		nonce, err := contract.NewNonce()
		if err != nil {
			return fmt.Errorf("maker: generate nonce: %w", err)
		}
		myPrivKey, err := contract.DeriveTweakedPrivKey(c.cfg.BasePrivKey, nonce)
		if err != nil {
			return fmt.Errorf("maker: derive tweaked privkey: %w", err)
		}

		timeSeconds := c.cfg.MinContractReactionTime
		fee := c.cfg.Fees.CoinswapFee(incoming.FundingAmount, timeSeconds)
		nextAmount := incoming.FundingAmount - fee
		nextLocktime := msg.RefundLocktime - c.cfg.MinContractReactionTime

		// Invariant 4 (spec §4.3/§8): the incoming hop's locktime must
		// exceed the next hop's by at least MinContractReactionTime,
		// so this Maker has room to react on the incoming branch
		// before the outgoing one can be reclaimed out from under it
		// (scenario S5, "next hop locktime too close").
		if incomingHTLC.Locktime-nextLocktime < c.cfg.MinContractReactionTime {
			return newErr(ErrContractMismatch,
				"next hop locktime too close: incoming locktime %d, next locktime %d, need gap >= %d",
				incomingHTLC.Locktime, nextLocktime, c.cfg.MinContractReactionTime)
		}

		// This Maker is the sender/timelock side of its own outgoing
		// contract; the next hop's receiver holds the hashlock branch.
		// The redeem scripts are already fully determined at this point
		// even though the contract tx itself isn't built until the Taker
		// funds it, so compute and store them now rather than leaving
		// handleReqContractSigsForRecvr to sign against a nil script.
		outgoingRedeemScript, err := contract.MultisigRedeemScript(myPrivKey.PubKey(), nextPubKey)
		if err != nil {
			return fmt.Errorf("maker: build outgoing redeem script: %w", err)
		}
		outgoingHTLCScript, err := contract.HTLCRedeemScript(
			nextHashlockPubKey, myPrivKey.PubKey(), incomingHTLC.HashValue, nextLocktime)
		if err != nil {
			return fmt.Errorf("maker: build outgoing HTLC script: %w", err)
		}

		senderRequests = append(senderRequests, swapwire.ContractSigRequest{
			FundingAmount: nextAmount,
			Nonce:         nonce,
			// CounterpartyPubKey carries this Maker's own freshly
			// derived pubkey here: the next hop's Maker needs it to
			// build the redeem script it will countersign.
			CounterpartyPubKey: myPrivKey.PubKey().SerializeCompressed(),
			// ContractTx is left for the Taker to fill in once it has
			// built and funded this hop's multisig output; wallet UTXO
			// selection and funding-tx construction live in the Taker
			// orchestrator, not here.
			ContractTx: nil,
			HashValue:  incomingHTLC.HashValue,
			Locktime:   nextLocktime,
		})

		outgoing := &swapcoin.Outgoing{
			Base: swapcoin.Base{
				MultisigRedeemScript: outgoingRedeemScript,
				FundingAmount:        nextAmount,
				HTLCRedeemScript:     outgoingHTLCScript,
			},
			MyMultisigPrivKey:   myPrivKey,
			TheirMultisigPubKey: nextPubKey,
			MyTimelockPrivKey:   myPrivKey,
		}
		c.rememberOutgoing(outgoing)
		if err := c.store.PutOutgoing(outgoing); err != nil {
			return fmt.Errorf("maker: persist outgoing swapcoin: %w", err)
		}
	}

	if err := c.writeMessage(&swapwire.ReqContractSigsAsRecvrAndSender{
		ReceiverContractTxs: receiverTxs,
		SenderRequests:      senderRequests,
	}); err != nil {
		return err
	}

	c.mu.Lock()
	c.state = StateProofOfFundingOrContractSigsForRecvrAndSender
	c.mu.Unlock()
	return nil
}

func encodeTx(tx *wire.MsgTx) []byte {
	var buf bytes.Buffer
	_ = tx.Serialize(&buf)
	return buf.Bytes()
}

// validateFundingPaysMultisig checks that fundingTx actually creates the
// output incoming's contract tx spends from: the right txid/vout, the
// correct P2WSH(MultisigRedeemScript) pkScript, and the amount this Maker
// already signed the contract tx against (spec §4.3 Proof-of-funding
// handler: "validate that it pays to the correct multisig").
func validateFundingPaysMultisig(fundingTx *wire.MsgTx, incoming *swapcoin.Incoming) error {
	op := incoming.FundingOutpoint
	if fundingTx.TxHash() != op.Hash {
		return newErr(ErrContractMismatch,
			"funding tx txid %s does not match the bound funding outpoint %s", fundingTx.TxHash(), op.Hash)
	}
	if int(op.Index) >= len(fundingTx.TxOut) {
		return newErr(ErrContractMismatch,
			"funding outpoint index %d out of range for funding tx with %d outputs", op.Index, len(fundingTx.TxOut))
	}

	out := fundingTx.TxOut[op.Index]
	expectedScript, err := contract.P2WSH(incoming.MultisigRedeemScript)
	if err != nil {
		return fmt.Errorf("maker: build expected multisig P2WSH: %w", err)
	}
	if !bytes.Equal(out.PkScript, expectedScript) {
		return newErr(ErrContractMismatch, "funding tx output does not pay the expected multisig script")
	}
	if out.Value != incoming.FundingAmount {
		return newErr(ErrContractMismatch,
			"funding tx output value %d does not match the signed funding amount %d", out.Value, incoming.FundingAmount)
	}
	return nil
}

// handleRespContractSigsForRecvrAndSender implements spec §4.5 step 5f-g:
// attach the Taker-relayed counterparty signatures to this connection's
// Incoming and Outgoing swapcoins (in the order they were first recorded),
// then broadcast any outgoing funding transactions the Taker has queued.
func (c *Conn) handleRespContractSigsForRecvrAndSender(
	ctx context.Context, msg *swapwire.RespContractSigsForRecvrAndSender) error {

	c.mu.Lock()
	incomingList := c.orderedIncoming()
	outgoingList := c.orderedOutgoing()
	c.mu.Unlock()

	if len(msg.ReceiverSigs) != len(incomingList) {
		return newErr(ErrHandoverMismatch,
			"got %d receiver sigs, expected %d", len(msg.ReceiverSigs), len(incomingList))
	}
	if len(msg.SenderSigs) != len(outgoingList) {
		return newErr(ErrHandoverMismatch,
			"got %d sender sigs, expected %d", len(msg.SenderSigs), len(outgoingList))
	}

	for i, coin := range incomingList {
		if err := contract.VerifyMultisigSig(
			coin.ContractTx, 0, coin.MultisigRedeemScript, coin.FundingAmount,
			coin.TheirMultisigPubKey, msg.ReceiverSigs[i]); err != nil {
			return fmt.Errorf("maker: verify receiver sig for incoming swapcoin: %w", err)
		}
		coin.CounterpartySig = msg.ReceiverSigs[i]
		if err := c.store.PutIncoming(coin); err != nil {
			return fmt.Errorf("maker: persist incoming swapcoin: %w", err)
		}
	}

	for i, coin := range outgoingList {
		if coin.ContractTx == nil {
			continue
		}
		if err := contract.VerifyMultisigSig(
			coin.ContractTx, 0, coin.MultisigRedeemScript, coin.FundingAmount,
			coin.TheirMultisigPubKey, msg.SenderSigs[i]); err != nil {
			return fmt.Errorf("maker: verify sender sig for outgoing swapcoin: %w", err)
		}
		coin.CounterpartySig = msg.SenderSigs[i]
		if err := c.store.PutOutgoing(coin); err != nil {
			return fmt.Errorf("maker: persist outgoing swapcoin: %w", err)
		}
	}

	c.mu.Lock()
	pending := c.pendingFunding
	c.pendingFunding = nil
	c.mu.Unlock()

	for _, tx := range pending {
		if _, err := c.chain.SendRawTransaction(ctx, tx); err != nil {
			return fmt.Errorf("maker: broadcast funding tx: %w", err)
		}
	}

	c.mu.Lock()
	c.state = StateReqContractSigsForRecvr
	c.mu.Unlock()
	return nil
}

// handleReqContractSigsForRecvr implements spec §4.3's receiver-sigs
// handler: this Maker now co-signs the next-hop contract tx as the
// receiver-side multisig counterparty (the mirror of
// handleReqContractSigsForSender, using the outgoing swapcoins already
// recorded).
func (c *Conn) handleReqContractSigsForRecvr(msg *swapwire.ReqContractSigsForRecvr) error {
	c.mu.Lock()
	outgoingList := c.orderedOutgoing()
	c.mu.Unlock()

	if len(msg.Requests) != len(outgoingList) {
		return newErr(ErrUnknownSwapcoin,
			"got %d contract sig requests, expected %d", len(msg.Requests), len(outgoingList))
	}

	sigs := make([][]byte, len(msg.Requests))
	for i, req := range msg.Requests {
		coin := outgoingList[i]

		var contractTx wire.MsgTx
		if err := contractTx.Deserialize(bytes.NewReader(req.ContractTx)); err != nil {
			return fmt.Errorf("maker: decode contract tx: %w", err)
		}

		sig, err := contract.SignMultisigInput(
			&contractTx, 0, coin.MultisigRedeemScript, coin.FundingAmount, coin.MyMultisigPrivKey)
		if err != nil {
			return fmt.Errorf("maker: sign receiver contract: %w", err)
		}
		coin.ContractTx = &contractTx
		if err := c.store.PutOutgoing(coin); err != nil {
			return fmt.Errorf("maker: persist outgoing swapcoin: %w", err)
		}
		sigs[i] = sig
	}

	if err := c.writeMessage(&swapwire.RespContractSigsForRecvr{Sigs: sigs}); err != nil {
		return err
	}

	c.mu.Lock()
	c.state = StateHashPreimage
	c.mu.Unlock()
	return nil
}

// handleRespHashPreimage implements spec §4.3's Hash-preimage handler: once
// the preimage is known every hashlock branch this Maker holds is
// immediately spendable, so it hands its receiver-side multisig privkeys
// back to the Taker for cooperative settlement (spec §4.5 step 7).
func (c *Conn) handleRespHashPreimage(msg *swapwire.RespHashPreimage) error {
	c.mu.Lock()
	incomingList := c.orderedIncoming()
	c.mu.Unlock()

	entries := make([]swapwire.PrivKeyEntry, 0, len(incomingList))
	for _, coin := range incomingList {
		if !swapcoinMatchesAny(coin.MultisigRedeemScript, msg.ReceiverRedeemScripts) {
			continue
		}
		coin.Preimage = &msg.Preimage
		if err := c.store.PutIncoming(coin); err != nil {
			return fmt.Errorf("maker: persist incoming swapcoin: %w", err)
		}
		entries = append(entries, swapwire.PrivKeyEntry{
			MultisigRedeemScript: coin.MultisigRedeemScript,
			PrivKey:              coin.MyMultisigPrivKey.Serialize(),
		})
	}

	if err := c.writeMessage(&swapwire.MakerPrivKeyHandover{Entries: entries}); err != nil {
		return err
	}

	c.mu.Lock()
	c.state = StatePrivateKeyHandover
	c.mu.Unlock()
	return nil
}

func swapcoinMatchesAny(script []byte, candidates [][]byte) bool {
	for _, candidate := range candidates {
		if bytes.Equal(script, candidate) {
			return true
		}
	}
	return false
}

// handleRespPrivKeyHandover implements spec §4.3's inbound Privkey-handover:
// the Taker hands this Maker the multisig privkey for each outgoing
// (sender-side) swapcoin, letting this Maker immediately claim its next
// hop's funds cooperatively rather than waiting on the hashlock branch.
// This is the connection's final message; it always closes afterward.
func (c *Conn) handleRespPrivKeyHandover(msg *swapwire.RespPrivKeyHandover) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, entry := range msg.Entries {
		coin, ok := c.outgoing[redeemScriptKey(entry.MultisigRedeemScript)]
		if !ok {
			return newErr(ErrUnknownSwapcoin, "handover for unknown redeem script")
		}

		privKey, _ := btcec.PrivKeyFromBytes(entry.PrivKey)
		if !bytes.Equal(privKey.PubKey().SerializeCompressed(), coin.TheirMultisigPubKey.SerializeCompressed()) {
			return newErr(ErrHandoverMismatch, "handed-over privkey does not match counterparty pubkey on file")
		}

		if err := c.store.PutOutgoing(coin); err != nil {
			return fmt.Errorf("maker: persist outgoing swapcoin: %w", err)
		}
	}

	c.state = StateClosed
	return nil
}
