package swapwire

import "io"

// TakerHello is the first message the Taker sends after accepting a
// Maker's MakerHello, advertising its own supported protocol-version
// range. If the ranges don't overlap, the Maker closes the connection
// (spec §4.2 Handshake).
type TakerHello struct {
	MinVersion uint32
	MaxVersion uint32
}

func (m *TakerHello) MsgType() MessageType { return MsgTakerHello }

func (m *TakerHello) Encode(w io.Writer) error {
	if err := writeUint32(w, m.MinVersion); err != nil {
		return err
	}
	return writeUint32(w, m.MaxVersion)
}

func (m *TakerHello) Decode(r io.Reader) error {
	var err error
	if m.MinVersion, err = readUint32(r); err != nil {
		return err
	}
	m.MaxVersion, err = readUint32(r)
	return err
}

// MakerHello is the first message a Maker sends immediately after
// accepting an incoming connection, advertising its protocol-version
// range (spec §4.2).
type MakerHello struct {
	MinVersion uint32
	MaxVersion uint32
}

func (m *MakerHello) MsgType() MessageType { return MsgMakerHello }

func (m *MakerHello) Encode(w io.Writer) error {
	if err := writeUint32(w, m.MinVersion); err != nil {
		return err
	}
	return writeUint32(w, m.MaxVersion)
}

func (m *MakerHello) Decode(r io.Reader) error {
	var err error
	if m.MinVersion, err = readUint32(r); err != nil {
		return err
	}
	m.MaxVersion, err = readUint32(r)
	return err
}

// VersionRangesOverlap reports whether a Taker's and a Maker's advertised
// protocol-version ranges share at least one version (spec §4.2).
func VersionRangesOverlap(takerMin, takerMax, makerMin, makerMax uint32) bool {
	return takerMin <= makerMax && makerMin <= takerMax
}

// ReqGiveOffer asks a Maker to describe its offer: size bounds, fee
// schedule, and fidelity bond proof.
type ReqGiveOffer struct{}

func (m *ReqGiveOffer) MsgType() MessageType { return MsgReqGiveOffer }
func (m *ReqGiveOffer) Encode(w io.Writer) error { return nil }
func (m *ReqGiveOffer) Decode(r io.Reader) error { return nil }

// Offer is the Maker's advertised terms (spec §4, Supplemented Features:
// Maker offer advertisement fields, grounded on
// original_source/src/wallet/fidelity.rs + src/protocol/messages.rs).
type Offer struct {
	TweakablePoint          []byte
	MinSize                 int64
	MaxSize                 int64
	BaseAbsoluteFee         int64
	RelativeAmountFeePPB    int64
	RelativeTimeFeePPB      int64
	MinContractReactionTime int64
	FundingTxVByteConstant  int64
	RequiredConfirms        int64
	FidelityBondProof       []byte
}

func (o *Offer) encode(w io.Writer) error {
	if err := writeBytesVec(w, o.TweakablePoint); err != nil {
		return err
	}
	for _, v := range []int64{
		o.MinSize, o.MaxSize, o.BaseAbsoluteFee, o.RelativeAmountFeePPB,
		o.RelativeTimeFeePPB, o.MinContractReactionTime,
		o.FundingTxVByteConstant, o.RequiredConfirms,
	} {
		if err := writeInt64(w, v); err != nil {
			return err
		}
	}
	return writeBytesVec(w, o.FidelityBondProof)
}

func (o *Offer) decode(r io.Reader) error {
	var err error
	if o.TweakablePoint, err = readBytesVec(r); err != nil {
		return err
	}
	fields := []*int64{
		&o.MinSize, &o.MaxSize, &o.BaseAbsoluteFee, &o.RelativeAmountFeePPB,
		&o.RelativeTimeFeePPB, &o.MinContractReactionTime,
		&o.FundingTxVByteConstant, &o.RequiredConfirms,
	}
	for _, f := range fields {
		if *f, err = readInt64(r); err != nil {
			return err
		}
	}
	o.FidelityBondProof, err = readBytesVec(r)
	return err
}

// RespOffer carries a Maker's Offer in response to ReqGiveOffer.
type RespOffer struct {
	Offer Offer
}

func (m *RespOffer) MsgType() MessageType  { return MsgRespOffer }
func (m *RespOffer) Encode(w io.Writer) error { return m.Offer.encode(w) }
func (m *RespOffer) Decode(r io.Reader) error { return m.Offer.decode(r) }

// ContractSigRequest is one entry in a batch of sender or receiver
// contract-signature requests: the funding amount, the Maker's nonce (used
// to derive its per-swap tweaked pubkey), the counterparty's multisig
// pubkey, the unsigned contract tx, and the HTLC parameters the Maker must
// cross-check before signing (spec §4.3 ReqContractSigsForSender handler).
type ContractSigRequest struct {
	FundingAmount       int64
	Nonce               [32]byte
	CounterpartyPubKey  []byte
	ContractTx          []byte
	HashValue           [20]byte
	Locktime            int64
}

func writeContractSigRequest(w io.Writer, req ContractSigRequest) error {
	if err := writeInt64(w, req.FundingAmount); err != nil {
		return err
	}
	if err := writeFixed32(w, req.Nonce); err != nil {
		return err
	}
	if err := writeBytesVec(w, req.CounterpartyPubKey); err != nil {
		return err
	}
	if err := writeBytesVec(w, req.ContractTx); err != nil {
		return err
	}
	if err := writeFixed20(w, req.HashValue); err != nil {
		return err
	}
	return writeInt64(w, req.Locktime)
}

func readContractSigRequest(r io.Reader) (ContractSigRequest, error) {
	var req ContractSigRequest
	var err error
	if req.FundingAmount, err = readInt64(r); err != nil {
		return req, err
	}
	if req.Nonce, err = readFixed32(r); err != nil {
		return req, err
	}
	if req.CounterpartyPubKey, err = readBytesVec(r); err != nil {
		return req, err
	}
	if req.ContractTx, err = readBytesVec(r); err != nil {
		return req, err
	}
	if req.HashValue, err = readFixed20(r); err != nil {
		return req, err
	}
	req.Locktime, err = readInt64(r)
	return req, err
}

func writeContractSigRequests(w io.Writer, reqs []ContractSigRequest) error {
	if err := writeUint32(w, uint32(len(reqs))); err != nil {
		return err
	}
	for _, req := range reqs {
		if err := writeContractSigRequest(w, req); err != nil {
			return err
		}
	}
	return nil
}

func readContractSigRequests(r io.Reader) ([]ContractSigRequest, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	reqs := make([]ContractSigRequest, n)
	for i := range reqs {
		if reqs[i], err = readContractSigRequest(r); err != nil {
			return nil, err
		}
	}
	return reqs, nil
}

// ReqContractSigsForSender asks a Maker to sign, as the multisig
// counterparty, each of the Taker's proposed sender-side contract
// transactions.
type ReqContractSigsForSender struct {
	Requests []ContractSigRequest
}

func (m *ReqContractSigsForSender) MsgType() MessageType { return MsgReqContractSigsForSender }
func (m *ReqContractSigsForSender) Encode(w io.Writer) error {
	return writeContractSigRequests(w, m.Requests)
}
func (m *ReqContractSigsForSender) Decode(r io.Reader) error {
	var err error
	m.Requests, err = readContractSigRequests(r)
	return err
}

// RespContractSigsForSender carries the Maker's signatures in the same
// order as the request.
type RespContractSigsForSender struct {
	Sigs [][]byte
}

func (m *RespContractSigsForSender) MsgType() MessageType { return MsgRespContractSigsForSender }
func (m *RespContractSigsForSender) Encode(w io.Writer) error {
	return writeBytesVecSlice(w, m.Sigs)
}
func (m *RespContractSigsForSender) Decode(r io.Reader) error {
	var err error
	m.Sigs, err = readBytesVecSlice(r)
	return err
}

// FundingProof is one claimed prior-hop funding transaction plus the
// merkle proof and contract metadata a Maker must validate before
// trusting it (spec §4.3 Proof-of-funding handler).
type FundingProof struct {
	FundingTx             []byte
	MerkleProof           []byte
	MultisigNonce         [32]byte
	ContractRedeemScript  []byte
	NextMultisigPubKey    []byte
	NextHashlockPubKey    []byte
}

func writeFundingProof(w io.Writer, p FundingProof) error {
	if err := writeBytesVec(w, p.FundingTx); err != nil {
		return err
	}
	if err := writeBytesVec(w, p.MerkleProof); err != nil {
		return err
	}
	if err := writeFixed32(w, p.MultisigNonce); err != nil {
		return err
	}
	if err := writeBytesVec(w, p.ContractRedeemScript); err != nil {
		return err
	}
	if err := writeBytesVec(w, p.NextMultisigPubKey); err != nil {
		return err
	}
	return writeBytesVec(w, p.NextHashlockPubKey)
}

func readFundingProof(r io.Reader) (FundingProof, error) {
	var p FundingProof
	var err error
	if p.FundingTx, err = readBytesVec(r); err != nil {
		return p, err
	}
	if p.MerkleProof, err = readBytesVec(r); err != nil {
		return p, err
	}
	if p.MultisigNonce, err = readFixed32(r); err != nil {
		return p, err
	}
	if p.ContractRedeemScript, err = readBytesVec(r); err != nil {
		return p, err
	}
	if p.NextMultisigPubKey, err = readBytesVec(r); err != nil {
		return p, err
	}
	p.NextHashlockPubKey, err = readBytesVec(r)
	return p, err
}

// RespProofOfFunding carries the prior hop's funding proofs plus the
// refund locktime this-Maker must use for the next hop (spec §4.5 step 5b).
type RespProofOfFunding struct {
	Proofs         []FundingProof
	RefundLocktime int64
}

func (m *RespProofOfFunding) MsgType() MessageType { return MsgRespProofOfFunding }
func (m *RespProofOfFunding) Encode(w io.Writer) error {
	if err := writeUint32(w, uint32(len(m.Proofs))); err != nil {
		return err
	}
	for _, p := range m.Proofs {
		if err := writeFundingProof(w, p); err != nil {
			return err
		}
	}
	return writeInt64(w, m.RefundLocktime)
}
func (m *RespProofOfFunding) Decode(r io.Reader) error {
	n, err := readUint32(r)
	if err != nil {
		return err
	}
	m.Proofs = make([]FundingProof, n)
	for i := range m.Proofs {
		if m.Proofs[i], err = readFundingProof(r); err != nil {
			return err
		}
	}
	m.RefundLocktime, err = readInt64(r)
	return err
}

// ReqContractSigsAsRecvrAndSender carries, in one message, the receiver's
// contract txs (Maker as receiver on the incoming side) and the sender
// contract-sig requests for the outgoing side (spec §4.3 Proof-of-funding
// handler reply).
type ReqContractSigsAsRecvrAndSender struct {
	ReceiverContractTxs []([]byte)
	SenderRequests      []ContractSigRequest
}

func (m *ReqContractSigsAsRecvrAndSender) MsgType() MessageType {
	return MsgReqContractSigsAsRecvrAndSender
}
func (m *ReqContractSigsAsRecvrAndSender) Encode(w io.Writer) error {
	if err := writeBytesVecSlice(w, m.ReceiverContractTxs); err != nil {
		return err
	}
	return writeContractSigRequests(w, m.SenderRequests)
}
func (m *ReqContractSigsAsRecvrAndSender) Decode(r io.Reader) error {
	var err error
	if m.ReceiverContractTxs, err = readBytesVecSlice(r); err != nil {
		return err
	}
	m.SenderRequests, err = readContractSigRequests(r)
	return err
}

// RespContractSigsForRecvrAndSender batches receiver-side and sender-side
// signatures together, the reply a Taker sends this-Maker after collecting
// both from the adjacent hops (spec §4.5 step 5f-g).
type RespContractSigsForRecvrAndSender struct {
	ReceiverSigs [][]byte
	SenderSigs   [][]byte
}

func (m *RespContractSigsForRecvrAndSender) MsgType() MessageType {
	return MsgRespContractSigsForRecvrAndSender
}
func (m *RespContractSigsForRecvrAndSender) Encode(w io.Writer) error {
	if err := writeBytesVecSlice(w, m.ReceiverSigs); err != nil {
		return err
	}
	return writeBytesVecSlice(w, m.SenderSigs)
}
func (m *RespContractSigsForRecvrAndSender) Decode(r io.Reader) error {
	var err error
	if m.ReceiverSigs, err = readBytesVecSlice(r); err != nil {
		return err
	}
	m.SenderSigs, err = readBytesVecSlice(r)
	return err
}

// ReqContractSigsForRecvr asks a Maker to sign, as receiver-side multisig
// counterparty, each of the listed contract transactions.
type ReqContractSigsForRecvr struct {
	Requests []ContractSigRequest
}

func (m *ReqContractSigsForRecvr) MsgType() MessageType { return MsgReqContractSigsForRecvr }
func (m *ReqContractSigsForRecvr) Encode(w io.Writer) error {
	return writeContractSigRequests(w, m.Requests)
}
func (m *ReqContractSigsForRecvr) Decode(r io.Reader) error {
	var err error
	m.Requests, err = readContractSigRequests(r)
	return err
}

// RespContractSigsForRecvr carries the Maker's receiver-side signatures.
type RespContractSigsForRecvr struct {
	Sigs [][]byte
}

func (m *RespContractSigsForRecvr) MsgType() MessageType { return MsgRespContractSigsForRecvr }
func (m *RespContractSigsForRecvr) Encode(w io.Writer) error {
	return writeBytesVecSlice(w, m.Sigs)
}
func (m *RespContractSigsForRecvr) Decode(r io.Reader) error {
	var err error
	m.Sigs, err = readBytesVecSlice(r)
	return err
}

// RespHashPreimage reveals the shared preimage to a Maker along with the
// multisig redeem scripts of the swapcoins it settles, on both that
// Maker's sender and receiver sides (spec §4.5 step 7).
type RespHashPreimage struct {
	SenderRedeemScripts   [][]byte
	ReceiverRedeemScripts [][]byte
	Preimage              [32]byte
}

func (m *RespHashPreimage) MsgType() MessageType { return MsgRespHashPreimage }
func (m *RespHashPreimage) Encode(w io.Writer) error {
	if err := writeBytesVecSlice(w, m.SenderRedeemScripts); err != nil {
		return err
	}
	if err := writeBytesVecSlice(w, m.ReceiverRedeemScripts); err != nil {
		return err
	}
	return writeFixed32(w, m.Preimage)
}
func (m *RespHashPreimage) Decode(r io.Reader) error {
	var err error
	if m.SenderRedeemScripts, err = readBytesVecSlice(r); err != nil {
		return err
	}
	if m.ReceiverRedeemScripts, err = readBytesVecSlice(r); err != nil {
		return err
	}
	m.Preimage, err = readFixed32(r)
	return err
}

// PrivKeyEntry pairs one multisig redeem script with the privkey being
// handed over for the output it guards.
type PrivKeyEntry struct {
	MultisigRedeemScript []byte
	PrivKey              []byte
}

func writePrivKeyEntries(w io.Writer, entries []PrivKeyEntry) error {
	if err := writeUint32(w, uint32(len(entries))); err != nil {
		return err
	}
	for _, e := range entries {
		if err := writeBytesVec(w, e.MultisigRedeemScript); err != nil {
			return err
		}
		if err := writeBytesVec(w, e.PrivKey); err != nil {
			return err
		}
	}
	return nil
}

func readPrivKeyEntries(r io.Reader) ([]PrivKeyEntry, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	entries := make([]PrivKeyEntry, n)
	for i := range entries {
		if entries[i].MultisigRedeemScript, err = readBytesVec(r); err != nil {
			return nil, err
		}
		if entries[i].PrivKey, err = readBytesVec(r); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// RespPrivKeyHandover is the Taker->Maker privkey handover: the Taker
// hands the Maker the multisig privkey for its sender-side output, or for
// its own first hop, its own privkey (spec §4.5 step 7, §4.3 Privkey-
// handover inbound).
type RespPrivKeyHandover struct {
	Entries []PrivKeyEntry
}

func (m *RespPrivKeyHandover) MsgType() MessageType { return MsgRespPrivKeyHandover }
func (m *RespPrivKeyHandover) Encode(w io.Writer) error { return writePrivKeyEntries(w, m.Entries) }
func (m *RespPrivKeyHandover) Decode(r io.Reader) error {
	var err error
	m.Entries, err = readPrivKeyEntries(r)
	return err
}

// MakerPrivKeyHandover is the Maker->Taker counterpart: the Maker hands
// over the multisig privkey for its receiver-side output once it has
// learned the preimage (spec §4.3 Hash-preimage handler).
type MakerPrivKeyHandover struct {
	Entries []PrivKeyEntry
}

func (m *MakerPrivKeyHandover) MsgType() MessageType { return MsgMakerPrivKeyHandover }
func (m *MakerPrivKeyHandover) Encode(w io.Writer) error { return writePrivKeyEntries(w, m.Entries) }
func (m *MakerPrivKeyHandover) Decode(r io.Reader) error {
	var err error
	m.Entries, err = readPrivKeyEntries(r)
	return err
}

// WaitingFundingConfirmation tells a Maker the Taker is still waiting on
// confirmations and the connection should be kept alive without advancing
// the FSM.
type WaitingFundingConfirmation struct{}

func (m *WaitingFundingConfirmation) MsgType() MessageType { return MsgWaitingFundingConfirmation }
func (m *WaitingFundingConfirmation) Encode(w io.Writer) error { return nil }
func (m *WaitingFundingConfirmation) Decode(r io.Reader) error { return nil }
