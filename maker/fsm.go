package maker

import "github.com/citadel-tech/coinswap-go/swapwire"

// State is the per-connection allowed_message value spec.md §4.3 describes:
// only a message of the matching variant (or, at the branch state, one of
// two variants) is accepted next.
type State int

const (
	// StateNewlyConnectedTaker accepts ReqGiveOffer or
	// ReqContractSigsForSender.
	StateNewlyConnectedTaker State = iota

	// StateReqContractSigsForSender accepts ReqContractSigsForSender.
	StateReqContractSigsForSender

	// StateProofOfFunding accepts RespProofOfFunding.
	StateProofOfFunding

	// StateProofOfFundingOrContractSigsForRecvrAndSender accepts either
	// RespProofOfFunding (another hop closing back) or
	// RespContractSigsForRecvrAndSender.
	StateProofOfFundingOrContractSigsForRecvrAndSender

	// StateReqContractSigsForRecvr accepts ReqContractSigsForRecvr.
	StateReqContractSigsForRecvr

	// StateHashPreimage accepts RespHashPreimage.
	StateHashPreimage

	// StatePrivateKeyHandover accepts RespPrivKeyHandover, after which
	// the connection closes cleanly.
	StatePrivateKeyHandover

	// StateClosed marks a connection whose FSM has run to completion or
	// aborted; no further messages are accepted.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNewlyConnectedTaker:
		return "NewlyConnectedTaker"
	case StateReqContractSigsForSender:
		return "ReqContractSigsForSender"
	case StateProofOfFunding:
		return "ProofOfFunding"
	case StateProofOfFundingOrContractSigsForRecvrAndSender:
		return "ProofOfFundingOrContractSigsForRecvrAndSender"
	case StateReqContractSigsForRecvr:
		return "ReqContractSigsForRecvr"
	case StateHashPreimage:
		return "HashPreimage"
	case StatePrivateKeyHandover:
		return "PrivateKeyHandover"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// allowed reports whether msgType may be processed while in state s, per
// spec.md §4.3's state progression table.
func (s State) allowed(msgType swapwire.MessageType) bool {
	switch s {
	case StateNewlyConnectedTaker:
		return msgType == swapwire.MsgReqGiveOffer ||
			msgType == swapwire.MsgReqContractSigsForSender
	case StateReqContractSigsForSender:
		return msgType == swapwire.MsgReqContractSigsForSender
	case StateProofOfFunding:
		return msgType == swapwire.MsgRespProofOfFunding
	case StateProofOfFundingOrContractSigsForRecvrAndSender:
		return msgType == swapwire.MsgRespProofOfFunding ||
			msgType == swapwire.MsgRespContractSigsForRecvrAndSender
	case StateReqContractSigsForRecvr:
		return msgType == swapwire.MsgReqContractSigsForRecvr
	case StateHashPreimage:
		return msgType == swapwire.MsgRespHashPreimage
	case StatePrivateKeyHandover:
		return msgType == swapwire.MsgRespPrivKeyHandover
	default:
		return false
	}
}
