package maker

import "fmt"

// ErrorKind classifies a maker-layer failure per the error taxonomy
// (spec.md §7's ProtocolError row: "unexpected message, bad ordering").
type ErrorKind int

const (
	// ErrUnexpectedMessage indicates a message arrived that the
	// connection's current allowed_message state does not accept.
	ErrUnexpectedMessage ErrorKind = iota

	// ErrFeeMismatch indicates a Taker request that fails this Maker's
	// offer terms or contract checks: an amount outside MinSize/MaxSize,
	// a locktime not above MinContractReactionTime, a contract tx that is
	// not one input and one output, an HTLC output that doesn't match,
	// or a funding output short of the required confirmations.
	ErrFeeMismatch

	// ErrUnknownSwapcoin indicates a handler referenced a multisig
	// redeem script this connection never recorded.
	ErrUnknownSwapcoin

	// ErrHandoverMismatch indicates a handed-over privkey does not
	// derive the pubkey already on file for its swapcoin, or a batch of
	// signatures whose count doesn't match the recorded swapcoins.
	ErrHandoverMismatch

	// ErrContractMismatch indicates a claimed funding proof does not
	// hold up under validation: it pays the wrong multisig output, its
	// HTLC locktime leaves too little reaction-time gap before the next
	// hop's, or its hashvalue disagrees with another proof in the same
	// batch (spec §7's ContractError row: "wrong hashvalue, ... locktime
	// too short").
	ErrContractMismatch
)

func (k ErrorKind) String() string {
	switch k {
	case ErrUnexpectedMessage:
		return "unexpected message"
	case ErrFeeMismatch:
		return "coinswap fee mismatch"
	case ErrUnknownSwapcoin:
		return "unknown swapcoin"
	case ErrHandoverMismatch:
		return "privkey handover mismatch"
	case ErrContractMismatch:
		return "contract validation failed"
	default:
		return "unknown maker error"
	}
}

// Error is a ProtocolError per the taxonomy: fatal to the connection,
// non-retryable, closes the connection and downgrades the peer.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func newErr(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}
