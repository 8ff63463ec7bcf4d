package taker

import (
	"context"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"
	"github.com/citadel-tech/coinswap-go/chainrpc"
	"github.com/citadel-tech/coinswap-go/contract"
	"github.com/citadel-tech/coinswap-go/offerbook"
	"github.com/citadel-tech/coinswap-go/walletstore"
)

// REFUND_LOCKTIME/REFUND_LOCKTIME_STEP set each hop's absolute HTLC
// locktime: hop k's locktime is REFUND_LOCKTIME + REFUND_LOCKTIME_STEP *
// (remaining hops after k), so later hops along the route mature earlier,
// giving every upstream party reaction time before its own refund path
// opens (spec.md §4.5 steps 4c, 5a).
const (
	RefundLocktime     = 144 * 10 // ~10 days of blocks, production default
	RefundLocktimeStep = 144      // ~1 day per hop of slack
)

// FundingOutput is one destination a funding transaction must pay: a
// multisig redeem script plus the amount behind it.
type FundingOutput struct {
	RedeemScript []byte
	Amount       int64
}

// Wallet is the Taker's external wallet collaborator (spec.md §1): balance
// queries, funding-transaction construction, and fresh keypairs. Building
// and signing real funding transactions (UTXO selection, change, fee
// estimation) is wallet territory, not this protocol's; walletstore here
// is only the swapcoin/prevout-cache store, not a UTXO-selecting wallet
// (the same scope line drawn in maker's handlers, see DESIGN.md).
type Wallet interface {
	// Balance returns the wallet's spendable balance in satoshis.
	Balance(ctx context.Context) (int64, error)

	// NewKeyPair returns a fresh, wallet-owned keypair for a swapcoin the
	// Taker will own outright (not derived from any Maker's tweakable
	// point): the Taker's last-hop Incoming key material (spec §4.5 step
	// 6) and its own first-hop sender keys.
	NewKeyPair(ctx context.Context) (*btcec.PrivateKey, error)

	// BuildFundingTxs asks the wallet to construct one or more funding
	// transactions paying the given outputs, splitting and randomizing
	// amounts per spec.md §4.5 step 4d, and returns them unbroadcast.
	BuildFundingTxs(ctx context.Context, outputs []FundingOutput) ([]*wire.MsgTx, error)

	// SweepAddress returns a fresh wallet-owned output script for
	// recovery timelock spends.
	SweepAddress(ctx context.Context) ([]byte, error)
}

// Config holds everything one swap run needs.
type Config struct {
	Wallet    Wallet
	Chain     chainrpc.ChainBackend
	OfferBook *offerbook.OfferBook
	Store     *walletstore.Store

	HopCount     int
	SplitCount   int
	RequiredConfirms int64

	MessageTimeout time.Duration
	PollInterval   time.Duration

	SweepFee contract.ContractFee
}
