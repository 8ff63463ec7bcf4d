package maker

import (
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/citadel-tech/coinswap-go/contract"
	"github.com/lightningnetwork/lnd/clock"
)

// Config holds the terms a Maker advertises and the timing knobs that
// govern its connection handling (spec.md §4, §6 Offer fields).
type Config struct {
	// BasePrivKey is this Maker's long-lived key; every swap gets a
	// fresh multisig/HTLC keypair tweaked off it per connection/hop
	// (contract.DeriveTweakedPubKey), so the base key itself is never
	// reused on-chain.
	BasePrivKey *btcec.PrivateKey

	MinSize int64
	MaxSize int64

	Fees contract.FeeSchedule

	// MinContractReactionTime is the minimum gap, in seconds, this
	// Maker requires between its own hop's locktime and the next hop's.
	MinContractReactionTime int64

	// RequiredConfirms is the confirmation depth this Maker demands on
	// a claimed prior-hop funding output before trusting it.
	RequiredConfirms int64

	// FidelityBondProof is this Maker's encoded fidelity.Proof, echoed
	// verbatim in RespOffer.
	FidelityBondProof []byte

	// IdleTimeout bounds how long a connection may sit without
	// forward progress before the idle monitor treats it as dropped.
	IdleTimeout time.Duration

	// MessageTimeout bounds every individual blocking read/write (spec
	// §4.2 Cancellation & timeouts).
	MessageTimeout time.Duration

	// MonitorPollInterval paces the idle and broadcast-contract
	// monitors and the recovery routine they trigger (spec §4.4: "≈10
	// min production, 10 s test").
	MonitorPollInterval time.Duration

	// SweepScript is the wallet-derived destination for recovered
	// Outgoing timelock spends.
	SweepScript []byte

	// SweepFee is the miner fee subtracted from a recovery timelock
	// spend's single output.
	SweepFee contract.ContractFee

	// Clock is the source of wall time for idle detection and the
	// monitor poll loop, so tests can drive both deterministically with
	// clock.NewTestClock instead of sleeping on real time. Defaults to
	// clock.NewDefaultClock if left nil.
	Clock clock.Clock
}

// DefaultIdleTimeout is the production idle-connection threshold.
const DefaultIdleTimeout = 30 * time.Minute

// DefaultMessageTimeout is the production per-message read/write deadline.
const DefaultMessageTimeout = 2 * time.Minute

// TestMessageTimeout is the accelerated per-message deadline integration
// tests should use.
const TestMessageTimeout = 5 * time.Second

// TestIdleTimeout is the accelerated idle threshold integration tests
// should use.
const TestIdleTimeout = 5 * time.Second
