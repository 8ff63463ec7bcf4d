package contract

// FeeSchedule holds one Maker's advertised constants for the coinswap fee
// formula (spec §4.1, §6). Both sides of a hop compute the fee from the
// same schedule and amount, so they must agree on identical bytes without
// a negotiation round trip.
type FeeSchedule struct {
	// BaseAbsolute is a fixed per-swap fee in satoshis.
	BaseAbsolute int64

	// RelativeAmountPPB is the fee rate on the swapped amount, in parts
	// per billion.
	RelativeAmountPPB int64

	// RelativeTimePPB is the fee rate on amount*locktime-duration, in
	// parts per billion.
	RelativeTimePPB int64
}

// CoinswapFee computes the deterministic per-hop fee:
//
//	fee = base_absolute
//	    + amount * relative_amount_ppb * 1e-9
//	    + amount * time * relative_time_ppb * 1e-9
//
// time is the hop's locktime duration in the same unit the Maker advertised
// RelativeTimePPB against (seconds). Both operands stay in integer
// arithmetic throughout: the 1e-9 scaling is folded into a single division
// by 1_000_000_000 after the multiplication, never by an intermediate
// floating-point step, so both parties derive bit-identical results.
func (s FeeSchedule) CoinswapFee(amount, timeSeconds int64) int64 {
	const ppbDivisor = 1_000_000_000

	amountFee := (amount * s.RelativeAmountPPB) / ppbDivisor
	timeFee := (amount * timeSeconds * s.RelativeTimePPB) / ppbDivisor

	return s.BaseAbsolute + amountFee + timeFee
}

// ContractFee is the fixed miner fee spent on a contract transaction. It is
// a protocol-wide constant (not per-Maker) so both parties compute
// identical contract-tx output amounts without negotiating it.
type ContractFee int64

const (
	// ContractFeeProduction is the mainnet contract-tx miner fee.
	ContractFeeProduction ContractFee = 300

	// ContractFeeIntegrationTest is the regtest/integration-test
	// contract-tx miner fee, set higher to comfortably clear static
	// regtest relay-fee floors.
	ContractFeeIntegrationTest ContractFee = 1000
)

// FundingTxVByteConstant is the fixed vbyte size used by both parties in the
// next-hop-amount fee formula so neither needs to inspect the other's
// actual funding transaction to agree on the deduction. Its value is part
// of the public protocol (spec §6) and must match across all parties in a
// route.
const FundingTxVByteConstant = 154

// NextHopAmount computes the amount a hop must pass on: the incoming amount
// minus this hop's coinswap fee minus the fixed next-hop miner fee (spec
// §4.3 step-chain accounting).
func NextHopAmount(incoming int64, schedule FeeSchedule, timeSeconds int64,
	nextMinerFee int64) int64 {

	return incoming - schedule.CoinswapFee(incoming, timeSeconds) - nextMinerFee
}
