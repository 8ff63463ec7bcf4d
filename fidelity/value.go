package fidelity

import "math"

// BondValueExponent disincentivizes Sybil behavior by making the bond's
// assessed value super-linear in its time-value: x > 1, per
// original_source/src/wallet/fidelity.rs's BOND_VALUE_EXPONENT.
const BondValueExponent = 1.3

// BondValueInterestRate is the interest rate used to compute a fidelity
// bond's time value, expressed as a real number (1 = 100%). Per
// original_source/src/wallet/fidelity.rs's BOND_VALUE_INTEREST_RATE and
// the JoinMarket fidelity-bond design doc it cites.
const BondValueInterestRate = 0.015

const secondsInAYear = 60.0 * 60.0 * 24.0 * 365.2425

// Value computes the theoretical fidelity bond value in satoshis, given
// the bond amount and three Unix timestamps: the bond's absolute
// locktime, the block time at which its funding UTXO confirmed, and the
// current time. Grounded bit-exact on
// original_source/src/wallet/fidelity.rs's calculate_fidelity_value,
// including its deliberate flat-before-locktime / decaying-after-locktime
// / exponent-scaled shape.
func Value(amountSat, locktime, confirmationTime, currentTime int64) int64 {
	lockPeriodYr := float64(locktime-confirmationTime) / secondsInAYear
	locktimeYr := float64(locktime) / secondsInAYear
	currentTimeYr := float64(currentTime) / secondsInAYear

	expRtM1 := math.Expm1(BondValueInterestRate * lockPeriodYr)
	expRtlM1 := math.Expm1(BondValueInterestRate * math.Max(0, currentTimeYr-locktimeYr))

	timeValue := math.Max(0, math.Min(1, expRtM1)-math.Min(1, expRtlM1))

	return int64(math.Pow(float64(amountSat)*timeValue, BondValueExponent))
}

// EstimateLocktimeFromHeight converts a height-based locktime (<500000000,
// BIP65 convention) to an absolute Unix timestamp estimate, using the
// standard 10-minutes-per-block assumption -- mirroring
// calculate_bond_value's LockTime::Blocks branch: "estimated locktime =
// current-time + (maturity-height - block-count) * 10 * 60 sec".
func EstimateLocktimeFromHeight(tipHeight, tipTime, lockHeight int64) (int64, error) {
	heightDiff := lockHeight - tipHeight
	if heightDiff < 0 {
		return 0, newErr(ErrBondNotMature, "lock height %d already behind tip %d", lockHeight, tipHeight)
	}
	return tipTime + heightDiff*10*60, nil
}

// FidelityExpiry computes the certificate-expiry window (in multiples of
// the 2016-block difficulty adjustment period) for a bond confirmed at
// confHeight, per FidelityBond::get_fidelity_expiry's "(conf_height + 2
// safety buffer) / 2016 + 5".
func FidelityExpiry(confHeight int64) int64 {
	return (confHeight+2)/2016 + 5
}
