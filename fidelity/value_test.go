package fidelity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValueMatchesReferenceVectors(t *testing.T) {
	t.Parallel()

	const oneBTC = 100_000_000
	confirmationTime := int64(50_000)
	currentTime := int64(60_000)

	vectors := []struct {
		locktime int64
		want     int64
	}{
		{55000, 0},
		{60000, 3020},
		{65000, 5117},
		{70000, 7437},
		{75000, 9940},
		{80000, 12599},
		{85000, 15395},
		{90000, 18313},
		{95000, 21344},
		{100000, 24477},
		{105000, 27706},
		{110000, 31024},
		{115000, 34426},
		{120000, 37908},
		{125000, 41465},
		{130000, 45094},
		{135000, 48792},
		{140000, 52556},
		{145000, 56383},
	}

	for _, v := range vectors {
		got := Value(oneBTC, v.locktime, confirmationTime, currentTime)
		require.Equal(t, v.want, got, "locktime=%d", v.locktime)
	}
}

func TestValueFlatBeforeLocktime(t *testing.T) {
	t.Parallel()

	const year = int64(secondsInAYear)
	const amount = 100_000_000

	var values []int64
	for y := int64(0); y < 4; y++ {
		values = append(values, Value(amount, 6*year, 0, y*year))
	}
	for i := 1; i < len(values); i++ {
		require.InDelta(t, values[0], values[i], 2)
	}
}

func TestValueDecaysAfterLocktime(t *testing.T) {
	t.Parallel()

	const year = int64(secondsInAYear)
	const amount = 100_000_000

	var values []int64
	for y := int64(0); y < 5; y++ {
		values = append(values, Value(amount, 6*year, 0, (6+y)*year))
	}
	for i := 1; i < len(values); i++ {
		require.Less(t, values[i], values[i-1])
	}
}

func TestValueZeroForExpiredLocktime(t *testing.T) {
	t.Parallel()

	require.Equal(t, int64(0), Value(100_000_000, 55000, 50000, 60000))
}
