package mathutil_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tdex-network/btcvault/pkg/mathutil"
)

func TestSatsToBTC(t *testing.T) {
	tests := []struct {
		sats     uint64
		expected string
	}{
		{0, "0.00000000"},
		{1, "0.00000001"},
		{18500, "0.00018500"},
		{2100000000000000, "21000000.00000000"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.expected, mathutil.SatsToBTC(tt.sats))
	}
}

func TestBTCToSats(t *testing.T) {
	tests := []struct {
		btc      string
		expected uint64
	}{
		{"0", 0},
		{"0.00000001", 1},
		{"1", 100000000},
		{"0.000185", 18500},
	}
	for _, tt := range tests {
		sats, err := mathutil.BTCToSats(tt.btc)
		require.NoError(t, err)
		require.Equal(t, tt.expected, sats)
	}

	for _, btc := range []string{"-1", "0.000000001", "abc"} {
		_, err := mathutil.BTCToSats(btc)
		require.Error(t, err, btc)
	}
}

func TestFeeRates(t *testing.T) {
	require.Equal(t, uint64(1000), mathutil.SatPerVByteToKVByte(1))
	require.Equal(t, uint64(12346), mathutil.SatPerVByteToKVByte(12.3456))
	require.Zero(t, mathutil.SatPerVByteToKVByte(-2))
	require.Equal(t, "2.5", mathutil.SatPerKVByteToVByte(2500).String())

	require.Equal(t, uint64(141), mathutil.FeeForVSize(1000, 141))
	require.Equal(t, uint64(2), mathutil.FeeForVSize(1001, 1))
	require.Zero(t, mathutil.FeeForVSize(1000, 0))
}

func TestInterpolate(t *testing.T) {
	require.Equal(t, uint64(15), mathutil.Interpolate(6, 20, 12, 10, 9))
	require.Equal(t, uint64(20), mathutil.Interpolate(6, 20, 12, 10, 6))
	require.Equal(t, uint64(10), mathutil.Interpolate(6, 20, 12, 10, 12))
	require.Equal(t, uint64(7), mathutil.Interpolate(1, 7, 1, 7, 1))
}
