package coinselect_test

import (
	"encoding/hex"
	"math/rand"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/btcvault/pkg/coinselect"
	"github.com/tdex-network/btcvault/pkg/feeestimator"
	"github.com/tdex-network/btcvault/pkg/wallet"
)

const dustThreshold = 546

// testSizer charges 500 sats per input plus 200 sats of overhead, or 500
// with a change output: spending 2 coins costs 1,200 or 1,500 sats.
var testSizer = coinselect.SizerFunc(func(coins []coinselect.Coin, withChange bool) uint64 {
	fee := uint64(500 * len(coins))
	if withChange {
		return fee + 500
	}
	return fee + 200
})

func newCoin(seed string, vout uint32, value uint64) coinselect.Coin {
	return coinselect.Coin{
		TxID:        chainhash.DoubleHashH([]byte(seed)),
		Vout:        vout,
		Value:       value,
		AddressType: wallet.NativeSegwit,
	}
}

func TestSelect(t *testing.T) {
	coins := []coinselect.Coin{
		newCoin("a", 0, 30000),
		newCoin("b", 1, 50000),
	}

	tests := []struct {
		name           string
		target         uint64
		expectedCoins  int
		expectedFee    uint64
		expectedChange uint64
	}{
		{
			name:           "with change",
			target:         60000,
			expectedCoins:  2,
			expectedFee:    1500,
			expectedChange: 18500,
		},
		{
			name:           "change does not cover its own fee",
			target:         78600,
			expectedCoins:  2,
			expectedFee:    1400,
			expectedChange: 0,
		},
		{
			name:           "dust change",
			target:         78000,
			expectedCoins:  2,
			expectedFee:    2000,
			expectedChange: 0,
		},
		{
			name:           "single coin",
			target:         40000,
			expectedCoins:  1,
			expectedFee:    1000,
			expectedChange: 9000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			selection, err := coinselect.Select(coinselect.SelectOpts{
				Coins:         coins,
				Target:        tt.target,
				Policy:        coinselect.LargestFirst,
				DustThreshold: dustThreshold,
				Sizer:         testSizer,
			})
			require.NoError(t, err)
			require.Len(t, selection.Coins, tt.expectedCoins)
			require.Equal(t, tt.expectedFee, selection.Fee)
			require.Equal(t, tt.expectedChange, selection.Change)
			require.Equal(t, tt.expectedChange > 0, selection.HasChange())
			require.Equal(t, selection.Total, tt.target+selection.Fee+selection.Change)
			require.Equal(t, uint64(50000), selection.Coins[0].Value)
		})
	}
}

func TestSelectInsufficientFunds(t *testing.T) {
	coins := []coinselect.Coin{
		newCoin("a", 0, 30000),
		newCoin("b", 1, 50000),
	}

	_, err := coinselect.Select(coinselect.SelectOpts{
		Coins:         coins,
		Target:        79000,
		DustThreshold: dustThreshold,
		Sizer:         testSizer,
	})
	require.ErrorIs(t, err, coinselect.ErrInsufficientFunds)

	var fundsErr *coinselect.InsufficientFundsError
	require.ErrorAs(t, err, &fundsErr)
	require.Equal(t, uint64(80000), fundsErr.Available)
	require.Equal(t, uint64(80200), fundsErr.Required)

	_, err = coinselect.Select(coinselect.SelectOpts{
		Target: 1000,
		Sizer:  testSizer,
	})
	require.ErrorIs(t, err, coinselect.ErrInsufficientFunds)
}

func TestSelectLargestFirstIsOrderIndependent(t *testing.T) {
	coins := make([]coinselect.Coin, 0)
	for i := 0; i < 20; i++ {
		coins = append(coins, newCoin(string(rune('a'+i)), uint32(i), uint64(1000*(i%5+1))))
	}
	opts := coinselect.SelectOpts{
		Coins:         coins,
		Target:        12000,
		DustThreshold: dustThreshold,
		Sizer:         testSizer,
	}
	expected, err := coinselect.Select(opts)
	require.NoError(t, err)

	r := rand.New(rand.NewSource(1))
	for i := 0; i < 10; i++ {
		shuffled := append([]coinselect.Coin{}, coins...)
		r.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		opts.Coins = shuffled

		selection, err := coinselect.Select(opts)
		require.NoError(t, err)
		require.Equal(t, expected, selection)
	}
}

func TestSelectRandom(t *testing.T) {
	coins := make([]coinselect.Coin, 0)
	for i := 0; i < 30; i++ {
		coins = append(coins, newCoin("coin", uint32(i), uint64(2000+137*i)))
	}
	target := uint64(25000)

	for seed := int64(0); seed < 20; seed++ {
		opts := coinselect.SelectOpts{
			Coins:         coins,
			Target:        target,
			Policy:        coinselect.Random,
			DustThreshold: dustThreshold,
			Sizer:         testSizer,
			Rand:          rand.New(rand.NewSource(seed)),
		}
		selection, err := coinselect.Select(opts)
		require.NoError(t, err)

		total := uint64(0)
		for _, c := range selection.Coins {
			total += c.Value
		}
		require.Equal(t, total, selection.Total)
		require.Equal(t, total, target+selection.Fee+selection.Change)
		require.GreaterOrEqual(t, selection.Fee, testSizer.Fee(selection.Coins, selection.HasChange()))
		if selection.HasChange() {
			require.GreaterOrEqual(t, selection.Change, uint64(dustThreshold))
		}

		// Same seed, same selection.
		opts.Rand = rand.New(rand.NewSource(seed))
		again, err := coinselect.Select(opts)
		require.NoError(t, err)
		require.Equal(t, selection, again)
	}
}

func TestSelectSkipsUneconomicalCoins(t *testing.T) {
	coins := []coinselect.Coin{newCoin("big", 0, 12000)}
	for i := 0; i < 5; i++ {
		coins = append(coins, newCoin("dust", uint32(i), 100))
	}

	for seed := int64(0); seed < 100; seed++ {
		selection, err := coinselect.Select(coinselect.SelectOpts{
			Coins:         coins,
			Target:        10000,
			Policy:        coinselect.Random,
			DustThreshold: dustThreshold,
			Sizer:         testSizer,
			Rand:          rand.New(rand.NewSource(seed)),
		})
		require.NoError(t, err, "seed %d", seed)
		require.Len(t, selection.Coins, 1)
		require.Equal(t, uint64(12000), selection.Coins[0].Value)
		require.Equal(t, uint64(1000), selection.Fee)
		require.Equal(t, uint64(1000), selection.Change)
	}

	// Dust only can't pay for itself.
	_, err := coinselect.Select(coinselect.SelectOpts{
		Coins:  coins[1:],
		Target: 100,
		Sizer:  testSizer,
	})
	require.ErrorIs(t, err, coinselect.ErrInsufficientFunds)
}

func TestFailingSelect(t *testing.T) {
	coins := []coinselect.Coin{newCoin("a", 0, 1000)}

	tests := []struct {
		name     string
		opts     coinselect.SelectOpts
		expected error
	}{
		{"null target", coinselect.SelectOpts{Coins: coins, Sizer: testSizer}, coinselect.ErrNullTarget},
		{"null sizer", coinselect.SelectOpts{Coins: coins, Target: 10}, coinselect.ErrNullSizer},
		{"null rand", coinselect.SelectOpts{Coins: coins, Target: 10, Sizer: testSizer, Policy: coinselect.Random}, coinselect.ErrNullRand},
		{"bad policy", coinselect.SelectOpts{Coins: coins, Target: 10, Sizer: testSizer, Policy: 5}, coinselect.ErrInvalidPolicy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := coinselect.Select(tt.opts)
			require.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestFeeRateSizer(t *testing.T) {
	script, _ := hex.DecodeString("0014751e76e8199196d454941c45d1b3a323f1433bd6")
	sizer := coinselect.FeeRateSizer{
		FeeRate:       1000,
		OutputScripts: [][]byte{script},
		ChangeType:    wallet.NativeSegwit,
	}
	coins := []coinselect.Coin{newCoin("a", 0, 1000), newCoin("b", 0, 1000)}

	require.Equal(t, 209, sizer.VSize(coins, true))
	require.Equal(t, 178, sizer.VSize(coins, false))
	require.Equal(t, uint64(209), sizer.Fee(coins, true))

	sizer.FeeRate = feeestimator.FromSatPerVByte(2.5)
	require.Equal(t, uint64(523), sizer.Fee(coins, true))
}

func TestParsePolicy(t *testing.T) {
	policy, err := coinselect.ParsePolicy("random")
	require.NoError(t, err)
	require.Equal(t, coinselect.Random, policy)

	_, err = coinselect.ParsePolicy("smallest-first")
	require.ErrorIs(t, err, coinselect.ErrInvalidPolicy)
}

func TestSelectWithPreselected(t *testing.T) {
	preselected := newCoin("pre", 0, 30000)
	coins := []coinselect.Coin{
		preselected,
		newCoin("a", 0, 50000),
		newCoin("b", 0, 10000),
	}

	// Preselected coins come first and are never picked twice.
	selection, err := coinselect.Select(coinselect.SelectOpts{
		Preselected:   []coinselect.Coin{preselected},
		Coins:         coins,
		Target:        60000,
		DustThreshold: dustThreshold,
		Sizer:         testSizer,
	})
	require.NoError(t, err)
	require.Len(t, selection.Coins, 2)
	require.Equal(t, preselected, selection.Coins[0])
	require.Equal(t, uint64(50000), selection.Coins[1].Value)
	require.Equal(t, uint64(18500), selection.Change)

	// Preselected coins alone are enough.
	selection, err = coinselect.Select(coinselect.SelectOpts{
		Preselected:   []coinselect.Coin{preselected},
		Coins:         coins,
		Target:        20000,
		DustThreshold: dustThreshold,
		Sizer:         testSizer,
	})
	require.NoError(t, err)
	require.Len(t, selection.Coins, 1)
	require.Equal(t, uint64(9000), selection.Change)
}
