package mathutil

import (
	"fmt"
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

const btcPrecision = 8

var (
	// SatsPerBTC is the number of satoshis in one bitcoin.
	SatsPerBTC = uint64(math.Pow10(btcPrecision))
	// SatsPerBTCDecimal is SatsPerBTC as decimal.Decimal
	SatsPerBTCDecimal = decimal.NewFromInt(int64(SatsPerBTC))

	thousand = decimal.NewFromInt(1000)
)

//SatsToBTC formats an amount of satoshis as a BTC amount with 8 decimals
func SatsToBTC(sats uint64) string {
	return decimal.NewFromBigInt(
		new(big.Int).SetUint64(sats), -btcPrecision,
	).StringFixed(btcPrecision)
}

//BTCToSats parses a BTC amount and returns it in satoshis. Amounts with
//more than 8 decimals or negative are rejected
func BTCToSats(btc string) (uint64, error) {
	amount, err := decimal.NewFromString(btc)
	if err != nil {
		return 0, err
	}
	if amount.IsNegative() {
		return 0, fmt.Errorf("amount must not be negative")
	}
	sats := amount.Mul(SatsPerBTCDecimal)
	if !sats.Equal(sats.Truncate(0)) {
		return 0, fmt.Errorf("amount exceeds %d decimals precision", btcPrecision)
	}
	if sats.GreaterThan(decimal.NewFromBigInt(new(big.Int).SetUint64(math.MaxInt64), 0)) {
		return 0, fmt.Errorf("amount out of range")
	}
	return uint64(sats.IntPart()), nil
}

//SatPerVByteToKVByte converts a fee rate from sat/vB to sat/kvB, rounding up
//any fraction of satoshi
func SatPerVByteToKVByte(rate float64) uint64 {
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return 0
	}
	return uint64(decimal.NewFromFloat(rate).Mul(thousand).Ceil().IntPart())
}

//SatPerKVByteToVByte converts a fee rate from sat/kvB to sat/vB
func SatPerKVByteToVByte(rate uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(rate), -3)
}

//FeeForVSize returns the fee paid by a transaction of the given virtual
//size at the given sat/kvB rate, rounded up to the next satoshi
func FeeForVSize(rate uint64, vsize int) uint64 {
	if vsize <= 0 {
		return 0
	}
	fee := new(big.Int).Mul(
		new(big.Int).SetUint64(rate), big.NewInt(int64(vsize)),
	)
	fee.Add(fee, big.NewInt(999))
	return fee.Div(fee, big.NewInt(1000)).Uint64()
}

//Interpolate returns the value at x on the line through (x0, y0) and
//(x1, y1), rounded up. x must be in [x0, x1]
func Interpolate(x0, y0, x1, y1, x uint64) uint64 {
	if x1 == x0 {
		return y0
	}
	X0, Y0 := decimal.NewFromInt(int64(x0)), decimal.NewFromInt(int64(y0))
	X1, Y1 := decimal.NewFromInt(int64(x1)), decimal.NewFromInt(int64(y1))
	X := decimal.NewFromInt(int64(x))

	delta := Y1.Sub(Y0).Mul(X.Sub(X0)).Div(X1.Sub(X0))
	return uint64(Y0.Add(delta).Ceil().IntPart())
}
