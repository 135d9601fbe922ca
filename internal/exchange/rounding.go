package exchange

import (
	"github.com/shopspring/decimal"
)

// Price and quantity arithmetic goes through decimals: half-up rounding of
// maker prices (50.025 -> 50.03) is wrong under float64 math.Round.

func RoundPrice(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

func FormatPrice(v float64) string {
	return decimal.NewFromFloat(v).Round(2).StringFixed(2)
}

// FloorToStep floors v to a multiple of the symbol's quantity increment.
func FloorToStep(v, step float64) float64 {
	if step <= 0 {
		return v
	}
	vd := decimal.NewFromFloat(v)
	sd := decimal.NewFromFloat(step)
	f, _ := vd.Div(sd).Floor().Mul(sd).Float64()
	return f
}

// StepDecimals reports the decimal places implied by a quantity increment,
// e.g. 0.01 -> 2, 1 -> 0.
func StepDecimals(step float64) int32 {
	exp := decimal.NewFromFloat(step).Exponent()
	if exp >= 0 {
		return 0
	}
	return -exp
}

func FormatQuantity(v, step float64) string {
	return decimal.NewFromFloat(v).StringFixed(StepDecimals(step))
}

func FormatFixed(v float64, places int32) string {
	return decimal.NewFromFloat(v).StringFixed(places)
}
