package pricing

import "fmt"

// Published pay-as-you-go rates for the default models. Rates change over
// time, so these are estimates rather than billing figures.
const (
	PerImageUSD       = 0.04
	PerVideoSecondUSD = 0.35
)

// Images estimates the cost of generating count image samples.
func Images(count int) float64 {
	if count < 0 {
		count = 0
	}
	return float64(count) * PerImageUSD
}

// Videos estimates the cost of generating count clips of durationSeconds each.
func Videos(count, durationSeconds int) float64 {
	if count < 0 {
		count = 0
	}
	if durationSeconds < 0 {
		durationSeconds = 0
	}
	return float64(count) * float64(durationSeconds) * PerVideoSecondUSD
}

// FormatUSD renders an estimate as a dollar amount.
func FormatUSD(amount float64) string {
	return fmt.Sprintf("$%.4f", amount)
}
