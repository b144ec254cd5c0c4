package features

import (
	"math"
	"sort"

	"StockAction/internal/domain/models"
)

// zeroDivisor stands in for a zero base price so percent changes never divide by zero.
const zeroDivisor = 0.1

// PercentChange returns (to-from)/from, substituting zeroDivisor when from is zero.
func PercentChange(from, to float64) float64 {
	if from == 0 {
		from = zeroDivisor
	}
	return (to - from) / from
}

// ForwardChange computes, for every bar i, the percent change from close[i]
// to close[i+horizon]. Bars with no future close are NaN.
func ForwardChange(closes []float64, horizon int) []float64 {
	out := make([]float64, len(closes))
	for i := range closes {
		j := i + horizon
		if horizon < 1 || j >= len(closes) || math.IsNaN(closes[i]) || math.IsNaN(closes[j]) {
			out[i] = math.NaN()
			continue
		}
		out[i] = PercentChange(closes[i], closes[j])
	}
	return out
}

// TrailingChange computes (close[i]-close[i-period])/close[i-period]. The first
// period bars are NaN.
func TrailingChange(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	for i := range closes {
		if period < 1 || i < period {
			out[i] = math.NaN()
			continue
		}
		prev := closes[i-period]
		if prev == 0 || math.IsNaN(prev) {
			out[i] = math.NaN()
			continue
		}
		out[i] = (closes[i] - prev) / prev
	}
	return out
}

// Closes extracts the close price of each candle.
func Closes(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// SortCandles orders candles oldest first in place.
func SortCandles(candles []models.Candle) {
	sort.SliceStable(candles, func(i, j int) bool { return candles[i].Time.Before(candles[j].Time) })
}

// ColumnMeans averages each column over its defined values. A column with no
// defined values has a NaN mean.
func ColumnMeans(rows [][]float64, width int) []float64 {
	sums := make([]float64, width)
	counts := make([]int, width)
	for _, r := range rows {
		for j := 0; j < width && j < len(r); j++ {
			if isMissing(r[j]) {
				continue
			}
			sums[j] += r[j]
			counts[j]++
		}
	}
	out := make([]float64, width)
	for j := range out {
		if counts[j] == 0 {
			out[j] = math.NaN()
			continue
		}
		out[j] = sums[j] / float64(counts[j])
	}
	return out
}

func isMissing(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}
