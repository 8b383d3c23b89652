package analytics

import (
	"math"
	"sort"
)

// All series math runs in float64 over the per-period return series
// derived from ledger snapshots; money stays decimal at the edges.
// Every function returns a defined value for degenerate input (fewer
// than two periods, zero variance): zero, never a panic or NaN.

const TradingDaysPerYear = 252

// Returns derives the simple per-period return series from a value
// series. Periods whose previous value is not positive are skipped.
func Returns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	out := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] <= 0 {
			continue
		}
		out = append(out, (values[i]-values[i-1])/values[i-1])
	}
	return out
}

// AnnualizedReturn compounds the period returns and scales the result
// to a yearly rate.
func AnnualizedReturn(returns []float64, periodsPerYear float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	compound := 1.0
	for _, r := range returns {
		compound *= 1 + r
	}
	if compound <= 0 {
		return -1
	}
	return math.Pow(compound, periodsPerYear/float64(len(returns))) - 1
}

// Volatility is the annualized sample standard deviation of returns.
func Volatility(returns []float64, periodsPerYear float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	return sampleStdDev(returns) * math.Sqrt(periodsPerYear)
}

// SharpeRatio is the annualized excess return per unit of volatility;
// zero when volatility is zero.
func SharpeRatio(annualizedReturn, volatility, riskFreeRate float64) float64 {
	if volatility == 0 {
		return 0
	}
	return (annualizedReturn - riskFreeRate) / volatility
}

// SortinoRatio penalizes only downside deviation. With no negative
// periods there is no downside to measure and the ratio is zero.
func SortinoRatio(returns []float64, riskFreeRate, periodsPerYear float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	var downSquares float64
	downCount := 0
	var sum float64
	for _, r := range returns {
		sum += r
		if r < 0 {
			downSquares += r * r
			downCount++
		}
	}
	if downCount == 0 {
		return 0
	}
	downsideDev := math.Sqrt(downSquares/float64(downCount)) * math.Sqrt(periodsPerYear)
	if downsideDev == 0 {
		return 0
	}
	annualizedMean := sum / float64(len(returns)) * periodsPerYear
	return (annualizedMean - riskFreeRate) / downsideDev
}

// MaxDrawdown is the largest running-peak decline over the value
// series, reported as a negative fraction (0 when values never fall).
func MaxDrawdown(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	peak := values[0]
	maxDD := 0.0
	for _, v := range values[1:] {
		if v > peak {
			peak = v
			continue
		}
		if peak > 0 {
			dd := (peak - v) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return -maxDD
}

// CalmarRatio relates annualized return to the worst drawdown.
func CalmarRatio(annualizedReturn, maxDrawdown float64) float64 {
	if maxDrawdown == 0 {
		return 0
	}
	return annualizedReturn / math.Abs(maxDrawdown)
}

// WinRate is the fraction of periods with a positive return.
func WinRate(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	wins := 0
	for _, r := range returns {
		if r > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(returns))
}

// ProfitFactor is gross gains over gross losses across periods; zero
// when there are no losing periods.
func ProfitFactor(returns []float64) float64 {
	var grossProfit, grossLoss float64
	for _, r := range returns {
		if r > 0 {
			grossProfit += r
		} else {
			grossLoss += -r
		}
	}
	if grossLoss == 0 {
		return 0
	}
	return grossProfit / grossLoss
}

// VaR is the empirical quantile of the return distribution at
// (1 − confidence), e.g. the 5th percentile for 95% confidence.
func VaR(returns []float64, confidence float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	sorted := append([]float64(nil), returns...)
	sort.Float64s(sorted)
	idx := int((1 - confidence) * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// CVaR is the mean of all returns at or below the VaR threshold.
func CVaR(returns []float64, confidence float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	threshold := VaR(returns, confidence)
	var sum float64
	count := 0
	for _, r := range returns {
		if r <= threshold {
			sum += r
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func sampleStdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var varianceSum float64
	for _, x := range xs {
		diff := x - m
		varianceSum += diff * diff
	}
	return math.Sqrt(varianceSum / float64(len(xs)-1))
}
