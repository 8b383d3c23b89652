package analytics

import "math"

// BenchmarkComparison holds the benchmark-relative metrics for the
// portfolio return series against one reference index.
type BenchmarkComparison struct {
	Benchmark        string  `json:"benchmark"`
	PortfolioReturn  float64 `json:"portfolioReturn"`
	BenchmarkReturn  float64 `json:"benchmarkReturn"`
	Alpha            float64 `json:"alpha"`
	Beta             float64 `json:"beta"`
	Correlation      float64 `json:"correlation"`
	TrackingError    float64 `json:"trackingError"`
	InformationRatio float64 `json:"informationRatio"`
}

// Beta is cov(portfolio, benchmark) / var(benchmark); zero when the
// series lengths differ, are too short, or the benchmark never moves.
func Beta(portfolio, benchmark []float64) float64 {
	if len(portfolio) != len(benchmark) || len(portfolio) < 2 {
		return 0
	}
	pMean := mean(portfolio)
	bMean := mean(benchmark)

	var cov, bVar float64
	for i := range portfolio {
		cov += (portfolio[i] - pMean) * (benchmark[i] - bMean)
		bVar += (benchmark[i] - bMean) * (benchmark[i] - bMean)
	}
	n := float64(len(portfolio) - 1)
	cov /= n
	bVar /= n

	if bVar == 0 {
		return 0
	}
	return cov / bVar
}

// Alpha is the portfolio's annualized return above the CAPM expected
// return for its beta exposure to the benchmark.
func Alpha(portfolioAnnualized, benchmarkAnnualized, beta, riskFreeRate float64) float64 {
	return portfolioAnnualized - (riskFreeRate + beta*(benchmarkAnnualized-riskFreeRate))
}

// Correlation is the Pearson correlation of the two return series.
func Correlation(a, b []float64) float64 {
	if len(a) != len(b) || len(a) < 2 {
		return 0
	}
	aMean := mean(a)
	bMean := mean(b)

	var num, aSq, bSq float64
	for i := range a {
		num += (a[i] - aMean) * (b[i] - bMean)
		aSq += (a[i] - aMean) * (a[i] - aMean)
		bSq += (b[i] - bMean) * (b[i] - bMean)
	}
	den := math.Sqrt(aSq * bSq)
	if den == 0 {
		return 0
	}
	return num / den
}

// TrackingError is the annualized volatility of the excess-return
// series (portfolio minus benchmark).
func TrackingError(portfolio, benchmark []float64, periodsPerYear float64) float64 {
	excess := excessReturns(portfolio, benchmark)
	if excess == nil {
		return 0
	}
	return Volatility(excess, periodsPerYear)
}

// InformationRatio is the annualized mean excess return per unit of
// tracking error.
func InformationRatio(portfolio, benchmark []float64, periodsPerYear float64) float64 {
	excess := excessReturns(portfolio, benchmark)
	if excess == nil {
		return 0
	}
	te := Volatility(excess, periodsPerYear)
	if te == 0 {
		return 0
	}
	return mean(excess) * periodsPerYear / te
}

// CompareToBenchmark assembles the full benchmark block. Series must
// be aligned period-for-period; mismatched lengths yield the zero
// comparison rather than a partial one.
func CompareToBenchmark(name string, portfolio, benchmark []float64, riskFreeRate, periodsPerYear float64) BenchmarkComparison {
	cmp := BenchmarkComparison{Benchmark: name}
	if len(portfolio) != len(benchmark) || len(portfolio) < 2 {
		return cmp
	}

	cmp.PortfolioReturn = AnnualizedReturn(portfolio, periodsPerYear)
	cmp.BenchmarkReturn = AnnualizedReturn(benchmark, periodsPerYear)
	cmp.Beta = Beta(portfolio, benchmark)
	cmp.Alpha = Alpha(cmp.PortfolioReturn, cmp.BenchmarkReturn, cmp.Beta, riskFreeRate)
	cmp.Correlation = Correlation(portfolio, benchmark)
	cmp.TrackingError = TrackingError(portfolio, benchmark, periodsPerYear)
	cmp.InformationRatio = InformationRatio(portfolio, benchmark, periodsPerYear)
	return cmp
}

// alignSeries trims the longer series' tail so both cover the same
// leading periods. A snapshot-derived portfolio series carries one
// extra trailing period from the finalization snapshot that a daily
// close series does not produce.
func alignSeries(a, b []float64) ([]float64, []float64) {
	n := min(len(a), len(b))
	return a[:n], b[:n]
}

func excessReturns(portfolio, benchmark []float64) []float64 {
	if len(portfolio) != len(benchmark) || len(portfolio) == 0 {
		return nil
	}
	out := make([]float64, len(portfolio))
	for i := range portfolio {
		out[i] = portfolio[i] - benchmark[i]
	}
	return out
}
