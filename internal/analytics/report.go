package analytics

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tradesim/types"
)

// Params configures report generation.
type Params struct {
	RiskFreeRate   float64
	PeriodsPerYear float64
	VaRConfidence  float64
	Benchmark      string
	// BenchmarkReturns aligns period-for-period with the snapshot
	// return series from the first period; a trailing length mismatch
	// is trimmed before comparison. Nil omits the benchmark block.
	BenchmarkReturns []float64
	// Sectors maps symbol → sector; nil omits sector attribution.
	Sectors map[string]string
}

// Report is derived on demand from the snapshot and trade history and
// never persisted as mutable state.
type Report struct {
	StartDate    time.Time `json:"startDate"`
	EndDate      time.Time `json:"endDate"`
	DurationDays int       `json:"durationDays"`

	InitialCapital decimal.Decimal `json:"initialCapital"`
	FinalCapital   decimal.Decimal `json:"finalCapital"`

	TotalReturn      float64 `json:"totalReturn"`
	AnnualizedReturn float64 `json:"annualizedReturn"`
	Volatility       float64 `json:"volatility"`
	SharpeRatio      float64 `json:"sharpeRatio"`
	SortinoRatio     float64 `json:"sortinoRatio"`
	MaxDrawdown      float64 `json:"maxDrawdown"`
	CalmarRatio      float64 `json:"calmarRatio"`
	WinRate          float64 `json:"winRate"`
	ProfitFactor     float64 `json:"profitFactor"`
	VaR              float64 `json:"valueAtRisk"`
	CVaR             float64 `json:"conditionalValueAtRisk"`

	TotalTrades   int             `json:"totalTrades"`
	WinningTrades int             `json:"winningTrades"`
	LosingTrades  int             `json:"losingTrades"`
	AvgWin        decimal.Decimal `json:"avgWin"`
	AvgLoss       decimal.Decimal `json:"avgLoss"`
	TotalFees     decimal.Decimal `json:"totalFees"`

	Benchmark *BenchmarkComparison         `json:"benchmark,omitempty"`
	Sectors   map[string]SectorPerformance `json:"sectors,omitempty"`
}

// BuildReport computes the full performance report from the snapshot
// and trade history. An empty history yields the all-zero report, not
// an error.
func BuildReport(snapshots []types.Snapshot, trades []types.Trade, p Params) *Report {
	if p.PeriodsPerYear == 0 {
		p.PeriodsPerYear = TradingDaysPerYear
	}
	if p.VaRConfidence == 0 {
		p.VaRConfidence = 0.95
	}

	report := &Report{AvgWin: decimal.Zero, AvgLoss: decimal.Zero, TotalFees: decimal.Zero}
	report.InitialCapital = decimal.Zero
	report.FinalCapital = decimal.Zero

	if len(snapshots) > 0 {
		report.StartDate = snapshots[0].Timestamp
		report.EndDate = snapshots[len(snapshots)-1].Timestamp
		report.DurationDays = int(report.EndDate.Sub(report.StartDate).Hours() / 24)
		report.InitialCapital = snapshots[0].TotalValue
		report.FinalCapital = snapshots[len(snapshots)-1].TotalValue
		if report.InitialCapital.IsPositive() {
			report.TotalReturn = report.FinalCapital.Sub(report.InitialCapital).
				Div(report.InitialCapital).InexactFloat64()
		}
	}

	values := make([]float64, len(snapshots))
	for i, s := range snapshots {
		values[i] = s.TotalValue.InexactFloat64()
	}
	returns := Returns(values)

	var wg sync.WaitGroup
	wg.Add(4)
	go func() {
		defer wg.Done()
		report.AnnualizedReturn = AnnualizedReturn(returns, p.PeriodsPerYear)
		report.Volatility = Volatility(returns, p.PeriodsPerYear)
		report.SharpeRatio = SharpeRatio(report.AnnualizedReturn, report.Volatility, p.RiskFreeRate)
		report.SortinoRatio = SortinoRatio(returns, p.RiskFreeRate, p.PeriodsPerYear)
		report.MaxDrawdown = MaxDrawdown(values)
		report.CalmarRatio = CalmarRatio(report.AnnualizedReturn, report.MaxDrawdown)
	}()
	go func() {
		defer wg.Done()
		report.WinRate = WinRate(returns)
		report.ProfitFactor = ProfitFactor(returns)
		report.VaR = VaR(returns, p.VaRConfidence)
		report.CVaR = CVaR(returns, p.VaRConfidence)
	}()
	go func() {
		defer wg.Done()
		report.TotalTrades, report.WinningTrades, report.LosingTrades,
			report.AvgWin, report.AvgLoss, report.TotalFees = tradeStats(trades)
	}()
	go func() {
		defer wg.Done()
		if p.BenchmarkReturns != nil {
			pr, br := alignSeries(returns, p.BenchmarkReturns)
			cmp := CompareToBenchmark(p.Benchmark, pr, br, p.RiskFreeRate, p.PeriodsPerYear)
			report.Benchmark = &cmp
		}
		if p.Sectors != nil {
			report.Sectors = SectorAttribution(trades, p.Sectors)
		}
	}()
	wg.Wait()

	return report
}

func tradeStats(trades []types.Trade) (total, wins, losses int, avgWin, avgLoss, fees decimal.Decimal) {
	avgWin = decimal.Zero
	avgLoss = decimal.Zero
	fees = decimal.Zero

	sumWins := decimal.Zero
	sumLosses := decimal.Zero
	for _, tr := range trades {
		total++
		fees = fees.Add(tr.Commission)
		switch {
		case tr.RealizedPnL.IsPositive():
			wins++
			sumWins = sumWins.Add(tr.RealizedPnL)
		case tr.RealizedPnL.IsNegative():
			losses++
			sumLosses = sumLosses.Add(tr.RealizedPnL.Abs())
		}
	}
	if wins > 0 {
		avgWin = sumWins.Div(decimal.NewFromInt(int64(wins)))
	}
	if losses > 0 {
		avgLoss = sumLosses.Div(decimal.NewFromInt(int64(losses)))
	}
	return total, wins, losses, avgWin, avgLoss, fees
}

// Print writes a human-readable summary of the report.
func (r *Report) Print(w io.Writer) {
	fmt.Fprintln(w, "===== Performance Report =====")
	fmt.Fprintf(w, "Period:              %s - %s (%d days)\n",
		r.StartDate.Format("2006-01-02"), r.EndDate.Format("2006-01-02"), r.DurationDays)
	fmt.Fprintf(w, "Initial Capital:     %s\n", r.InitialCapital.StringFixed(2))
	fmt.Fprintf(w, "Final Capital:       %s\n", r.FinalCapital.StringFixed(2))

	fmt.Fprintln(w, "\n-- Returns --")
	fmt.Fprintf(w, "Total Return:        %.2f%%\n", r.TotalReturn*100)
	fmt.Fprintf(w, "Annualized Return:   %.2f%%\n", r.AnnualizedReturn*100)
	fmt.Fprintf(w, "Volatility:          %.2f%%\n", r.Volatility*100)

	fmt.Fprintln(w, "\n-- Risk-Adjusted --")
	fmt.Fprintf(w, "Sharpe Ratio:        %.3f\n", r.SharpeRatio)
	fmt.Fprintf(w, "Sortino Ratio:       %.3f\n", r.SortinoRatio)
	fmt.Fprintf(w, "Calmar Ratio:        %.3f\n", r.CalmarRatio)
	fmt.Fprintf(w, "Max Drawdown:        %.2f%%\n", r.MaxDrawdown*100)
	fmt.Fprintf(w, "VaR / CVaR:          %.2f%% / %.2f%%\n", r.VaR*100, r.CVaR*100)

	fmt.Fprintln(w, "\n-- Trades --")
	fmt.Fprintf(w, "Total Trades:        %d (%d won / %d lost)\n", r.TotalTrades, r.WinningTrades, r.LosingTrades)
	fmt.Fprintf(w, "Win Rate:            %.1f%%\n", r.WinRate*100)
	fmt.Fprintf(w, "Profit Factor:       %.3f\n", r.ProfitFactor)
	fmt.Fprintf(w, "Avg Win / Avg Loss:  %s / %s\n", r.AvgWin.StringFixed(2), r.AvgLoss.StringFixed(2))
	fmt.Fprintf(w, "Total Fees:          %s\n", r.TotalFees.StringFixed(2))

	if r.Benchmark != nil {
		fmt.Fprintf(w, "\n-- Benchmark (%s) --\n", r.Benchmark.Benchmark)
		fmt.Fprintf(w, "Alpha:               %.4f\n", r.Benchmark.Alpha)
		fmt.Fprintf(w, "Beta:                %.3f\n", r.Benchmark.Beta)
		fmt.Fprintf(w, "Correlation:         %.3f\n", r.Benchmark.Correlation)
		fmt.Fprintf(w, "Tracking Error:      %.4f\n", r.Benchmark.TrackingError)
		fmt.Fprintf(w, "Information Ratio:   %.3f\n", r.Benchmark.InformationRatio)
	}
	fmt.Fprintln(w, "==============================")
}
