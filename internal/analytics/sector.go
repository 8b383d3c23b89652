package analytics

import (
	"github.com/shopspring/decimal"

	"tradesim/types"
)

// SectorPerformance aggregates realized trade results for one sector.
type SectorPerformance struct {
	Sector      string          `json:"sector"`
	Symbols     []string        `json:"symbols"`
	Weight      float64         `json:"weight"`
	RealizedPnL decimal.Decimal `json:"realizedPnl"`
	TradeCount  int             `json:"tradeCount"`
	WinCount    int             `json:"winCount"`
}

// SectorAttribution groups closed trades by the externally supplied
// symbol→sector mapping. Symbols without a mapping fall into "other".
// Weight is each sector's share of total traded notional.
func SectorAttribution(trades []types.Trade, sectors map[string]string) map[string]SectorPerformance {
	if len(trades) == 0 {
		return nil
	}

	perfs := make(map[string]SectorPerformance)
	notional := make(map[string]decimal.Decimal)
	totalNotional := decimal.Zero
	seen := make(map[string]map[string]bool)

	for _, tr := range trades {
		sector, ok := sectors[tr.Symbol]
		if !ok {
			sector = "other"
		}

		perf := perfs[sector]
		perf.Sector = sector
		perf.RealizedPnL = perf.RealizedPnL.Add(tr.RealizedPnL)
		perf.TradeCount++
		if tr.RealizedPnL.IsPositive() {
			perf.WinCount++
		}
		if seen[sector] == nil {
			seen[sector] = make(map[string]bool)
		}
		if !seen[sector][tr.Symbol] {
			seen[sector][tr.Symbol] = true
			perf.Symbols = append(perf.Symbols, tr.Symbol)
		}
		perfs[sector] = perf

		value := tr.EntryPrice.Mul(tr.Quantity)
		notional[sector] = notional[sector].Add(value)
		totalNotional = totalNotional.Add(value)
	}

	if totalNotional.IsPositive() {
		for sector, perf := range perfs {
			perf.Weight = notional[sector].Div(totalNotional).InexactFloat64()
			perfs[sector] = perf
		}
	}
	return perfs
}
