package risk

import (
	"github.com/shopspring/decimal"

	"tradesim/types"
)

// SizingMethod selects how new positions are sized.
type SizingMethod string

const (
	SizeEqualWeight        SizingMethod = "equal_weight"
	SizeConfidenceWeighted SizingMethod = "confidence_weighted"
)

// TieBreak decides which exit wins when a single evaluation crosses
// both the stop-loss and the take-profit bound (extreme gaps only).
type TieBreak string

const (
	TieBreakTakeProfit TieBreak = "take_profit"
	TieBreakStopLoss   TieBreak = "stop_loss"
)

// SizePosition maps a signal and the current portfolio value onto a
// whole-unit quantity. Equal weight allocates maxPositionSize of the
// portfolio; confidence weighting scales that fraction by the signal
// confidence. Rounds down to whole units, floors at 1, and returns
// zero only when the portfolio value or the reference price is not
// positive.
func SizePosition(sig types.Signal, portfolioValue, referencePrice decimal.Decimal, maxPositionSize float64, method SizingMethod) decimal.Decimal {
	if !portfolioValue.IsPositive() || !referencePrice.IsPositive() {
		return decimal.Zero
	}

	weight := maxPositionSize
	if method == SizeConfidenceWeighted {
		weight = maxPositionSize * sig.Confidence
	}

	positionValue := portfolioValue.Mul(decimal.NewFromFloat(weight))
	qty := positionValue.Div(referencePrice).Floor()
	if qty.LessThan(decimal.NewFromInt(1)) {
		return decimal.NewFromInt(1)
	}
	return qty
}

// EvaluateExit checks an open position against the stop-loss and
// take-profit thresholds at the current price. Short positions mirror
// the sign of the move. Returns the empty reason when neither bound
// is crossed.
func EvaluateExit(pos types.Position, currentPrice decimal.Decimal, stopLossPct, takeProfitPct float64, tie TieBreak) types.ExitReason {
	if !pos.AvgEntryPrice.IsPositive() || !currentPrice.IsPositive() {
		return ""
	}

	move := currentPrice.Sub(pos.AvgEntryPrice).Div(pos.AvgEntryPrice).InexactFloat64()
	if pos.Side == types.SideShort {
		move = -move
	}

	stopHit := move <= -stopLossPct
	profitHit := move >= takeProfitPct

	switch {
	case stopHit && profitHit:
		if tie == TieBreakStopLoss {
			return types.ExitStopLoss
		}
		return types.ExitTakeProfit
	case profitHit:
		return types.ExitTakeProfit
	case stopHit:
		return types.ExitStopLoss
	default:
		return ""
	}
}

// CurrentDrawdown is the fractional decline of the latest snapshot
// value from the running peak over the snapshot history.
func CurrentDrawdown(snapshots []types.Snapshot) float64 {
	if len(snapshots) == 0 {
		return 0
	}

	peak := snapshots[0].TotalValue
	for _, s := range snapshots[1:] {
		if s.TotalValue.GreaterThan(peak) {
			peak = s.TotalValue
		}
	}
	if !peak.IsPositive() {
		return 0
	}

	current := snapshots[len(snapshots)-1].TotalValue
	return peak.Sub(current).Div(peak).InexactFloat64()
}

// DrawdownBreached reports whether the running-peak drawdown exceeds
// the configured limit. Monotone in the limit: tightening it can only
// add breaches.
func DrawdownBreached(snapshots []types.Snapshot, limit float64) bool {
	return CurrentDrawdown(snapshots) > limit
}
