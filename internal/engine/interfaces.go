package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"tradesim/types"
)

// MarketDataSource serves quotes for the tracked symbol set. A
// historical source resolves quotes as of the given tick time; a live
// source returns the latest and may ignore asOf. Errors are treated
// as transient: the engine skips the tick and tries again on the
// next one.
type MarketDataSource interface {
	GetQuotes(ctx context.Context, symbols []string, asOf time.Time) (map[string]types.Quote, error)
}

// SignalSource produces candidate signals. No ordering guarantee is
// required; the engine filters and prioritizes.
type SignalSource interface {
	GetSignals(ctx context.Context, symbols []string, asOf time.Time) ([]types.Signal, error)
}

// OrderSink is the optional live-mode broker layer. When present the
// engine delegates fills to it instead of self-computing slippage and
// commission. Any non-filled status means "no position change".
type OrderSink interface {
	SubmitOrder(ctx context.Context, symbol string, action types.Action, quantity, limitPrice decimal.Decimal) (types.FillConfirmation, error)
}

// TradingCalendar enumerates the tradable days driving historical
// ticks, in ascending order.
type TradingCalendar interface {
	TradingDays(ctx context.Context, start, end time.Time) ([]time.Time, error)
}

// BenchmarkProvider supplies the benchmark return series aligned with
// the run period. Absence simply omits benchmark-relative metrics.
type BenchmarkProvider interface {
	Returns(ctx context.Context, symbol string, start, end time.Time) ([]float64, error)
}
