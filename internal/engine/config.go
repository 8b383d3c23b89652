package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tradesim/internal/risk"
)

// ErrConfigInvalid is returned before any tick runs when the run
// configuration cannot be used.
var ErrConfigInvalid = errors.New("configuration invalid")

// Config is the immutable per-run configuration. Construct a new
// value for every run; a running engine never re-reads a mutated one.
type Config struct {
	InitialCapital decimal.Decimal `json:"initialCapital"`
	Currency       string          `json:"currency"`

	CommissionRate decimal.Decimal `json:"commissionRate"`
	SlippageRate   decimal.Decimal `json:"slippageRate"`

	MaxPositionSize float64           `json:"maxPositionSize"`
	MinConfidence   float64           `json:"minConfidence"`
	StopLossPct     float64           `json:"stopLossPct"`
	TakeProfitPct   float64           `json:"takeProfitPct"`
	MaxDrawdownPct  float64           `json:"maxDrawdownPct"`
	MaxDailyTrades  int               `json:"maxDailyTrades"`
	SizingMethod    risk.SizingMethod `json:"sizingMethod"`
	ExitTieBreak    risk.TieBreak     `json:"exitTieBreak"`

	RiskFreeRate float64 `json:"riskFreeRate"`
	Benchmark    string  `json:"benchmark,omitempty"`

	// Live mode only.
	UpdateInterval  time.Duration `json:"updateInterval"`
	MarketHoursOnly bool          `json:"marketHoursOnly"`
	MarketOpen      string        `json:"marketOpen"`
	MarketClose     string        `json:"marketClose"`
}

// WithDefaults returns a copy with the zero-value fields replaced by
// the standard defaults. Validate expects a defaulted config.
func (c Config) WithDefaults() Config {
	if c.Currency == "" {
		c.Currency = "RUB"
	}
	if c.SizingMethod == "" {
		c.SizingMethod = risk.SizeEqualWeight
	}
	if c.ExitTieBreak == "" {
		c.ExitTieBreak = risk.TieBreakTakeProfit
	}
	if c.UpdateInterval == 0 {
		c.UpdateInterval = time.Minute
	}
	if c.MarketOpen == "" {
		c.MarketOpen = "10:00"
	}
	if c.MarketClose == "" {
		c.MarketClose = "18:45"
	}
	return c
}

// Validate checks the configuration before a run starts. The error
// wraps ErrConfigInvalid with the first offending field.
func (c Config) Validate() error {
	if !c.InitialCapital.IsPositive() {
		return fmt.Errorf("%w: initial capital must be positive", ErrConfigInvalid)
	}
	if c.CommissionRate.IsNegative() || c.CommissionRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: commission rate must be in [0, 1)", ErrConfigInvalid)
	}
	if c.SlippageRate.IsNegative() || c.SlippageRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: slippage rate must be in [0, 1)", ErrConfigInvalid)
	}
	if c.MaxPositionSize <= 0 || c.MaxPositionSize > 1 {
		return fmt.Errorf("%w: max position size must be in (0, 1]", ErrConfigInvalid)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("%w: min confidence must be in [0, 1]", ErrConfigInvalid)
	}
	if c.StopLossPct <= 0 || c.TakeProfitPct <= 0 {
		return fmt.Errorf("%w: stop-loss and take-profit percentages must be positive", ErrConfigInvalid)
	}
	if c.MaxDrawdownPct <= 0 || c.MaxDrawdownPct >= 1 {
		return fmt.Errorf("%w: max drawdown must be in (0, 1)", ErrConfigInvalid)
	}
	if c.MaxDailyTrades < 0 {
		return fmt.Errorf("%w: max daily trades must not be negative", ErrConfigInvalid)
	}
	switch c.SizingMethod {
	case risk.SizeEqualWeight, risk.SizeConfidenceWeighted:
	default:
		return fmt.Errorf("%w: unknown sizing method %q", ErrConfigInvalid, c.SizingMethod)
	}
	switch c.ExitTieBreak {
	case risk.TieBreakTakeProfit, risk.TieBreakStopLoss:
	default:
		return fmt.Errorf("%w: unknown exit tie-break %q", ErrConfigInvalid, c.ExitTieBreak)
	}
	if c.UpdateInterval <= 0 {
		return fmt.Errorf("%w: update interval must be positive", ErrConfigInvalid)
	}
	if _, err := parseClock(c.MarketOpen); err != nil {
		return fmt.Errorf("%w: market open %q: %v", ErrConfigInvalid, c.MarketOpen, err)
	}
	if _, err := parseClock(c.MarketClose); err != nil {
		return fmt.Errorf("%w: market close %q: %v", ErrConfigInvalid, c.MarketClose, err)
	}
	return nil
}

// parseClock converts an "HH:MM" wall-clock string into minutes from
// midnight.
func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}
