package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"tradesim/internal/analytics"
	"tradesim/types"
)

var (
	ErrMissingCalendar = errors.New("historical run requires a trading calendar")
	ErrAlreadyRan      = errors.New("engine has already run")
)

// Backtest is a single-use historical run over a date range.
type Backtest struct {
	*Engine
	start time.Time
	end   time.Time
}

// NewBacktest validates the configuration and builds a historical
// run. The calendar dependency supplies the tradable dates between
// start and end.
func NewBacktest(cfg Config, deps Deps, start, end time.Time) (*Backtest, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("%w: end date %s is not after start date %s",
			ErrConfigInvalid, end.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	if deps.Calendar == nil {
		return nil, ErrMissingCalendar
	}
	eng, err := newEngine(cfg, deps)
	if err != nil {
		return nil, err
	}
	return &Backtest{Engine: eng, start: start, end: end}, nil
}

// Run processes every trading day in ascending order, one tick at a
// time, then force-closes whatever is still open and builds the final
// report. Recoverable tick errors never abort the run; a cancelled
// context finalizes early and returns the partial report alongside
// the context error.
func (b *Backtest) Run(ctx context.Context, symbols []string) (report *analytics.Report, err error) {
	if b.State() != StateNotStarted {
		return nil, ErrAlreadyRan
	}

	defer func() {
		if r := recover(); r != nil {
			b.setState(StateFailed)
			b.finishEvents()
			report = nil
			err = fmt.Errorf("backtest worker panic: %v", r)
			b.log.Error("backtest failed", zap.Any("panic", r))
		}
	}()

	days, err := b.deps.Calendar.TradingDays(ctx, b.start, b.end)
	if err != nil {
		return nil, fmt.Errorf("loading trading calendar: %w", err)
	}

	b.mu.Lock()
	b.symbols = append([]string(nil), symbols...)
	b.state = StateRunning
	b.mu.Unlock()

	b.log.Info("backtest started",
		zap.Time("start", b.start),
		zap.Time("end", b.end),
		zap.Int("tradingDays", len(days)),
		zap.Strings("symbols", symbols))

	bar := progressbar.Default(int64(len(days)), "backtesting")
	var cancelled error
	for _, day := range days {
		if ctxErr := ctx.Err(); ctxErr != nil {
			cancelled = ctxErr
			break
		}
		b.tick(ctx, day, true)
		bar.Add(1)
	}

	b.mu.Lock()
	b.forceClose(ctx, b.end, types.ExitEndOfRun)
	b.ledger.MarkToMarket(b.lastQuotes)
	b.ledger.Snapshot(b.end)
	b.state = StateCompleted
	b.mu.Unlock()
	b.finishEvents()

	report = b.buildReport(ctx, b.start, b.end)
	b.log.Info("backtest completed",
		zap.Int("trades", report.TotalTrades),
		zap.Float64("totalReturn", report.TotalReturn))
	return report, cancelled
}

// RunHistorical is the one-call historical entry point: configure,
// run, report.
func RunHistorical(ctx context.Context, cfg Config, deps Deps, symbols []string, start, end time.Time) (*analytics.Report, error) {
	bt, err := NewBacktest(cfg, deps, start, end)
	if err != nil {
		return nil, err
	}
	return bt.Run(ctx, symbols)
}
