package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradesim/internal/analytics"
	"tradesim/internal/ledger"
	"tradesim/internal/risk"
	"tradesim/types"
)

// RunState is the lifecycle state of one engine run. Historical runs
// move NotStarted → Running → Completed/Failed; live sessions move
// NotStarted → Running ⇄ Paused → Stopped, or Failed on a worker
// panic.
type RunState string

const (
	StateNotStarted RunState = "not_started"
	StateRunning    RunState = "running"
	StatePaused     RunState = "paused"
	StateCompleted  RunState = "completed"
	StateStopped    RunState = "stopped"
	StateFailed     RunState = "failed"
)

var (
	ErrMissingMarketData = errors.New("market data source is required")
	ErrMissingSignals    = errors.New("signal source is required")
)

// Deps are the external collaborators consumed by the engine. Market
// and Signals are required; the rest are optional and their absence
// disables the corresponding behavior.
type Deps struct {
	Market    MarketDataSource
	Signals   SignalSource
	Orders    OrderSink
	Calendar  TradingCalendar
	Benchmark BenchmarkProvider

	// Sectors maps symbol → sector for report attribution.
	Sectors map[string]string

	Logger *zap.Logger
}

// Engine drives the signal-to-position loop shared by historical and
// live runs. One tick processes one historical date or one live poll
// interval; the tick sequence is identical in both modes.
type Engine struct {
	cfg  Config
	deps Deps
	log  *zap.Logger

	ledger *ledger.Ledger

	events        chan Event
	droppedEvents atomic.Uint64
	closeEvents   sync.Once

	openMins  int
	closeMins int

	mu          sync.Mutex
	state       RunState
	symbols     []string
	currentDay  time.Time
	tradesToday int
	halted      bool
	lastQuotes  map[string]types.Quote
	entryCosts  map[string]entryCosts
}

// entryCosts carries the entry half of a round trip until the close
// tick assembles the Trade record.
type entryCosts struct {
	commission decimal.Decimal
	slippage   decimal.Decimal
	confidence float64
	reason     string
	enteredAt  time.Time
}

func newEngine(cfg Config, deps Deps) (*Engine, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Market == nil {
		return nil, ErrMissingMarketData
	}
	if deps.Signals == nil {
		return nil, ErrMissingSignals
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	openMins, _ := parseClock(cfg.MarketOpen)
	closeMins, _ := parseClock(cfg.MarketClose)

	return &Engine{
		cfg:        cfg,
		deps:       deps,
		log:        log,
		ledger:     ledger.New(cfg.InitialCapital, cfg.Currency),
		events:     make(chan Event, eventBufferSize),
		openMins:   openMins,
		closeMins:  closeMins,
		state:      StateNotStarted,
		entryCosts: make(map[string]entryCosts),
	}, nil
}

// Config returns the run configuration.
func (e *Engine) Config() Config { return e.cfg }

// State returns the current lifecycle state.
func (e *Engine) State() RunState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s RunState) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// tick runs one engine step at the given time. When active is false
// only monitoring runs (quotes, mark-to-market, snapshot) so paused
// sessions keep their data current. Returns true when the drawdown
// circuit breaker tripped on this tick.
func (e *Engine) tick(ctx context.Context, now time.Time, active bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	quotes, err := e.deps.Market.GetQuotes(ctx, e.symbols, now)
	if err != nil {
		e.log.Warn("quote fetch failed, skipping tick",
			zap.Time("tick", now), zap.Error(err))
		e.publish(Event{Type: EventEngineError, Time: now, Err: err})
		return false
	}
	e.lastQuotes = quotes

	e.ledger.MarkToMarket(quotes)
	e.ledger.Snapshot(now)

	if !active {
		return false
	}

	e.rollTradingDay(now)
	e.evaluateExits(ctx, quotes, now)

	if risk.DrawdownBreached(e.ledger.Snapshots(), e.cfg.MaxDrawdownPct) {
		e.log.Warn("drawdown circuit breaker tripped",
			zap.Float64("drawdown", risk.CurrentDrawdown(e.ledger.Snapshots())),
			zap.Float64("limit", e.cfg.MaxDrawdownPct))
		e.forceClose(ctx, now, types.ExitMaxDrawdown)
		e.halted = true
		return true
	}

	if !e.halted {
		e.enterPositions(ctx, quotes, now)
	}
	return false
}

func (e *Engine) rollTradingDay(now time.Time) {
	y, m, d := now.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	if !day.Equal(e.currentDay) {
		e.currentDay = day
		e.tradesToday = 0
	}
}

func (e *Engine) evaluateExits(ctx context.Context, quotes map[string]types.Quote, now time.Time) {
	for _, pos := range e.ledger.Positions() {
		q, ok := quotes[pos.Symbol]
		if !ok {
			continue
		}
		reason := risk.EvaluateExit(pos, q.Price, e.cfg.StopLossPct, e.cfg.TakeProfitPct, e.cfg.ExitTieBreak)
		if reason == "" {
			continue
		}
		e.closePosition(ctx, pos, q.Price, now, reason)
	}
}

func (e *Engine) enterPositions(ctx context.Context, quotes map[string]types.Quote, now time.Time) {
	if e.atDailyCap() {
		return
	}
	if e.cfg.MarketHoursOnly && !e.marketOpen(now) {
		return
	}

	sigs, err := e.deps.Signals.GetSignals(ctx, e.symbols, now)
	if err != nil {
		e.log.Warn("signal fetch failed", zap.Time("tick", now), zap.Error(err))
		e.publish(Event{Type: EventEngineError, Time: now, Err: err})
		return
	}

	for _, sig := range sigs {
		e.publish(Event{Type: EventSignalObserved, Time: now, Symbol: sig.Symbol, Signal: &sig})

		if sig.Confidence < e.cfg.MinConfidence {
			continue
		}
		if sig.Action != types.ActionBuy && sig.Action != types.ActionSell {
			continue
		}
		if pos, open := e.ledger.Position(sig.Symbol); open {
			// A confident signal against the held side closes the
			// position; a same-side signal changes nothing.
			if types.SideForEntry(sig.Action) != pos.Side {
				if q, ok := quotes[sig.Symbol]; ok {
					e.closePosition(ctx, pos, q.Price, now, types.ExitSignal)
				}
			}
			continue
		}
		q, ok := quotes[sig.Symbol]
		if !ok {
			continue
		}
		if e.atDailyCap() {
			return
		}
		e.openPosition(ctx, sig, q.Price, now)
	}
}

func (e *Engine) atDailyCap() bool {
	return e.cfg.MaxDailyTrades > 0 && e.tradesToday >= e.cfg.MaxDailyTrades
}

func (e *Engine) openPosition(ctx context.Context, sig types.Signal, price decimal.Decimal, now time.Time) {
	qty := risk.SizePosition(sig, e.ledger.TotalValue(), price, e.cfg.MaxPositionSize, e.cfg.SizingMethod)
	if !qty.IsPositive() {
		return
	}

	fillPrice := e.slip(price, sig.Action)
	commission := fillPrice.Mul(qty).Mul(e.cfg.CommissionRate)

	if e.deps.Orders != nil {
		conf, err := e.deps.Orders.SubmitOrder(ctx, sig.Symbol, sig.Action, qty, fillPrice)
		if err != nil {
			e.log.Warn("order submission failed",
				zap.String("symbol", sig.Symbol), zap.Error(err))
			e.publish(Event{Type: EventEngineError, Time: now, Symbol: sig.Symbol, Err: err})
			return
		}
		if conf.Status != types.OrderFilled {
			e.log.Debug("order not filled",
				zap.String("symbol", sig.Symbol),
				zap.String("status", string(conf.Status)),
				zap.String("reason", conf.RejectReason))
			return
		}
		qty, fillPrice, commission = conf.FilledQty, conf.AvgPrice, conf.Commission
	}
	slipCost := fillPrice.Sub(price).Abs().Mul(qty)

	var err error
	if types.SideForEntry(sig.Action) == types.SideShort {
		err = e.ledger.OpenShort(sig.Symbol, qty, fillPrice, commission)
	} else {
		err = e.ledger.ApplyFill(sig.Symbol, types.ActionBuy, qty, fillPrice, commission)
	}
	if err != nil {
		// Recoverable: the candidate is dropped, not retried.
		e.log.Debug("entry dropped",
			zap.String("symbol", sig.Symbol),
			zap.String("quantity", qty.String()),
			zap.Error(err))
		return
	}

	e.entryCosts[sig.Symbol] = entryCosts{
		commission: commission,
		slippage:   slipCost,
		confidence: sig.Confidence,
		reason:     sig.Reason,
		enteredAt:  now,
	}
	e.tradesToday++

	pos, _ := e.ledger.Position(sig.Symbol)
	e.log.Info("position opened",
		zap.String("symbol", sig.Symbol),
		zap.String("side", string(pos.Side)),
		zap.String("quantity", qty.String()),
		zap.String("price", fillPrice.String()))
	e.publish(Event{Type: EventTradeOpened, Time: now, Symbol: sig.Symbol, Position: &pos})
}

func (e *Engine) closePosition(ctx context.Context, pos types.Position, price decimal.Decimal, now time.Time, reason types.ExitReason) {
	action := types.ActionSell
	if pos.Side == types.SideShort {
		action = types.ActionBuy
	}

	qty := pos.Quantity
	fillPrice := e.slip(price, action)
	commission := fillPrice.Mul(qty).Mul(e.cfg.CommissionRate)

	if e.deps.Orders != nil {
		conf, err := e.deps.Orders.SubmitOrder(ctx, pos.Symbol, action, qty, fillPrice)
		if err != nil {
			e.log.Warn("close order submission failed",
				zap.String("symbol", pos.Symbol), zap.Error(err))
			e.publish(Event{Type: EventEngineError, Time: now, Symbol: pos.Symbol, Err: err})
			return
		}
		if conf.Status != types.OrderFilled {
			e.log.Debug("close order not filled",
				zap.String("symbol", pos.Symbol),
				zap.String("status", string(conf.Status)))
			return
		}
		qty, fillPrice, commission = conf.FilledQty, conf.AvgPrice, conf.Commission
	}
	slipCost := fillPrice.Sub(price).Abs().Mul(qty)

	before := e.ledger.PnL().Realized
	if err := e.ledger.ApplyFill(pos.Symbol, action, qty, fillPrice, commission); err != nil {
		e.log.Warn("exit fill rejected",
			zap.String("symbol", pos.Symbol),
			zap.String("reason", string(reason)),
			zap.Error(err))
		return
	}
	realized := e.ledger.PnL().Realized.Sub(before)

	// A partially filled close leaves the position open; its entry
	// costs are attributed pro rata to the closed quantity and the
	// remainder stays behind for the eventual final close.
	costs := e.entryCosts[pos.Symbol]
	entryCommission := costs.commission
	entrySlippage := costs.slippage
	if qty.LessThan(pos.Quantity) && pos.Quantity.IsPositive() {
		frac := qty.Div(pos.Quantity)
		entryCommission = costs.commission.Mul(frac)
		entrySlippage = costs.slippage.Mul(frac)
	}
	if _, open := e.ledger.Position(pos.Symbol); open {
		costs.commission = costs.commission.Sub(entryCommission)
		costs.slippage = costs.slippage.Sub(entrySlippage)
		e.entryCosts[pos.Symbol] = costs
	} else {
		delete(e.entryCosts, pos.Symbol)
	}

	entryTime := costs.enteredAt
	if entryTime.IsZero() {
		entryTime = pos.EntryTime
	}

	trade := types.Trade{
		TradeID:     uuid.NewString(),
		Symbol:      pos.Symbol,
		Side:        pos.Side,
		Quantity:    qty,
		EntryPrice:  pos.AvgEntryPrice,
		ExitPrice:   fillPrice,
		Commission:  entryCommission.Add(commission),
		Slippage:    entrySlippage.Add(slipCost),
		RealizedPnL: realized,
		Confidence:  costs.confidence,
		Reason:      costs.reason,
		EntryTime:   entryTime,
		ExitTime:    now,
		ExitReason:  reason,
	}
	e.ledger.RecordTrade(trade)

	e.log.Info("position closed",
		zap.String("symbol", pos.Symbol),
		zap.String("reason", string(reason)),
		zap.String("pnl", realized.String()))
	e.publish(Event{Type: EventTradeClosed, Time: now, Symbol: pos.Symbol, Trade: &trade})
}

// forceClose closes every open position at its latest known price.
// Callers hold e.mu.
func (e *Engine) forceClose(ctx context.Context, now time.Time, reason types.ExitReason) {
	for _, pos := range e.ledger.Positions() {
		price := pos.MarkPrice
		if q, ok := e.lastQuotes[pos.Symbol]; ok {
			price = q.Price
		}
		if !price.IsPositive() {
			price = pos.AvgEntryPrice
		}
		e.closePosition(ctx, pos, price, now, reason)
	}
}

// slip applies the adverse price adjustment for the fill direction:
// buys fill above the quote, sells below it.
func (e *Engine) slip(price decimal.Decimal, action types.Action) decimal.Decimal {
	one := decimal.NewFromInt(1)
	if action == types.ActionBuy {
		return price.Mul(one.Add(e.cfg.SlippageRate))
	}
	return price.Mul(one.Sub(e.cfg.SlippageRate))
}

func (e *Engine) marketOpen(now time.Time) bool {
	switch now.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	mins := now.Hour()*60 + now.Minute()
	return mins >= e.openMins && mins < e.closeMins
}

func (e *Engine) buildReport(ctx context.Context, start, end time.Time) *analytics.Report {
	p := analytics.Params{
		RiskFreeRate: e.cfg.RiskFreeRate,
		Benchmark:    e.cfg.Benchmark,
		Sectors:      e.deps.Sectors,
	}
	if e.deps.Benchmark != nil && e.cfg.Benchmark != "" {
		returns, err := e.deps.Benchmark.Returns(ctx, e.cfg.Benchmark, start, end)
		if err != nil {
			e.log.Warn("benchmark series unavailable",
				zap.String("benchmark", e.cfg.Benchmark), zap.Error(err))
		} else {
			p.BenchmarkReturns = returns
		}
	}
	return analytics.BuildReport(e.ledger.Snapshots(), e.ledger.Trades(), p)
}

func (e *Engine) finishEvents() {
	e.closeEvents.Do(func() { close(e.events) })
}

// Positions lists the open positions.
func (e *Engine) Positions() []types.Position { return e.ledger.Positions() }

// Trades lists the closed trades in close order.
func (e *Engine) Trades() []types.Trade { return e.ledger.Trades() }

// Snapshots lists the per-tick portfolio snapshots.
func (e *Engine) Snapshots() []types.Snapshot { return e.ledger.Snapshots() }
