package ledger

import (
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tradesim/types"
)

var (
	ErrInsufficientFunds    = errors.New("insufficient funds when applying fill")
	ErrNoSuchPosition       = errors.New("no open position for symbol")
	ErrInsufficientQuantity = errors.New("fill quantity exceeds held quantity")
	ErrPositionExists       = errors.New("position already open for symbol")
)

// Ledger owns the cash balance and the set of open positions. All
// mutating operations run under one mutex so a concurrent reader never
// observes a half-applied fill; read accessors return copies taken
// under the same boundary.
type Ledger struct {
	mu sync.Mutex

	cash        decimal.Decimal
	currency    string
	initialCash decimal.Decimal
	positions   map[string]*types.Position
	trades      []types.Trade
	snapshots   []types.Snapshot
	realizedPnL decimal.Decimal
	commissions decimal.Decimal
}

// PnLSummary is a point-in-time breakdown of profit and loss.
type PnLSummary struct {
	Unrealized  decimal.Decimal
	Realized    decimal.Decimal
	Total       decimal.Decimal
	Daily       decimal.Decimal
	TotalReturn float64
}

func New(initialCash decimal.Decimal, currency string) *Ledger {
	return &Ledger{
		cash:        initialCash,
		currency:    currency,
		initialCash: initialCash,
		positions:   make(map[string]*types.Position),
	}
}

// ApplyFill applies a simulated fill. A buy increases or creates a
// long position (or covers an open short); a sell reduces or removes
// a long position (or scales into an open short). Fills that would
// drive cash negative or sell more than held are rejected and leave
// the ledger unchanged. Sells never open a position implicitly: use
// OpenShort for short entries.
func (l *Ledger) ApplyFill(symbol string, action types.Action, quantity, price, commission decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch action {
	case types.ActionBuy:
		return l.applyBuy(symbol, quantity, price, commission)
	case types.ActionSell:
		return l.applySell(symbol, quantity, price, commission)
	default:
		return errors.New("fill action must be BUY or SELL")
	}
}

func (l *Ledger) applyBuy(symbol string, quantity, price, commission decimal.Decimal) error {
	pos := l.positions[symbol]

	if pos != nil && pos.Side == types.SideShort {
		// Buy against an open short is a cover.
		if quantity.GreaterThan(pos.Quantity) {
			return ErrInsufficientQuantity
		}
		cost := price.Mul(quantity).Add(commission)
		newCash := l.cash.Sub(cost)
		if newCash.IsNegative() {
			return ErrInsufficientFunds
		}
		pnl := pos.AvgEntryPrice.Sub(price).Mul(quantity).Sub(commission)
		l.cash = newCash
		l.settleClose(pos, quantity, price, pnl, commission)
		return nil
	}

	cost := price.Mul(quantity).Add(commission)
	newCash := l.cash.Sub(cost)
	if newCash.IsNegative() {
		return ErrInsufficientFunds
	}
	l.cash = newCash
	l.commissions = l.commissions.Add(commission)

	if pos == nil {
		l.positions[symbol] = &types.Position{
			Symbol:        symbol,
			Side:          types.SideLong,
			Quantity:      quantity,
			AvgEntryPrice: price,
			MarkPrice:     price,
			MarketValue:   price.Mul(quantity),
			EntryTime:     time.Now(),
		}
		return nil
	}

	// Scale-in: entry price becomes the volume-weighted average.
	pos.AvgEntryPrice = weightedAvg(pos.AvgEntryPrice, pos.Quantity, price, quantity)
	pos.Quantity = pos.Quantity.Add(quantity)
	pos.MarkPrice = price
	pos.MarketValue = pos.MarkPrice.Mul(pos.Quantity)
	pos.UnrealizedPnL = unrealized(pos)
	return nil
}

func (l *Ledger) applySell(symbol string, quantity, price, commission decimal.Decimal) error {
	pos := l.positions[symbol]
	if pos == nil {
		return ErrNoSuchPosition
	}

	if pos.Side == types.SideShort {
		// Scale into the short; proceeds are credited like the entry.
		proceeds := price.Mul(quantity).Sub(commission)
		pos.AvgEntryPrice = weightedAvg(pos.AvgEntryPrice, pos.Quantity, price, quantity)
		pos.Quantity = pos.Quantity.Add(quantity)
		pos.MarkPrice = price
		pos.MarketValue = pos.MarkPrice.Mul(pos.Quantity).Neg()
		pos.UnrealizedPnL = unrealized(pos)
		l.cash = l.cash.Add(proceeds)
		l.commissions = l.commissions.Add(commission)
		return nil
	}

	if quantity.GreaterThan(pos.Quantity) {
		return ErrInsufficientQuantity
	}

	costBasis := pos.AvgEntryPrice.Mul(quantity)
	proceeds := price.Mul(quantity).Sub(commission)
	pnl := proceeds.Sub(costBasis)

	l.cash = l.cash.Add(proceeds)
	l.settleClose(pos, quantity, price, pnl, commission)
	return nil
}

// OpenShort opens an explicit short position; the sale proceeds are
// credited to cash and the mark-to-market liability offsets them.
func (l *Ledger) OpenShort(symbol string, quantity, price, commission decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.positions[symbol]; ok {
		return ErrPositionExists
	}
	proceeds := price.Mul(quantity).Sub(commission)
	if l.cash.Add(proceeds).IsNegative() {
		return ErrInsufficientFunds
	}
	l.cash = l.cash.Add(proceeds)
	l.commissions = l.commissions.Add(commission)
	l.positions[symbol] = &types.Position{
		Symbol:        symbol,
		Side:          types.SideShort,
		Quantity:      quantity,
		AvgEntryPrice: price,
		MarkPrice:     price,
		MarketValue:   price.Mul(quantity).Neg(),
		EntryTime:     time.Now(),
	}
	return nil
}

func (l *Ledger) settleClose(pos *types.Position, quantity, price, pnl, commission decimal.Decimal) {
	pos.Quantity = pos.Quantity.Sub(quantity)
	pos.RealizedPnL = pos.RealizedPnL.Add(pnl)
	pos.MarkPrice = price
	l.realizedPnL = l.realizedPnL.Add(pnl)
	l.commissions = l.commissions.Add(commission)

	if pos.Quantity.IsZero() {
		delete(l.positions, pos.Symbol)
		return
	}
	mv := pos.MarkPrice.Mul(pos.Quantity)
	if pos.Side == types.SideShort {
		mv = mv.Neg()
	}
	pos.MarketValue = mv
	pos.UnrealizedPnL = unrealized(pos)
}

// MarkToMarket updates every open position's mark price, market value
// and unrealized P&L from the quote map. Symbols without a quote keep
// their previous mark. Idempotent for a given quote map.
func (l *Ledger) MarkToMarket(quotes map[string]types.Quote) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for symbol, pos := range l.positions {
		q, ok := quotes[symbol]
		if !ok {
			continue
		}
		pos.MarkPrice = q.Price
		mv := pos.MarkPrice.Mul(pos.Quantity)
		if pos.Side == types.SideShort {
			mv = mv.Neg()
		}
		pos.MarketValue = mv
		pos.UnrealizedPnL = unrealized(pos)
	}
}

// Snapshot appends and returns an immutable snapshot of the ledger.
func (l *Ledger) Snapshot(now time.Time) types.Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	positionsValue := decimal.Zero
	for _, pos := range l.positions {
		positionsValue = positionsValue.Add(pos.MarketValue)
	}
	totalValue := l.cash.Add(positionsValue)

	dailyPnL := decimal.Zero
	if n := len(l.snapshots); n > 0 {
		dailyPnL = totalValue.Sub(l.snapshots[n-1].TotalValue)
	}

	snap := types.Snapshot{
		Timestamp:      now,
		TotalValue:     totalValue,
		CashBalance:    l.cash,
		PositionsValue: positionsValue,
		DailyPnL:       dailyPnL,
		TotalPnL:       totalValue.Sub(l.initialCash),
		PositionsCount: len(l.positions),
	}
	l.snapshots = append(l.snapshots, snap)
	return snap
}

// RecordTrade appends a closed trade to the trade history.
func (l *Ledger) RecordTrade(t types.Trade) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.trades = append(l.trades, t)
}

func (l *Ledger) AvailableCash() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cash
}

func (l *Ledger) TotalValue() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := l.cash
	for _, pos := range l.positions {
		total = total.Add(pos.MarketValue)
	}
	return total
}

func (l *Ledger) InitialCash() decimal.Decimal {
	return l.initialCash
}

func (l *Ledger) Currency() string {
	return l.currency
}

// Position returns a copy of the open position for symbol, if any.
func (l *Ledger) Position(symbol string) (types.Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos, ok := l.positions[symbol]
	if !ok {
		return types.Position{}, false
	}
	return *pos, true
}

// Positions returns copies of all open positions.
func (l *Ledger) Positions() []types.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]types.Position, 0, len(l.positions))
	for _, pos := range l.positions {
		out = append(out, *pos)
	}
	return out
}

func (l *Ledger) Trades() []types.Trade {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]types.Trade, len(l.trades))
	copy(out, l.trades)
	return out
}

func (l *Ledger) Snapshots() []types.Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]types.Snapshot, len(l.snapshots))
	copy(out, l.snapshots)
	return out
}

func (l *Ledger) TotalCommissions() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.commissions
}

// PnL breaks down the ledger's profit and loss at the current marks.
func (l *Ledger) PnL() PnLSummary {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pnlLocked()
}

func (l *Ledger) pnlLocked() PnLSummary {
	unrealizedTotal := decimal.Zero
	positionsValue := decimal.Zero
	for _, pos := range l.positions {
		unrealizedTotal = unrealizedTotal.Add(pos.UnrealizedPnL)
		positionsValue = positionsValue.Add(pos.MarketValue)
	}
	total := l.cash.Add(positionsValue)

	daily := decimal.Zero
	if n := len(l.snapshots); n > 0 {
		daily = total.Sub(l.snapshots[n-1].TotalValue)
	}

	ret := 0.0
	if l.initialCash.IsPositive() {
		ret = total.Sub(l.initialCash).Div(l.initialCash).InexactFloat64()
	}

	return PnLSummary{
		Unrealized:  unrealizedTotal,
		Realized:    l.realizedPnL,
		Total:       total.Sub(l.initialCash),
		Daily:       daily,
		TotalReturn: ret,
	}
}

// Summary is a point-in-time portfolio overview for status queries.
type Summary struct {
	Cash           decimal.Decimal `json:"cash"`
	PositionsValue decimal.Decimal `json:"positionsValue"`
	TotalValue     decimal.Decimal `json:"totalValue"`
	Currency       string          `json:"currency"`
	PositionsCount int             `json:"positionsCount"`
	TradesCount    int             `json:"tradesCount"`
	PnL            PnLSummary      `json:"pnl"`
}

func (l *Ledger) Summary() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()

	positionsValue := decimal.Zero
	for _, pos := range l.positions {
		positionsValue = positionsValue.Add(pos.MarketValue)
	}
	return Summary{
		Cash:           l.cash,
		PositionsValue: positionsValue,
		TotalValue:     l.cash.Add(positionsValue),
		Currency:       l.currency,
		PositionsCount: len(l.positions),
		TradesCount:    len(l.trades),
		PnL:            l.pnlLocked(),
	}
}

func unrealized(pos *types.Position) decimal.Decimal {
	if pos.Side == types.SideShort {
		return pos.AvgEntryPrice.Sub(pos.MarkPrice).Mul(pos.Quantity)
	}
	return pos.MarkPrice.Sub(pos.AvgEntryPrice).Mul(pos.Quantity)
}

func weightedAvg(existingPrice, existingQty, newPrice, newQty decimal.Decimal) decimal.Decimal {
	if existingQty.IsZero() {
		return newPrice
	}
	return existingPrice.Mul(existingQty).
		Add(newPrice.Mul(newQty)).
		Div(existingQty.Add(newQty))
}
