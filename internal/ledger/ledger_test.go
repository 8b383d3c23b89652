package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tradesim/types"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestApplyFillBuy(t *testing.T) {
	tests := []struct {
		name       string
		cash       string
		fills      [][4]string // action, qty, price, commission
		wantErr    error
		wantCash   string
		wantQty    string
		wantAvg    string
		wantClosed bool
	}{
		{
			name:     "open long",
			cash:     "10000",
			fills:    [][4]string{{"BUY", "10", "100", "1"}},
			wantCash: "8999",
			wantQty:  "10",
			wantAvg:  "100",
		},
		{
			name:     "scale-in updates weighted average",
			cash:     "10000",
			fills:    [][4]string{{"BUY", "10", "100", "0"}, {"BUY", "5", "110", "0"}},
			wantCash: "8450",
			wantQty:  "15",
			wantAvg:  "103.3333333333333333",
		},
		{
			name:    "insufficient funds rejected",
			cash:    "500",
			fills:   [][4]string{{"BUY", "10", "100", "1"}},
			wantErr: ErrInsufficientFunds,
		},
		{
			name:     "reduce long realizes pnl",
			cash:     "10000",
			fills:    [][4]string{{"BUY", "10", "100", "0"}, {"SELL", "4", "105", "0.5"}},
			wantCash: "9419.5",
			wantQty:  "6",
			wantAvg:  "100",
		},
		{
			name:       "full close removes position",
			cash:       "10000",
			fills:      [][4]string{{"BUY", "10", "100", "0"}, {"SELL", "10", "110", "0"}},
			wantCash:   "10100",
			wantClosed: true,
		},
		{
			name:    "sell without position",
			cash:    "10000",
			fills:   [][4]string{{"SELL", "10", "100", "0"}},
			wantErr: ErrNoSuchPosition,
		},
		{
			name:    "sell more than held",
			cash:    "10000",
			fills:   [][4]string{{"BUY", "5", "100", "0"}, {"SELL", "6", "100", "0"}},
			wantErr: ErrInsufficientQuantity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(d(tt.cash), "USD")
			var gotErr error
			for _, f := range tt.fills {
				err := l.ApplyFill("AAPL", types.Action(f[0]), d(f[1]), d(f[2]), d(f[3]))
				if err != nil {
					gotErr = err
				}
			}
			if tt.wantErr != nil {
				if !errors.Is(gotErr, tt.wantErr) {
					t.Fatalf("ApplyFill() error = %v, want %v", gotErr, tt.wantErr)
				}
				return
			}
			if gotErr != nil {
				t.Fatalf("ApplyFill() unexpected error: %v", gotErr)
			}
			if !l.AvailableCash().Equal(d(tt.wantCash)) {
				t.Errorf("cash = %s, want %s", l.AvailableCash(), tt.wantCash)
			}
			pos, ok := l.Position("AAPL")
			if tt.wantClosed {
				if ok {
					t.Fatalf("position should be removed at zero quantity, got %+v", pos)
				}
				return
			}
			if !ok {
				t.Fatal("expected open position")
			}
			if !pos.Quantity.Equal(d(tt.wantQty)) {
				t.Errorf("quantity = %s, want %s", pos.Quantity, tt.wantQty)
			}
			if !pos.AvgEntryPrice.Equal(d(tt.wantAvg)) {
				t.Errorf("avg entry = %s, want %s", pos.AvgEntryPrice, tt.wantAvg)
			}
		})
	}
}

func TestRejectedFillLeavesStateUnchanged(t *testing.T) {
	l := New(d("1000"), "USD")
	if err := l.ApplyFill("SBER", types.ActionBuy, d("5"), d("100"), d("0")); err != nil {
		t.Fatal(err)
	}
	cashBefore := l.AvailableCash()
	posBefore, _ := l.Position("SBER")

	if err := l.ApplyFill("SBER", types.ActionBuy, d("100"), d("100"), d("0")); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("want ErrInsufficientFunds, got %v", err)
	}

	if !l.AvailableCash().Equal(cashBefore) {
		t.Errorf("cash changed after rejected fill: %s -> %s", cashBefore, l.AvailableCash())
	}
	posAfter, _ := l.Position("SBER")
	if !posAfter.Quantity.Equal(posBefore.Quantity) {
		t.Errorf("quantity changed after rejected fill")
	}
}

func TestShortLifecycle(t *testing.T) {
	l := New(d("10000"), "USD")

	if err := l.OpenShort("GAZP", d("10"), d("200"), d("1")); err != nil {
		t.Fatal(err)
	}
	// Proceeds 2000 - 1 commission.
	if !l.AvailableCash().Equal(d("11999")) {
		t.Fatalf("cash after short entry = %s, want 11999", l.AvailableCash())
	}
	pos, ok := l.Position("GAZP")
	if !ok || pos.Side != types.SideShort {
		t.Fatalf("expected open short, got %+v ok=%v", pos, ok)
	}
	if !pos.MarketValue.Equal(d("-2000")) {
		t.Errorf("short market value = %s, want -2000", pos.MarketValue)
	}

	if err := l.OpenShort("GAZP", d("1"), d("200"), d("0")); !errors.Is(err, ErrPositionExists) {
		t.Fatalf("duplicate short entry: want ErrPositionExists, got %v", err)
	}

	// Cover at 180: pnl = (200-180)*10 - 2 = 198.
	if err := l.ApplyFill("GAZP", types.ActionBuy, d("10"), d("180"), d("2")); err != nil {
		t.Fatal(err)
	}
	if _, ok := l.Position("GAZP"); ok {
		t.Fatal("short position should be removed after full cover")
	}
	pnl := l.PnL()
	if !pnl.Realized.Equal(d("198")) {
		t.Errorf("realized pnl = %s, want 198", pnl.Realized)
	}
}

func TestMarkToMarket(t *testing.T) {
	l := New(d("10000"), "USD")
	if err := l.ApplyFill("LKOH", types.ActionBuy, d("10"), d("100"), d("0")); err != nil {
		t.Fatal(err)
	}

	quotes := map[string]types.Quote{
		"LKOH": {Symbol: "LKOH", Price: d("120")},
	}
	l.MarkToMarket(quotes)
	l.MarkToMarket(quotes) // idempotent

	pos, _ := l.Position("LKOH")
	if !pos.MarkPrice.Equal(d("120")) {
		t.Errorf("mark price = %s, want 120", pos.MarkPrice)
	}
	if !pos.UnrealizedPnL.Equal(d("200")) {
		t.Errorf("unrealized pnl = %s, want 200", pos.UnrealizedPnL)
	}
	if !pos.MarketValue.Equal(d("1200")) {
		t.Errorf("market value = %s, want 1200", pos.MarketValue)
	}
}

func TestSnapshotDerivedFields(t *testing.T) {
	l := New(d("1000"), "USD")
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	s1 := l.Snapshot(t0)
	if !s1.TotalValue.Equal(d("1000")) || !s1.DailyPnL.IsZero() || !s1.TotalPnL.IsZero() {
		t.Fatalf("first snapshot = %+v", s1)
	}

	if err := l.ApplyFill("VTBR", types.ActionBuy, d("5"), d("100"), d("0")); err != nil {
		t.Fatal(err)
	}
	l.MarkToMarket(map[string]types.Quote{"VTBR": {Price: d("110")}})

	s2 := l.Snapshot(t0.AddDate(0, 0, 1))
	if !s2.TotalValue.Equal(d("1050")) {
		t.Errorf("total value = %s, want 1050", s2.TotalValue)
	}
	if !s2.DailyPnL.Equal(d("50")) {
		t.Errorf("daily pnl = %s, want 50", s2.DailyPnL)
	}
	if !s2.TotalPnL.Equal(d("50")) {
		t.Errorf("total pnl = %s, want 50", s2.TotalPnL)
	}
	if got := len(l.Snapshots()); got != 2 {
		t.Errorf("snapshot count = %d, want 2", got)
	}
}

// cash_after + Σ(market value) == cash_before + Σ(realized pnl) − Σ(commission)
// for any error-free fill sequence, holding marks at the fill prices.
func TestConservationIdentity(t *testing.T) {
	l := New(d("100000"), "USD")
	fills := []struct {
		symbol string
		action types.Action
		qty    string
		price  string
		fee    string
	}{
		{"AAPL", types.ActionBuy, "100", "150", "7.5"},
		{"MSFT", types.ActionBuy, "50", "300", "7.5"},
		{"AAPL", types.ActionSell, "40", "160", "3.2"},
		{"MSFT", types.ActionSell, "50", "290", "7.25"},
		{"AAPL", types.ActionSell, "60", "155", "4.65"},
	}

	lastPrice := map[string]decimal.Decimal{}
	buyFees := decimal.Zero
	for _, f := range fills {
		if err := l.ApplyFill(f.symbol, f.action, d(f.qty), d(f.price), d(f.fee)); err != nil {
			t.Fatalf("fill %+v: %v", f, err)
		}
		if f.action == types.ActionBuy {
			buyFees = buyFees.Add(d(f.fee))
		}
		lastPrice[f.symbol] = d(f.price)
		l.MarkToMarket(quotesAt(lastPrice))

		marketValue := decimal.Zero
		for _, pos := range l.Positions() {
			marketValue = marketValue.Add(pos.MarketValue)
		}
		pnl := l.PnL()
		lhs := l.AvailableCash().Add(marketValue)
		// Realized pnl is already net of sell-side commissions, so the
		// identity balances against entry-side commissions only;
		// unrealized pnl accounts for marks away from cost basis.
		rhs := l.InitialCash().Add(pnl.Realized).Add(pnl.Unrealized).Sub(buyFees)
		if !lhs.Equal(rhs) {
			t.Fatalf("conservation broken after %+v: %s != %s", f, lhs, rhs)
		}
	}
}

func quotesAt(prices map[string]decimal.Decimal) map[string]types.Quote {
	out := make(map[string]types.Quote, len(prices))
	for sym, p := range prices {
		out[sym] = types.Quote{Symbol: sym, Price: p}
	}
	return out
}

func TestSummaryMatchesPnL(t *testing.T) {
	l := New(d("10000"), "RUB")
	if err := l.ApplyFill("SBER", types.ActionBuy, d("10"), d("100"), d("5")); err != nil {
		t.Fatal(err)
	}
	l.MarkToMarket(quotesAt(map[string]decimal.Decimal{"SBER": d("110")}))

	s := l.Summary()
	if s.Currency != "RUB" {
		t.Errorf("currency = %q, want RUB", s.Currency)
	}
	if !s.Cash.Equal(d("8995")) {
		t.Errorf("cash = %s, want 8995", s.Cash)
	}
	if !s.PositionsValue.Equal(d("1100")) {
		t.Errorf("positions value = %s, want 1100", s.PositionsValue)
	}
	if !s.TotalValue.Equal(s.Cash.Add(s.PositionsValue)) {
		t.Errorf("total value = %s, want cash+positions", s.TotalValue)
	}
	if s.PositionsCount != 1 || s.TradesCount != 0 {
		t.Errorf("counts = %d positions / %d trades, want 1/0", s.PositionsCount, s.TradesCount)
	}
	if !s.PnL.Unrealized.Equal(d("100")) {
		t.Errorf("unrealized = %s, want 100", s.PnL.Unrealized)
	}
	if s.PnL.TotalReturn != l.PnL().TotalReturn {
		t.Errorf("summary pnl diverges from PnL(): %v != %v", s.PnL.TotalReturn, l.PnL().TotalReturn)
	}
}

func TestScaleInRecomputesUnrealized(t *testing.T) {
	l := New(d("100000"), "RUB")
	if err := l.ApplyFill("SBER", types.ActionBuy, d("10"), d("100"), d("0")); err != nil {
		t.Fatal(err)
	}
	// Second fill at 120 moves the average entry to 110 and the mark
	// to 120; unrealized must reflect that without a MarkToMarket.
	if err := l.ApplyFill("SBER", types.ActionBuy, d("10"), d("120"), d("0")); err != nil {
		t.Fatal(err)
	}
	pos, ok := l.Position("SBER")
	if !ok {
		t.Fatal("position missing after scale-in")
	}
	if !pos.AvgEntryPrice.Equal(d("110")) {
		t.Errorf("avg entry = %s, want 110", pos.AvgEntryPrice)
	}
	if !pos.UnrealizedPnL.Equal(d("200")) {
		t.Errorf("unrealized = %s, want 200", pos.UnrealizedPnL)
	}
	if pnl := l.PnL(); !pnl.Unrealized.Equal(d("200")) {
		t.Errorf("ledger unrealized = %s, want 200", pnl.Unrealized)
	}

	// Short scale-in mirrors the recompute.
	if err := l.OpenShort("GAZP", d("5"), d("200"), d("0")); err != nil {
		t.Fatal(err)
	}
	if err := l.ApplyFill("GAZP", types.ActionSell, d("5"), d("180"), d("0")); err != nil {
		t.Fatal(err)
	}
	short, _ := l.Position("GAZP")
	// Avg entry 190, mark 180: (190-180)*10 = 100.
	if !short.UnrealizedPnL.Equal(d("100")) {
		t.Errorf("short unrealized = %s, want 100", short.UnrealizedPnL)
	}
}
