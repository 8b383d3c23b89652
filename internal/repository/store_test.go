package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tradesim/types"
)

type mockDataStore struct {
	assets map[string]Asset
	quotes map[string][]types.Quote
	days   []time.Time
}

func (m *mockDataStore) GetAssetBySymbol(_ context.Context, symbol string) (Asset, error) {
	asset, ok := m.assets[symbol]
	if !ok {
		return Asset{}, ErrAssetNotFound
	}
	return asset, nil
}

func (m *mockDataStore) GetDailyQuotes(_ context.Context, asset Asset, _, _ time.Time) ([]types.Quote, error) {
	quotes, ok := m.quotes[asset.Symbol]
	if !ok {
		return nil, ErrNoQuotes
	}
	return quotes, nil
}

func (m *mockDataStore) TradingDays(_ context.Context, _, _ time.Time) ([]time.Time, error) {
	return m.days, nil
}

func dailyQuote(symbol, price string, day time.Time) types.Quote {
	p := decimal.RequireFromString(price)
	return types.Quote{Symbol: symbol, Price: p, Bid: p, Ask: p, Currency: "RUB", Timestamp: day}
}

func testStore() (*QuoteStore, []time.Time) {
	d1 := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)
	d3 := d1.AddDate(0, 0, 2)
	db := &mockDataStore{
		assets: map[string]Asset{
			"SBER":  {ID: 1, Symbol: "SBER", Sector: "banking", Currency: "RUB"},
			"GAZP":  {ID: 2, Symbol: "GAZP", Sector: "energy", Currency: "RUB"},
			"IMOEX": {ID: 3, Symbol: "IMOEX", Currency: "RUB"},
		},
		quotes: map[string][]types.Quote{
			"SBER": {
				dailyQuote("SBER", "250", d1),
				dailyQuote("SBER", "255", d2),
				dailyQuote("SBER", "251", d3),
			},
			"GAZP": {
				dailyQuote("GAZP", "180", d1),
				dailyQuote("GAZP", "181", d3),
			},
			"IMOEX": {
				dailyQuote("IMOEX", "3000", d1),
				dailyQuote("IMOEX", "3030", d2),
				dailyQuote("IMOEX", "3015", d3),
			},
		},
		days: []time.Time{d1, d2, d3},
	}
	return NewQuoteStore(db), []time.Time{d1, d2, d3}
}

func TestQuoteStoreLoadAndGetQuotes(t *testing.T) {
	store, days := testStore()
	ctx := context.Background()

	if _, err := store.GetQuotes(ctx, []string{"SBER"}, days[0]); err == nil {
		t.Error("GetQuotes() before Load returned nil error")
	}

	if err := store.Load(ctx, []string{"SBER", "GAZP"}, days[0], days[2]); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	quotes, err := store.GetQuotes(ctx, []string{"SBER", "GAZP"}, days[0])
	if err != nil {
		t.Fatalf("GetQuotes() error = %v", err)
	}
	if len(quotes) != 2 {
		t.Fatalf("quotes = %d, want 2", len(quotes))
	}
	if !quotes["SBER"].Price.Equal(decimal.RequireFromString("250")) {
		t.Errorf("SBER price = %s, want 250", quotes["SBER"].Price)
	}

	// GAZP has no quote on day two; it is absent, not an error.
	quotes, err = store.GetQuotes(ctx, []string{"SBER", "GAZP"}, days[1])
	if err != nil {
		t.Fatalf("GetQuotes() error = %v", err)
	}
	if _, ok := quotes["GAZP"]; ok {
		t.Error("GAZP quote present on a day it did not trade")
	}

	// A date with no quotes at all is a transient error (skip tick).
	if _, err := store.GetQuotes(ctx, []string{"SBER"}, days[2].AddDate(0, 0, 5)); !errors.Is(err, ErrNoQuotes) {
		t.Errorf("GetQuotes() on empty date error = %v, want ErrNoQuotes", err)
	}
}

func TestQuoteStoreLoadUnknownSymbol(t *testing.T) {
	store, days := testStore()
	err := store.Load(context.Background(), []string{"NOPE"}, days[0], days[2])
	if !errors.Is(err, ErrAssetNotFound) {
		t.Errorf("Load() error = %v, want ErrAssetNotFound", err)
	}
}

func TestQuoteStoreTradingDays(t *testing.T) {
	store, days := testStore()
	got, err := store.TradingDays(context.Background(), days[0], days[2])
	if err != nil {
		t.Fatalf("TradingDays() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("trading days = %d, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if !got[i].After(got[i-1]) {
			t.Errorf("trading days out of order: %v before %v", got[i], got[i-1])
		}
	}
}

func TestQuoteStoreBenchmarkReturns(t *testing.T) {
	store, days := testStore()
	returns, err := store.Returns(context.Background(), "IMOEX", days[0], days[2])
	if err != nil {
		t.Fatalf("Returns() error = %v", err)
	}
	want := []float64{0.01, (3015.0 - 3030.0) / 3030.0}
	if len(returns) != len(want) {
		t.Fatalf("returns = %v, want %v", returns, want)
	}
	for i := range want {
		diff := returns[i] - want[i]
		if diff > 1e-12 || diff < -1e-12 {
			t.Errorf("returns[%d] = %v, want %v", i, returns[i], want[i])
		}
	}
}

func TestQuoteStoreSectors(t *testing.T) {
	store, days := testStore()
	if err := store.Load(context.Background(), []string{"SBER", "GAZP", "IMOEX"}, days[0], days[2]); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	sectors := store.Sectors()
	if sectors["SBER"] != "banking" || sectors["GAZP"] != "energy" {
		t.Errorf("sectors = %v, want SBER=banking GAZP=energy", sectors)
	}
	// IMOEX has no sector and must be absent.
	if _, ok := sectors["IMOEX"]; ok {
		t.Error("IMOEX present in sector map despite empty sector")
	}
}
