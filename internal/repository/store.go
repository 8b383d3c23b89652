package repository

import (
	"context"
	"fmt"
	"time"

	"tradesim/types"
)

type dataStore interface {
	GetAssetBySymbol(ctx context.Context, symbol string) (Asset, error)
	GetDailyQuotes(ctx context.Context, asset Asset, start, end time.Time) ([]types.Quote, error)
	TradingDays(ctx context.Context, start, end time.Time) ([]time.Time, error)
}

// QuoteStore preloads daily quotes for a symbol set and serves them
// as the historical market data source and trading calendar. Load
// once, then every tick is a map lookup.
type QuoteStore struct {
	db     dataStore
	assets map[string]Asset
	quotes map[string]map[string]types.Quote // date key → symbol → quote
	loaded bool
}

func NewQuoteStore(db dataStore) *QuoteStore {
	return &QuoteStore{
		db:     db,
		assets: make(map[string]Asset),
		quotes: make(map[string]map[string]types.Quote),
	}
}

func dateKey(t time.Time) string { return t.Format(time.DateOnly) }

// Load fetches the assets and their daily quotes for the range.
func (s *QuoteStore) Load(ctx context.Context, symbols []string, start, end time.Time) error {
	for _, symbol := range symbols {
		asset, err := s.db.GetAssetBySymbol(ctx, symbol)
		if err != nil {
			return fmt.Errorf("loading asset %s: %w", symbol, err)
		}
		s.assets[symbol] = asset

		quotes, err := s.db.GetDailyQuotes(ctx, asset, start, end)
		if err != nil {
			return fmt.Errorf("loading quotes for %s: %w", symbol, err)
		}
		for _, q := range quotes {
			key := dateKey(q.Timestamp)
			if s.quotes[key] == nil {
				s.quotes[key] = make(map[string]types.Quote)
			}
			s.quotes[key][q.Symbol] = q
		}
	}
	s.loaded = true
	return nil
}

// GetQuotes serves the preloaded quotes for the tick date. Symbols
// without a quote on that date are simply absent from the map.
func (s *QuoteStore) GetQuotes(_ context.Context, symbols []string, asOf time.Time) (map[string]types.Quote, error) {
	if !s.loaded {
		return nil, fmt.Errorf("quote store not loaded")
	}
	day, ok := s.quotes[dateKey(asOf)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", dateKey(asOf), ErrNoQuotes)
	}
	out := make(map[string]types.Quote, len(symbols))
	for _, symbol := range symbols {
		if q, ok := day[symbol]; ok {
			out[symbol] = q
		}
	}
	return out, nil
}

// TradingDays lists the tradable days driving the historical ticks.
func (s *QuoteStore) TradingDays(ctx context.Context, start, end time.Time) ([]time.Time, error) {
	return s.db.TradingDays(ctx, start, end)
}

// Returns computes the daily return series for one symbol, for use as
// a benchmark comparison series.
func (s *QuoteStore) Returns(ctx context.Context, symbol string, start, end time.Time) ([]float64, error) {
	asset, ok := s.assets[symbol]
	if !ok {
		var err error
		asset, err = s.db.GetAssetBySymbol(ctx, symbol)
		if err != nil {
			return nil, fmt.Errorf("loading benchmark %s: %w", symbol, err)
		}
	}
	quotes, err := s.db.GetDailyQuotes(ctx, asset, start, end)
	if err != nil {
		return nil, fmt.Errorf("loading benchmark quotes for %s: %w", symbol, err)
	}

	returns := make([]float64, 0, len(quotes))
	for i := 1; i < len(quotes); i++ {
		prev := quotes[i-1].Price
		if !prev.IsPositive() {
			continue
		}
		r := quotes[i].Price.Sub(prev).Div(prev).InexactFloat64()
		returns = append(returns, r)
	}
	return returns, nil
}

// Sectors maps the loaded symbols onto their sectors for report
// attribution.
func (s *QuoteStore) Sectors() map[string]string {
	out := make(map[string]string, len(s.assets))
	for symbol, asset := range s.assets {
		if asset.Sector != "" {
			out[symbol] = asset.Sector
		}
	}
	return out
}
