package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"tradesim/types"
)

// GetDailyQuotes returns the end-of-day quotes for one asset over a
// date range, oldest first.
func (db *Database) GetDailyQuotes(ctx context.Context, asset Asset, start, end time.Time) ([]types.Quote, error) {
	rows, err := db.quotes.GetDailyQuotes(ctx, asset.ID, start, end)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("symbol %s: %w", asset.Symbol, ErrNoQuotes)
		}
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("symbol %s: %w", asset.Symbol, ErrNoQuotes)
	}

	quotes := make([]types.Quote, 0, len(rows))
	for _, row := range rows {
		quotes = append(quotes, types.Quote{
			Symbol:    asset.Symbol,
			Price:     row.Close,
			Bid:       row.Close,
			Ask:       row.Close,
			Volume:    row.Volume,
			Currency:  asset.Currency,
			Timestamp: row.Day,
		})
	}
	return quotes, nil
}

// TradingDays lists the distinct tradable days in the range, in
// ascending order.
func (db *Database) TradingDays(ctx context.Context, start, end time.Time) ([]time.Time, error) {
	return db.quotes.GetTradingDays(ctx, start, end)
}
