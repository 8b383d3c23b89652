package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgQueries implements the row-level repositories against Postgres.
type pgQueries struct {
	conn *pgxpool.Pool
}

const getAssetBySymbol = `
SELECT id, symbol, name, sector, currency
FROM assets
WHERE symbol = $1`

func (q pgQueries) GetAssetBySymbol(ctx context.Context, symbol string) (Asset, error) {
	var a Asset
	err := q.conn.QueryRow(ctx, getAssetBySymbol, symbol).
		Scan(&a.ID, &a.Symbol, &a.Name, &a.Sector, &a.Currency)
	if err != nil {
		return Asset{}, err
	}
	return a, nil
}

const getDailyQuotes = `
SELECT asset_id, day, close, volume
FROM daily_quotes
WHERE asset_id = $1 AND day >= $2 AND day <= $3
ORDER BY day`

func (q pgQueries) GetDailyQuotes(ctx context.Context, assetID int, start, end time.Time) ([]DailyQuote, error) {
	rows, err := q.conn.Query(ctx, getDailyQuotes, assetID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DailyQuote
	for rows.Next() {
		var dq DailyQuote
		if err := rows.Scan(&dq.AssetID, &dq.Day, &dq.Close, &dq.Volume); err != nil {
			return nil, err
		}
		out = append(out, dq)
	}
	return out, rows.Err()
}

const getTradingDays = `
SELECT DISTINCT day
FROM daily_quotes
WHERE day >= $1 AND day <= $2
ORDER BY day`

func (q pgQueries) GetTradingDays(ctx context.Context, start, end time.Time) ([]time.Time, error) {
	rows, err := q.conn.Query(ctx, getTradingDays, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	days, err := pgx.CollectRows(rows, pgx.RowTo[time.Time])
	if err != nil {
		return nil, err
	}
	return days, nil
}
