package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Global error declarations.
var (
	ErrAssetNotFound = errors.New("asset not found in datasource")
	ErrNoQuotes      = errors.New("no quotes found in datasource")
)

// Asset is one instrument row.
type Asset struct {
	ID       int
	Symbol   string
	Name     string
	Sector   string
	Currency string
}

// DailyQuote is one end-of-day price row.
type DailyQuote struct {
	AssetID int
	Day     time.Time
	Close   decimal.Decimal
	Volume  int64
}

type assetsRepository interface {
	GetAssetBySymbol(ctx context.Context, symbol string) (Asset, error)
}
type quotesRepository interface {
	GetDailyQuotes(ctx context.Context, assetID int, start, end time.Time) ([]DailyQuote, error)
	GetTradingDays(ctx context.Context, start, end time.Time) ([]time.Time, error)
}

// Database holds the connection pool and the row-level queries.
type Database struct {
	assets assetsRepository
	quotes quotesRepository
	conn   *pgxpool.Pool
}

// NewDatabase creates a new Database instance and verifies connectivity.
func NewDatabase(dbURL string) (Database, error) {
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return Database{}, fmt.Errorf("parse config: %w", err)
	}
	// Register shopspring decimal
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	conn, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return Database{}, err
	}
	// Ensure the connection is established.
	if err := conn.Ping(context.Background()); err != nil {
		return Database{}, err
	}

	queries := pgQueries{conn: conn}
	return Database{
		assets: queries,
		quotes: queries,
		conn:   conn,
	}, nil
}

// Close releases the connection pool.
func (db *Database) Close() {
	if db.conn != nil {
		db.conn.Close()
	}
}
