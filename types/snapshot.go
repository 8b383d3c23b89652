package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is an append-only point-in-time view of the ledger. The
// snapshot list is the sole input to return-series analytics.
type Snapshot struct {
	Timestamp      time.Time       `json:"timestamp"`
	TotalValue     decimal.Decimal `json:"totalValue"`
	CashBalance    decimal.Decimal `json:"cashBalance"`
	PositionsValue decimal.Decimal `json:"positionsValue"`
	DailyPnL       decimal.Decimal `json:"dailyPnl"`
	TotalPnL       decimal.Decimal `json:"totalPnl"`
	PositionsCount int             `json:"positionsCount"`
}
