package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is owned exclusively by the ledger and mutated only through
// its entry/exit operations. Quantity stays positive while open; a
// position that reaches zero quantity is removed, never kept as a
// zero row.
type Position struct {
	Symbol        string          `json:"symbol"`
	Side          Side            `json:"side"`
	Quantity      decimal.Decimal `json:"quantity"`
	AvgEntryPrice decimal.Decimal `json:"avgEntryPrice"`
	MarkPrice     decimal.Decimal `json:"markPrice"`
	MarketValue   decimal.Decimal `json:"marketValue"`
	UnrealizedPnL decimal.Decimal `json:"unrealizedPnl"`
	RealizedPnL   decimal.Decimal `json:"realizedPnl"`
	EntryTime     time.Time       `json:"entryTime"`
}
