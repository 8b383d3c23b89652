package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is the closed round trip for one position, created exactly
// once at close time from the closing position and its accumulated
// fill costs.
type Trade struct {
	TradeID     string          `json:"tradeId"`
	Symbol      string          `json:"symbol"`
	Side        Side            `json:"side"`
	Quantity    decimal.Decimal `json:"quantity"`
	EntryPrice  decimal.Decimal `json:"entryPrice"`
	ExitPrice   decimal.Decimal `json:"exitPrice"`
	Commission  decimal.Decimal `json:"commission"`
	Slippage    decimal.Decimal `json:"slippage"`
	RealizedPnL decimal.Decimal `json:"realizedPnl"`
	Confidence  float64         `json:"confidence"`
	Reason      string          `json:"reason"`
	EntryTime   time.Time       `json:"entryTime"`
	ExitTime    time.Time       `json:"exitTime"`
	ExitReason  ExitReason      `json:"exitReason"`
}
