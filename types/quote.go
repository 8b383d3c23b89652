package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type Quote struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	Volume    int64           `json:"volume"`
	Currency  string          `json:"currency"`
	Timestamp time.Time       `json:"timestamp"`
}
