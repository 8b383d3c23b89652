package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Signal is immutable once produced; the engine never mutates it.
type Signal struct {
	Symbol      string          `json:"symbol"`
	Action      Action          `json:"action"`
	Confidence  float64         `json:"confidence"`
	TargetPrice decimal.Decimal `json:"targetPrice,omitempty"`
	StopPrice   decimal.Decimal `json:"stopPrice,omitempty"`
	Reason      string          `json:"reason"`
	CreatedAt   time.Time       `json:"createdAt"`
}

func NewSignal(
	symbol string,
	action Action,
	confidence float64,
	reason string,
	createdAt time.Time,
) Signal {
	return Signal{
		Symbol:     symbol,
		Action:     action,
		Confidence: confidence,
		Reason:     reason,
		CreatedAt:  createdAt,
	}
}
