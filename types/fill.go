package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// FillConfirmation is what an order sink reports back for a delegated
// fill. Any non-filled status means "no position change".
type FillConfirmation struct {
	OrderID      string          `json:"orderId"`
	Status       OrderStatus     `json:"status"`
	FilledQty    decimal.Decimal `json:"filledQty"`
	AvgPrice     decimal.Decimal `json:"avgPrice"`
	Commission   decimal.Decimal `json:"commission"`
	RejectReason string          `json:"rejectReason,omitempty"`
	FilledAt     time.Time       `json:"filledAt"`
}
