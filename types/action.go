package types

type Action string

type Side string

type ExitReason string

type OrderStatus string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"

	SideLong  Side = "LONG"
	SideShort Side = "SHORT"

	ExitStopLoss    ExitReason = "stop_loss"
	ExitTakeProfit  ExitReason = "take_profit"
	ExitSignal      ExitReason = "signal"
	ExitManual      ExitReason = "manual"
	ExitMaxDrawdown ExitReason = "max_drawdown"
	ExitEndOfRun    ExitReason = "end_of_run"
	ExitSessionEnd  ExitReason = "session_end"

	OrderFilled   OrderStatus = "ORDER_FILLED"
	OrderRejected OrderStatus = "ORDER_REJECTED"
	OrderExpired  OrderStatus = "ORDER_EXPIRED"
)

// SideForEntry maps an entry action onto the position side it opens.
func SideForEntry(action Action) Side {
	if action == ActionSell {
		return SideShort
	}
	return SideLong
}
