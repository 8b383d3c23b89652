package engine

import (
	"time"

	"tradesim/types"
)

type EventType string

const (
	EventTradeOpened    EventType = "trade_opened"
	EventTradeClosed    EventType = "trade_closed"
	EventSignalObserved EventType = "signal_observed"
	EventEngineError    EventType = "engine_error"
)

// Event is one engine occurrence. Events are published exactly once
// each, in the order the occurrences happened.
type Event struct {
	Type   EventType
	Time   time.Time
	Symbol string

	// Set per type: Position for trade_opened, Trade for trade_closed,
	// Signal for signal_observed, Err for engine_error.
	Position *types.Position
	Trade    *types.Trade
	Signal   *types.Signal
	Err      error
}

const eventBufferSize = 256

// publish delivers an event to the subscriber channel without ever
// blocking the tick loop. When the buffer is full the event is
// dropped and counted; slow consumers see the gap via DroppedEvents.
func (e *Engine) publish(ev Event) {
	select {
	case e.events <- ev:
	default:
		e.droppedEvents.Add(1)
	}
}

// Events is the engine's event stream. The channel is buffered; it is
// closed when the run reaches a terminal state.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// DroppedEvents reports how many events were discarded because the
// subscriber fell behind.
func (e *Engine) DroppedEvents() uint64 {
	return e.droppedEvents.Load()
}
