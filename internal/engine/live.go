package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tradesim/internal/analytics"
	"tradesim/internal/ledger"
	"tradesim/types"
)

var (
	ErrSessionRunning    = errors.New("session already running")
	ErrSessionNotRunning = errors.New("session not running")
	ErrSessionNotPaused  = errors.New("session not paused")
	ErrStopTimeout       = errors.New("session stop timed out")
	ErrNoQuoteForSymbol  = errors.New("no quote available for symbol")
)

// Session is a live paper-trading run: the same tick loop as the
// historical engine, driven by a wall-clock ticker in one background
// worker. All observer methods are safe to call while the worker
// runs.
type Session struct {
	*Engine
	id string

	started time.Time
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSession validates the configuration and builds a live session.
func NewSession(cfg Config, deps Deps) (*Session, error) {
	eng, err := newEngine(cfg, deps)
	if err != nil {
		return nil, err
	}
	return &Session{Engine: eng, id: uuid.NewString()}, nil
}

// ID is the session identifier.
func (s *Session) ID() string { return s.id }

// Start launches the background worker polling at the configured
// interval. It returns immediately; the worker runs until Stop or a
// panic.
func (s *Session) Start(ctx context.Context, symbols []string) error {
	s.mu.Lock()
	if s.state == StateRunning || s.state == StatePaused {
		s.mu.Unlock()
		return ErrSessionRunning
	}
	if s.state != StateNotStarted {
		s.mu.Unlock()
		return ErrAlreadyRan
	}
	s.symbols = append([]string(nil), symbols...)
	s.state = StateRunning
	s.mu.Unlock()

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.started = time.Now()

	s.log.Info("session started",
		zap.String("session", s.id),
		zap.Strings("symbols", symbols),
		zap.Duration("interval", s.cfg.UpdateInterval))

	go s.worker(ctx)
	return nil
}

func (s *Session) worker(ctx context.Context) {
	defer close(s.done)
	defer s.finishEvents()
	defer func() {
		if r := recover(); r != nil {
			s.setState(StateFailed)
			s.log.Error("session worker panic", zap.String("session", s.id), zap.Any("panic", r))
		}
	}()

	ticker := time.NewTicker(s.cfg.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return
		case now := <-ticker.C:
			active := s.State() == StateRunning
			if tripped := s.tick(ctx, now, active); tripped {
				// Circuit breaker: positions are already closed;
				// hold monitoring-only until an operator resumes.
				s.setState(StatePaused)
			}
		}
	}
}

// shutdown force-closes open positions and finalizes the ledger. Runs
// on the worker goroutine after cancellation, never mid-tick.
func (s *Session) shutdown() {
	now := time.Now()
	s.mu.Lock()
	s.forceClose(context.Background(), now, types.ExitSessionEnd)
	s.ledger.Snapshot(now)
	s.state = StateStopped
	s.mu.Unlock()
	s.log.Info("session stopped", zap.String("session", s.id))
}

// Stop signals cancellation and waits, bounded by timeout, for the
// worker to finish its current tick and close out the session.
func (s *Session) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if s.state != StateRunning && s.state != StatePaused {
		s.mu.Unlock()
		return ErrSessionNotRunning
	}
	s.mu.Unlock()

	s.cancel()
	select {
	case <-s.done:
		return nil
	case <-time.After(timeout):
		return ErrStopTimeout
	}
}

// Pause suspends trading decisions. Quote polling and snapshotting
// continue so monitoring data stays current.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning {
		return ErrSessionNotRunning
	}
	s.state = StatePaused
	s.log.Info("session paused", zap.String("session", s.id))
	return nil
}

// Resume re-enables trading decisions after a pause, including the
// monitoring-only hold after a drawdown trip.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePaused {
		return ErrSessionNotPaused
	}
	s.state = StateRunning
	s.halted = false
	s.log.Info("session resumed", zap.String("session", s.id))
	return nil
}

// Status is a point-in-time view of a session.
type Status struct {
	SessionID       string           `json:"sessionId"`
	State           RunState         `json:"state"`
	StartedAt       time.Time        `json:"startedAt"`
	OpenPositions   []types.Position `json:"openPositions"`
	DailyTradeCount int              `json:"dailyTradeCount"`
	Portfolio       ledger.Summary   `json:"portfolio"`
	LastSnapshot    *types.Snapshot  `json:"lastSnapshot,omitempty"`
	DroppedEvents   uint64           `json:"droppedEvents,omitempty"`
}

// Status reports the session state, open positions, and the latest
// snapshot.
func (s *Session) Status() Status {
	s.mu.Lock()
	state := s.state
	trades := s.tradesToday
	s.mu.Unlock()

	st := Status{
		SessionID:       s.id,
		State:           state,
		StartedAt:       s.started,
		OpenPositions:   s.ledger.Positions(),
		DailyTradeCount: trades,
		Portfolio:       s.ledger.Summary(),
		DroppedEvents:   s.droppedEvents.Load(),
	}
	if snaps := s.ledger.Snapshots(); len(snaps) > 0 {
		last := snaps[len(snaps)-1]
		st.LastSnapshot = &last
	}
	return st
}

// OpenPositions lists the currently open positions.
func (s *Session) OpenPositions() []types.Position {
	return s.ledger.Positions()
}

// TradeHistory returns the most recent closed trades, newest last.
// A non-positive limit returns the full history.
func (s *Session) TradeHistory(limit int) []types.Trade {
	trades := s.ledger.Trades()
	if limit <= 0 || limit >= len(trades) {
		return trades
	}
	return trades[len(trades)-limit:]
}

// ClosePosition manually closes one open position at its latest
// quoted price with exit reason "manual".
func (s *Session) ClosePosition(symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.ledger.Position(symbol)
	if !ok {
		return fmt.Errorf("close %s: %w", symbol, ledger.ErrNoSuchPosition)
	}
	price := pos.MarkPrice
	if q, ok := s.lastQuotes[symbol]; ok {
		price = q.Price
	}
	if !price.IsPositive() {
		return fmt.Errorf("close %s: %w", symbol, ErrNoQuoteForSymbol)
	}
	s.closePosition(context.Background(), pos, price, time.Now(), types.ExitManual)
	return nil
}

// Report builds the performance report from the session's history so
// far.
func (s *Session) Report(ctx context.Context) *analytics.Report {
	return s.buildReport(ctx, s.started, time.Now())
}
