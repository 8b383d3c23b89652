package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tradesim/types"
)

// staticMarket always serves the same quote map.
type staticMarket struct {
	mu     sync.Mutex
	quotes map[string]types.Quote
}

func (m *staticMarket) GetQuotes(_ context.Context, _ []string, _ time.Time) (map[string]types.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]types.Quote, len(m.quotes))
	for k, v := range m.quotes {
		out[k] = v
	}
	return out, nil
}

func (m *staticMarket) setPrice(symbol, price string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.quotes[symbol]
	q.Price = d(price)
	m.quotes[symbol] = q
}

// onceSignals emits one batch on the first call, then nothing.
type onceSignals struct {
	mu      sync.Mutex
	batch   []types.Signal
	emitted bool
}

func (m *onceSignals) GetSignals(_ context.Context, _ []string, _ time.Time) ([]types.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.emitted {
		return nil, nil
	}
	m.emitted = true
	return m.batch, nil
}

func liveConfig() Config {
	cfg := testConfig()
	cfg.UpdateInterval = 5 * time.Millisecond
	return cfg
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not reached within %v: %s", timeout, msg)
}

func TestSessionLifecycle(t *testing.T) {
	market := &staticMarket{quotes: map[string]types.Quote{
		"SBER": quote("SBER", "250", time.Now()),
	}}
	signals := &onceSignals{batch: []types.Signal{
		buySignal("SBER", 0.9, time.Now()),
	}}

	sess, err := NewSession(liveConfig(), Deps{Market: market, Signals: signals})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	if sess.ID() == "" {
		t.Error("session has no ID")
	}
	if sess.State() != StateNotStarted {
		t.Errorf("state = %v, want %v", sess.State(), StateNotStarted)
	}

	if err := sess.Start(context.Background(), []string{"SBER"}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := sess.Start(context.Background(), []string{"SBER"}); !errors.Is(err, ErrSessionRunning) {
		t.Errorf("second Start() error = %v, want ErrSessionRunning", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return len(sess.OpenPositions()) == 1
	}, "position opened from signal")

	status := sess.Status()
	if status.State != StateRunning {
		t.Errorf("status state = %v, want %v", status.State, StateRunning)
	}
	if status.DailyTradeCount != 1 {
		t.Errorf("daily trade count = %d, want 1", status.DailyTradeCount)
	}
	if status.LastSnapshot == nil {
		t.Error("status has no snapshot")
	}

	if err := sess.Pause(); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if sess.State() != StatePaused {
		t.Errorf("state after pause = %v, want %v", sess.State(), StatePaused)
	}
	// Monitoring continues while paused.
	before := len(sess.Snapshots())
	waitFor(t, 2*time.Second, func() bool {
		return len(sess.Snapshots()) > before
	}, "snapshots while paused")

	if err := sess.Resume(); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if sess.State() != StateRunning {
		t.Errorf("state after resume = %v, want %v", sess.State(), StateRunning)
	}

	if err := sess.Stop(5 * time.Second); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if sess.State() != StateStopped {
		t.Errorf("state after stop = %v, want %v", sess.State(), StateStopped)
	}

	// The open position is force-closed on shutdown.
	if got := len(sess.OpenPositions()); got != 0 {
		t.Errorf("open positions after stop = %d, want 0", got)
	}
	trades := sess.TradeHistory(0)
	if len(trades) != 1 || trades[0].ExitReason != types.ExitSessionEnd {
		t.Fatalf("trades after stop = %+v, want one session_end close", trades)
	}

	if err := sess.Stop(time.Second); !errors.Is(err, ErrSessionNotRunning) {
		t.Errorf("Stop() after stop error = %v, want ErrSessionNotRunning", err)
	}
	if err := sess.Start(context.Background(), []string{"SBER"}); !errors.Is(err, ErrAlreadyRan) {
		t.Errorf("restart error = %v, want ErrAlreadyRan", err)
	}
}

func TestSessionManualClose(t *testing.T) {
	market := &staticMarket{quotes: map[string]types.Quote{
		"GAZP": quote("GAZP", "180", time.Now()),
	}}
	signals := &onceSignals{batch: []types.Signal{
		buySignal("GAZP", 0.9, time.Now()),
	}}

	sess, err := NewSession(liveConfig(), Deps{Market: market, Signals: signals})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	if err := sess.Start(context.Background(), []string{"GAZP"}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer sess.Stop(5 * time.Second)

	waitFor(t, 2*time.Second, func() bool {
		return len(sess.OpenPositions()) == 1
	}, "position opened from signal")

	if err := sess.ClosePosition("GAZP"); err != nil {
		t.Fatalf("ClosePosition() error = %v", err)
	}
	trades := sess.TradeHistory(0)
	if len(trades) != 1 || trades[0].ExitReason != types.ExitManual {
		t.Fatalf("trades = %+v, want one manual close", trades)
	}
	if err := sess.ClosePosition("GAZP"); err == nil {
		t.Error("ClosePosition() on closed symbol returned nil error")
	}
}

func TestSessionPauseResumeStateErrors(t *testing.T) {
	sess, err := NewSession(liveConfig(), Deps{
		Market:  &staticMarket{quotes: map[string]types.Quote{}},
		Signals: &onceSignals{},
	})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	if err := sess.Pause(); !errors.Is(err, ErrSessionNotRunning) {
		t.Errorf("Pause() before start error = %v, want ErrSessionNotRunning", err)
	}
	if err := sess.Resume(); !errors.Is(err, ErrSessionNotPaused) {
		t.Errorf("Resume() before start error = %v, want ErrSessionNotPaused", err)
	}
	if err := sess.Stop(time.Second); !errors.Is(err, ErrSessionNotRunning) {
		t.Errorf("Stop() before start error = %v, want ErrSessionNotRunning", err)
	}
}

func TestTradeHistoryLimit(t *testing.T) {
	sess, err := NewSession(liveConfig(), Deps{
		Market:  &staticMarket{quotes: map[string]types.Quote{}},
		Signals: &onceSignals{},
	})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	for i := 0; i < 5; i++ {
		sess.ledger.RecordTrade(types.Trade{Symbol: "X", RealizedPnL: d("1")})
	}
	if got := len(sess.TradeHistory(3)); got != 3 {
		t.Errorf("TradeHistory(3) = %d trades, want 3", got)
	}
	if got := len(sess.TradeHistory(0)); got != 5 {
		t.Errorf("TradeHistory(0) = %d trades, want 5", got)
	}
	if got := len(sess.TradeHistory(10)); got != 5 {
		t.Errorf("TradeHistory(10) = %d trades, want 5", got)
	}
}
