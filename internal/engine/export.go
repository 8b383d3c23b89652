package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"tradesim/internal/analytics"
	"tradesim/types"
)

// SessionExport is the serialized form of a run: configuration plus
// the complete trade and snapshot history. Every Trade and Snapshot
// is represented losslessly so a report recomputed from an import
// matches the original.
type SessionExport struct {
	SessionID  string           `json:"sessionId"`
	ExportedAt time.Time        `json:"exportedAt"`
	Config     Config           `json:"config"`
	Trades     []types.Trade    `json:"trades"`
	Snapshots  []types.Snapshot `json:"snapshots"`
}

// Export serializes the session's configuration, trade history, and
// snapshot history to JSON.
func (s *Session) Export() ([]byte, error) {
	exp := SessionExport{
		SessionID:  s.id,
		ExportedAt: time.Now(),
		Config:     s.cfg,
		Trades:     s.ledger.Trades(),
		Snapshots:  s.ledger.Snapshots(),
	}
	data, err := json.MarshalIndent(exp, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("exporting session %s: %w", s.id, err)
	}
	return data, nil
}

// ImportSession parses a previously exported session.
func ImportSession(data []byte) (*SessionExport, error) {
	var exp SessionExport
	if err := json.Unmarshal(data, &exp); err != nil {
		return nil, fmt.Errorf("importing session: %w", err)
	}
	return &exp, nil
}

// BuildReport recomputes the performance report from the exported
// history using the exported configuration.
func (e *SessionExport) BuildReport() *analytics.Report {
	return analytics.BuildReport(e.Snapshots, e.Trades, analytics.Params{
		RiskFreeRate: e.Config.RiskFreeRate,
		Benchmark:    e.Config.Benchmark,
	})
}
