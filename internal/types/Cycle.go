package types

import "time"

// CycleSnapshot summarises one keeper cycle. It is kept in memory only.
type CycleSnapshot struct {
	CycleID      string               `json:"cycle_id"`
	CycleNumber  int                  `json:"cycle_number"`
	StartedAt    time.Time            `json:"started_at"`
	FinishedAt   time.Time            `json:"finished_at"`
	Scanned      int                  `json:"scanned"`
	Liquidatable int                  `json:"liquidatable"`
	Attempted    int                  `json:"attempted"`
	Succeeded    int                  `json:"succeeded"`
	Failed       int                  `json:"failed"`
	Skipped      int                  `json:"skipped"`
	QueryError   string               `json:"query_error,omitempty"`
	Receipts     []LiquidationReceipt `json:"receipts"`
}

// Duration is zero until the cycle has finished.
func (c CycleSnapshot) Duration() time.Duration {
	if c.FinishedAt.IsZero() {
		return 0
	}
	return c.FinishedAt.Sub(c.StartedAt)
}
